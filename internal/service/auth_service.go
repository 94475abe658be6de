package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abdualsslam/tras-phone-sub000/internal/auth"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

// AuthService authenticates agents and issues access tokens.
type AuthService struct {
	agents repository.AgentRepository
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewAuthService constructs the service.
func NewAuthService(agents repository.AgentRepository, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	return &AuthService{agents: agents, tokens: tokens, logger: logger}
}

// LoginResult carries the issued token and the authenticated agent.
type LoginResult struct {
	Token string
	Agent *domain.Agent
}

// Login verifies agent credentials and returns a signed token.
// Unknown emails and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password required", nil)
	}

	agent, err := s.agents.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !agent.Active {
		return nil, apperrors.NewForbidden("agent account disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(agent.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, err := s.tokens.IssueToken(agent)
	if err != nil {
		s.logger.Error("token issue failed", zap.String("agent_id", agent.ID), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{Token: token, Agent: agent}, nil
}
