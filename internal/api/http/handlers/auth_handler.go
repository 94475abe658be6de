package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abdualsslam/tras-phone-sub000/internal/api/dto"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/service"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

// AuthHandler manages agent authentication endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Login POST /auth/agents/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token: result.Token,
		Agent: agentView(result.Agent),
	}})
}

func agentView(agent *domain.Agent) dto.AgentView {
	return dto.AgentView{
		ID:         agent.ID,
		Name:       agent.Name,
		Email:      agent.Email,
		Role:       agent.Role,
		Department: agent.Department,
	}
}
