package dto

import "github.com/Abdualsslam/tras-phone-sub000/internal/domain"

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse response.
type LoginResponse struct {
	Token string    `json:"token"`
	Agent AgentView `json:"agent"`
}

// AgentView response.
type AgentView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	Role       domain.AgentRole `json:"role"`
	Department *string          `json:"department,omitempty"`
}
