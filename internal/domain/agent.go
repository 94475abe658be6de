package domain

import "time"

// AgentRole enumerates the roles evaluated by the authorization middleware.
type AgentRole string

const (
	AgentRoleAgent      AgentRole = "AGENT"
	AgentRoleSupervisor AgentRole = "SUPERVISOR"
	AgentRoleAdmin      AgentRole = "ADMIN"
)

// Agent is a support staff member who handles tickets and chats.
type Agent struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         AgentRole
	Department   *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
