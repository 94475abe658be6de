package domain

import "time"

// BotRule maps visitor message patterns to a canned auto-reply.
// Rules are evaluated in descending priority order; the first match wins.
type BotRule struct {
	ID           string
	Name         string
	Priority     int
	Patterns     []string
	Response     string
	QuickReplies []string
	IsActive     bool
	UsageCount   int
	LastUsedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
