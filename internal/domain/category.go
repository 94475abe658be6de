package domain

import "time"

// Category defines SLA targets and assignment defaults for a class of tickets.
type Category struct {
	ID                  string
	Name                string
	ResponseTimeHours   int
	ResolutionTimeHours int
	DefaultPriority     TicketPriority
	DefaultAssigneeID   *string
	TotalTickets        int
	OpenTickets         int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FirstResponseDue computes the first-response deadline for a ticket created at t.
func (c *Category) FirstResponseDue(t time.Time) time.Time {
	return t.Add(time.Duration(c.ResponseTimeHours) * time.Hour)
}

// ResolutionDue computes the resolution deadline for a ticket created at t.
func (c *Category) ResolutionDue(t time.Time) time.Time {
	return t.Add(time.Duration(c.ResolutionTimeHours) * time.Hour)
}
