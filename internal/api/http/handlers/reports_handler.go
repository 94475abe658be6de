package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abdualsslam/tras-phone-sub000/internal/reports"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

// ReportsHandler serves supervisor reports.
type ReportsHandler struct {
	service *reports.Service
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService *reports.Service) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// Tickets GET /reports/tickets.
func (h *ReportsHandler) Tickets(c *fiber.Ctx) error {
	from, to, err := reportWindow(c)
	if err != nil {
		return err
	}
	report, err := h.service.Tickets(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Chats GET /reports/chats.
func (h *ReportsHandler) Chats(c *fiber.Ctx) error {
	from, to, err := reportWindow(c)
	if err != nil {
		return err
	}
	report, err := h.service.Chats(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// reportWindow parses the from/to query range, defaulting to the last 30 days.
func reportWindow(c *fiber.Ctx) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewValidationError("invalid from timestamp", nil)
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewValidationError("invalid to timestamp", nil)
		}
		to = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, apperrors.NewValidationError("from must precede to", nil)
	}
	return from, to, nil
}
