package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/config"
)

// RecipientType distinguishes notification targets.
type RecipientType string

const (
	RecipientAgent    RecipientType = "AGENT"
	RecipientCustomer RecipientType = "CUSTOMER"
	// RecipientSupervisors fans out to every supervisor in the department
	// named by RecipientID.
	RecipientSupervisors RecipientType = "SUPERVISORS"
)

// Notification is one outbound message handed to the delivery collaborator.
type Notification struct {
	RecipientID   string
	RecipientType RecipientType
	Category      string
	Title         string
	Body          string
	ActionRef     string
}

// Notifier dispatches notifications. Delivery is an external concern;
// calls are fire-and-forget and failures never reach the triggering caller.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

type logNotifier struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewLogNotifier returns a Notifier that records the would-be delivery in the
// structured log, mirroring the email/webhook stubs.
func NewLogNotifier(logger *zap.Logger, cfg config.NotificationConfig) Notifier {
	return &logNotifier{logger: logger, cfg: cfg}
}

func (n *logNotifier) Send(_ context.Context, notification Notification) error {
	n.logger.Info("notify",
		zap.String("recipient_id", notification.RecipientID),
		zap.String("recipient_type", string(notification.RecipientType)),
		zap.String("category", notification.Category),
		zap.String("title", notification.Title),
		zap.String("action_ref", notification.ActionRef))

	if strings.TrimSpace(n.cfg.EmailFrom) != "" {
		n.logger.Debug("email notification stub",
			zap.String("from", n.cfg.EmailFrom),
			zap.String("to", notification.RecipientID))
	}
	if strings.TrimSpace(n.cfg.WebhookURL) != "" {
		n.logger.Debug("webhook notification stub",
			zap.String("url", n.cfg.WebhookURL))
	}
	return nil
}
