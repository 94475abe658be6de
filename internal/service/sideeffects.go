package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/audit"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
)

// collaborators bundles the side channels every manager fans into.
// All calls are isolated: a panic or error in the event dispatcher, the audit
// recorder or the notifier is logged and discarded, never surfaced to the
// caller of the triggering operation.
type collaborators struct {
	dispatcher events.Dispatcher
	auditor    audit.Recorder
	notifier   notify.Notifier
	logger     *zap.Logger
}

func (c *collaborators) publish(ctx context.Context, event events.Event) {
	defer c.shield("publish")()
	if c.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := c.dispatcher.Publish(ctx, event); err != nil {
		c.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (c *collaborators) recordAudit(ctx context.Context, entry audit.Entry) {
	defer c.shield("audit")()
	if c.auditor == nil {
		return
	}
	if err := c.auditor.Record(ctx, entry); err != nil {
		c.logger.Warn("audit record failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (c *collaborators) sendNotification(ctx context.Context, n notify.Notification) {
	defer c.shield("notify")()
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, n); err != nil {
		c.logger.Warn("notification send failed", zap.String("category", n.Category), zap.Error(err))
	}
}

func (c *collaborators) shield(channel string) func() {
	return func() {
		if r := recover(); r != nil {
			c.logger.Error("side-effect panic recovered",
				zap.String("channel", channel),
				zap.Any("panic", r))
		}
	}
}
