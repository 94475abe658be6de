package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// Entry is one structured audit record.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Actor      domain.Actor
	OldValues  map[string]any
	NewValues  map[string]any
}

// Recorder receives audit entries. Implementations are external collaborators;
// calls are fire-and-forget and their failures never reach the caller of the
// triggering operation.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type logRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder returns a Recorder that writes entries to the structured log.
func NewLogRecorder(logger *zap.Logger) Recorder {
	return &logRecorder{logger: logger}
}

func (r *logRecorder) Record(_ context.Context, entry Entry) error {
	r.logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID),
		zap.String("actor_type", string(entry.Actor.Type)),
		zap.String("actor_id", entry.Actor.ID),
		zap.Any("old_values", entry.OldValues),
		zap.Any("new_values", entry.NewValues))
	return nil
}
