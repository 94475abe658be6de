package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/config"
	"github.com/Abdualsslam/tras-phone-sub000/internal/service"
)

// AbandonSweeper marks waiting chat sessions idle past the timeout as
// abandoned on a fixed cadence.
type AbandonSweeper struct {
	chats  *service.ChatService
	logger *zap.Logger
	cfg    config.ChatConfig
}

// NewAbandonSweeper constructs the sweeper.
func NewAbandonSweeper(chats *service.ChatService, logger *zap.Logger, cfg config.ChatConfig) *AbandonSweeper {
	return &AbandonSweeper{chats: chats, logger: logger, cfg: cfg}
}

// Run blocks sweeping on the configured interval until ctx is canceled.
func (s *AbandonSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.AbandonSweepInterval())
	defer ticker.Stop()
	s.logger.Info("abandonment sweeper started",
		zap.Duration("interval", s.cfg.AbandonSweepInterval()),
		zap.Duration("timeout", s.cfg.AbandonTimeout()))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("abandonment sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass.
func (s *AbandonSweeper) Sweep(ctx context.Context) {
	swept, err := s.chats.SweepAbandoned(ctx, s.cfg.AbandonTimeout())
	if err != nil {
		s.logger.Error("abandonment sweep failed", zap.Error(err))
		return
	}
	if len(swept) > 0 {
		s.logger.Info("sessions abandoned", zap.Int("count", len(swept)))
	}
}
