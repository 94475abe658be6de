package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
)

// NotificationWorker decouples notification delivery from request handling.
// Send enqueues without blocking; a pool of workers drains the queue and
// hands each notification to the delivery notifier. When the queue is full
// the notification is dropped and logged.
type NotificationWorker struct {
	delivery notify.Notifier
	queue    chan notify.Notification
	logger   *zap.Logger
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
}

// NewNotificationWorker constructs the worker with the given queue depth and
// worker count and starts draining immediately.
func NewNotificationWorker(delivery notify.Notifier, logger *zap.Logger, queueDepth, workers int) *NotificationWorker {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	if workers <= 0 {
		workers = 2
	}
	w := &NotificationWorker{
		delivery: delivery,
		queue:    make(chan notify.Notification, queueDepth),
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.drain()
	}
	return w
}

// Send enqueues the notification. It never blocks the caller; after Stop
// it drops the notification instead of touching the closed queue.
func (w *NotificationWorker) Send(_ context.Context, n notify.Notification) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.logger.Warn("notification worker stopped, dropping",
			zap.String("category", n.Category),
			zap.String("recipient_id", n.RecipientID))
		return nil
	}
	select {
	case w.queue <- n:
	default:
		w.logger.Warn("notification queue full, dropping",
			zap.String("category", n.Category),
			zap.String("recipient_id", n.RecipientID))
	}
	return nil
}

// Stop finishes queued notifications and shuts down the workers.
// Stop is idempotent and safe to call concurrently with Send.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *NotificationWorker) drain() {
	defer w.wg.Done()
	for n := range w.queue {
		if err := w.delivery.Send(context.Background(), n); err != nil {
			w.logger.Warn("notification delivery failed",
				zap.String("category", n.Category),
				zap.Error(err))
		}
	}
}
