package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/omnirelay/internal/channel"
)

const sweepTimeout = 5 * time.Minute

// Reconcile probes every mapped topic and clears the ones that vanished.
// Probe errors keep the mapping. It returns how many mappings were cleared.
func (r *Router) Reconcile(ctx context.Context) (int, error) {
	forum, ok := r.registry.Forum()
	if !ok {
		return 0, nil
	}
	items, err := r.sessions.ListWithTopic(ctx)
	if err != nil {
		return 0, storageError("list sessions", err)
	}
	cleared := 0
	for _, sess := range items {
		if err := ctx.Err(); err != nil {
			return cleared, err
		}
		ok, err := r.reconcileOne(ctx, forum, sess.ClientID, sess.TopicHandle)
		if err != nil {
			if errors.Is(err, ErrStorage) {
				return cleared, err
			}
			r.logger.Warn("reconcile probe failed", slog.String("client_id", sess.ClientID), slog.Any("error", err))
			continue
		}
		if ok {
			cleared++
		}
	}
	return cleared, nil
}

// reconcileOne runs under the client's lock so it cannot race an inbound
// message that is recreating the same topic.
func (r *Router) reconcileOne(ctx context.Context, forum channel.Forum, clientID, handle string) (bool, error) {
	unlock := r.locks.Lock(clientID)
	defer unlock()
	current, ok, err := r.sessions.Find(ctx, clientID)
	if err != nil {
		return false, storageError("find session", err)
	}
	if !ok || current.TopicHandle != handle {
		return false, nil
	}
	exists, err := forum.TopicExists(ctx, handle)
	if err != nil || exists {
		return false, err
	}
	cleared, err := r.sessions.ClearTopic(ctx, handle)
	if err != nil {
		return false, storageError("clear topic", err)
	}
	if cleared {
		r.metrics.TopicReconciled()
		r.logger.Info("topic reconciled", slog.String("client_id", clientID), slog.String("topic", handle))
	}
	return cleared, nil
}

// Reconciler runs Router.Reconcile on a cron schedule.
type Reconciler struct {
	router   *Router
	schedule string
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewReconciler creates a Reconciler. An empty schedule disables it.
func NewReconciler(log *slog.Logger, router *Router, schedule string) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		router:   router,
		schedule: strings.TrimSpace(schedule),
		logger:   log.With(slog.String("component", "reconciler")),
	}
}

// Start registers the sweep and starts the scheduler.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.schedule == "" {
		r.logger.Info("reconciliation disabled")
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.sweep(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("parse reconcile schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.cancel = cancel
	r.logger.Info("reconciliation scheduled", slog.String("schedule", r.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep, bounded by ctx.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	started := time.Now()
	cleared, err := r.router.Reconcile(ctx)
	if err != nil {
		r.logger.Error("reconciliation failed", slog.Int("cleared", cleared), slog.Any("error", err))
		return
	}
	r.logger.Info("reconciliation done", slog.Int("cleared", cleared), slog.Duration("took", time.Since(started)))
}
