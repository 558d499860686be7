package databasechecker

import (
	"context"
	"log/slog"
	"time"

	"github.com/memohai/omnirelay/internal/healthcheck"
)

const (
	checkTypeDatabase   = "database"
	defaultCheckTimeout = 3 * time.Second
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker reports whether the session and event store is reachable.
type Checker struct {
	logger  *slog.Logger
	pinger  Pinger
	timeout time.Duration
}

func NewChecker(log *slog.Logger, pinger Pinger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_database")),
		pinger:  pinger,
		timeout: defaultCheckTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:      checkTypeDatabase,
		Type:    checkTypeDatabase,
		Status:  healthcheck.StatusOK,
		Summary: "Database is reachable.",
	}
	if c.pinger == nil {
		item.Status = healthcheck.StatusUnknown
		item.Summary = "Database is not configured."
		return []healthcheck.CheckResult{item}
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	started := time.Now()
	if err := c.pinger.Ping(pingCtx); err != nil {
		c.logger.Warn("database ping failed", slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "Database is unreachable."
		item.Detail = err.Error()
		return []healthcheck.CheckResult{item}
	}
	item.Metadata = map[string]any{"latency_ms": time.Since(started).Milliseconds()}
	return []healthcheck.CheckResult{item}
}
