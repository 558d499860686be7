package channelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/healthcheck"
)

const checkTypeChannelConnection = "channel.connection"

// ConnectionObserver reads runtime channel connection statuses.
type ConnectionObserver interface {
	ConnectionStatuses() []channel.ConnectionStatus
}

// Checker evaluates channel connection health checks.
type Checker struct {
	logger   *slog.Logger
	observer ConnectionObserver
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, observer ConnectionObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		observer: observer,
	}
}

// ListChecks reports one check per registered receiver.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	// Connection observer is context-free; best effort early cancellation guard.
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if c.observer == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable")
		return []healthcheck.CheckResult{
			{
				ID:      checkTypeChannelConnection + ".service",
				Type:    checkTypeChannelConnection,
				Status:  healthcheck.StatusWarn,
				Summary: "Channel checker service is not available.",
				Detail:  "connection observer is nil",
			},
		}
	}

	statuses := c.observer.ConnectionStatuses()
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ChannelType < statuses[j].ChannelType
	})
	checks := make([]healthcheck.CheckResult, 0, len(statuses))
	for _, status := range statuses {
		checks = append(checks, connectionCheck(status))
	}
	return checks
}

func connectionCheck(status channel.ConnectionStatus) healthcheck.CheckResult {
	name := strings.TrimSpace(status.ChannelType.String())
	if name == "" {
		name = "unknown"
	}
	meta := map[string]any{"running": status.Running}
	if !status.UpdatedAt.IsZero() {
		meta["updated_at"] = status.UpdatedAt.UTC().Format(time.RFC3339)
	}
	item := healthcheck.CheckResult{
		ID:       checkTypeChannelConnection + "." + name,
		Type:     checkTypeChannelConnection,
		Metadata: meta,
	}
	lastErr := strings.TrimSpace(status.LastError)
	switch {
	case status.Running:
		item.Status = healthcheck.StatusOK
		item.Summary = fmt.Sprintf("%s receiver is running.", name)
	case lastErr != "":
		item.Status = healthcheck.StatusError
		item.Summary = fmt.Sprintf("%s receiver failed; inbound messages are not arriving.", name)
		item.Detail = lastErr
	default:
		item.Status = healthcheck.StatusError
		item.Summary = fmt.Sprintf("%s receiver is stopped.", name)
	}
	return item
}
