package channelchecker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/memohai/omnirelay/internal/channel"
)

type fakeConnectionObserver struct {
	items []channel.ConnectionStatus
}

func (f *fakeConnectionObserver) ConnectionStatuses() []channel.ConnectionStatus {
	return f.items
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckerListChecks(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	checker := NewChecker(newTestLogger(), &fakeConnectionObserver{
		items: []channel.ConnectionStatus{
			{
				ChannelType: channel.TypeSecondary,
				Running:     false,
				LastError:   "connect timeout",
				UpdatedAt:   now,
			},
			{
				ChannelType: channel.TypePrimary,
				Running:     true,
				UpdatedAt:   now,
			},
		},
	})

	items := checker.ListChecks(context.Background())
	if len(items) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(items))
	}
	if items[0].ID != "channel.connection.primary" || items[0].Status != "ok" {
		t.Fatalf("unexpected primary check: %+v", items[0])
	}
	if items[1].ID != "channel.connection.secondary" || items[1].Status != "error" {
		t.Fatalf("unexpected secondary check: %+v", items[1])
	}
	if items[1].Detail != "connect timeout" {
		t.Fatalf("unexpected detail: %s", items[1].Detail)
	}
}

func TestCheckerNilObserver(t *testing.T) {
	t.Parallel()

	checker := NewChecker(newTestLogger(), nil)
	items := checker.ListChecks(context.Background())
	if len(items) != 1 {
		t.Fatalf("expected 1 check, got %d", len(items))
	}
	if items[0].Status != "warn" {
		t.Fatalf("expected warn status, got %s", items[0].Status)
	}
}

func TestCheckerCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker := NewChecker(newTestLogger(), &fakeConnectionObserver{
		items: []channel.ConnectionStatus{{ChannelType: channel.TypePrimary, Running: true}},
	})
	if items := checker.ListChecks(ctx); len(items) != 0 {
		t.Fatalf("expected no checks on canceled context, got %d", len(items))
	}
}
