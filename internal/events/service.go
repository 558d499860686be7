// Package events is the append-only outbound event log and the pull queue over it.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/db"
	"github.com/memohai/omnirelay/internal/db/sqlc"
	"github.com/memohai/omnirelay/internal/metrics"
	"github.com/memohai/omnirelay/internal/publish"
)

// EnvelopeType is the envelope type used when appended events are published.
const EnvelopeType = "omnirelay.event.appended"

// DefaultRecentLimit bounds ListRecent when no limit is given.
const DefaultRecentLimit = 100

var ErrInvalidEvent = errors.New("invalid event")

// Service appends to and drains the event log.
type Service struct {
	queries   *sqlc.Queries
	logger    *slog.Logger
	publisher publish.Publisher
	metrics   *metrics.Metrics
}

// NewService creates an event log over queries. publisher and m may be nil.
func NewService(log *slog.Logger, queries *sqlc.Queries, publisher publish.Publisher, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = publish.Nop{}
	}
	return &Service{
		queries:   queries,
		logger:    log.With(slog.String("service", "events")),
		publisher: publisher,
		metrics:   m,
	}
}

// Append records a pending event. Publishing afterwards is best effort.
func (s *Service) Append(ctx context.Context, input AppendInput) (Event, error) {
	if err := validate(input); err != nil {
		return Event{}, err
	}
	row, err := s.queries.CreateOutboundEvent(ctx, sqlc.CreateOutboundEventParams{
		Direction:       string(input.Direction),
		Source:          string(input.Source),
		ClientID:        strings.TrimSpace(input.ClientID),
		DisplayName:     strings.TrimSpace(input.DisplayName),
		OwnerRef:        strings.TrimSpace(input.OwnerRef),
		ChannelKind:     input.ChannelKind.String(),
		Text:            input.Text,
		AttachmentUrl:   db.StringToText(input.AttachmentURL),
		RemoteMessageID: strings.TrimSpace(input.RemoteMessageID),
	})
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	event := toEvent(row)
	if err := s.publisher.Publish(ctx, publish.NewEnvelope(EnvelopeType, event)); err != nil {
		s.logger.Warn("publish event failed", slog.Int64("id", event.ID), slog.Any("error", err))
	}
	return event, nil
}

func validate(input AppendInput) error {
	switch input.Direction {
	case DirectionIn, DirectionOut:
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidEvent, input.Direction)
	}
	switch input.Source {
	case SourceClient, SourceOwner, SourceExternalConsumer:
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidEvent, input.Source)
	}
	if strings.TrimSpace(input.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidEvent)
	}
	if !input.ChannelKind.Valid() {
		return fmt.Errorf("%w: channel kind %q", ErrInvalidEvent, input.ChannelKind)
	}
	return nil
}

// DequeuePending flips up to limit pending events to delivered and returns
// them in id order. A limit of zero or less drains the queue. Returned rows
// are never returned again.
func (s *Service) DequeuePending(ctx context.Context, limit int) ([]Event, error) {
	if limit < 0 {
		limit = 0
	}
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	rows, err := s.queries.DequeuePendingEvents(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("dequeue events: %w", err)
	}
	items := make([]Event, 0, len(rows))
	for _, row := range rows {
		items = append(items, toEvent(row))
	}
	// UPDATE ... RETURNING has no defined order.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	s.metrics.Dequeued(len(items))
	if len(items) > 0 {
		s.logger.Info("events dequeued", slog.Int("count", len(items)), slog.Int64("last_id", items[len(items)-1].ID))
	}
	return items, nil
}

// LastOwner returns the owner of the most recent outgoing event for clientID,
// or "" when there is none.
func (s *Service) LastOwner(ctx context.Context, clientID string) (string, error) {
	owner, err := s.queries.GetLastOutboundOwner(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("last owner: %w", err)
	}
	return owner, nil
}

// ListRecent returns the newest events first without changing their status.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > math.MaxInt32 {
		limit = DefaultRecentLimit
	}
	rows, err := s.queries.ListRecentOutboundEvents(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	items := make([]Event, 0, len(rows))
	for _, row := range rows {
		items = append(items, toEvent(row))
	}
	return items, nil
}

func toEvent(row sqlc.OutboundEvent) Event {
	event := Event{
		ID:              row.ID,
		Direction:       Direction(row.Direction),
		Source:          Source(row.Source),
		ClientID:        row.ClientID,
		DisplayName:     row.DisplayName,
		OwnerRef:        row.OwnerRef,
		ChannelKind:     channel.ChannelType(row.ChannelKind),
		Text:            row.Text,
		AttachmentURL:   db.TextToString(row.AttachmentUrl),
		RemoteMessageID: row.RemoteMessageID,
		Status:          row.Status,
		CreatedAt:       db.TimeFromPg(row.CreatedAt),
	}
	if row.DeliveredAt.Valid {
		at := db.TimeFromPg(row.DeliveredAt)
		event.DeliveredAt = &at
	}
	return event
}
