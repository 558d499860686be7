// Package sessions is the directory of client sessions and their topic mappings.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/db"
	"github.com/memohai/omnirelay/internal/db/sqlc"
)

var (
	ErrInvalidInput    = errors.New("invalid session input")
	ErrSessionNotFound = errors.New("session not found")
)

// Service reads and writes client sessions. Every method is a single
// statement, so each call is atomic on its own row.
type Service struct {
	queries *sqlc.Queries
	logger  *slog.Logger
}

// NewService creates a session directory over queries.
func NewService(log *slog.Logger, queries *sqlc.Queries) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries: queries,
		logger:  log.With(slog.String("service", "sessions")),
	}
}

// Find returns the session for clientID. It has no side effects.
func (s *Service) Find(ctx context.Context, clientID string) (Session, bool, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Session{}, false, nil
	}
	row, err := s.queries.GetClientSession(ctx, clientID)
	return lookup(row, err, "get session")
}

// FindByTopic resolves the session currently holding handle.
func (s *Service) FindByTopic(ctx context.Context, handle string) (Session, bool, error) {
	topic := db.StringToText(handle)
	if !topic.Valid {
		return Session{}, false, nil
	}
	row, err := s.queries.GetClientSessionByTopic(ctx, topic)
	return lookup(row, err, "get session by topic")
}

// FindByPhone returns the most recently updated session with phone.
func (s *Service) FindByPhone(ctx context.Context, phone string) (Session, bool, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Session{}, false, nil
	}
	row, err := s.queries.GetClientSessionByPhone(ctx, phone)
	return lookup(row, err, "get session by phone")
}

func lookup(row sqlc.ClientSession, err error, op string) (Session, bool, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return toSession(row), true, nil
}

// Upsert creates the session or merges the given fields into it.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Session, error) {
	clientID := strings.TrimSpace(input.ClientID)
	if clientID == "" {
		return Session{}, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	if !input.ChannelKind.Valid() {
		return Session{}, fmt.Errorf("%w: invalid channel kind %q", ErrInvalidInput, input.ChannelKind)
	}
	row, err := s.queries.UpsertClientSession(ctx, sqlc.UpsertClientSessionParams{
		ClientID:    clientID,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Phone:       strings.TrimSpace(input.Phone),
		OwnerRef:    strings.TrimSpace(input.OwnerRef),
		ChannelKind: input.ChannelKind.String(),
		Correct:     input.Mode == MergeCorrect,
	})
	if err != nil {
		return Session{}, fmt.Errorf("upsert session: %w", err)
	}
	return toSession(row), nil
}

// ClaimOwner overwrites the owner. It is the only path that replaces a set owner.
func (s *Service) ClaimOwner(ctx context.Context, clientID, owner string) (Session, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Session{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	row, err := s.queries.ClaimClientSessionOwner(ctx, sqlc.ClaimClientSessionOwnerParams{
		ClientID: strings.TrimSpace(clientID),
		OwnerRef: owner,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("claim owner: %w", err)
	}
	s.logger.Info("owner claimed", slog.String("client_id", clientID), slog.String("owner", owner))
	return toSession(row), nil
}

// SetTopic maps clientID to handle. Any other session still holding handle
// is released in the same statement.
func (s *Service) SetTopic(ctx context.Context, clientID, handle string) (Session, error) {
	topic := db.StringToText(handle)
	if !topic.Valid {
		return Session{}, fmt.Errorf("%w: topic handle is required", ErrInvalidInput)
	}
	row, err := s.queries.SetClientSessionTopic(ctx, sqlc.SetClientSessionTopicParams{
		TopicHandle: topic,
		ClientID:    strings.TrimSpace(clientID),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("set topic: %w", err)
	}
	return toSession(row), nil
}

// ClearTopic removes the mapping for handle and reports whether a session held it.
func (s *Service) ClearTopic(ctx context.Context, handle string) (bool, error) {
	topic := db.StringToText(handle)
	if !topic.Valid {
		return false, nil
	}
	n, err := s.queries.ClearClientSessionTopic(ctx, topic)
	if err != nil {
		return false, fmt.Errorf("clear topic: %w", err)
	}
	if n > 0 {
		s.logger.Info("topic cleared", slog.String("topic", handle))
	}
	return n > 0, nil
}

// ListWithTopic returns every session mapped to a topic.
func (s *Service) ListWithTopic(ctx context.Context) ([]Session, error) {
	rows, err := s.queries.ListClientSessionsWithTopic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	items := make([]Session, 0, len(rows))
	for _, row := range rows {
		items = append(items, toSession(row))
	}
	return items, nil
}

func toSession(row sqlc.ClientSession) Session {
	return Session{
		ClientID:    row.ClientID,
		TopicHandle: db.TextToString(row.TopicHandle),
		DisplayName: row.DisplayName,
		Phone:       row.Phone,
		OwnerRef:    row.OwnerRef,
		ChannelKind: channel.ChannelType(row.ChannelKind),
		CreatedAt:   db.TimeFromPg(row.CreatedAt),
		UpdatedAt:   db.TimeFromPg(row.UpdatedAt),
	}
}
