// Package relay routes messages between external clients and the staff group.
//
// Each client moves through three states: no session, a session without a
// topic, and a session with a topic. Inbound client messages always end up in
// the event log; staff replies inside a topic are delivered back to the client
// on its home channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
	"github.com/memohai/omnirelay/internal/events"
	"github.com/memohai/omnirelay/internal/metrics"
	"github.com/memohai/omnirelay/internal/sessions"
)

var (
	// ErrStorage wraps every persistence failure that aborted an operation.
	ErrStorage = errors.New("relay storage failure")
	// ErrInvalidMessage is returned for consumer messages without an address or content.
	ErrInvalidMessage = errors.New("invalid relay message")
)

// SessionStore is the session directory used by the router.
type SessionStore interface {
	Find(ctx context.Context, clientID string) (sessions.Session, bool, error)
	FindByTopic(ctx context.Context, handle string) (sessions.Session, bool, error)
	FindByPhone(ctx context.Context, phone string) (sessions.Session, bool, error)
	Upsert(ctx context.Context, input sessions.UpsertInput) (sessions.Session, error)
	ClaimOwner(ctx context.Context, clientID, owner string) (sessions.Session, error)
	SetTopic(ctx context.Context, clientID, handle string) (sessions.Session, error)
	ClearTopic(ctx context.Context, handle string) (bool, error)
	ListWithTopic(ctx context.Context) ([]sessions.Session, error)
}

// EventLog is the outbound event log used by the router.
type EventLog interface {
	Append(ctx context.Context, input events.AppendInput) (events.Event, error)
	LastOwner(ctx context.Context, clientID string) (string, error)
}

var (
	_ SessionStore             = (*sessions.Service)(nil)
	_ EventLog                 = (*events.Service)(nil)
	_ channel.InboundProcessor = (*Router)(nil)
	_ Outbound                 = (*channel.Manager)(nil)
)

// Outbound delivers messages to clients on a given channel.
type Outbound interface {
	SendText(ctx context.Context, channelType channel.ChannelType, address, text string) (string, error)
	SendFile(ctx context.Context, channelType channel.ChannelType, address string, att channel.Attachment, caption string) (string, error)
}

// Options configures a Router.
type Options struct {
	// DefaultOwner is attributed when nobody claimed a client.
	DefaultOwner string
	// DefaultChannel is used for sessions created without a known channel.
	DefaultChannel channel.ChannelType
	// Outbound sends to clients. Nil sends through a manager over the registry.
	Outbound Outbound
	Metrics  *metrics.Metrics
}

// Router is the relay state machine. It implements channel.InboundProcessor.
type Router struct {
	logger         *slog.Logger
	sessions       SessionStore
	events         EventLog
	registry       *channel.Registry
	outbound       Outbound
	metrics        *metrics.Metrics
	defaultOwner   string
	defaultChannel channel.ChannelType
	locks          *keyedMutex
}

// NewRouter creates a Router.
func NewRouter(log *slog.Logger, store SessionStore, eventLog EventLog, registry *channel.Registry, opts Options) *Router {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = channel.NewRegistry()
	}
	owner := strings.TrimSpace(opts.DefaultOwner)
	if owner == "" {
		owner = "1C"
	}
	outbound := opts.Outbound
	if outbound == nil {
		outbound = channel.NewManager(log, registry, nil)
	}
	ct := opts.DefaultChannel
	if !ct.Valid() {
		ct = channel.TypeSecondary
	}
	return &Router{
		logger:         log.With(slog.String("component", "relay")),
		sessions:       store,
		events:         eventLog,
		registry:       registry,
		outbound:       outbound,
		metrics:        opts.Metrics,
		defaultOwner:   owner,
		defaultChannel: ct,
		locks:          newKeyedMutex(),
	}
}

// DefaultOwner returns the configured source-of-record owner.
func (r *Router) DefaultOwner() string {
	return r.defaultOwner
}

// HandleInbound dispatches a normalized event from any adapter.
func (r *Router) HandleInbound(ctx context.Context, event channel.InboundEvent) error {
	if !event.IsGroupContext {
		r.metrics.Inbound(event.Channel.String(), false)
		return r.handleClientMessage(ctx, event)
	}
	r.metrics.Inbound(event.Channel.String(), true)
	if strings.TrimSpace(event.ReplyTarget) != "" {
		return r.handleStaffReply(ctx, event)
	}
	if IsCommand(event.Text) {
		return r.handleCommand(ctx, event)
	}
	return nil
}

func (r *Router) handleClientMessage(ctx context.Context, event channel.InboundEvent) error {
	clientID := strings.TrimSpace(event.Sender.Address)
	if clientID == "" {
		return fmt.Errorf("%w: inbound event without sender address", ErrInvalidMessage)
	}
	if !event.Channel.Valid() {
		return fmt.Errorf("%w: inbound event on unknown channel %q", ErrInvalidMessage, event.Channel)
	}
	unlock := r.locks.Lock(clientID)
	defer unlock()

	sess, err := r.sessions.Upsert(ctx, sessions.UpsertInput{
		ClientID:    clientID,
		DisplayName: event.Sender.DisplayName,
		Phone:       event.Sender.Phone,
		ChannelKind: event.Channel,
		Mode:        sessions.MergeCorrect,
	})
	if err != nil {
		return storageError("upsert session", err)
	}
	sess, err = r.ensureTopic(ctx, sess)
	if err != nil {
		return err
	}
	owner, err := r.attribute(ctx, sess)
	if err != nil {
		return err
	}

	var attachmentURL string
	if event.Attachment != nil {
		attachmentURL = event.Attachment.URL
	}
	if _, err := r.events.Append(ctx, events.AppendInput{
		Direction:       events.DirectionIn,
		Source:          events.SourceClient,
		ClientID:        sess.ClientID,
		DisplayName:     sess.DisplayName,
		OwnerRef:        owner,
		ChannelKind:     sess.ChannelKind,
		Text:            event.Text,
		AttachmentURL:   attachmentURL,
		RemoteMessageID: event.RemoteMessageID,
	}); err != nil {
		return storageError("append inbound event", err)
	}
	r.logger.Info("inbound client message",
		slog.String("client_id", sess.ClientID),
		slog.String("channel", sess.ChannelKind.String()),
		slog.String("topic", sess.TopicHandle),
		slog.String("text", common.SummarizeText(event.Text)),
	)
	r.Mirror(ctx, sess, event.Text, event.Attachment)
	return nil
}

// attribute picks the owner of an inbound message: the session owner when the
// client has a live topic, else the last replying owner, else the default.
func (r *Router) attribute(ctx context.Context, sess sessions.Session) (string, error) {
	if sess.HasTopic() && sess.OwnerRef != "" {
		return sess.OwnerRef, nil
	}
	last, err := r.events.LastOwner(ctx, sess.ClientID)
	if err != nil {
		return "", storageError("last owner", err)
	}
	if last != "" {
		return last, nil
	}
	return r.defaultOwner, nil
}

func (r *Router) handleStaffReply(ctx context.Context, event channel.InboundEvent) error {
	handle := strings.TrimSpace(event.ReplyTarget)
	sess, ok, err := r.sessions.FindByTopic(ctx, handle)
	if err != nil {
		return storageError("find session by topic", err)
	}
	if !ok {
		r.logger.Warn("staff reply in unmapped topic dropped", slog.String("topic", handle))
		return nil
	}
	if !event.HasContent() {
		return nil
	}
	unlock := r.locks.Lock(sess.ClientID)
	defer unlock()

	staff := staffName(event.Sender)
	id, err := r.deliver(ctx, sess, event.Text, event.Attachment)
	if err != nil {
		r.logger.Warn("staff reply delivery failed",
			slog.String("client_id", sess.ClientID),
			slog.String("channel", sess.ChannelKind.String()),
			slog.Any("error", err),
		)
		r.notify(ctx, sess, deliveryFailureNotice(err))
		return nil
	}

	var attachmentURL string
	if event.Attachment != nil {
		attachmentURL = event.Attachment.URL
	}
	if _, err := r.events.Append(ctx, events.AppendInput{
		Direction:       events.DirectionOut,
		Source:          events.SourceOwner,
		ClientID:        sess.ClientID,
		DisplayName:     sess.DisplayName,
		OwnerRef:        staff,
		ChannelKind:     sess.ChannelKind,
		Text:            event.Text,
		AttachmentURL:   attachmentURL,
		RemoteMessageID: id,
	}); err != nil {
		return storageError("append staff reply", err)
	}
	r.logger.Info("staff reply delivered",
		slog.String("client_id", sess.ClientID),
		slog.String("staff", staff),
		slog.String("text", common.SummarizeText(event.Text)),
	)
	return nil
}

// deliver sends to the client on the session's channel.
func (r *Router) deliver(ctx context.Context, sess sessions.Session, text string, att *channel.Attachment) (string, error) {
	var (
		id  string
		err error
	)
	if att != nil {
		id, err = r.outbound.SendFile(ctx, sess.ChannelKind, sess.ClientID, *att, text)
	} else {
		id, err = r.outbound.SendText(ctx, sess.ChannelKind, sess.ClientID, text)
	}
	r.metrics.Send(sess.ChannelKind.String(), err)
	return id, err
}

// notify posts a staff-visible notice into the session's topic.
func (r *Router) notify(ctx context.Context, sess sessions.Session, text string) {
	forum, ok := r.registry.Forum()
	if !ok || !sess.HasTopic() {
		return
	}
	if _, err := forum.PostText(ctx, sess.TopicHandle, text); err != nil {
		r.logger.Warn("post notice failed", slog.String("topic", sess.TopicHandle), slog.Any("error", err))
	}
}

func deliveryFailureNotice(err error) string {
	switch {
	case errors.Is(err, channel.ErrAddressInvalid):
		return "Not delivered: the client address is not reachable on this channel."
	case errors.Is(err, channel.ErrUnsupported):
		return "Not delivered: the client's channel is not configured."
	default:
		return "Not delivered: the channel is unavailable, please retry later."
	}
}

// ensureTopic verifies the session's topic and creates one when it is
// missing. Topic creation failures leave the session without a topic.
func (r *Router) ensureTopic(ctx context.Context, sess sessions.Session) (sessions.Session, error) {
	forum, ok := r.registry.Forum()
	if !ok {
		return sess, nil
	}
	if sess.HasTopic() {
		exists, err := forum.TopicExists(ctx, sess.TopicHandle)
		if err != nil {
			r.logger.Warn("topic probe failed, keeping mapping",
				slog.String("client_id", sess.ClientID),
				slog.String("topic", sess.TopicHandle),
				slog.Any("error", err),
			)
			return sess, nil
		}
		if exists {
			return sess, nil
		}
		if _, err := r.sessions.ClearTopic(ctx, sess.TopicHandle); err != nil {
			return sess, storageError("clear topic", err)
		}
		r.metrics.TopicReconciled()
		r.logger.Info("topic vanished, recreating", slog.String("client_id", sess.ClientID), slog.String("topic", sess.TopicHandle))
		sess.TopicHandle = ""
	}

	handle, err := forum.CreateTopic(ctx, TopicTitle(sess))
	if err != nil {
		r.logger.Warn("create topic failed", slog.String("client_id", sess.ClientID), slog.Any("error", err))
		return sess, nil
	}
	updated, err := r.sessions.SetTopic(ctx, sess.ClientID, handle)
	if err != nil {
		return sess, storageError("set topic", err)
	}
	r.metrics.TopicCreated()
	r.logger.Info("topic created", slog.String("client_id", sess.ClientID), slog.String("topic", handle))
	return updated, nil
}

// TopicTitle renders the topic name for a session.
func TopicTitle(sess sessions.Session) string {
	name := strings.TrimSpace(sess.DisplayName)
	if name == "" {
		name = "Client"
	}
	return fmt.Sprintf("%s (%s)", name, sess.ClientID)
}

// Mirror copies a message into the session's topic. It never fails the
// caller. A vanished topic clears the mapping.
func (r *Router) Mirror(ctx context.Context, sess sessions.Session, text string, att *channel.Attachment) {
	if !sess.HasTopic() {
		return
	}
	forum, ok := r.registry.Forum()
	if !ok {
		return
	}
	var err error
	if att != nil {
		_, err = forum.PostFile(ctx, sess.TopicHandle, *att, text)
	} else if strings.TrimSpace(text) != "" {
		_, err = forum.PostText(ctx, sess.TopicHandle, text)
	}
	if err == nil {
		return
	}
	r.logger.Warn("mirror failed", slog.String("client_id", sess.ClientID), slog.String("topic", sess.TopicHandle), slog.Any("error", err))
	if !errors.Is(err, channel.ErrTopicMissing) {
		return
	}
	if _, err := r.sessions.ClearTopic(ctx, sess.TopicHandle); err != nil {
		r.logger.Error("clear vanished topic failed", slog.String("topic", sess.TopicHandle), slog.Any("error", err))
		return
	}
	r.metrics.TopicReconciled()
}

func staffName(id channel.Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(id.Username); name != "" {
		return name
	}
	return strings.TrimSpace(id.Address)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
