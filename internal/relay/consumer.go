package relay

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
	"github.com/memohai/omnirelay/internal/events"
	"github.com/memohai/omnirelay/internal/sessions"
)

// ConsumerMessage is a message the back-office asks the relay to deliver.
type ConsumerMessage struct {
	Phone string
	Text  string
	// Manager is the back-office sender label. Empty attributes the event to
	// the default owner without claiming the session.
	Manager string
	// Channel applies when no session exists yet; empty means the default channel.
	Channel channel.ChannelType
	// FileURL makes the message a file send with Text as caption.
	FileURL string
}

// SendFromConsumer delivers msg to the client and records it. A failed send
// leaves no event behind, and for an unknown client no session or topic either.
func (r *Router) SendFromConsumer(ctx context.Context, msg ConsumerMessage) (events.Event, error) {
	address := common.DigitsOnly(msg.Phone)
	if address == "" {
		return events.Event{}, fmt.Errorf("%w: phone is required", ErrInvalidMessage)
	}
	fileURL := strings.TrimSpace(msg.FileURL)
	if strings.TrimSpace(msg.Text) == "" && fileURL == "" {
		return events.Event{}, fmt.Errorf("%w: text or file is required", ErrInvalidMessage)
	}
	named := strings.TrimSpace(msg.Manager)
	manager := named
	if manager == "" {
		manager = r.defaultOwner
	}

	existing, found, err := r.lookup(ctx, address)
	if err != nil {
		return events.Event{}, err
	}
	clientID, ct := address, msg.Channel
	if found {
		clientID, ct = existing.ClientID, existing.ChannelKind
	}
	if !ct.Valid() {
		ct = r.defaultChannel
	}
	// Only a named manager claims the session; the default owner stays a fallback.
	input := sessions.UpsertInput{
		ClientID:    clientID,
		OwnerRef:    named,
		ChannelKind: ct,
		Mode:        sessions.MergeFillEmpty,
	}
	// Primary-channel ids are chat ids, not phone numbers.
	if ct == channel.TypeSecondary {
		input.Phone = address
	}

	unlock := r.locks.Lock(input.ClientID)
	defer unlock()

	var att *channel.Attachment
	if fileURL != "" {
		a := attachmentFromURL(fileURL)
		att = &a
	}

	_, known, err := r.sessions.Find(ctx, input.ClientID)
	if err != nil {
		return events.Event{}, storageError("find session", err)
	}
	var (
		sess sessions.Session
		id   string
	)
	if known {
		if sess, err = r.sessions.Upsert(ctx, input); err != nil {
			return events.Event{}, storageError("upsert session", err)
		}
		if sess, err = r.ensureTopic(ctx, sess); err != nil {
			return events.Event{}, err
		}
		if id, err = r.deliver(ctx, sess, msg.Text, att); err != nil {
			return events.Event{}, r.consumerSendFailed(sess, err)
		}
	} else {
		draft := sessions.Session{ClientID: input.ClientID, ChannelKind: ct}
		if id, err = r.deliver(ctx, draft, msg.Text, att); err != nil {
			return events.Event{}, r.consumerSendFailed(draft, err)
		}
		if sess, err = r.sessions.Upsert(ctx, input); err != nil {
			return events.Event{}, storageError("upsert session", err)
		}
		if sess, err = r.ensureTopic(ctx, sess); err != nil {
			return events.Event{}, err
		}
	}

	event, err := r.events.Append(ctx, events.AppendInput{
		Direction:       events.DirectionOut,
		Source:          events.SourceExternalConsumer,
		ClientID:        sess.ClientID,
		DisplayName:     sess.DisplayName,
		OwnerRef:        manager,
		ChannelKind:     sess.ChannelKind,
		Text:            msg.Text,
		AttachmentURL:   fileURL,
		RemoteMessageID: id,
	})
	if err != nil {
		return events.Event{}, storageError("append consumer event", err)
	}
	r.logger.Info("consumer message delivered",
		slog.String("client_id", sess.ClientID),
		slog.String("manager", manager),
		slog.Int64("event_id", event.ID),
	)
	r.Mirror(ctx, sess, mirrorText(manager, msg.Text), att)
	return event, nil
}

func (r *Router) consumerSendFailed(sess sessions.Session, err error) error {
	r.logger.Warn("consumer send failed",
		slog.String("client_id", sess.ClientID),
		slog.String("channel", sess.ChannelKind.String()),
		slog.Any("error", err),
	)
	return err
}

func mirrorText(manager, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "[" + manager + "]"
	}
	return "[" + manager + "] " + text
}

// attachmentFromURL guesses the attachment type from the URL's extension.
func attachmentFromURL(raw string) channel.Attachment {
	att := channel.Attachment{Type: channel.AttachmentFile, URL: raw}
	u, err := url.Parse(raw)
	if err != nil {
		return att
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return att
	}
	att.Name = name
	att.Mime = mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	switch {
	case att.Mime == "image/gif":
		att.Type = channel.AttachmentGIF
	case strings.HasPrefix(att.Mime, "image/"):
		att.Type = channel.AttachmentImage
	case strings.HasPrefix(att.Mime, "video/"):
		att.Type = channel.AttachmentVideo
	case strings.HasPrefix(att.Mime, "audio/"):
		att.Type = channel.AttachmentAudio
	}
	return att
}
