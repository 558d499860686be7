package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/sessions"
)

func (r *Router) handleCommand(ctx context.Context, event channel.InboundEvent) error {
	switch cmd := ParseCommand(event.Text).(type) {
	case OpenConversation:
		return r.openConversation(ctx, cmd, staffName(event.Sender))
	case Malformed:
		r.logger.Info("malformed staff command", slog.String("reason", cmd.Reason))
		r.postGeneral(ctx, fmt.Sprintf("Command not understood: %s.\n%s", cmd.Reason, CommandUsage))
	}
	return nil
}

// openConversation claims an existing session for owner, or creates one.
func (r *Router) openConversation(ctx context.Context, cmd OpenConversation, owner string) error {
	existing, found, err := r.lookup(ctx, cmd.Address)
	if err != nil {
		return err
	}
	key := cmd.Address
	if found {
		key = existing.ClientID
	}
	unlock := r.locks.Lock(key)
	defer unlock()

	var sess sessions.Session
	if found {
		sess, err = r.sessions.ClaimOwner(ctx, existing.ClientID, owner)
		if err != nil {
			return storageError("claim owner", err)
		}
	} else {
		ct := cmd.Channel
		if ct == "" {
			ct = r.defaultChannel
		}
		input := sessions.UpsertInput{
			ClientID:    cmd.Address,
			DisplayName: cmd.Label,
			OwnerRef:    owner,
			ChannelKind: ct,
			Mode:        sessions.MergeCorrect,
		}
		if ct == channel.TypeSecondary {
			input.Phone = cmd.Address
		}
		sess, err = r.sessions.Upsert(ctx, input)
		if err != nil {
			return storageError("create session", err)
		}
	}

	sess, err = r.ensureTopic(ctx, sess)
	if err != nil {
		return err
	}
	r.logger.Info("conversation opened",
		slog.String("client_id", sess.ClientID),
		slog.String("owner", owner),
		slog.Bool("claimed", found),
		slog.String("topic", sess.TopicHandle),
	)
	verb := "opened"
	if found {
		verb = "claimed"
	}
	summary := fmt.Sprintf("Conversation %s %s by %s.", TopicTitle(sess), verb, owner)
	if !sess.HasTopic() {
		summary += " The topic could not be created."
	}
	r.postGeneral(ctx, summary)
	r.notify(ctx, sess, fmt.Sprintf("Owner: %s", owner))
	return nil
}

// lookup resolves an address as a client id first, then as a phone.
func (r *Router) lookup(ctx context.Context, address string) (sessions.Session, bool, error) {
	sess, ok, err := r.sessions.Find(ctx, address)
	if err != nil {
		return sessions.Session{}, false, storageError("find session", err)
	}
	if ok {
		return sess, true, nil
	}
	sess, ok, err = r.sessions.FindByPhone(ctx, address)
	if err != nil {
		return sessions.Session{}, false, storageError("find session by phone", err)
	}
	return sess, ok, nil
}

func (r *Router) postGeneral(ctx context.Context, text string) {
	forum, ok := r.registry.Forum()
	if !ok {
		return
	}
	if _, err := forum.PostGeneral(ctx, text); err != nil {
		r.logger.Warn("post to general thread failed", slog.Any("error", err))
	}
}
