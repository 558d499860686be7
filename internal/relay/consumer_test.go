package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/events"
	"github.com/memohai/omnirelay/internal/sessions"
)

func TestSendFromConsumerCreatesSession(t *testing.T) {
	t.Parallel()

	h := newHarness()
	event, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "+7 999 000-00-01", Text: "Your order is ready", Manager: "Olga"})
	if err != nil {
		t.Fatalf("SendFromConsumer: %v", err)
	}
	if event.Direction != events.DirectionOut || event.Source != events.SourceExternalConsumer || event.OwnerRef != "Olga" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.ChannelKind != channel.TypeSecondary || event.RemoteMessageID != "wa-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	sent := h.secondary.sentMessages()
	if len(sent) != 1 || sent[0].Address != "79990000001" || sent[0].Text != "Your order is ready" {
		t.Fatalf("unexpected sends: %+v", sent)
	}
	sess := h.sessions.get("79990000001")
	if sess.Phone != "79990000001" || sess.OwnerRef != "Olga" || !sess.HasTopic() {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if posts := h.forum.postsIn(sess.TopicHandle); len(posts) != 1 || posts[0].Text != "[Olga] Your order is ready" {
		t.Fatalf("expected audit mirror, got %+v", posts)
	}
}

func TestSendFromConsumerUsesKnownSession(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.forum.topics["55"] = true
	h.sessions.put(sessions.Session{ClientID: "4242", Phone: "79990000001", DisplayName: "Ann", OwnerRef: "Eve", TopicHandle: "55", ChannelKind: channel.TypePrimary})

	if _, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "79990000001", Text: "Hello", Channel: channel.TypeSecondary}); err != nil {
		t.Fatalf("SendFromConsumer: %v", err)
	}
	sent := h.forum.sentMessages()
	if len(sent) != 1 || sent[0].Address != "4242" {
		t.Fatalf("known session must be reached on its own channel: %+v", sent)
	}
	sess := h.sessions.get("4242")
	if sess.OwnerRef != "Eve" || sess.DisplayName != "Ann" {
		t.Fatalf("consumer send must only fill empty fields: %+v", sess)
	}
	if len(h.secondary.sentMessages()) != 0 {
		t.Fatal("secondary must not be used")
	}
}

func TestSendFromConsumerDefaultsManager(t *testing.T) {
	t.Parallel()

	h := newHarness()
	event, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "79990000001", Text: "Hi"})
	if err != nil {
		t.Fatalf("SendFromConsumer: %v", err)
	}
	if event.OwnerRef != "1C" {
		t.Fatalf("owner = %q, want default", event.OwnerRef)
	}
	if sess := h.sessions.get("79990000001"); sess.OwnerRef != "" {
		t.Fatalf("default owner must not claim the session: %+v", sess)
	}
	if posts := h.forum.postsIn(h.sessions.get("79990000001").TopicHandle); len(posts) != 1 || posts[0].Text != "[1C] Hi" {
		t.Fatalf("unexpected mirror: %+v", posts)
	}
}

func TestSendFromConsumerFile(t *testing.T) {
	t.Parallel()

	h := newHarness()
	event, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{
		Phone:   "79990000001",
		Text:    "Scan",
		FileURL: "https://files.example/docs/scan.png?sig=1",
	})
	if err != nil {
		t.Fatalf("SendFromConsumer: %v", err)
	}
	sent := h.secondary.sentMessages()
	if len(sent) != 1 || sent[0].Att == nil {
		t.Fatalf("expected file send: %+v", sent)
	}
	att := sent[0].Att
	if att.Type != channel.AttachmentImage || att.Name != "scan.png" || att.URL != "https://files.example/docs/scan.png?sig=1" {
		t.Fatalf("unexpected attachment: %+v", att)
	}
	if sent[0].Text != "Scan" || event.AttachmentURL != att.URL {
		t.Fatalf("unexpected caption or event: %+v %+v", sent[0], event)
	}
}

func TestSendFromConsumerFailureLeavesNoEvent(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.secondary.sendErr = channel.NewTransportError(channel.ErrChannelUnreachable, channel.TypeSecondary, "send text", errors.New("502"))

	_, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "79990000001", Text: "Hi"})
	if !errors.Is(err, channel.ErrChannelUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
	if len(h.events.all()) != 0 {
		t.Fatal("failed send must not be logged")
	}
	if _, ok, _ := h.sessions.Find(context.Background(), "79990000001"); ok {
		t.Fatal("failed send to an unknown client must not create a session")
	}
}

func TestSendFromConsumerInvalidAddressLeavesNoState(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.forum.sendErr = channel.NewTransportError(channel.ErrAddressInvalid, channel.TypePrimary, "send text", errors.New("chat not found"))

	_, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "79990000009", Text: "Hi", Manager: "Olga", Channel: channel.TypePrimary})
	if !errors.Is(err, channel.ErrAddressInvalid) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if _, ok, _ := h.sessions.Find(context.Background(), "79990000009"); ok {
		t.Fatalf("session created despite invalid address: %+v", h.sessions.get("79990000009"))
	}
	if n := h.forum.createCount(); n != 0 {
		t.Fatalf("topics created = %d, want 0", n)
	}
	if len(h.events.all()) != 0 {
		t.Fatal("failed send must not be logged")
	}
}

func TestSendFromConsumerKnownSessionFailureKeepsState(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.forum.topics["55"] = true
	h.sessions.put(sessions.Session{ClientID: "79990000001", Phone: "79990000001", OwnerRef: "Eve", TopicHandle: "55", ChannelKind: channel.TypeSecondary})
	h.secondary.sendErr = channel.NewTransportError(channel.ErrAddressInvalid, channel.TypeSecondary, "send text", errors.New("466"))

	if _, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "79990000001", Text: "Hi", Manager: "Olga"}); !errors.Is(err, channel.ErrAddressInvalid) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	sess := h.sessions.get("79990000001")
	if sess.OwnerRef != "Eve" || sess.TopicHandle != "55" {
		t.Fatalf("known session must be untouched: %+v", sess)
	}
	if n := h.forum.createCount(); n != 0 {
		t.Fatalf("topics created = %d, want 0", n)
	}
}

func TestSendFromConsumerValidation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	if _, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "abc", Text: "Hi"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected invalid message for bad phone, got %v", err)
	}
	if _, err := h.router.SendFromConsumer(context.Background(), ConsumerMessage{Phone: "79990000001"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected invalid message without content, got %v", err)
	}
}

func TestAttachmentFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want channel.AttachmentType
		name string
	}{
		{url: "https://x.test/a/photo.JPG", want: channel.AttachmentImage, name: "photo.JPG"},
		{url: "https://x.test/anim.gif", want: channel.AttachmentGIF, name: "anim.gif"},
		{url: "https://x.test/doc.pdf", want: channel.AttachmentFile, name: "doc.pdf"},
		{url: "https://x.test/", want: channel.AttachmentFile, name: ""},
	}
	for _, tt := range tests {
		att := attachmentFromURL(tt.url)
		if att.Type != tt.want || att.Name != tt.name {
			t.Fatalf("attachmentFromURL(%q) = %+v", tt.url, att)
		}
	}
}
