package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/events"
	"github.com/memohai/omnirelay/internal/sessions"
)

// memSessions mirrors the merge rules of the SQL session queries.
type memSessions struct {
	mu    sync.Mutex
	rows  map[string]sessions.Session
	clock int64
	err   error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]sessions.Session{}}
}

func (m *memSessions) tick() time.Time {
	m.clock++
	return time.Unix(m.clock, 0).UTC()
}

func (m *memSessions) Find(_ context.Context, clientID string) (sessions.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sessions.Session{}, false, m.err
	}
	s, ok := m.rows[clientID]
	return s, ok, nil
}

func (m *memSessions) FindByTopic(_ context.Context, handle string) (sessions.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sessions.Session{}, false, m.err
	}
	for _, s := range m.rows {
		if handle != "" && s.TopicHandle == handle {
			return s, true, nil
		}
	}
	return sessions.Session{}, false, nil
}

func (m *memSessions) FindByPhone(_ context.Context, phone string) (sessions.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sessions.Session{}, false, m.err
	}
	var (
		best  sessions.Session
		found bool
	)
	for _, s := range m.rows {
		if phone != "" && s.Phone == phone && (!found || s.UpdatedAt.After(best.UpdatedAt)) {
			best, found = s, true
		}
	}
	return best, found, nil
}

func (m *memSessions) Upsert(_ context.Context, in sessions.UpsertInput) (sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sessions.Session{}, m.err
	}
	now := m.tick()
	s, ok := m.rows[in.ClientID]
	if !ok {
		s = sessions.Session{
			ClientID:    in.ClientID,
			DisplayName: in.DisplayName,
			Phone:       in.Phone,
			OwnerRef:    in.OwnerRef,
			ChannelKind: in.ChannelKind,
			CreatedAt:   now,
		}
	} else {
		correct := in.Mode == sessions.MergeCorrect
		if in.DisplayName != "" && (s.DisplayName == "" || correct) {
			s.DisplayName = in.DisplayName
		}
		if in.Phone != "" && (s.Phone == "" || correct) {
			s.Phone = in.Phone
		}
		if s.OwnerRef == "" {
			s.OwnerRef = in.OwnerRef
		}
	}
	s.UpdatedAt = now
	m.rows[in.ClientID] = s
	return s, nil
}

func (m *memSessions) ClaimOwner(_ context.Context, clientID, owner string) (sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[clientID]
	if !ok {
		return sessions.Session{}, sessions.ErrSessionNotFound
	}
	s.OwnerRef = owner
	s.UpdatedAt = m.tick()
	m.rows[clientID] = s
	return s, nil
}

func (m *memSessions) SetTopic(_ context.Context, clientID, handle string) (sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[clientID]
	if !ok {
		return sessions.Session{}, sessions.ErrSessionNotFound
	}
	for id, other := range m.rows {
		if id != clientID && other.TopicHandle == handle {
			other.TopicHandle = ""
			m.rows[id] = other
		}
	}
	s.TopicHandle = handle
	s.UpdatedAt = m.tick()
	m.rows[clientID] = s
	return s, nil
}

func (m *memSessions) ClearTopic(_ context.Context, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := false
	for id, s := range m.rows {
		if handle != "" && s.TopicHandle == handle {
			s.TopicHandle = ""
			m.rows[id] = s
			cleared = true
		}
	}
	return cleared, nil
}

func (m *memSessions) ListWithTopic(context.Context) ([]sessions.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []sessions.Session{}
	for _, s := range m.rows {
		if s.HasTopic() {
			items = append(items, s)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ClientID < items[j].ClientID })
	return items, nil
}

func (m *memSessions) get(clientID string) sessions.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[clientID]
}

func (m *memSessions) put(s sessions.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ClientID] = s
}

// memEvents is an in-memory event log with the same dequeue contract.
type memEvents struct {
	mu     sync.Mutex
	rows   []events.Event
	nextID int64
	err    error
}

func (m *memEvents) Append(_ context.Context, in events.AppendInput) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return events.Event{}, m.err
	}
	m.nextID++
	e := events.Event{
		ID:              m.nextID,
		Direction:       in.Direction,
		Source:          in.Source,
		ClientID:        in.ClientID,
		DisplayName:     in.DisplayName,
		OwnerRef:        in.OwnerRef,
		ChannelKind:     in.ChannelKind,
		Text:            in.Text,
		AttachmentURL:   in.AttachmentURL,
		RemoteMessageID: in.RemoteMessageID,
		Status:          events.StatusPending,
	}
	m.rows = append(m.rows, e)
	return e, nil
}

func (m *memEvents) LastOwner(_ context.Context, clientID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	for i := len(m.rows) - 1; i >= 0; i-- {
		e := m.rows[i]
		if e.ClientID == clientID && e.Direction == events.DirectionOut && e.OwnerRef != "" {
			return e.OwnerRef, nil
		}
	}
	return "", nil
}

func (m *memEvents) dequeue() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []events.Event{}
	for i := range m.rows {
		if m.rows[i].Status == events.StatusPending {
			m.rows[i].Status = events.StatusDelivered
			out = append(out, m.rows[i])
		}
	}
	return out
}

func (m *memEvents) all() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.rows...)
}

type sentMessage struct {
	Address string
	Text    string
	Att     *channel.Attachment
}

type post struct {
	Handle string
	Text   string
	Att    *channel.Attachment
}

// fakeForumAdapter plays the primary channel: it sends to clients and hosts the staff forum.
type fakeForumAdapter struct {
	mu         sync.Mutex
	topics     map[string]bool
	nextTopic  int
	titles     []string
	createErr  error
	probeErr   error
	postErr    error
	sendErr    error
	createHook func()
	sent       []sentMessage
	posts      []post
	general    []string
}

func newFakeForum() *fakeForumAdapter {
	return &fakeForumAdapter{topics: map[string]bool{}, nextTopic: 100}
}

func (a *fakeForumAdapter) Type() channel.ChannelType {
	return channel.TypePrimary
}

func (a *fakeForumAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:         channel.TypePrimary,
		Capabilities: channel.ChannelCapabilities{Text: true, Media: true, Forum: true},
	}
}

func (a *fakeForumAdapter) SendText(_ context.Context, address, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return "", a.sendErr
	}
	a.sent = append(a.sent, sentMessage{Address: address, Text: text})
	return fmt.Sprintf("%s:%d", address, len(a.sent)), nil
}

func (a *fakeForumAdapter) SendFile(_ context.Context, address string, att channel.Attachment, caption string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return "", a.sendErr
	}
	a.sent = append(a.sent, sentMessage{Address: address, Text: caption, Att: &att})
	return fmt.Sprintf("%s:%d", address, len(a.sent)), nil
}

func (a *fakeForumAdapter) CreateTopic(_ context.Context, title string) (string, error) {
	if a.createHook != nil {
		a.createHook()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return "", a.createErr
	}
	a.nextTopic++
	handle := strconv.Itoa(a.nextTopic)
	a.topics[handle] = true
	a.titles = append(a.titles, title)
	return handle, nil
}

func (a *fakeForumAdapter) TopicExists(_ context.Context, handle string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.probeErr != nil {
		return false, a.probeErr
	}
	return a.topics[handle], nil
}

func (a *fakeForumAdapter) PostText(_ context.Context, handle, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.postErr != nil {
		return "", a.postErr
	}
	if !a.topics[handle] {
		return "", channel.NewTransportError(channel.ErrTopicMissing, channel.TypePrimary, "post text", errors.New("message thread not found"))
	}
	a.posts = append(a.posts, post{Handle: handle, Text: text})
	return "p", nil
}

func (a *fakeForumAdapter) PostFile(_ context.Context, handle string, att channel.Attachment, caption string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.topics[handle] {
		return "", channel.NewTransportError(channel.ErrTopicMissing, channel.TypePrimary, "post file", errors.New("message thread not found"))
	}
	a.posts = append(a.posts, post{Handle: handle, Text: caption, Att: &att})
	return "p", nil
}

func (a *fakeForumAdapter) PostGeneral(_ context.Context, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.general = append(a.general, text)
	return "g", nil
}

func (a *fakeForumAdapter) deleteTopic(handle string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.topics, handle)
}

func (a *fakeForumAdapter) sentMessages() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sent...)
}

func (a *fakeForumAdapter) postsIn(handle string) []post {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []post
	for _, p := range a.posts {
		if p.Handle == handle {
			out = append(out, p)
		}
	}
	return out
}

func (a *fakeForumAdapter) createCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.titles)
}

// fakeSender plays the secondary channel.
type fakeSender struct {
	mu      sync.Mutex
	sendErr error
	sent    []sentMessage
}

func (a *fakeSender) Type() channel.ChannelType {
	return channel.TypeSecondary
}

func (a *fakeSender) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: channel.TypeSecondary, Capabilities: channel.ChannelCapabilities{Text: true, Media: true}}
}

func (a *fakeSender) SendText(_ context.Context, address, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return "", a.sendErr
	}
	a.sent = append(a.sent, sentMessage{Address: address, Text: text})
	return "wa-" + strconv.Itoa(len(a.sent)), nil
}

func (a *fakeSender) SendFile(_ context.Context, address string, att channel.Attachment, caption string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return "", a.sendErr
	}
	a.sent = append(a.sent, sentMessage{Address: address, Text: caption, Att: &att})
	return "wa-" + strconv.Itoa(len(a.sent)), nil
}

func (a *fakeSender) sentMessages() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sent...)
}

type harness struct {
	router    *Router
	sessions  *memSessions
	events    *memEvents
	forum     *fakeForumAdapter
	secondary *fakeSender
}

func newHarness() *harness {
	h := &harness{
		sessions:  newMemSessions(),
		events:    &memEvents{},
		forum:     newFakeForum(),
		secondary: &fakeSender{},
	}
	registry := channel.NewRegistry()
	registry.MustRegister(h.forum)
	registry.MustRegister(h.secondary)
	h.router = NewRouter(nil, h.sessions, h.events, registry, Options{
		DefaultOwner:   "1C",
		DefaultChannel: channel.TypeSecondary,
	})
	return h
}

func clientEvent(ct channel.ChannelType, address, name, text string) channel.InboundEvent {
	return channel.InboundEvent{
		Channel:         ct,
		Sender:          channel.Identity{Address: address, DisplayName: name},
		Text:            text,
		RemoteMessageID: address + ":" + text,
		ReceivedAt:      time.Now(),
	}
}

func staffEvent(topic, staff, text string) channel.InboundEvent {
	return channel.InboundEvent{
		Channel:        channel.TypePrimary,
		Sender:         channel.Identity{Address: "555", DisplayName: staff},
		Text:           text,
		IsGroupContext: true,
		ReplyTarget:    topic,
	}
}
