package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/events"
	channelchecker "github.com/memohai/omnirelay/internal/healthcheck/checkers/channel"
	"github.com/memohai/omnirelay/internal/media"
	"github.com/memohai/omnirelay/internal/metrics"
	"github.com/memohai/omnirelay/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEcho(register ...interface{ Register(*echo.Echo) }) *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(e)
	for _, h := range register {
		h.Register(e)
	}
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type fakeSender struct {
	got  []relay.ConsumerMessage
	err  error
	next int64
}

func (f *fakeSender) SendFromConsumer(_ context.Context, msg relay.ConsumerMessage) (events.Event, error) {
	f.got = append(f.got, msg)
	if f.err != nil {
		return events.Event{}, f.err
	}
	f.next++
	return events.Event{ID: f.next, ClientID: msg.Phone, Text: msg.Text}, nil
}

type fakeQueue struct {
	pending   []events.Event
	recent    []events.Event
	err       error
	lastLimit int
}

func (f *fakeQueue) DequeuePending(_ context.Context, limit int) ([]events.Event, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeQueue) ListRecent(_ context.Context, limit int) ([]events.Event, error) {
	f.lastLimit = limit
	return f.recent, f.err
}

type fakeAssets struct {
	data map[string]string
	err  error
}

func (f *fakeAssets) Open(_ context.Context, name string) (io.ReadCloser, media.Asset, error) {
	if f.err != nil {
		return nil, media.Asset{}, f.err
	}
	body, ok := f.data[name]
	if !ok {
		return nil, media.Asset{}, media.ErrAssetNotFound
	}
	return io.NopCloser(strings.NewReader(body)), media.Asset{Name: name, Mime: "image/png", SizeBytes: int64(len(body))}, nil
}

type fakeConnections []channel.ConnectionStatus

func (f fakeConnections) ConnectionStatuses() []channel.ConnectionStatus { return f }

func TestSendReturnsEventID(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	e := newTestEcho(NewSendHandler(testLogger(), sender, nil))

	rec := do(e, http.MethodPost, "/send", `{"phone":"79990000001","text":"hello","manager":"Anna","messenger":"telegram"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok","id":1}`, rec.Body.String())
	require.Len(t, sender.got, 1)
	assert.Equal(t, relay.ConsumerMessage{
		Phone:   "79990000001",
		Text:    "hello",
		Manager: "Anna",
		Channel: channel.TypePrimary,
	}, sender.got[0])
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "missing phone", body: `{"text":"hi"}`},
		{name: "missing text", body: `{"phone":"7999"}`},
		{name: "unknown messenger", body: `{"phone":"7999","text":"hi","messenger":"pigeon"}`},
		{name: "malformed json", body: `{"phone":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sender := &fakeSender{}
			e := newTestEcho(NewSendHandler(testLogger(), sender, nil))
			rec := do(e, http.MethodPost, "/send", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			assert.Empty(t, sender.got)
		})
	}
}

func TestSendMapsRelayErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: phone is empty", relay.ErrInvalidMessage), want: http.StatusBadRequest},
		{err: channel.NewTransportError(channel.ErrAddressInvalid, channel.TypeSecondary, "send", errors.New("bad")), want: http.StatusBadRequest},
		{err: channel.NewTransportError(nil, channel.TypeSecondary, "send", errors.New("timeout")), want: http.StatusBadGateway},
		{err: fmt.Errorf("%w: append: boom", relay.ErrStorage), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		sender := &fakeSender{err: tc.err}
		e := newTestEcho(NewSendHandler(testLogger(), sender, nil))
		rec := do(e, http.MethodPost, "/send", `{"phone":"7999","text":"hi"}`)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestSendFileAcceptsAliases(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	e := newTestEcho(NewSendHandler(testLogger(), sender, nil))

	rec := do(e, http.MethodPost, "/send_file", `{"phone":"7999","file_url":"https://cdn.example.com/a.pdf","caption":"invoice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, sender.got, 1)
	assert.Equal(t, "https://cdn.example.com/a.pdf", sender.got[0].FileURL)
	assert.Equal(t, "invoice", sender.got[0].Text)

	rec = do(e, http.MethodPost, "/send_file", `{"phone":"7999","file":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/send_file", `{"phone":"7999"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, sender.got, 1)
}

func TestFetchNewDrainsOnce(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{pending: []events.Event{
		{ID: 1, Direction: events.DirectionIn, Text: "a"},
		{ID: 2, Direction: events.DirectionOut, Text: "b"},
	}}
	e := newTestEcho(NewQueueHandler(testLogger(), queue, 50))

	rec := do(e, http.MethodGet, "/fetch_new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":1`)
	assert.Contains(t, rec.Body.String(), `"id":2`)
	assert.Equal(t, 50, queue.lastLimit)

	rec = do(e, http.MethodPost, "/fetch_new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestFetchNewStorageError(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{err: errors.New("db down")}
	e := newTestEcho(NewQueueHandler(testLogger(), queue, 0))
	rec := do(e, http.MethodGet, "/fetch_new", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListEventsLimit(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	e := newTestEcho(NewQueueHandler(testLogger(), queue, 0))

	rec := do(e, http.MethodGet, "/events?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, 5, queue.lastLimit)

	rec = do(e, http.MethodGet, "/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFile(t *testing.T) {
	t.Parallel()

	assets := &fakeAssets{data: map[string]string{"abc.png": "PNGDATA"}}
	e := newTestEcho(NewFilesHandler(testLogger(), assets))

	rec := do(e, http.MethodGet, "/get_file/abc.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PNGDATA", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "7", rec.Header().Get(echo.HeaderContentLength))

	rec = do(e, http.MethodGet, "/get_file/missing.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	invalid := &fakeAssets{err: media.ErrInvalidName}
	e = newTestEcho(NewFilesHandler(testLogger(), invalid))
	rec = do(e, http.MethodGet, "/get_file/bad-name", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReportsDegraded(t *testing.T) {
	t.Parallel()

	now := time.Now()
	checker := channelchecker.NewChecker(testLogger(), fakeConnections{
		{ChannelType: channel.TypePrimary, Running: true, UpdatedAt: now},
		{ChannelType: channel.TypeSecondary, Running: false, LastError: "401", UpdatedAt: now},
	})
	e := newTestEcho(NewPingHandler(testLogger(), checker))

	rec := do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `channel.connection.secondary`)

	rec = do(e, http.MethodGet, "/ping", "")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ok := newTestEcho(NewPingHandler(testLogger()))
	rec = do(ok, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok","checks":[]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.TopicCreated()
	e := newTestEcho(NewMetricsHandler(m))

	rec := do(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "omnirelay_")
}
