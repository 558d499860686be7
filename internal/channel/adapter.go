package channel

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/memohai/omnirelay/internal/media"
)

// ErrStopNotSupported is returned when a connection does not support graceful shutdown.
var ErrStopNotSupported = errors.New("channel connection stop not supported")

// InboundHandler is invoked by a receiver for every normalized event.
// Receivers call it sequentially per connection.
type InboundHandler func(ctx context.Context, event InboundEvent) error

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type         ChannelType
	DisplayName  string
	Capabilities ChannelCapabilities
}

// ChannelCapabilities lists what an adapter can do.
type ChannelCapabilities struct {
	Text  bool
	Media bool
	// Forum marks the adapter that hosts the staff group topics.
	Forum bool
}

// Sender delivers messages to a counterparty address and returns the remote message id.
type Sender interface {
	SendText(ctx context.Context, address string, text string) (string, error)
	SendFile(ctx context.Context, address string, att Attachment, caption string) (string, error)
}

// Receiver establishes a long-lived inbound link. Events are pushed to handler
// until ctx is cancelled or the connection is stopped.
type Receiver interface {
	Connect(ctx context.Context, handler InboundHandler) (Connection, error)
}

// Forum manages the per-client topic threads inside the staff group.
type Forum interface {
	// CreateTopic opens a new topic and returns its handle.
	CreateTopic(ctx context.Context, title string) (string, error)
	// TopicExists probes a topic. A vanished topic yields (false, nil).
	TopicExists(ctx context.Context, handle string) (bool, error)
	PostText(ctx context.Context, handle string, text string) (string, error)
	PostFile(ctx context.Context, handle string, att Attachment, caption string) (string, error)
	// PostGeneral posts into the group's general thread.
	PostGeneral(ctx context.Context, text string) (string, error)
}

// AssetStore persists downloaded attachments before events reach the router,
// and serves stored blobs back to adapters that upload them.
type AssetStore interface {
	Ingest(ctx context.Context, input media.IngestInput) (media.Asset, error)
	Open(ctx context.Context, name string) (io.ReadCloser, media.Asset, error)
	NameFromURL(raw string) (string, bool)
}

// Connection represents an active, long-lived link to a channel platform.
type Connection interface {
	ChannelType() ChannelType
	Stop(ctx context.Context) error
	Running() bool
}

// BaseConnection is a default Connection implementation backed by a stop function.
type BaseConnection struct {
	channelType ChannelType
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

// NewConnection creates a running BaseConnection.
func NewConnection(ct ChannelType, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{channelType: ct, stop: stop}
	conn.running.Store(true)
	return conn
}

// ChannelType returns the type of channel this connection serves.
func (c *BaseConnection) ChannelType() ChannelType {
	return c.channelType
}

// Stop gracefully shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	c.running.Store(false)
	return c.stop(ctx)
}

// MarkStopped flags the connection as no longer running, e.g. when its loop exits on its own.
func (c *BaseConnection) MarkStopped() {
	c.running.Store(false)
}

// Running reports whether the connection is still active.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}
