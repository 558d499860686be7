package events

import (
	"time"

	"github.com/memohai/omnirelay/internal/channel"
)

// Direction is relative to the external client.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Source names who originated an event.
type Source string

const (
	SourceClient           Source = "Client"
	SourceOwner            Source = "Owner"
	SourceExternalConsumer Source = "ExternalConsumer"
)

const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
)

// Event is one row of the outbound event log as handed to the consumer.
type Event struct {
	ID              int64               `json:"id"`
	Direction       Direction           `json:"direction"`
	Source          Source              `json:"source"`
	ClientID        string              `json:"client_id"`
	DisplayName     string              `json:"display_name"`
	OwnerRef        string              `json:"owner_ref"`
	ChannelKind     channel.ChannelType `json:"channel_kind"`
	Text            string              `json:"text"`
	AttachmentURL   string              `json:"attachment_url,omitempty"`
	RemoteMessageID string              `json:"remote_message_id,omitempty"`
	Status          string              `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
}

// AppendInput describes an event to record.
type AppendInput struct {
	Direction       Direction
	Source          Source
	ClientID        string
	DisplayName     string
	OwnerRef        string
	ChannelKind     channel.ChannelType
	Text            string
	AttachmentURL   string
	RemoteMessageID string
}
