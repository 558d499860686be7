package sessions

import (
	"time"

	"github.com/memohai/omnirelay/internal/channel"
)

// Session maps one external client to its staff group topic.
type Session struct {
	ClientID    string              `json:"client_id"`
	TopicHandle string              `json:"topic_handle,omitempty"`
	DisplayName string              `json:"display_name"`
	Phone       string              `json:"phone,omitempty"`
	OwnerRef    string              `json:"owner_ref,omitempty"`
	ChannelKind channel.ChannelType `json:"channel_kind"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// HasTopic reports whether the session is mapped to a topic.
func (s Session) HasTopic() bool {
	return s.TopicHandle != ""
}

// MergeMode controls how Upsert treats values already stored.
type MergeMode int

const (
	// MergeCorrect lets non-empty new values replace stored ones.
	MergeCorrect MergeMode = iota
	// MergeFillEmpty only fills fields that are still empty.
	MergeFillEmpty
)

// UpsertInput is the input for Upsert. Empty fields never overwrite stored values.
type UpsertInput struct {
	ClientID    string
	DisplayName string
	Phone       string
	// OwnerRef is applied only when the session has no owner yet.
	OwnerRef string
	// ChannelKind is fixed at creation.
	ChannelKind channel.ChannelType
	Mode        MergeMode
}
