// Package channel defines the transport abstraction shared by the relay's
// chat adapters: normalized inbound events, send and forum capabilities,
// an adapter registry, and a connection manager.
package channel

import (
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies a transport ("primary" or "secondary").
type ChannelType string

const (
	// TypePrimary is the chat network reached through the gateway identity.
	TypePrimary ChannelType = "primary"
	// TypeSecondary is the chat channel reached through the HTTP gateway.
	TypeSecondary ChannelType = "secondary"
)

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Valid reports whether c is a known channel type.
func (c ChannelType) Valid() bool {
	return c == TypePrimary || c == TypeSecondary
}

var channelAliases = map[string]ChannelType{
	"primary":   TypePrimary,
	"telegram":  TypePrimary,
	"tg":        TypePrimary,
	"secondary": TypeSecondary,
	"whatsapp":  TypeSecondary,
	"wa":        TypeSecondary,
	"greenapi":  TypeSecondary,
}

// ParseChannelType resolves a channel type or one of its aliases.
func ParseChannelType(raw string) (ChannelType, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if ct, ok := channelAliases[key]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("unsupported channel type: %s", raw)
}

// AttachmentType classifies an attachment for platform-specific delivery.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVoice AttachmentType = "voice"
	AttachmentVideo AttachmentType = "video"
	AttachmentGIF   AttachmentType = "gif"
)

// Attachment references a file carried by a message.
type Attachment struct {
	Type AttachmentType `json:"type"`
	// URL is the public retrieval URL. For inbound events it points at the attachment store.
	URL string `json:"url,omitempty"`
	// AssetName is set when the blob lives in the local attachment store.
	AssetName string `json:"asset_name,omitempty"`
	// PlatformKey is a native file reference (e.g. a Telegram file_id).
	PlatformKey    string `json:"platform_key,omitempty"`
	SourcePlatform string `json:"source_platform,omitempty"`
	Name           string `json:"name,omitempty"`
	Mime           string `json:"mime,omitempty"`
	Size           int64  `json:"size,omitempty"`
	Caption        string `json:"caption,omitempty"`
}

// Identity describes who sent an inbound event.
type Identity struct {
	// Address is the stable counterparty id on its home channel.
	Address     string
	DisplayName string
	Phone       string
	Username    string
}

// InboundEvent is the normalized form of every message received by an adapter.
type InboundEvent struct {
	Channel    ChannelType
	Sender     Identity
	Text       string
	Attachment *Attachment
	// IsGroupContext marks messages posted by staff inside the staff group.
	IsGroupContext bool
	// ReplyTarget is the topic handle a group message was posted in; empty for the general thread.
	ReplyTarget     string
	RemoteMessageID string
	ReceivedAt      time.Time
}

// HasContent reports whether the event carries text or an attachment.
func (e InboundEvent) HasContent() bool {
	return strings.TrimSpace(e.Text) != "" || e.Attachment != nil
}

// DedupKey returns the key used to suppress redelivered events.
func (e InboundEvent) DedupKey() string {
	id := strings.TrimSpace(e.RemoteMessageID)
	if id == "" {
		return ""
	}
	return e.Channel.String() + ":" + id
}
