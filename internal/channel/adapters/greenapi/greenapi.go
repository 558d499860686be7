// Package greenapi adapts a Green API WhatsApp instance to the channel layer.
package greenapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
	"github.com/memohai/omnirelay/internal/config"
)

// Type is the channel served by this adapter.
const Type = channel.TypeSecondary

const (
	pollBackoffMin = time.Second
	pollBackoffMax = time.Minute
	ackTimeout     = 10 * time.Second
)

// GreenAPIAdapter implements channel.Adapter, channel.Sender and channel.Receiver.
type GreenAPIAdapter struct {
	logger         *slog.Logger
	client         *Client
	assets         channel.AssetStore
	receiveTimeout int
	downloadClient *http.Client
	maxAssetBytes  int64
	backoffMin     time.Duration
}

// NewGreenAPIAdapter creates an adapter for the configured instance.
func NewGreenAPIAdapter(log *slog.Logger, cfg config.GreenAPIConfig, assets channel.AssetStore) *GreenAPIAdapter {
	if log == nil {
		log = slog.Default()
	}
	receive := cfg.ReceiveTimeoutSeconds
	if receive <= 0 {
		receive = config.DefaultGreenAPIReceive
	}
	baseURL := strings.TrimSpace(cfg.APIURL)
	if baseURL == "" {
		baseURL = config.DefaultGreenAPIURL
	}
	httpClient := &http.Client{Timeout: time.Duration(receive+10) * time.Second}
	return &GreenAPIAdapter{
		logger:         log.With(slog.String("adapter", "greenapi")),
		client:         NewClient(baseURL, cfg.IDInstance, cfg.APIToken, httpClient),
		assets:         assets,
		receiveTimeout: receive,
		downloadClient: &http.Client{Timeout: common.DefaultDownloadTimeout},
		backoffMin:     pollBackoffMin,
	}
}

// SetMaxAssetBytes overrides the inbound attachment size limit.
func (a *GreenAPIAdapter) SetMaxAssetBytes(limit int64) {
	a.maxAssetBytes = limit
}

// Type returns the secondary channel type.
func (a *GreenAPIAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the adapter metadata.
func (a *GreenAPIAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "WhatsApp (Green API)",
		Capabilities: channel.ChannelCapabilities{
			Text:  true,
			Media: true,
		},
	}
}

// ChatID converts a phone-style address into a private chat id.
func ChatID(address string) (string, error) {
	address = strings.TrimSpace(address)
	if strings.HasSuffix(address, groupChatSuffix) {
		return "", fmt.Errorf("group chats are not supported: %s", address)
	}
	digits := common.DigitsOnly(strings.TrimSuffix(address, privateChatSuffix))
	if digits == "" {
		return "", fmt.Errorf("address must contain a phone number: %q", address)
	}
	return digits + privateChatSuffix, nil
}

// SendText sends a text message to a phone address.
func (a *GreenAPIAdapter) SendText(ctx context.Context, address string, text string) (string, error) {
	chatID, err := ChatID(address)
	if err != nil {
		return "", channel.NewTransportError(channel.ErrAddressInvalid, Type, "send text", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", channel.NewTransportError(channel.ErrAddressInvalid, Type, "send text", fmt.Errorf("message text is required"))
	}
	id, err := a.client.SendMessage(ctx, chatID, text)
	if err != nil {
		a.logger.Warn("send text failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return "", classifyError("send text", err)
	}
	return id, nil
}

// SendFile asks the gateway to fetch att.URL and deliver it.
func (a *GreenAPIAdapter) SendFile(ctx context.Context, address string, att channel.Attachment, caption string) (string, error) {
	chatID, err := ChatID(address)
	if err != nil {
		return "", channel.NewTransportError(channel.ErrAddressInvalid, Type, "send file", err)
	}
	fileURL := strings.TrimSpace(att.URL)
	if fileURL == "" {
		return "", channel.NewTransportError(channel.ErrAddressInvalid, Type, "send file", fmt.Errorf("attachment url is required"))
	}
	if strings.TrimSpace(caption) == "" {
		caption = att.Caption
	}
	id, err := a.client.SendFileByURL(ctx, chatID, fileURL, fileNameFor(att), strings.TrimSpace(caption))
	if err != nil {
		a.logger.Warn("send file failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return "", classifyError("send file", err)
	}
	return id, nil
}

func fileNameFor(att channel.Attachment) string {
	if name := strings.TrimSpace(att.Name); name != "" {
		return name
	}
	raw := strings.TrimSpace(att.URL)
	if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}
	if base := path.Base(raw); base != "" && base != "." && base != "/" {
		return base
	}
	return "file"
}

// classifyError maps gateway failures to channel error kinds.
func classifyError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound:
			return channel.NewTransportError(channel.ErrAddressInvalid, Type, op, err)
		}
	}
	return channel.NewTransportError(channel.ErrChannelUnreachable, Type, op, err)
}
