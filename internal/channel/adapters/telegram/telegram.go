package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
	"github.com/memohai/omnirelay/internal/config"
)

// Type is the channel served by this adapter.
const Type = channel.TypePrimary

const telegramMaxMessageLength = 4096

// The library logger is process-global.
var botLoggerOnce sync.Once

// TelegramAdapter implements channel.Adapter, channel.Sender, channel.Receiver and
// channel.Forum for the Telegram Bot API.
type TelegramAdapter struct {
	logger *slog.Logger
	cfg    config.TelegramConfig
	assets channel.AssetStore

	apiEndpoint    string
	fileEndpoint   string
	botClient      *http.Client
	downloadClient *http.Client
	maxAssetBytes  int64

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramAdapter creates a TelegramAdapter. assets may be nil, in which case
// inbound attachments are passed on by platform file id only.
func NewTelegramAdapter(log *slog.Logger, cfg config.TelegramConfig, assets channel.AssetStore) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	endpoint := strings.TrimSpace(cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	poll := cfg.PollTimeoutSeconds
	if poll <= 0 {
		poll = config.DefaultTelegramPoll
		cfg.PollTimeoutSeconds = poll
	}
	adapter := &TelegramAdapter{
		logger:         log.With(slog.String("adapter", "telegram")),
		cfg:            cfg,
		assets:         assets,
		apiEndpoint:    endpoint,
		fileEndpoint:   fileEndpointFor(endpoint),
		botClient:      &http.Client{Timeout: time.Duration(poll+15) * time.Second},
		downloadClient: &http.Client{Timeout: common.DefaultDownloadTimeout},
	}
	botLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	})
	return adapter
}

// SetMaxAssetBytes overrides the inbound attachment size limit.
func (a *TelegramAdapter) SetMaxAssetBytes(limit int64) {
	a.maxAssetBytes = limit
}

func fileEndpointFor(apiEndpoint string) string {
	if strings.Contains(apiEndpoint, "/bot%s/%s") {
		return strings.Replace(apiEndpoint, "/bot%s/%s", "/file/bot%s/%s", 1)
	}
	return tgbotapi.FileEndpoint
}

// getOrCreateBot returns the adapter's single gateway identity, creating it on first use.
func (a *TelegramAdapter) getOrCreateBot() (*tgbotapi.BotAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	token := strings.TrimSpace(a.cfg.BotToken)
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, a.apiEndpoint, a.botClient)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.logger.Info("bot authorized", slog.String("username", bot.Self.UserName))
	a.bot = bot
	return bot, nil
}

// Type returns the primary channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata. The forum capability is
// only advertised when a staff group is configured.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		Capabilities: channel.ChannelCapabilities{
			Text:  true,
			Media: true,
			Forum: a.cfg.GroupChatID != 0,
		},
	}
}

// SendText delivers text to a client chat and returns the Telegram message id.
func (a *TelegramAdapter) SendText(ctx context.Context, address string, text string) (string, error) {
	chatID, err := parseChatID(address)
	if err != nil {
		return "", channel.NewTransportError(channel.ErrAddressInvalid, Type, "send text", err)
	}
	bot, err := a.readyBot(ctx)
	if err != nil {
		return "", classifyError("send text", err)
	}
	id, err := sendText(bot, chatID, 0, text)
	if err != nil {
		a.logger.Warn("send text failed", slog.String("chat_id", address), slog.Any("error", err))
		return "", classifyError("send text", err)
	}
	return id, nil
}

// SendFile delivers an attachment to a client chat.
func (a *TelegramAdapter) SendFile(ctx context.Context, address string, att channel.Attachment, caption string) (string, error) {
	chatID, err := parseChatID(address)
	if err != nil {
		return "", channel.NewTransportError(channel.ErrAddressInvalid, Type, "send file", err)
	}
	bot, err := a.readyBot(ctx)
	if err != nil {
		return "", classifyError("send file", err)
	}
	id, err := a.sendAttachment(ctx, bot, chatID, 0, att, caption)
	if err != nil {
		a.logger.Warn("send file failed", slog.String("chat_id", address), slog.Any("error", err))
		return "", classifyError("send file", err)
	}
	return id, nil
}

func (a *TelegramAdapter) readyBot(ctx context.Context) (*tgbotapi.BotAPI, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.getOrCreateBot()
}

func parseChatID(address string) (int64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, fmt.Errorf("telegram chat id is required")
	}
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id must be numeric: %q", address)
	}
	return chatID, nil
}

// sendText posts a message into chatID, optionally inside a forum topic.
func sendText(bot *tgbotapi.BotAPI, chatID int64, threadID int, text string) (string, error) {
	text = common.TruncateBytes(common.SanitizeUTF8(text), telegramMaxMessageLength)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: message text is required", errBadRequest)
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_thread_id", threadID)
	params.AddNonEmpty("text", text)
	resp, err := bot.MakeRequest("sendMessage", params)
	if err != nil {
		return "", err
	}
	return decodeMessageID(resp)
}

func decodeMessageID(resp *tgbotapi.APIResponse) (string, error) {
	if resp == nil {
		return "", errNilResponse
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return "", fmt.Errorf("decode sent message: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// sendAttachment uploads or references att depending on where the blob lives:
// native file ids are reused, blobs in the attachment store are uploaded, any
// other URL is handed to Telegram to fetch.
func (a *TelegramAdapter) sendAttachment(ctx context.Context, bot *tgbotapi.BotAPI, chatID int64, threadID int, att channel.Attachment, caption string) (string, error) {
	if strings.TrimSpace(caption) == "" {
		caption = strings.TrimSpace(att.Caption)
	}
	method, field := uploadMethod(att.Type)
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_thread_id", threadID)
	params.AddNonEmpty("caption", common.TruncateBytes(common.SanitizeUTF8(caption), 1024))

	file, closer, err := a.resolveFile(ctx, att)
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer func() {
			_ = closer.Close()
		}()
	}
	resp, err := bot.UploadFiles(method, params, []tgbotapi.RequestFile{{Name: field, Data: file}})
	if err != nil {
		return "", err
	}
	return decodeMessageID(resp)
}

func (a *TelegramAdapter) resolveFile(ctx context.Context, att channel.Attachment) (tgbotapi.RequestFileData, io.Closer, error) {
	keyRef := strings.TrimSpace(att.PlatformKey)
	source := strings.TrimSpace(att.SourcePlatform)
	if keyRef != "" && (source == "" || source == Type.String()) {
		return tgbotapi.FileID(keyRef), nil, nil
	}
	name := strings.TrimSpace(att.AssetName)
	if name == "" && a.assets != nil {
		if n, ok := a.assets.NameFromURL(att.URL); ok {
			name = n
		}
	}
	if name != "" && a.assets != nil {
		reader, asset, err := a.assets.Open(ctx, name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: open %s: %w", errLocalAsset, name, err)
		}
		fileName := strings.TrimSpace(att.Name)
		if fileName == "" {
			fileName = asset.Name
		}
		return tgbotapi.FileReader{Name: fileName, Reader: reader}, reader, nil
	}
	urlRef := strings.TrimSpace(att.URL)
	if urlRef == "" {
		return nil, nil, fmt.Errorf("%w: attachment reference is required", errBadRequest)
	}
	return tgbotapi.FileURL(urlRef), nil, nil
}

func uploadMethod(t channel.AttachmentType) (method, field string) {
	switch t {
	case channel.AttachmentImage:
		return "sendPhoto", "photo"
	case channel.AttachmentAudio:
		return "sendAudio", "audio"
	case channel.AttachmentVoice:
		return "sendVoice", "voice"
	case channel.AttachmentVideo:
		return "sendVideo", "video"
	case channel.AttachmentGIF:
		return "sendAnimation", "animation"
	default:
		return "sendDocument", "document"
	}
}
