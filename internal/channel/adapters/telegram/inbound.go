package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
	"github.com/memohai/omnirelay/internal/media"
)

const (
	pollBackoffMin = time.Second
	pollBackoffMax = 30 * time.Second
)

// forumUpdate mirrors the getUpdates payload. The library's Message type
// predates forum topics, so the thread fields are decoded alongside it.
type forumUpdate struct {
	UpdateID int           `json:"update_id"`
	Message  *forumMessage `json:"message"`
}

type forumMessage struct {
	tgbotapi.Message
	MessageThreadID int  `json:"message_thread_id"`
	IsTopicMessage  bool `json:"is_topic_message"`
}

// Connect starts long-polling getUpdates and pushes normalized events to handler.
// Updates are processed one at a time in arrival order.
func (a *TelegramAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	bot, err := a.getOrCreateBot()
	if err != nil {
		return nil, classifyError("connect", err)
	}
	a.logger.Info("start", slog.Int64("group_chat_id", a.cfg.GroupChatID))
	connCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	conn := channel.NewConnection(Type, func(stopCtx context.Context) error {
		a.logger.Info("stop")
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	})
	go func() {
		defer close(done)
		defer conn.MarkStopped()
		a.pollUpdates(connCtx, bot, handler)
	}()
	return conn, nil
}

func (a *TelegramAdapter) pollUpdates(ctx context.Context, bot *tgbotapi.BotAPI, handler channel.InboundHandler) {
	offset := 0
	backoff := pollBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := a.fetchUpdates(bot, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("get updates failed", slog.Duration("retry_in", backoff), slog.Any("error", err))
			if !sleepContext(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, pollBackoffMax)
			continue
		}
		backoff = pollBackoffMin
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			event, ok := a.normalize(ctx, bot, update.Message)
			if !ok {
				continue
			}
			a.logger.Info(
				"inbound received",
				slog.String("sender", event.Sender.Address),
				slog.Bool("group", event.IsGroupContext),
				slog.String("topic", event.ReplyTarget),
				slog.String("text", common.SummarizeText(event.Text)),
			)
			if err := handler(ctx, event); err != nil {
				a.logger.Error("handle inbound failed", slog.String("remote_message_id", event.RemoteMessageID), slog.Any("error", err))
			}
		}
	}
}

func (a *TelegramAdapter) fetchUpdates(bot *tgbotapi.BotAPI, offset int) ([]forumUpdate, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", offset)
	params.AddNonZero("timeout", a.cfg.PollTimeoutSeconds)
	params.AddNonEmpty("allowed_updates", `["message"]`)
	resp, err := bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []forumUpdate
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// normalize maps a Telegram message onto an InboundEvent. Private chats become
// client events; messages in the staff group become group-context events.
// Everything else, including the bot's own posts, is ignored.
func (a *TelegramAdapter) normalize(ctx context.Context, bot *tgbotapi.BotAPI, msg *forumMessage) (channel.InboundEvent, bool) {
	if msg == nil || msg.Chat == nil {
		return channel.InboundEvent{}, false
	}
	if msg.From != nil && bot != nil && msg.From.ID == bot.Self.ID {
		return channel.InboundEvent{}, false
	}
	isGroup := a.cfg.GroupChatID != 0 && msg.Chat.ID == a.cfg.GroupChatID
	if !isGroup && msg.Chat.Type != "private" {
		a.logger.Debug("ignore chat", slog.Int64("chat_id", msg.Chat.ID), slog.String("chat_type", msg.Chat.Type))
		return channel.InboundEvent{}, false
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	event := channel.InboundEvent{
		Channel:         Type,
		IsGroupContext:  isGroup,
		RemoteMessageID: strconv.FormatInt(msg.Chat.ID, 10) + ":" + strconv.Itoa(msg.MessageID),
		ReceivedAt:      time.Unix(int64(msg.Date), 0).UTC(),
	}
	if isGroup {
		event.Sender = staffIdentity(msg.From)
		if msg.IsTopicMessage && msg.MessageThreadID != 0 {
			event.ReplyTarget = strconv.Itoa(msg.MessageThreadID)
		}
	} else {
		event.Sender = clientIdentity(msg)
		if text == "" && event.Sender.Phone != "" {
			text = "Shared contact: +" + event.Sender.Phone
		}
	}

	if ref, ok := pickFile(&msg.Message); ok {
		att, err := a.ingestFile(ctx, bot, ref)
		if err != nil {
			a.logger.Warn("attachment ingest failed", slog.String("file_id", ref.fileID), slog.Any("error", err))
			if text == "" {
				text = "[attachment unavailable]"
			}
		} else {
			att.Caption = strings.TrimSpace(msg.Caption)
			event.Attachment = &att
		}
	}
	event.Text = text
	if !event.HasContent() {
		return channel.InboundEvent{}, false
	}
	return event, true
}

func clientIdentity(msg *forumMessage) channel.Identity {
	identity := channel.Identity{Address: strconv.FormatInt(msg.Chat.ID, 10)}
	if msg.From != nil {
		identity.Username = strings.TrimSpace(msg.From.UserName)
		identity.DisplayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	if identity.DisplayName == "" {
		identity.DisplayName = strings.TrimSpace(msg.Chat.FirstName + " " + msg.Chat.LastName)
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.Username
	}
	if msg.Contact != nil && msg.From != nil && msg.Contact.UserID == msg.From.ID {
		identity.Phone = common.DigitsOnly(msg.Contact.PhoneNumber)
	}
	return identity
}

func staffIdentity(from *tgbotapi.User) channel.Identity {
	if from == nil {
		return channel.Identity{}
	}
	identity := channel.Identity{
		Address:     strconv.FormatInt(from.ID, 10),
		Username:    strings.TrimSpace(from.UserName),
		DisplayName: strings.TrimSpace(from.FirstName + " " + from.LastName),
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.Username
	}
	return identity
}

type fileRef struct {
	attType channel.AttachmentType
	fileID  string
	name    string
	mime    string
	size    int64
}

// pickFile returns the media carried by msg. Telegram messages hold at most one.
func pickFile(msg *tgbotapi.Message) (fileRef, bool) {
	switch {
	case len(msg.Photo) > 0:
		photo := pickTelegramPhoto(msg.Photo)
		return fileRef{attType: channel.AttachmentImage, fileID: photo.FileID, size: int64(photo.FileSize)}, true
	case msg.Document != nil:
		return fileRef{channel.AttachmentFile, msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, int64(msg.Document.FileSize)}, true
	case msg.Audio != nil:
		return fileRef{channel.AttachmentAudio, msg.Audio.FileID, msg.Audio.FileName, msg.Audio.MimeType, int64(msg.Audio.FileSize)}, true
	case msg.Voice != nil:
		return fileRef{channel.AttachmentVoice, msg.Voice.FileID, "", msg.Voice.MimeType, int64(msg.Voice.FileSize)}, true
	case msg.Video != nil:
		return fileRef{channel.AttachmentVideo, msg.Video.FileID, msg.Video.FileName, msg.Video.MimeType, int64(msg.Video.FileSize)}, true
	case msg.Animation != nil:
		return fileRef{channel.AttachmentGIF, msg.Animation.FileID, msg.Animation.FileName, msg.Animation.MimeType, int64(msg.Animation.FileSize)}, true
	case msg.Sticker != nil:
		return fileRef{attType: channel.AttachmentImage, fileID: msg.Sticker.FileID, size: int64(msg.Sticker.FileSize)}, true
	default:
		return fileRef{}, false
	}
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// ingestFile downloads a Telegram file and stores it in the attachment store.
// Without a store the attachment keeps only its file id.
func (a *TelegramAdapter) ingestFile(ctx context.Context, bot *tgbotapi.BotAPI, ref fileRef) (channel.Attachment, error) {
	att := channel.Attachment{
		Type:           ref.attType,
		PlatformKey:    ref.fileID,
		SourcePlatform: Type.String(),
		Name:           strings.TrimSpace(ref.name),
		Mime:           strings.TrimSpace(ref.mime),
		Size:           ref.size,
	}
	if a.assets == nil {
		return att, nil
	}
	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: ref.fileID})
	if err != nil {
		return channel.Attachment{}, fmt.Errorf("get file: %w", err)
	}
	downloadURL := fmt.Sprintf(a.fileEndpoint, bot.Token, file.FilePath)
	download, err := common.FetchAttachment(ctx, a.downloadClient, downloadURL, a.maxAssetBytes)
	if err != nil {
		return channel.Attachment{}, err
	}
	defer func() {
		_ = download.Body.Close()
	}()
	name := att.Name
	if name == "" {
		name = path.Base(file.FilePath)
	}
	mime := att.Mime
	if mime == "" {
		mime = download.Mime
	}
	asset, err := a.assets.Ingest(ctx, media.IngestInput{
		Reader:       download.Body,
		OriginalName: name,
		Mime:         mime,
		MaxBytes:     a.maxAssetBytes,
	})
	if err != nil {
		return channel.Attachment{}, err
	}
	att.URL = asset.URL
	att.AssetName = asset.Name
	att.Name = name
	att.Mime = asset.Mime
	att.Size = asset.SizeBytes
	return att, nil
}
