package greenapi

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
	"github.com/memohai/omnirelay/internal/media"
)

// Connect starts the receive loop: fetch one notification, hand it to the
// handler, acknowledge it. Acknowledgement happens whatever the handler
// returns; a crash before the ack makes the gateway redeliver.
func (a *GreenAPIAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start", slog.String("instance", a.client.idInstance))
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
		a.receiveLoop(connCtx, handler)
	}()
	return conn, nil
}

func (a *GreenAPIAdapter) receiveLoop(ctx context.Context, handler channel.InboundHandler) {
	backoff := a.backoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		notification, err := a.client.ReceiveNotification(ctx, a.receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("receive notification failed", slog.Duration("retry_in", backoff), slog.Any("error", err))
			if !sleepContext(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, pollBackoffMax)
			continue
		}
		backoff = a.backoffMin
		if notification == nil {
			continue
		}
		a.process(ctx, notification, handler)
		a.ack(ctx, notification.ReceiptID)
	}
}

func (a *GreenAPIAdapter) process(ctx context.Context, notification *Notification, handler channel.InboundHandler) {
	event, ok := a.normalize(ctx, notification.Body)
	if !ok {
		a.logger.Debug("skip notification",
			slog.Int64("receipt_id", notification.ReceiptID),
			slog.String("type", notification.Body.TypeWebhook),
		)
		return
	}
	a.logger.Info(
		"inbound received",
		slog.String("sender", event.Sender.Address),
		slog.String("remote_message_id", event.RemoteMessageID),
		slog.String("text", common.SummarizeText(event.Text)),
	)
	if err := handler(ctx, event); err != nil {
		a.logger.Error("handle inbound failed", slog.Int64("receipt_id", notification.ReceiptID), slog.Any("error", err))
	}
}

func (a *GreenAPIAdapter) ack(ctx context.Context, receiptID int64) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := a.client.DeleteNotification(ackCtx, receiptID); err != nil {
		a.logger.Warn("acknowledge notification failed", slog.Int64("receipt_id", receiptID), slog.Any("error", err))
	}
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

// normalize keeps incoming private-chat messages only.
func (a *GreenAPIAdapter) normalize(ctx context.Context, body NotificationBody) (channel.InboundEvent, bool) {
	if body.TypeWebhook != webhookIncomingMessage {
		return channel.InboundEvent{}, false
	}
	chatID := strings.TrimSpace(body.SenderData.ChatID)
	if !strings.HasSuffix(chatID, privateChatSuffix) {
		return channel.InboundEvent{}, false
	}
	phone := common.DigitsOnly(strings.TrimSuffix(chatID, privateChatSuffix))
	if phone == "" {
		return channel.InboundEvent{}, false
	}
	name := strings.TrimSpace(body.SenderData.SenderName)
	if name == "" {
		name = strings.TrimSpace(body.SenderData.ChatName)
	}
	event := channel.InboundEvent{
		Channel: Type,
		Sender: channel.Identity{
			Address:     phone,
			DisplayName: name,
			Phone:       phone,
		},
		RemoteMessageID: strings.TrimSpace(body.IDMessage),
		ReceivedAt:      time.Now().UTC(),
	}
	if body.Timestamp > 0 {
		event.ReceivedAt = time.Unix(body.Timestamp, 0).UTC()
	}

	data := body.MessageData
	switch {
	case data.TextMessageData != nil:
		event.Text = strings.TrimSpace(data.TextMessageData.TextMessage)
	case data.ExtendedTextMessageData != nil:
		event.Text = strings.TrimSpace(data.ExtendedTextMessageData.Text)
	case data.ContactMessageData != nil:
		event.Text = "Shared contact: " + strings.TrimSpace(data.ContactMessageData.DisplayName)
	case data.FileMessageData != nil:
		file := data.FileMessageData
		event.Text = strings.TrimSpace(file.Caption)
		att, err := a.ingestFile(ctx, attachmentType(data.TypeMessage), file)
		if err != nil {
			a.logger.Warn("attachment ingest failed", slog.String("remote_message_id", event.RemoteMessageID), slog.Any("error", err))
			if event.Text == "" {
				event.Text = "[attachment unavailable: " + strings.TrimSpace(file.FileName) + "]"
			}
		} else {
			event.Attachment = &att
		}
	}
	if !event.HasContent() {
		return channel.InboundEvent{}, false
	}
	return event, true
}

func attachmentType(typeMessage string) channel.AttachmentType {
	switch typeMessage {
	case "imageMessage":
		return channel.AttachmentImage
	case "videoMessage":
		return channel.AttachmentVideo
	case "audioMessage":
		return channel.AttachmentAudio
	default:
		return channel.AttachmentFile
	}
}

func (a *GreenAPIAdapter) ingestFile(ctx context.Context, attType channel.AttachmentType, file *FileMessageData) (channel.Attachment, error) {
	att := channel.Attachment{
		Type:           attType,
		URL:            strings.TrimSpace(file.DownloadURL),
		SourcePlatform: Type.String(),
		Name:           strings.TrimSpace(file.FileName),
		Mime:           strings.TrimSpace(file.MimeType),
		Caption:        strings.TrimSpace(file.Caption),
	}
	if a.assets == nil {
		return att, nil
	}
	download, err := common.FetchAttachment(ctx, a.downloadClient, att.URL, a.maxAssetBytes)
	if err != nil {
		return channel.Attachment{}, err
	}
	defer func() {
		_ = download.Body.Close()
	}()
	mime := att.Mime
	if mime == "" {
		mime = download.Mime
	}
	asset, err := a.assets.Ingest(ctx, media.IngestInput{
		Reader:       download.Body,
		OriginalName: att.Name,
		Mime:         mime,
		MaxBytes:     a.maxAssetBytes,
	})
	if err != nil {
		return channel.Attachment{}, err
	}
	att.URL = asset.URL
	att.AssetName = asset.Name
	att.Mime = asset.Mime
	att.Size = asset.SizeBytes
	return att, nil
}
