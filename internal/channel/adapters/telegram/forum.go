package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/omnirelay/internal/channel"
)

const maxTopicNameRunes = 128

type forumTopic struct {
	MessageThreadID int    `json:"message_thread_id"`
	Name            string `json:"name"`
}

func (a *TelegramAdapter) forumBot(ctx context.Context, op string) (*tgbotapi.BotAPI, error) {
	if a.cfg.GroupChatID == 0 {
		return nil, channel.NewTransportError(channel.ErrUnsupported, Type, op, fmt.Errorf("telegram group_chat_id is not configured"))
	}
	bot, err := a.readyBot(ctx)
	if err != nil {
		return nil, classifyError(op, err)
	}
	return bot, nil
}

func parseThreadID(handle string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(handle))
	if err != nil || id <= 0 {
		return 0, channel.NewTransportError(channel.ErrTopicMissing, Type, "parse topic", fmt.Errorf("invalid topic handle %q", handle))
	}
	return id, nil
}

// CreateTopic opens a forum topic in the staff group.
func (a *TelegramAdapter) CreateTopic(ctx context.Context, title string) (string, error) {
	bot, err := a.forumBot(ctx, "create topic")
	if err != nil {
		return "", err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", a.cfg.GroupChatID)
	params.AddNonEmpty("name", topicName(title))
	resp, err := bot.MakeRequest("createForumTopic", params)
	if err != nil {
		a.logger.Warn("create topic failed", slog.String("title", title), slog.Any("error", err))
		return "", classifyError("create topic", err)
	}
	var topic forumTopic
	if err := json.Unmarshal(resp.Result, &topic); err != nil || topic.MessageThreadID == 0 {
		return "", channel.NewTransportError(channel.ErrChannelUnreachable, Type, "create topic", fmt.Errorf("decode forum topic: %s", string(resp.Result)))
	}
	handle := strconv.Itoa(topic.MessageThreadID)
	a.logger.Info("topic created", slog.String("topic", handle), slog.String("title", topic.Name))
	return handle, nil
}

// TopicExists probes a topic with a typing chat action. Staff see a brief
// typing indicator in the topic on every probe.
func (a *TelegramAdapter) TopicExists(ctx context.Context, handle string) (bool, error) {
	threadID, err := parseThreadID(handle)
	if err != nil {
		return false, nil
	}
	bot, err := a.forumBot(ctx, "probe topic")
	if err != nil {
		return false, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", a.cfg.GroupChatID)
	params.AddNonZero("message_thread_id", threadID)
	params.AddNonEmpty("action", tgbotapi.ChatTyping)
	if _, err := bot.MakeRequest("sendChatAction", params); err != nil {
		classified := classifyError("probe topic", err)
		if errors.Is(classified, channel.ErrTopicMissing) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

// PostText posts text inside a topic.
func (a *TelegramAdapter) PostText(ctx context.Context, handle string, text string) (string, error) {
	threadID, err := parseThreadID(handle)
	if err != nil {
		return "", err
	}
	bot, err := a.forumBot(ctx, "post text")
	if err != nil {
		return "", err
	}
	id, err := sendText(bot, a.cfg.GroupChatID, threadID, text)
	if err != nil {
		return "", classifyError("post text", err)
	}
	return id, nil
}

// PostFile posts an attachment inside a topic.
func (a *TelegramAdapter) PostFile(ctx context.Context, handle string, att channel.Attachment, caption string) (string, error) {
	threadID, err := parseThreadID(handle)
	if err != nil {
		return "", err
	}
	bot, err := a.forumBot(ctx, "post file")
	if err != nil {
		return "", err
	}
	id, err := a.sendAttachment(ctx, bot, a.cfg.GroupChatID, threadID, att, caption)
	if err != nil {
		return "", classifyError("post file", err)
	}
	return id, nil
}

// PostGeneral posts into the staff group's general thread.
func (a *TelegramAdapter) PostGeneral(ctx context.Context, text string) (string, error) {
	bot, err := a.forumBot(ctx, "post general")
	if err != nil {
		return "", err
	}
	id, err := sendText(bot, a.cfg.GroupChatID, 0, text)
	if err != nil {
		return "", classifyError("post general", err)
	}
	return id, nil
}

func topicName(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "client"
	}
	if utf8.RuneCountInString(title) <= maxTopicNameRunes {
		return title
	}
	return string([]rune(title)[:maxTopicNameRunes])
}
