package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/omnirelay/internal/channel"
)

var (
	errBadRequest  = errors.New("telegram bad request")
	errNilResponse = errors.New("telegram returned an empty response")
)

// errLocalAsset marks attachment store failures; they never reach the Bot API.
var errLocalAsset = errors.New("stored attachment unavailable")

var topicMissingMarkers = []string{
	"message thread not found",
	"topic_deleted",
	"topic_id_invalid",
}

var addressInvalidMarkers = []string{
	"chat not found",
	"user not found",
	"peer_id_invalid",
	"bot was blocked",
	"user is deactivated",
	"bot can't initiate conversation",
}

// classifyError tags err with the channel error kind it represents.
// Errors that did not come back from the Bot API are treated as transient.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errBadRequest) {
		return channel.NewTransportError(channel.ErrAddressInvalid, Type, op, err)
	}
	if errors.Is(err, errLocalAsset) {
		return fmt.Errorf("%s %s: %w", Type, op, err)
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return channel.NewTransportError(channel.ErrChannelUnreachable, Type, op, err)
	}
	message := strings.ToLower(apiErr.Message)
	wrapped := fmt.Errorf("telegram api %d: %s", apiErr.Code, apiErr.Message)
	switch {
	case containsAny(message, topicMissingMarkers):
		return channel.NewTransportError(channel.ErrTopicMissing, Type, op, wrapped)
	case containsAny(message, addressInvalidMarkers):
		return channel.NewTransportError(channel.ErrAddressInvalid, Type, op, wrapped)
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return channel.NewTransportError(channel.ErrChannelUnreachable, Type, op, wrapped)
	case apiErr.Code == 400 || apiErr.Code == 403:
		return channel.NewTransportError(channel.ErrAddressInvalid, Type, op, wrapped)
	default:
		return channel.NewTransportError(channel.ErrChannelUnreachable, Type, op, wrapped)
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// slogBotLogger routes the library's internal logging through slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
