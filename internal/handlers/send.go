package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/events"
	"github.com/memohai/omnirelay/internal/relay"
)

// ConsumerSender delivers back-office messages.
type ConsumerSender interface {
	SendFromConsumer(ctx context.Context, msg relay.ConsumerMessage) (events.Event, error)
}

// ChannelParser resolves a configured channel type from a name or alias.
type ChannelParser interface {
	ParseChannelType(raw string) (channel.ChannelType, error)
}

type SendHandler struct {
	logger   *slog.Logger
	sender   ConsumerSender
	channels ChannelParser
}

type SendRequest struct {
	Phone   string `json:"phone" validate:"required"`
	Text    string `json:"text" validate:"required"`
	Manager string `json:"manager"`
	// Messenger selects the channel for clients without a session.
	Messenger string `json:"messenger"`
}

type SendFileRequest struct {
	Phone string `json:"phone" validate:"required"`
	File  string `json:"file" validate:"required,http_url"`
	// FileURL is accepted as an alias of File.
	FileURL string `json:"file_url"`
	Text    string `json:"text"`
	// Caption is accepted as an alias of Text.
	Caption   string `json:"caption"`
	Manager   string `json:"manager"`
	Messenger string `json:"messenger"`
}

type SendResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

func NewSendHandler(log *slog.Logger, sender ConsumerSender, channels ChannelParser) *SendHandler {
	return &SendHandler{
		logger:   log.With(slog.String("handler", "send")),
		sender:   sender,
		channels: channels,
	}
}

func (h *SendHandler) Register(e *echo.Echo) {
	e.POST("/send", h.Send)
	e.POST("/send_file", h.SendFile)
}

// Send godoc
// @Summary Send a text message to a client
// @Tags relay
// @Param payload body SendRequest true "Message"
// @Success 200 {object} SendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /send [post]
func (h *SendHandler) Send(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ct, err := h.parseChannel(req.Messenger)
	if err != nil {
		return err
	}
	event, err := h.sender.SendFromConsumer(c.Request().Context(), relay.ConsumerMessage{
		Phone:   req.Phone,
		Text:    req.Text,
		Manager: req.Manager,
		Channel: ct,
	})
	if err != nil {
		h.logger.Warn("send failed", slog.String("phone", req.Phone), slog.Any("error", err))
		return relayError(err)
	}
	return c.JSON(http.StatusOK, SendResponse{Status: "ok", ID: event.ID})
}

// SendFile godoc
// @Summary Send a file to a client by URL
// @Tags relay
// @Param payload body SendFileRequest true "File message"
// @Success 200 {object} SendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /send_file [post]
func (h *SendHandler) SendFile(c echo.Context) error {
	var req SendFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.File = firstNonEmpty(req.File, req.FileURL)
	req.Text = firstNonEmpty(req.Text, req.Caption)
	if err := c.Validate(&req); err != nil {
		return err
	}
	ct, err := h.parseChannel(req.Messenger)
	if err != nil {
		return err
	}
	event, err := h.sender.SendFromConsumer(c.Request().Context(), relay.ConsumerMessage{
		Phone:   req.Phone,
		Text:    req.Text,
		Manager: req.Manager,
		Channel: ct,
		FileURL: req.File,
	})
	if err != nil {
		h.logger.Warn("send file failed", slog.String("phone", req.Phone), slog.Any("error", err))
		return relayError(err)
	}
	return c.JSON(http.StatusOK, SendResponse{Status: "ok", ID: event.ID})
}

func (h *SendHandler) parseChannel(raw string) (channel.ChannelType, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	if h.channels == nil {
		ct, err := channel.ParseChannelType(raw)
		if err != nil {
			return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return ct, nil
	}
	ct, err := h.channels.ParseChannelType(raw)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ct, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
