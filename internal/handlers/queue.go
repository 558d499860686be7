package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/omnirelay/internal/events"
)

// EventQueue is the pull side of the event log.
type EventQueue interface {
	DequeuePending(ctx context.Context, limit int) ([]events.Event, error)
	ListRecent(ctx context.Context, limit int) ([]events.Event, error)
}

type QueueHandler struct {
	logger     *slog.Logger
	queue      EventQueue
	fetchLimit int
}

// NewQueueHandler creates the pull handler. fetchLimit caps each /fetch_new
// batch; zero drains everything pending.
func NewQueueHandler(log *slog.Logger, queue EventQueue, fetchLimit int) *QueueHandler {
	if fetchLimit < 0 {
		fetchLimit = 0
	}
	return &QueueHandler{
		logger:     log.With(slog.String("handler", "queue")),
		queue:      queue,
		fetchLimit: fetchLimit,
	}
}

func (h *QueueHandler) Register(e *echo.Echo) {
	e.GET("/fetch_new", h.FetchNew)
	e.POST("/fetch_new", h.FetchNew)
	e.GET("/events", h.ListEvents)
}

// FetchNew godoc
// @Summary Dequeue pending events
// @Description Returns pending events in id order and marks them delivered. Returned events are never returned again.
// @Tags queue
// @Success 200 {array} events.Event
// @Failure 500 {object} ErrorResponse
// @Router /fetch_new [get]
func (h *QueueHandler) FetchNew(c echo.Context) error {
	items, err := h.queue.DequeuePending(c.Request().Context(), h.fetchLimit)
	if err != nil {
		h.logger.Error("dequeue failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []events.Event{}
	}
	return c.JSON(http.StatusOK, items)
}

// ListEvents godoc
// @Summary List recent events
// @Description Newest first. Does not change delivery status.
// @Tags queue
// @Param limit query int false "Maximum number of events"
// @Success 200 {array} events.Event
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /events [get]
func (h *QueueHandler) ListEvents(c echo.Context) error {
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	items, err := h.queue.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []events.Event{}
	}
	return c.JSON(http.StatusOK, items)
}
