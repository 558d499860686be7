package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// InboundProcessor consumes normalized inbound events.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, event InboundEvent) error
}

// Middleware wraps an InboundHandler to add cross-cutting behavior.
type Middleware func(next InboundHandler) InboundHandler

// ConnectionStatus describes runtime status for one channel connection.
type ConnectionStatus struct {
	ChannelType ChannelType `json:"channel_type"`
	Running     bool        `json:"running"`
	LastError   string      `json:"last_error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Manager owns receiver connections and dispatches outbound sends.
// Connection lifecycle lives in connection.go.
type Manager struct {
	registry        *Registry
	processor       InboundProcessor
	refreshInterval time.Duration
	logger          *slog.Logger
	middlewares     []Middleware

	mu             sync.Mutex
	refreshMu      sync.Mutex
	connections    map[ChannelType]Connection
	connectionMeta map[ChannelType]ConnectionStatus
}

// NewManager creates a Manager with the given logger, registry, and inbound processor.
func NewManager(log *slog.Logger, registry *Registry, processor InboundProcessor) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:        registry,
		processor:       processor,
		refreshInterval: time.Minute,
		connections:     map[ChannelType]Connection{},
		connectionMeta:  map[ChannelType]ConnectionStatus{},
		logger:          log.With(slog.String("component", "channel")),
		middlewares:     []Middleware{},
	}
}

// SetProcessor replaces the inbound processor. Call it before Start.
func (m *Manager) SetProcessor(processor InboundProcessor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processor = processor
}

// Use appends middleware to the inbound processing chain.
func (m *Manager) Use(mw ...Middleware) {
	m.middlewares = append(m.middlewares, mw...)
}

// SetRefreshInterval overrides how often dead receivers are reconnected.
func (m *Manager) SetRefreshInterval(d time.Duration) {
	if d > 0 {
		m.refreshInterval = d
	}
}

// Start connects every registered receiver and keeps reconnecting dead ones.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("manager start")
	go func() {
		m.refresh(ctx)
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("manager stop")
				m.stopAll(context.WithoutCancel(ctx))
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()
}

// SendText delivers text on the given channel and returns the remote message id.
func (m *Manager) SendText(ctx context.Context, channelType ChannelType, address string, text string) (string, error) {
	sender, ok := m.registry.GetSender(channelType)
	if !ok {
		return "", fmt.Errorf("%w: no sender for %s", ErrUnsupported, channelType)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", NewTransportError(ErrAddressInvalid, channelType, "send text", fmt.Errorf("address is required"))
	}
	m.logger.Info("send outbound", slog.String("channel", channelType.String()), slog.String("address", address))
	id, err := sender.SendText(ctx, address, text)
	if err != nil {
		m.logger.Error("send outbound failed", slog.String("channel", channelType.String()), slog.String("address", address), slog.Any("error", err))
		return "", err
	}
	return id, nil
}

// SendFile delivers an attachment on the given channel and returns the remote message id.
func (m *Manager) SendFile(ctx context.Context, channelType ChannelType, address string, att Attachment, caption string) (string, error) {
	sender, ok := m.registry.GetSender(channelType)
	if !ok {
		return "", fmt.Errorf("%w: no sender for %s", ErrUnsupported, channelType)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", NewTransportError(ErrAddressInvalid, channelType, "send file", fmt.Errorf("address is required"))
	}
	m.logger.Info("send outbound file", slog.String("channel", channelType.String()), slog.String("address", address), slog.String("url", att.URL))
	id, err := sender.SendFile(ctx, address, att, caption)
	if err != nil {
		m.logger.Error("send outbound file failed", slog.String("channel", channelType.String()), slog.String("address", address), slog.Any("error", err))
		return "", err
	}
	return id, nil
}

// Shutdown stops all active connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopAll(ctx)
	return nil
}

// ConnectionStatuses returns observed statuses for every registered receiver.
func (m *Manager) ConnectionStatuses() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ConnectionStatus, 0, len(m.connectionMeta))
	for _, status := range m.connectionMeta {
		items = append(items, status)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ChannelType < items[j].ChannelType })
	return items
}

func (m *Manager) handleInbound(ctx context.Context, event InboundEvent) error {
	m.mu.Lock()
	processor := m.processor
	m.mu.Unlock()
	if processor == nil {
		return fmt.Errorf("inbound processor not configured")
	}
	return processor.HandleInbound(ctx, event)
}
