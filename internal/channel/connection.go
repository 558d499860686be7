package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

func (m *Manager) refresh(ctx context.Context) {
	// Serialize refresh calls so concurrent callers wait instead of silently skipping.
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	for _, ct := range m.registry.Types() {
		if ctx.Err() != nil {
			return
		}
		if err := m.ensureConnection(ctx, ct); err != nil {
			m.markConnectionStatus(ct, false, err)
			m.logger.Error("adapter start failed", slog.String("channel", ct.String()), slog.Any("error", err))
		}
	}
}

func (m *Manager) ensureConnection(ctx context.Context, ct ChannelType) error {
	receiver, ok := m.registry.GetReceiver(ct)
	if !ok {
		return nil
	}

	m.mu.Lock()
	existing := m.connections[ct]
	if existing != nil && existing.Running() {
		m.setConnectionStatusLocked(ct, true, nil)
		m.mu.Unlock()
		return nil
	}
	delete(m.connections, ct)
	m.mu.Unlock()

	if existing != nil {
		m.logger.Warn("adapter restart", slog.String("channel", ct.String()))
	} else {
		m.logger.Info("adapter start", slog.String("channel", ct.String()))
	}

	handler := m.handleInbound
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	conn, err := receiver.Connect(ctx, handler)
	if err != nil {
		return fmt.Errorf("connect %s: %w", ct, err)
	}

	m.mu.Lock()
	m.connections[ct] = conn
	m.setConnectionStatusLocked(ct, true, nil)
	m.mu.Unlock()
	return nil
}

func (m *Manager) stopAll(ctx context.Context) {
	m.mu.Lock()
	conns := make(map[ChannelType]Connection, len(m.connections))
	for ct, conn := range m.connections {
		conns[ct] = conn
	}
	m.connections = map[ChannelType]Connection{}
	m.mu.Unlock()

	for ct, conn := range conns {
		if conn == nil {
			continue
		}
		if err := conn.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
			m.logger.Warn("adapter stop failed", slog.String("channel", ct.String()), slog.Any("error", err))
		}
		m.markConnectionStatus(ct, false, nil)
	}
}

func (m *Manager) markConnectionStatus(ct ChannelType, running bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setConnectionStatusLocked(ct, running, err)
}

func (m *Manager) setConnectionStatusLocked(ct ChannelType, running bool, err error) {
	status := ConnectionStatus{
		ChannelType: ct,
		Running:     running,
		UpdatedAt:   time.Now().UTC(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	m.connectionMeta[ct] = status
}
