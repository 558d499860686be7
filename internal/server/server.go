package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/omnirelay/internal/auth"
	"github.com/memohai/omnirelay/internal/handlers"
	"github.com/memohai/omnirelay/internal/metrics"
)

const defaultAddr = ":8080"

// Handler registers routes on the shared echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

var (
	authExactSkipPaths = map[string]struct{}{
		"/ping":    {},
		"/health":  {},
		"/metrics": {},
	}
	// Stored attachments are linked from chat messages and must open without a key.
	authPrefixSkipPaths = []string{
		"/get_file/",
	}
)

// NewServer builds the HTTP surface. apiKey protects everything except
// the health, metrics and file download routes; empty disables auth.
func NewServer(log *slog.Logger, addr, apiKey string, m *metrics.Metrics, routes ...Handler) *Server {
	if addr == "" {
		addr = defaultAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler(e)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(requestMetrics(m))
	e.Use(auth.APIKeyMiddleware(apiKey, func(c echo.Context) bool {
		return shouldSkipAuth(c.Request().URL.Path)
	}))
	for _, h := range routes {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func requestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			var he *echo.HTTPError
			if err != nil {
				status = http.StatusInternalServerError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(c.Request().Method, route, status)
			return err
		}
	}
}

func shouldSkipAuth(path string) bool {
	if _, ok := authExactSkipPaths[path]; ok {
		return true
	}
	for _, prefix := range authPrefixSkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
