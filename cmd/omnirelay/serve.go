package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/greenapi"
	"github.com/memohai/omnirelay/internal/channel/adapters/telegram"
	"github.com/memohai/omnirelay/internal/config"
	"github.com/memohai/omnirelay/internal/db"
	dbsqlc "github.com/memohai/omnirelay/internal/db/sqlc"
	"github.com/memohai/omnirelay/internal/dedup"
	"github.com/memohai/omnirelay/internal/events"
	"github.com/memohai/omnirelay/internal/handlers"
	channelchecker "github.com/memohai/omnirelay/internal/healthcheck/checkers/channel"
	databasechecker "github.com/memohai/omnirelay/internal/healthcheck/checkers/database"
	"github.com/memohai/omnirelay/internal/logger"
	"github.com/memohai/omnirelay/internal/media"
	"github.com/memohai/omnirelay/internal/metrics"
	"github.com/memohai/omnirelay/internal/publish"
	"github.com/memohai/omnirelay/internal/relay"
	"github.com/memohai/omnirelay/internal/server"
	"github.com/memohai/omnirelay/internal/sessions"
	"github.com/memohai/omnirelay/internal/storage/providers/localfs"
	"github.com/memohai/omnirelay/internal/version"
)

// dedupMemoryItems bounds the process-local duplicate guard.
const dedupMemoryItems = 50000

type serveOptions struct {
	ConfigPath string
	Migrate    bool
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay: channel receivers, reconciler and pull API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = configPathFrom(cmd)
			return runServe(opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", true, "apply pending schema migrations before starting")
	return cmd
}

func runServe(opts serveOptions) error {
	app := fx.New(
		fx.Supply(opts),
		fx.Provide(
			provideConfig,
			provideLogger,
			metrics.New,
			provideDBConn,
			provideDBQueries,
			providePublisher,
			sessions.NewService,
			events.NewService,
			provideMediaService,
			provideChannelRegistry,
			provideDedupGuard,
			provideChannelManager,
			provideRouter,
			provideReconciler,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideSendHandler),
			provideServerHandler(provideQueueHandler),
			provideServerHandler(provideFilesHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServer,
		),
		fx.Invoke(
			bindInboundProcessor,
			startChannelManager,
			startReconciler,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(opts serveOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, opts serveOptions) (*pgxpool.Pool, error) {
	if opts.Migrate {
		if err := db.MigrateUp(log, cfg.Postgres); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideDBQueries(conn *pgxpool.Pool) *dbsqlc.Queries { return dbsqlc.New(conn) }

func providePublisher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (publish.Publisher, error) {
	if strings.TrimSpace(cfg.AMQP.URL) == "" {
		return publish.Nop{}, nil
	}
	pub, err := publish.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return pub.Close() }})
	return pub, nil
}

func provideMediaService(log *slog.Logger, cfg config.Config) (*media.Service, error) {
	dataRoot := strings.TrimSpace(cfg.Storage.DataRoot)
	if dataRoot == "" {
		dataRoot = config.DefaultDataRoot
	}
	provider, err := localfs.New(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("init media provider: %w", err)
	}
	return media.NewService(log, provider, cfg.Server.PublicBaseURL, cfg.Storage.MaxAssetBytes()), nil
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config, mediaService *media.Service) *channel.Registry {
	registry := channel.NewRegistry()
	if cfg.Telegram.Enabled() {
		tgAdapter := telegram.NewTelegramAdapter(log, cfg.Telegram, mediaService)
		tgAdapter.SetMaxAssetBytes(cfg.Storage.MaxAssetBytes())
		registry.MustRegister(tgAdapter)
	} else {
		log.Warn("telegram is not configured; staff topics are disabled")
	}
	if cfg.GreenAPI.Enabled() {
		waAdapter := greenapi.NewGreenAPIAdapter(log, cfg.GreenAPI, mediaService)
		waAdapter.SetMaxAssetBytes(cfg.Storage.MaxAssetBytes())
		registry.MustRegister(waAdapter)
	}
	return registry
}

func provideRouter(log *slog.Logger, cfg config.Config, sessionService *sessions.Service, eventService *events.Service, registry *channel.Registry, manager *channel.Manager, m *metrics.Metrics) (*relay.Router, error) {
	defaultChannel, err := channel.ParseChannelType(cfg.Relay.DefaultChannel)
	if err != nil {
		return nil, fmt.Errorf("relay.default_channel: %w", err)
	}
	return relay.NewRouter(log, sessionService, eventService, registry, relay.Options{
		DefaultOwner:   cfg.Relay.DefaultOwner,
		DefaultChannel: defaultChannel,
		Outbound:       manager,
		Metrics:        m,
	}), nil
}

func provideDedupGuard(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (dedup.Guard, error) {
	ttl := cfg.Relay.DedupWindow()
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		return dedup.NewMemoryGuard(ttl, dedupMemoryItems), nil
	}
	guard, err := dedup.NewRedisGuard(context.Background(), cfg.Redis.URL, ttl)
	if err != nil {
		return nil, err
	}
	log.Info("duplicate guard backed by redis")
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return guard.Close() }})
	return guard, nil
}

func provideChannelManager(log *slog.Logger, cfg config.Config, registry *channel.Registry, guard dedup.Guard) *channel.Manager {
	mgr := channel.NewManager(log, registry, nil)
	mgr.SetRefreshInterval(cfg.Relay.ReconnectEvery())
	mgr.Use(dedup.Middleware(log, guard))
	return mgr
}

// bindInboundProcessor closes the loop between the manager, which delivers
// outbound sends for the router, and the router, which handles its inbound events.
func bindInboundProcessor(manager *channel.Manager, router *relay.Router) {
	manager.SetProcessor(router)
}

func provideReconciler(log *slog.Logger, router *relay.Router, cfg config.Config) *relay.Reconciler {
	return relay.NewReconciler(log, router, cfg.Relay.ReconcileSchedule)
}

func providePingHandler(log *slog.Logger, manager *channel.Manager, conn *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log,
		channelchecker.NewChecker(log, manager),
		databasechecker.NewChecker(log, conn),
	)
}

func provideSendHandler(log *slog.Logger, router *relay.Router, registry *channel.Registry) *handlers.SendHandler {
	return handlers.NewSendHandler(log, router, registry)
}

func provideQueueHandler(log *slog.Logger, eventService *events.Service, cfg config.Config) *handlers.QueueHandler {
	return handlers.NewQueueHandler(log, eventService, cfg.Relay.FetchLimit)
}

func provideFilesHandler(log *slog.Logger, mediaService *media.Service) *handlers.FilesHandler {
	return handlers.NewFilesHandler(log, mediaService)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	Metrics        *metrics.Metrics
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(
		params.Logger,
		params.Config.Server.Addr,
		params.Config.Server.APIKey,
		params.Metrics,
		params.ServerHandlers...,
	)
}

func startChannelManager(lc fx.Lifecycle, channelManager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { channelManager.Start(ctx); return nil },
		OnStop:  func(stopCtx context.Context) error { cancel(); return channelManager.Shutdown(stopCtx) },
	})
}

func startReconciler(lc fx.Lifecycle, reconciler *relay.Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return reconciler.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return reconciler.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, registry *channel.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting omnirelay",
				slog.String("version", version.GetInfo()),
				slog.String("addr", cfg.Server.Addr),
				slog.Any("channels", registry.ListDescriptors()),
			)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
