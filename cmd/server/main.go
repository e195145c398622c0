package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/config"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/draft"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/httpapi"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/identity"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/notify"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/pubsub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/ratelimit"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/store"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(configPath string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("instance_id", cfg.Server.InstanceID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sched := scheduler.New(scheduler.RealClock())
	defer sched.Stop()

	// Persistence
	var (
		draftStore store.DraftStore
		archive    store.Archive
	)
	if cfg.Database.Enabled() {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		arch, err := store.OpenArchive(store.BuildConnString(cfg.Database))
		if err != nil {
			return err
		}
		defer arch.Close()
		draftStore, archive = store.NewPostgresStore(pool), arch
		logger.Info("using postgres store", zap.String("host", cfg.Database.Host))
	} else {
		mem := store.NewMemoryStore()
		draftStore, archive = mem, mem
		logger.Warn("no database configured, drafts are kept in memory")
	}

	// Connections and rooms
	pump := outbound.NewPump(cfg.Queue.BatchSize, logger, m)
	reg := registry.New(registry.Config{
		QueueDepth:    cfg.Queue.MaxDepth,
		IdleTimeout:   cfg.Registry.IdleTimeout,
		SweepInterval: cfg.Registry.SweepInterval,
	}, sched, pump, logger, m)
	defer reg.Close()

	broker := room.NewBroker(room.Config{
		Capacity:    cfg.Rooms.Capacity,
		AutoCleanup: cfg.Rooms.AutoCleanup == nil || *cfg.Rooms.AutoCleanup,
	}, cfg.Server.InstanceID, reg, sched, logger, m)
	pump.OnFailure(func(id string, err error) { broker.Disconnect(id) })
	reg.OnIdle(broker.Disconnect)
	pump.Start(sched, cfg.Queue.DrainInterval)
	defer pump.Stop()

	bus, err := dialBroker(ctx, cfg.Broker, logger)
	if err != nil {
		return err
	}
	if bus != nil {
		defer bus.Close()
		bridge := pubsub.NewBridge(pubsub.Config{
			InstanceID:     cfg.Server.InstanceID,
			RetryInterval:  cfg.Broker.RetryInterval,
			PublishTimeout: cfg.Broker.PublishTimeout,
			MaxFailures:    cfg.Broker.MaxFailures,
			ResetTimeout:   cfg.Broker.ResetTimeout,
		}, bus, broker, sched, logger, m)
		broker.SetRemote(bridge)
		bridge.Start(ctx)
		defer bridge.Close()
	}

	limiter := ratelimit.New(ratelimit.Config{
		PerSecond:     cfg.RateLimit.PerSecond,
		PerMinute:     cfg.RateLimit.PerMinute,
		SweepInterval: cfg.RateLimit.SweepInterval,
	}, sched, m)
	defer limiter.Close()

	notifications := notify.NewManager(notify.Config{HeartbeatInterval: cfg.Notify.HeartbeatInterval}, sched, logger, m)
	defer notifications.Stop()

	// Drafts
	h := hub.NewHub(ctx, hub.Config{
		Draft: draft.Config{
			TickInterval: cfg.Draft.TickInterval,
			StoreTimeout: cfg.Draft.StoreTimeout,
		},
		StoreTimeout:                cfg.Draft.StoreTimeout,
		DefaultPickTimeLimitSeconds: cfg.Draft.DefaultPickTimeLimitSeconds,
	}, hub.Deps{
		Scheduler: sched,
		Publisher: broker,
		Store:     draftStore,
		Archive:   archive,
		Logger:    logger,
		Metrics:   m,
	})
	defer h.Shutdown()

	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	wsServer := ws.NewServer(ws.Config{
		OriginPatterns: cfg.Server.OriginPatterns,
		WriteBuffer:    cfg.Queue.WriteBuffer,
		MaxViolations:  cfg.RateLimit.MaxViolations,
		PingInterval:   cfg.Registry.PingInterval,
	}, ws.Deps{
		Verifier:  verifier,
		Broker:    broker,
		Registry:  reg,
		Hub:       h,
		Limiter:   limiter,
		Notify:    notifications,
		Scheduler: sched,
		Logger:    logger,
		Metrics:   m,
	})

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:       h,
			Broker:    broker,
			Notify:    notifications,
			Verifier:  verifier,
			Scheduler: sched,
			Metrics:   m,
			WS:        wsServer,
			Logger:    logger,

			StreamWriteTimeout: cfg.Notify.WriteTimeout,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Shutdown does not track hijacked websockets.
		reg.Each(func(c *registry.Connection) { broker.Disconnect(c.ID) })
		notifications.Stop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func dialBroker(ctx context.Context, cfg config.BrokerConfig, logger *zap.Logger) (pubsub.Broker, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "memory":
		return pubsub.NewMemoryBroker(), nil
	case "redis":
		client, err := pubsub.DialRedis(ctx, pubsub.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return pubsub.NewRedisBroker(client, cfg.ChannelPrefix), nil
	case "nats":
		conn, err := pubsub.DialNATS(cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		return pubsub.NewNATSBroker(conn, cfg.ChannelPrefix), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
