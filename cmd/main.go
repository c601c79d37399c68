package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/postgres"
	"github.com/cwrk-planet/chat-service/internal/push"
	"github.com/cwrk-planet/chat-service/internal/ratelimit"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/sqlite"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"
	"github.com/cwrk-planet/chat-service/internal/worker"
	"github.com/cwrk-planet/chat-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Driver)

	ctx := context.Background()

	// --- store ---
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	// --- auth ---
	authenticator, err := auth.New(auth.Config{
		PublicKeyPath: cfg.Auth.JWT.PublicKeyPath,
		Secret:        cfg.Auth.JWT.Secret,
		Issuer:        cfg.Auth.JWT.Issuer,
		Audience:      cfg.Auth.JWT.Audience,
		ClockSkew:     cfg.Auth.JWT.ClockSkew,
	})
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// --- services ---
	registry := service.NewRegistry()
	coordinator := service.NewCoordinator(registry, store, store, service.MembershipConfig{
		HistoryLimit: cfg.Chat.HistoryLimit,
	})
	chatSvc := service.NewChatService(registry, coordinator, store, store, service.ChatConfig{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	})
	roomSvc := service.NewRoomService(store, store, registry)

	var jobs []worker.Job
	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()
	chatSvc.SetRateLimiter(limiter)
	if local, ok := limiter.(*ratelimit.Local); ok {
		jobs = append(jobs, worker.PruneIdle("ratelimit-prune", local, time.Minute, 10*time.Minute))
	}

	var sender push.Sender = push.Disabled{}
	if cfg.PushEnabled() {
		sender = push.NewWebPushSender(push.VAPID{
			PublicKey:  cfg.Notifications.VAPID.PublicKey,
			PrivateKey: cfg.Notifications.VAPID.PrivateKey,
			Subscriber: cfg.Notifications.VAPID.Subscriber,
		}, nil)
	}
	notifySvc := service.NewNotificationService(store, store, sender, service.NotificationConfig{
		Cooldown:    cfg.Notifications.Cooldown,
		TTL:         cfg.Notifications.TTL,
		Urgency:     push.Urgency(cfg.Notifications.Urgency),
		Title:       cfg.Notifications.Title,
		URLTemplate: cfg.Notifications.URLTemplate,
	}, nil)
	jobs = append(jobs, worker.RetentionSweep(notifySvc, cfg.Notifications.SweepInterval, cfg.Notifications.Retention))

	var dispatcher *service.Dispatcher
	if cfg.PushEnabled() {
		dispatcher = service.NewDispatcher(service.DispatcherConfig{
			Workers:   cfg.Notifications.Workers,
			QueueSize: cfg.Notifications.QueueSize,
		}, registry, store, store, notifySvc)
		if err := dispatcher.Start(ctx); err != nil {
			log.Fatalf("dispatcher: %v", err)
		}
		chatSvc.SetTrigger(dispatcher)
	} else {
		slog.Warn("push notifications disabled: no VAPID keys configured")
	}

	scheduler := worker.NewScheduler(jobs...)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	// --- WS gateway ---
	wsServer := ws.NewServer(ws.Config{
		PingEvery:      cfg.WS.PingEvery,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	}, authenticator, registry, coordinator, chatSvc)

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(roomSvc, chatSvc, notifySvc),
		Verifier:       authenticator,
		Users:          store,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(grpcx.Config{CallTimeout: cfg.GRPC.CallTimeout})

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		grpcSrv.SetServing(true)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	grpcSrv.Shutdown(ctxShutdown)
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	if dispatcher != nil {
		if err := dispatcher.Stop(ctxShutdown); err != nil {
			slog.Warn("dispatcher stop", "err", err)
		}
	}
	if err := scheduler.Stop(ctxShutdown); err != nil {
		slog.Warn("scheduler stop", "err", err)
	}
	coordinator.Wait()
	slog.Info("stopped")
}

// openStore returns the configured persistence driver and its closer.
func openStore(ctx context.Context, cfg *config.Config) (service.Store, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := sqlite.Open(sqlite.Config{Path: cfg.SQLite.Path, Debug: cfg.Logging.Debug})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("sqlite store opened", "path", cfg.SQLite.Path)
		return st, func() { _ = st.Close() }, nil
	default:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.Migrate {
			if err := migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	slog.Info("postgres schema applied")
	return nil
}

// newLimiter prefers the shared Redis window and falls back to per-process
// buckets when Redis is not configured or not reachable.
func newLimiter(ctx context.Context, cfg *config.Config) (service.RateLimiter, func()) {
	rl := cfg.Chat.RateLimit
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			slog.Info("rate limiter: redis sliding window", "addr", cfg.Redis.Addr)
			return ratelimit.NewSlidingWindow(client, rl.Burst, rl.Interval, "chat:send:"), func() { _ = client.Close() }
		}
		slog.Warn("rate limiter: redis unavailable, using local buckets", "addr", cfg.Redis.Addr, "err", err)
		_ = client.Close()
	}
	return ratelimit.NewLocal(rl.Burst, rl.Interval), func() {}
}
