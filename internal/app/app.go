package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Dhoini/job-tracker/config"
	"github.com/Dhoini/job-tracker/internal/api/grpc"
	"github.com/Dhoini/job-tracker/internal/api/rest"
	"github.com/Dhoini/job-tracker/internal/integration/stripe"
	"github.com/Dhoini/job-tracker/internal/kafka"
	"github.com/Dhoini/job-tracker/internal/metrics"
	"github.com/Dhoini/job-tracker/internal/repository"
	"github.com/Dhoini/job-tracker/internal/repository/memory"
	"github.com/Dhoini/job-tracker/internal/repository/postgres"
	"github.com/Dhoini/job-tracker/internal/service"
	"github.com/Dhoini/job-tracker/pkg/logger"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config *config.Config
	Store  *repository.Store
	Logger *logger.Logger

	httpServer *rest.Server
	grpcServer *grpc.Server
	closers    []func() error
}

// Options управляет необязательными шагами запуска.
type Options struct {
	SkipMigrations bool
}

// New создает и инициализирует новый экземпляр приложения
func New(ctx context.Context, cfg *config.Config, opts Options, log *logger.Logger) (*App, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a := &App{Config: cfg, Logger: log}

	store, err := a.openStore(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	// Кэш и Kafka необязательны
	var cache repository.WorkspaceCache
	if cfg.Redis.Addr != "" {
		c, err := repository.NewRedisWorkspaceCache(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.TTL, log.Named("cache"))
		if err != nil {
			log.Warnw("Workspace cache disabled", "error", err)
		} else {
			cache = c
			a.closers = append(a.closers, c.Close)
		}
	}

	var publisher kafka.Publisher = kafka.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log.Named("kafka"))
		if err != nil {
			log.Warnw("Event publishing disabled", "error", err)
		} else {
			publisher = p
			a.closers = append(a.closers, p.Close)
		}
	}

	m := metrics.New()
	mapper := stripe.NewMapper(stripe.Prices{Pro: cfg.Stripe.PricePro, Team: cfg.Stripe.PriceTeam}, nil)
	stripeClient := stripe.NewClient(cfg.Stripe.SecretKey, nil, stripe.DefaultRetryPolicy(), log)

	reconciler := service.NewReconciler(store.Items, service.DefaultBatchSize, time.Now, m, log)
	router := rest.SetupRouter(rest.RouterDeps{
		Users:       service.NewUserService(store.Users, store.Profiles, cache, log),
		Collections: service.NewCollectionService(reconciler, store.Items, cache, publisher, log),
		Workspace:   service.NewWorkspaceService(store.Profiles, store.Items, cache, log),
		Billing: service.NewBillingService(store.Users, store.Events, stripeClient, mapper, publisher, m, service.BillingConfig{
			PaymentLink: cfg.Stripe.PaymentLink,
			SuccessURL:  cfg.Stripe.SuccessURL,
			CancelURL:   cfg.Stripe.CancelURL,
		}, log),
		Verifier:      stripe.NewVerifier(cfg.Stripe.WebhookSecret),
		Metrics:       m,
		AllowedOrigin: cfg.AllowedOrigin,
		Log:           log,
	})
	if cfg.Stripe.WebhookSecret == "" {
		log.Warnw("STRIPE_WEBHOOK_SECRET is empty, webhooks will be rejected")
	}

	a.httpServer = rest.NewServer(router, cfg.Server.Port, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, log)
	if cfg.GRPC.Port != "" {
		a.grpcServer = grpc.NewServer(log)
	}
	return a, nil
}

func (a *App) openStore(opts Options) (*repository.Store, error) {
	if a.Config.Storage.Driver == config.DriverMemory {
		a.Logger.Warnw("Using in-memory storage, data is lost on restart")
		return memory.NewStore().Repositories(), nil
	}

	if !opts.SkipMigrations {
		if err := postgres.Migrate(a.Config.Storage.DSN, a.Logger.Named("migrate")); err != nil {
			return nil, err
		}
	}

	pool := postgres.NewLazyPool(a.Config.Storage.DSN, a.Logger.Named("postgres"))
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return postgres.NewStore(pool)
}

// Run запускает HTTP и gRPC серверы и блокируется до отмены ctx или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.httpServer.Start)
	if a.grpcServer != nil {
		g.Go(func() error { return a.grpcServer.Start(":" + a.Config.GRPC.Port) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Infow("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			a.grpcServer.Stop()
		}
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close освобождает внешние ресурсы в обратном порядке открытия.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warnw("Failed to release resource", "error", err)
		}
	}
	a.closers = nil
}
