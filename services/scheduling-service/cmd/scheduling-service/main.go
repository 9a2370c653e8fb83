package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookpro/libs/config"
	"github.com/md-rashed-zaman/bookpro/libs/db"
	"github.com/md-rashed-zaman/bookpro/libs/grpcx"
	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	"github.com/md-rashed-zaman/bookpro/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookpro/libs/otel"
	"github.com/md-rashed-zaman/bookpro/libs/redisx"
	"github.com/md-rashed-zaman/bookpro/libs/runtime"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/catalog"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/holds"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/resourcemap"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/schedule"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// domainStore is every store interface the scheduling core needs.
type domainStore interface {
	availability.Store
	schedule.Store
	resourcemap.Store
	holds.Store
	holds.ReapStore
	bookings.Store
	catalog.Store
	Ping(ctx context.Context) error
}

type backend struct {
	store  domainStore
	outbox outbox.Store
	inbox  consumer.Inbox
	checks []runtime.ReadyCheck
	close  func()
}

func openBackend(ctx context.Context, logger *slog.Logger) (backend, error) {
	driver := strings.ToLower(config.String("STORAGE_DRIVER", "postgres"))
	if driver == "memory" {
		logger.Warn("using in-memory storage; data is lost on restart")
		mem := memstore.New()
		return backend{store: mem, outbox: mem, inbox: mem, close: func() {}}, nil
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return backend{}, err
	}
	pool, err := db.OpenWithOptions(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		return backend{}, err
	}
	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, migrations.FS, "."); err != nil {
			pool.Close()
			return backend{}, err
		}
		if v, err := db.MigrationVersion(ctx, pool); err == nil {
			logger.Info("database migrated", "version", v)
		}
	}
	outboxRepo := outbox.NewRepository(pool)
	return backend{
		store:  storage.New(pool, outboxRepo),
		outbox: outboxRepo,
		inbox:  inbox.NewRepository(pool),
		checks: []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		close:  pool.Close,
	}, nil
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort := config.String("GRPC_PORT", "9095")
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() { _ = runtime.Within(5*time.Second, otelShutdown) }()
	}

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer be.close()
	store := be.store

	engine := availability.NewEngine(store, availability.WithMaxRangeDays(config.Int("SLOTS_MAX_RANGE_DAYS", 62)))
	holdManager := holds.NewManager(store, engine, holds.WithTTL(config.Duration("HOLD_TTL", holds.DefaultTTL)))
	catalogSvc := catalog.NewService(store, logger)

	if interval := config.Duration("HOLD_REAPER_INTERVAL", 30*time.Second); interval > 0 {
		reaper := holds.NewReaper(store, logger, holds.ReaperConfig{
			Interval:  interval,
			BatchSize: config.Int("HOLD_REAPER_BATCH", 200),
		})
		go reaper.Run(ctx)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(be.outbox, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" || strings.TrimSpace(brokers) == "" {
			return
		}
		c := consumer.New(logger, be.inbox, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}
	startConsumer(config.String("KAFKA_BUSINESS_TOPIC", events.BusinessProfileUpdated), catalogSvc.HandleBusinessEvent)
	startConsumer(config.String("KAFKA_SERVICE_TOPIC", events.ServiceUpserted), catalogSvc.HandleServiceEvent)

	checks := append([]runtime.ReadyCheck{}, be.checks...)
	holdsPerMinute := config.Int("HOLD_RATE_LIMIT_PER_MINUTE", 30)
	var holdLimiter handlers.SessionLimiter = handlers.LocalLimiter{
		RateLimiter: httpx.NewRateLimiter(holdsPerMinute, config.Int("HOLD_RATE_LIMIT_BURST", 10)),
	}
	if rdb := redisx.Open(redisx.OptionsFromEnv()); rdb != nil {
		defer func() { _ = rdb.Close() }()
		holdLimiter = httpx.NewRedisRateLimiter(rdb, holdsPerMinute, time.Minute, "hold")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	if grpcPort != "" {
		grpcSrv := grpcx.NewServer()
		if err := grpcSrv.Serve(ctx, logger, ":"+grpcPort); err != nil {
			logger.Error("grpc listen failed", "err", err)
			panic(err)
		}
		go watchStore(ctx, store, grpcSrv, logger)
	}

	api := &handlers.API{
		Engine:      engine,
		Schedule:    schedule.NewService(store),
		Resources:   resourcemap.NewService(store),
		Holds:       holdManager,
		Bookings:    bookings.NewService(store, engine),
		Catalog:     catalogSvc,
		Logger:      logger,
		HoldLimiter: holdLimiter,
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	api.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	if err := runtime.ServeHTTP(ctx, logger, ":"+port, httpHandler); err != nil {
		logger.Error("http server error", "err", err)
	}
}

// watchStore mirrors storage reachability into the gRPC health status.
func watchStore(ctx context.Context, store interface{ Ping(context.Context) error }, srv *grpcx.Server, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := store.Ping(pingCtx)
			cancel()
			if ok := err == nil; ok != serving {
				serving = ok
				srv.SetServing(ok)
				logger.Warn("storage health changed", "serving", ok, "err", err)
			}
		}
	}
}
