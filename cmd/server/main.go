package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"countries/internal/audit"
	"countries/internal/country/cache"
	"countries/internal/country/handler"
	countrymetrics "countries/internal/country/metrics"
	"countries/internal/country/service"
	"countries/internal/country/store"
	httpapi "countries/internal/http"
	"countries/internal/platform/cassandra"
	"countries/internal/platform/config"
	"countries/internal/platform/httpserver"
	"countries/internal/platform/kafka"
	"countries/internal/platform/logger"
	"countries/internal/platform/metrics"
	"countries/internal/platform/postgres"
	"countries/internal/platform/redis"
)

const (
	shutdownTimeout = 15 * time.Second
	auditBuffer     = 1024
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("countries exited", "error", err)
		os.Exit(1)
	}
}

// run loads configuration and serves until ctx is canceled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	return serve(ctx, cfg, log)
}

// infra holds the backing clients built from config, closed in reverse order.
type infra struct {
	store   service.Store
	cache   service.Cache
	sink    audit.Sink
	closers []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func serve(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auditDrops := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "countries_audit_events_dropped_total",
		Help: "Change events dropped because the audit buffer was full",
	})

	publisher := audit.NewPublisher(auditBuffer, audit.WithDropCounter(auditDrops))
	worker := audit.NewWorker(deps.sink, publisher.Events(), log)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(countrymetrics.New(reg)),
		service.WithMaxOffset(cfg.MaxOffset),
	}
	if deps.cache != nil {
		opts = append(opts, service.WithCache(deps.cache))
	}
	countries := service.New(deps.store, opts...)

	router := httpapi.NewRouter(httpapi.Options{
		Logger:   log,
		Health:   countries,
		Gatherer: reg,
		Modules: []httpapi.Module{
			handler.New(countries, log,
				handler.WithMaxPageLimit(cfg.MaxPageLimit),
				handler.WithMetrics(metrics.New(reg)),
			),
		},
	})
	srv := httpserver.New(cfg.Addr, router, handler.DefaultTimeout)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(workerCtx)
	})
	g.Go(func() error {
		log.Info("starting countries service", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// The worker drains whatever the last requests emitted.
		stopWorker()
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server gracefully stopped")
	return nil
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}
	fail := func(err error) (*infra, error) {
		deps.close()
		return nil, err
	}

	switch cfg.Store {
	case config.StoreCassandra:
		session, err := cassandra.NewSession(ctx, cfg.Cassandra)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, session.Close)
		deps.store = store.NewCassandra(session)
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, func() { _ = db.Close() })
		deps.store = store.NewPostgres(db)
	default:
		log.Warn("using in-memory store; data is lost on restart")
		deps.store = store.NewInMemory()
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if redisClient != nil {
		deps.closers = append(deps.closers, func() { _ = redisClient.Close() })
		deps.cache = cache.NewRedis(redisClient.Client, cfg.Redis.CacheTTL)
	}

	kafkaClient, err := kafka.New(cfg.Kafka)
	if err != nil {
		return fail(err)
	}
	if kafkaClient == nil {
		deps.sink = audit.NewLogSink(log)
		return deps, nil
	}
	deps.closers = append(deps.closers, kafkaClient.Close)
	if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.Topic); err != nil {
		return fail(err)
	}
	deps.sink = audit.NewKafkaSink(kafkaClient, cfg.Kafka.Topic)
	return deps, nil
}
