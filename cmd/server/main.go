// Command server runs a single rotrust node: a ledger backend behind the HTTP
// invocation endpoint, with optional Kafka event streaming.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/events"
	kafkaevents "rotrust/internal/events/kafka"
	"rotrust/internal/ledger"
	leveldbledger "rotrust/internal/ledger/leveldb"
	"rotrust/internal/ledger/memory"
	postgresledger "rotrust/internal/ledger/postgres"
	redisledger "rotrust/internal/ledger/redis"
	"rotrust/internal/platform/config"
	"rotrust/internal/platform/httpserver"
	"rotrust/internal/platform/invoke"
	"rotrust/internal/platform/kafka"
	"rotrust/internal/platform/logger"
	"rotrust/internal/platform/metrics"
	"rotrust/internal/platform/otel"
	"rotrust/internal/platform/postgres"
	"rotrust/internal/platform/redis"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transferservice "rotrust/internal/transfer/service"
	httptransport "rotrust/internal/transport/http"
	"rotrust/pkg/platform/circuit"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("node stopped", "error", err)
		os.Exit(1)
	}
}

// backend is an opened ledger store with its lifecycle hooks.
type backend struct {
	store ledger.Store
	ready httptransport.ReadinessCheck
	close func() error
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Warn("ledger backend close failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	publisher, closePublisher, err := openPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	policy, err := cfg.Escrow.Policy()
	if err != nil {
		return err
	}
	runner, err := invoke.New(be.store,
		invoke.WithLogger(log),
		invoke.WithMetrics(m),
		invoke.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}
	h := httptransport.New(
		propertyservice.New(runner),
		transferservice.New(runner),
		escrowservice.New(runner, escrowservice.WithReadinessPolicy(policy)),
		query.New(be.store),
		log,
	)
	srv := httpserver.New(cfg.Server, httptransport.NewRouter(h, log, reg, be.ready))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("node listening",
			"addr", cfg.Server.Addr,
			"ledger_backend", cfg.Ledger.Backend,
			"readiness_policy", string(policy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	engineOpts := []ledger.EngineOption{ledger.WithTxTimeout(cfg.Ledger.TxTimeout)}
	noClose := func() error { return nil }

	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.Migrate {
			if err := postgresledger.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &backend{
			store: postgresledger.New(db, engineOpts...),
			ready: db.PingContext,
			close: db.Close,
		}, nil

	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &backend{
			store: redisledger.New(client.Client, cfg.Redis.Prefix, engineOpts...),
			ready: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: client.Close,
		}, nil

	case config.BackendLevelDB:
		b, err := leveldbledger.Open(cfg.LevelDB.Path, cfg.LevelDB.SyncWrites)
		if err != nil {
			return nil, err
		}
		return &backend{store: ledger.NewEngine(b, engineOpts...), close: b.Close}, nil

	default:
		return &backend{store: memory.New(engineOpts...), close: noClose}, nil
	}
}

// openPublisher returns the Kafka publisher when brokers are configured.
func openPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger) (events.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		return events.NopPublisher{}, func() {}, nil
	}
	client, err := kafka.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.EnsureTopic {
		if err := kafka.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions, cfg.Replication); err != nil {
			client.Close()
			return nil, nil, err
		}
	}
	breaker := circuit.New("kafka-events",
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	)
	publisher := kafkaevents.New(client, cfg.Topic,
		kafkaevents.WithBreaker(breaker),
		kafkaevents.WithLogger(log),
	)
	return publisher, client.Close, nil
}
