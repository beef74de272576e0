package di

import (
	"context"
	"fmt"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	"VolPull/internal/handler/api"
	internalrepo "VolPull/internal/repository"
	"VolPull/internal/service/fred"
	"VolPull/internal/service/ivol"
	"VolPull/internal/service/ratelimit"
	"VolPull/internal/services/normalize"
	"VolPull/internal/services/rates"
	"VolPull/internal/usecase"
	"VolPull/pkg/cache"
	"VolPull/pkg/calendar"
	pkgch "VolPull/pkg/clickhouse"
	"VolPull/pkg/config"
	xhttp "VolPull/pkg/http"
	pkgkafka "VolPull/pkg/kafka"
	"VolPull/pkg/logger"
	"VolPull/pkg/metrics"
	pkgpg "VolPull/pkg/postgres"
	"VolPull/pkg/server"
)

const schemaTimeout = 30 * time.Second

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideStore opens the configured backend and makes sure its schema exists.
func ProvideStore(cfg *config.Config, l *logger.Logger) (drepo.Store, func(), error) {
	var store drepo.Store
	switch cfg.Backend.Type {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database, true),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewClickHouseStore(client, l)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
		defer cancel()
		client, err := pkgpg.NewClient(ctx, cfg.Postgres.DSN, pkgpg.Options{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLife,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store = internalrepo.NewPostgresStore(client, l)
	default:
		store = internalrepo.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("%s schema: %w", cfg.Backend.Type, err)
	}
	l.Info("store ready", logger.String("backend", cfg.Backend.Type))

	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("store close error", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideCache returns Redis when enabled, otherwise an in-process cache.
// Ingestion locks only exclude other processes when Redis is used.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	var svc cache.Service
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Redis.Addr),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
	} else {
		svc = cache.NewMemoryCache(cache.WithMemoryMaxSize(10_000))
	}
	cleanup := func() {
		if err := svc.Close(); err != nil {
			l.Warn("cache close error", logger.Error(err))
		}
	}
	return svc, cleanup, nil
}

// ProvidePublisher creates the Kafka index publisher, or a no-op one when
// Kafka is disabled.
func ProvidePublisher(cfg *config.Config, l *logger.Logger) (drepo.IndexPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaIndexPublisher(producer)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideOptionProvider creates the options data client. All fetches share
// one in-flight semaphore and one token bucket.
func ProvideOptionProvider(cfg *config.Config, m drepo.Metrics, l *logger.Logger) drepo.OptionProvider {
	p := cfg.Provider
	return ivol.New(ivol.Config{
		BaseURL:           p.BaseURL,
		ChainPath:         p.ChainPath,
		APIKey:            p.APIKey,
		Timeout:           p.Timeout,
		DownloadTimeout:   p.DownloadTimeout,
		MaxRetries:        p.MaxRetries,
		BackoffBase:       p.BackoffBase,
		BackoffMax:        p.BackoffMax,
		PollInterval:      p.PollInterval,
		PollFactor:        p.PollFactor,
		PollMaxInterval:   p.PollMaxInterval,
		PollTimeout:       p.PollTimeout,
		RequestsPerSecond: p.RequestsPerSecond,
	},
		ratelimit.NewSemaphore(p.MaxInFlight),
		ratelimit.New(),
		ivol.WithMetrics(m),
		ivol.WithLogger(l.With(logger.String("component", "ivol"))),
	)
}

// ProvideRateSource creates the Treasury yield client.
func ProvideRateSource(cfg *config.Config) drepo.RateSource {
	return fred.New(cfg.Rates.SourceURL, cfg.Provider.Timeout)
}

// ProvideCalendar precomputes NYSE holidays from the earliest configured
// date through next year.
func ProvideCalendar(cfg *config.Config) drepo.Calendar {
	to := time.Now().Year() + 1
	from := to - 2
	for _, d := range []config.Date{cfg.Ingest.StartDate, cfg.Rates.StartDate, cfg.History.StartDate} {
		if !d.IsZero() && d.Year() < from {
			from = d.Year()
		}
	}
	return calendar.NewNYSE(from, to)
}

// ProvideRateProvider creates the cached rate curve provider.
func ProvideRateProvider(store drepo.Store, c cache.Service, cfg *config.Config, l *logger.Logger) *rates.Provider {
	return rates.NewProvider(store, c, cfg.Rates.CacheTTL, l.With(logger.String("component", "rates")))
}

// ProvideNormalizer creates the quote normalizer.
func ProvideNormalizer(l *logger.Logger) *normalize.Normalizer {
	return normalize.NewNormalizer(l.With(logger.String("component", "normalize")))
}

// ProvideIngestScheduler creates the ingestion use case.
func ProvideIngestScheduler(
	provider drepo.OptionProvider,
	store drepo.Store,
	cal drepo.Calendar,
	norm *normalize.Normalizer,
	locks cache.Service,
	m drepo.Metrics,
	l *logger.Logger,
	cfg *config.Config,
) *usecase.IngestScheduler {
	return usecase.NewIngestScheduler(provider, store, store, cal, norm, locks, m, l.With(logger.String("component", "ingest")), usecase.IngestConfig{
		StartDate:        cfg.Ingest.StartDate.Time,
		EndDate:          cfg.Ingest.EndDate.Time,
		Workers:          cfg.Ingest.Workers,
		Horizons:         cfg.Ingest.Horizons,
		MaxExpiryBackoff: cfg.Ingest.MaxExpiryBackoff,
		LockTTL:          cfg.Ingest.LockTTL,
	})
}

// ProvideHistoryRunner creates the index computation use case.
func ProvideHistoryRunner(
	store drepo.Store,
	curves *rates.Provider,
	pub drepo.IndexPublisher,
	m drepo.Metrics,
	l *logger.Logger,
) *usecase.HistoryRunner {
	return usecase.NewHistoryRunner(store, store, curves, pub, m, l.With(logger.String("component", "history")))
}

// ProvideRateIngestor creates the rate ingestion use case.
func ProvideRateIngestor(source drepo.RateSource, store drepo.Store, curves *rates.Provider, l *logger.Logger) *usecase.RateIngestor {
	return usecase.NewRateIngestor(source, store, curves, l.With(logger.String("component", "rates_ingest")))
}

// ProvideHTTPServer builds the read API server.
func ProvideHTTPServer(cfg *config.Config, store drepo.Store, l *logger.Logger) *xhttp.Server {
	h := api.NewIndexEchoHandler(l, usecase.NewIndexQuery(store), store)
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l.With(logger.String("component", "http"))),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	rateIngest *usecase.RateIngestor,
	ingest *usecase.IngestScheduler,
	history *usecase.HistoryRunner,
	httpServer *xhttp.Server,
) *server.App {
	types := make([]models.IndexType, 0, len(cfg.History.IndexTypes))
	for _, t := range cfg.History.IndexTypes {
		types = append(types, models.IndexType(t))
	}
	return server.New(server.Jobs{
		Rates:   rateIngest,
		Ingest:  ingest,
		History: history,
		HTTP:    httpServer,
	}, server.Settings{
		Symbols:        cfg.Ingest.Symbols,
		HistorySymbols: cfg.HistorySymbols(),
		IndexTypes:     types,
		RatesFrom:      cfg.Rates.StartDate.Time,
		RatesTo:        cfg.Rates.EndDate.Time,
		RatesOverwrite: cfg.Rates.Overwrite,
		HistoryFrom:    cfg.History.StartDate.Time,
		HistoryTo:      cfg.History.EndDate.Time,
		ClearExisting:  cfg.History.ClearExisting,
	}, l)
}
