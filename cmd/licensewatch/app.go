package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"licensewatch/internal/audit"
	"licensewatch/internal/license/authority"
	licensemetrics "licensewatch/internal/license/metrics"
	"licensewatch/internal/license/notify"
	"licensewatch/internal/license/ports"
	"licensewatch/internal/license/roster"
	"licensewatch/internal/license/statuscache"
	"licensewatch/internal/license/store"
	"licensewatch/internal/license/store/alert"
	"licensewatch/internal/license/store/cache"
	"licensewatch/internal/license/store/run"
	"licensewatch/internal/license/sweep"
	"licensewatch/internal/platform/config"
	"licensewatch/internal/platform/database"
	"licensewatch/internal/platform/metrics"
	"licensewatch/internal/platform/redis"
	"licensewatch/internal/platform/tracing"
	"licensewatch/pkg/platform/circuit"
)

// app holds the wired engine and everything that must be released on exit.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	http     *metrics.HTTP
	engine   *sweep.Engine
	db       *sql.DB
	redis    *redis.Client

	auditSink   *audit.ChannelSink
	auditWorker *audit.Worker
	auditDone   chan struct{}
	kafka       *audit.KafkaSink
	tracingStop tracing.ShutdownFunc
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.http = metrics.NewHTTP(a.registry)
	m := licensemetrics.New(a.registry)

	a.tracingStop, err = tracing.Setup(ctx, tracing.Config{
		ServiceName:    programName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.OTLPEndpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	var (
		alerts ports.AlertStore
		runs   ports.RunStore
		tx     ports.StoreTx
		caches ports.CacheStore
	)
	if cfg.Database.URL != "" {
		a.db, err = database.Open(ctx, cfg.Database.URL, database.Options{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			ConnMaxLife:  cfg.Database.ConnMaxLife,
		})
		if err != nil {
			return nil, err
		}
		alerts = alert.NewPostgres(a.db)
		runs = run.NewPostgres(a.db)
		tx = store.NewPostgresTx(a.db, store.WithTimeout(cfg.Database.TxTimeout))
		caches = cache.NewPostgres(a.db)
		logger.Info("using postgres stores")
	} else {
		memAlerts, memRuns := alert.NewInMemory(), run.NewInMemory()
		alerts, runs = memAlerts, memRuns
		tx = store.NewMemoryTx(memAlerts, memRuns, store.WithTimeout(cfg.Database.TxTimeout))
		caches = cache.NewInMemory()
		logger.Warn("no database configured; state is kept in memory")
	}

	a.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		caches = cache.NewRedis(a.redis.Client)
		logger.Info("using redis status cache")
	}

	var sink audit.Sink = audit.NewLogSink(logger)
	if len(cfg.Audit.KafkaBrokers) > 0 {
		a.kafka, err = audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("create kafka audit sink: %w", err)
		}
		if err := a.kafka.EnsureTopic(ctx, cfg.Audit.TopicPartitions, cfg.Audit.ReplicationFactor); err != nil {
			logger.Warn("could not ensure audit topic", "topic", cfg.Audit.KafkaTopic, "error", err)
		}
		sink = a.kafka
	}
	inbox := make(chan audit.Event, max(cfg.Audit.BufferSize, 1))
	a.auditSink = audit.NewChannelSink(inbox)
	a.auditWorker = audit.NewWorker(sink, inbox, logger)
	auditor := audit.NewPublisher(a.auditSink)

	rosterClient := roster.New(cfg.Roster.BaseURL, cfg.Roster.Token,
		roster.WithTimeout(cfg.Roster.Timeout),
		roster.WithRetryMax(cfg.Roster.RetryMax),
		roster.WithLogger(logger),
	)
	authorityOpts := []authority.Option{
		authority.WithAPIKey(cfg.Authority.APIKey),
		authority.WithTimeout(cfg.Authority.Timeout),
		authority.WithLogger(logger),
	}
	if cfg.Authority.BreakerThreshold > 0 {
		authorityOpts = append(authorityOpts, authority.WithBreaker(circuit.New("authority",
			circuit.WithFailureThreshold(cfg.Authority.BreakerThreshold),
			circuit.WithCooldown(cfg.Authority.BreakerCooldown),
		)))
	}
	authorityClient := authority.New(cfg.Authority.BaseURL, authorityOpts...)
	resolver := statuscache.New(caches, authorityClient,
		statuscache.WithTTL(cfg.Cache.TTL),
		statuscache.WithLogger(logger),
		statuscache.WithMetrics(m),
	)
	dispatcher := notify.New(notify.NewSendGrid(cfg.Notify.SendGridAPIKey, ""), tx,
		cfg.Notify.To, cfg.Notify.From,
		notify.WithLogger(logger),
		notify.WithMetrics(m),
		notify.WithAuditor(auditor),
	)

	var policy sweep.RenotifyPolicy = sweep.AlwaysRenotify{}
	if cfg.Sweep.RenotifyCooldown > 0 {
		policy = sweep.CooldownRenotify{Cooldown: cfg.Sweep.RenotifyCooldown}
	}
	a.engine = sweep.New(sweep.Deps{
		Roster:   rosterClient,
		Resolver: resolver,
		Notifier: dispatcher,
		Tx:       tx,
		Alerts:   alerts,
		Runs:     runs,
	},
		sweep.WithPolicy(policy),
		sweep.WithHealthChecker(rosterClient),
		sweep.WithAuditor(auditor),
		sweep.WithLogger(logger),
		sweep.WithMetrics(m),
	)
	return a, nil
}

// startAudit drains audit events in the background until close.
func (a *app) startAudit() {
	a.auditDone = make(chan struct{})
	go func() {
		defer close(a.auditDone)
		// Run only returns early on a cancelled context, which is never used here.
		_ = a.auditWorker.Run(context.Background())
	}()
}

// close flushes pending audit events and releases connections.
func (a *app) close(ctx context.Context) {
	if a.auditSink != nil {
		// Handlers still running after a shutdown timeout get ErrSinkClosed.
		a.auditSink.Close()
		if a.auditDone != nil {
			select {
			case <-a.auditDone:
			case <-ctx.Done():
				a.logger.Warn("audit drain timed out")
			}
		}
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
	if a.tracingStop != nil {
		if err := a.tracingStop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

func shutdownContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
