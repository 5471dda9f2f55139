package cli

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

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tripstream-systems/tripstream/internal/consumer"
	"github.com/tripstream-systems/tripstream/internal/dedup"
	"github.com/tripstream-systems/tripstream/internal/messaging"
	"github.com/tripstream-systems/tripstream/internal/mirror"
	"github.com/tripstream-systems/tripstream/internal/quarantine"
	"github.com/tripstream-systems/tripstream/internal/reconciler"
	"github.com/tripstream-systems/tripstream/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the trip event consumer",
	Long: `Consumes trip events from JetStream, merging valid partial events
into trip records and quarantining malformed ones. Runs until interrupted.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := newLogger("ingest")

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	// Run database migrations
	slog.Info("Running database migrations")
	m, err := migrate.New(cfg.Database.MigrationsURL, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("Could not get migration version", slog.String("error", err.Error()))
	} else {
		slog.Info("Database migration complete",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	opts := []consumer.Option{}

	// Duplicate suppression is best effort: without Redis every duplicate
	// still converges through the idempotent merge, just with extra writes.
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unavailable, continuing without duplicate suppression",
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, consumer.WithDedup(dedup.New(rdb, cfg.Redis.DedupTTL)))
			slog.Info("Duplicate suppression enabled",
				slog.String("addr", cfg.Redis.Addr),
				slog.Duration("ttl", cfg.Redis.DedupTTL))
		}
		defer rdb.Close()
	} else {
		slog.Info("Redis disabled, duplicate suppression not available")
	}

	if cfg.OpenSearch.Enabled {
		osm, err := mirror.New(mirror.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			Index:         cfg.OpenSearch.Index,
		}, logger.Logger)
		if err != nil {
			slog.Warn("OpenSearch unavailable, continuing without quarantine mirror",
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, consumer.WithMirror(osm))
			slog.Info("Quarantine mirror enabled", slog.String("index", cfg.OpenSearch.Index))
		}
	} else {
		slog.Info("OpenSearch disabled, quarantine mirror not available")
	}

	nc, err := messaging.Connect(messaging.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	if _, err := nc.EnsureStream(ctx, messaging.TripStream, []string{messaging.TripSubjects}); err != nil {
		return fmt.Errorf("failed to ensure trip stream: %w", err)
	}
	if _, err := nc.EnsureStream(ctx, messaging.DLQStream, []string{messaging.DLQSubjects}); err != nil {
		return fmt.Errorf("failed to ensure DLQ stream: %w", err)
	}
	opts = append(opts, consumer.WithDLQ(&jsPublisher{client: nc}))

	jsConsumer, err := nc.EnsureConsumer(ctx, messaging.TripStream, cfg.Ingest.Durable)
	if err != nil {
		return fmt.Errorf("failed to ensure consumer: %w", err)
	}

	rec := reconciler.New(pg)
	quar := quarantine.New(pg)
	cons := consumer.New(rec, quar, logger.Logger, opts...)

	consumeCtx, err := cons.Start(ctx, jsConsumer)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	slog.Info("Ingest running",
		slog.String("stream", messaging.TripStream),
		slog.String("durable", cfg.Ingest.Durable),
	)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			slog.Info("Metrics listening", slog.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	slog.Info("Shutting down",
		slog.Uint64("merged", cons.Stats.Succeeded.Load()),
		slog.Uint64("quarantined", cons.Stats.Quarantined.Load()),
		slog.Uint64("duplicates", cons.Stats.Duplicates.Load()),
		slog.Uint64("failed", cons.Stats.Failed.Load()),
	)

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", slog.String("error", err.Error()))
		}
	}
	return nil
}

// jsPublisher narrows messaging.Client.Publish to the fire-and-forget shape
// the consumer and seeder expect.
type jsPublisher struct {
	client *messaging.Client
}

func (p *jsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.client.Publish(ctx, subject, data)
	return err
}
