package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripstream-systems/tripstream/internal/messaging"
	"github.com/tripstream-systems/tripstream/internal/seeder"
)

var (
	seedCount      int
	seedInvalid    float64
	seedDuplicate  float64
	seedOutOfOrder float64
	seedSpread     time.Duration
	seedSeed       int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish a synthetic trip event stream",
	Long: `Generates fake trips and publishes their start and end events to
JetStream, with configurable rates of invalid events, duplicates, and
out-of-order delivery. Useful for exercising the pipeline end to end.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of trips to generate")
	seedCmd.Flags().Float64Var(&seedInvalid, "invalid-rate", 0.05, "fraction of trips emitting a malformed event")
	seedCmd.Flags().Float64Var(&seedDuplicate, "duplicate-rate", 0.1, "fraction of events published twice")
	seedCmd.Flags().Float64Var(&seedOutOfOrder, "out-of-order-rate", 0.2, "fraction of trips whose end precedes the start")
	seedCmd.Flags().DurationVar(&seedSpread, "time-spread", 72*time.Hour, "window in the past that trip timestamps span")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "RNG seed (0 uses the current time)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	newLogger("seed")

	nc, err := messaging.Connect(messaging.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name + "-seed",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, err := nc.EnsureStream(ctx, messaging.TripStream, []string{messaging.TripSubjects}); err != nil {
		return fmt.Errorf("failed to ensure trip stream: %w", err)
	}

	stats, err := seeder.Run(ctx, &jsPublisher{client: nc}, seeder.Options{
		Count:          seedCount,
		InvalidRate:    seedInvalid,
		DuplicateRate:  seedDuplicate,
		OutOfOrderRate: seedOutOfOrder,
		TimeSpread:     seedSpread,
		Seed:           seedSeed,
	})
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	slog.Info("Seeding complete",
		slog.Int("trips", stats.Trips),
		slog.Int("events", stats.Events),
		slog.Int("invalid", stats.Invalid),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("out_of_order", stats.OutOfOrder),
	)
	return nil
}
