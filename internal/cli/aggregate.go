package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripstream-systems/tripstream/internal/batch"
	"github.com/tripstream-systems/tripstream/internal/blobstore"
	"github.com/tripstream-systems/tripstream/internal/store"
)

var (
	aggForceReprocess bool
	aggDryRun         bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one daily KPI aggregation pass",
	Long: `Scans completed trips, computes per-day fare KPIs, and publishes one
KPI object per unprocessed day. The processed-date ledger makes repeat runs
no-ops unless --force-reprocess is given.`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().BoolVar(&aggForceReprocess, "force-reprocess", false, "publish KPIs even for dates already in the ledger")
	aggregateCmd.Flags().BoolVar(&aggDryRun, "dry-run", false, "compute KPIs but write nothing")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	logger := newLogger("aggregate")

	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	blobs, err := blobstore.NewFilesystem(cfg.ObjectStore.Root)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	runner := batch.NewRunner(pg, blobs, logger)
	summary, err := runner.Run(ctx, batch.Options{
		ForceReprocess: aggForceReprocess,
		DryRun:         aggDryRun,
	})
	if err != nil {
		return fmt.Errorf("aggregation run failed: %w", err)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
