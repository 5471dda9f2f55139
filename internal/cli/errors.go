package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripstream-systems/tripstream/internal/store"
)

var errorsCmd = &cobra.Command{
	Use:   "errors <entity-id>",
	Short: "Show the quarantine record for an entity id",
	Args:  cobra.ExactArgs(1),
	RunE:  runErrors,
}

func init() {
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, args []string) error {
	newLogger("errors")

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

	rec, err := pg.GetError(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no quarantine record for %q", args[0])
		}
		return fmt.Errorf("failed to fetch quarantine record: %w", err)
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
