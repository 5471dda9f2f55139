// Package batch orchestrates the periodic aggregation run: scan, filter,
// aggregate, check the ledger, publish KPIs, update the ledger.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tripstream-systems/tripstream/internal/aggregator"
	"github.com/tripstream-systems/tripstream/internal/blobstore"
	"github.com/tripstream-systems/tripstream/internal/ledger"
	"github.com/tripstream-systems/tripstream/internal/logging"
	"github.com/tripstream-systems/tripstream/internal/metrics"
	"github.com/tripstream-systems/tripstream/internal/models"
	"github.com/tripstream-systems/tripstream/internal/store"
)

// Options configure a single aggregation run.
type Options struct {
	// ForceReprocess publishes KPIs even for dates the ledger already
	// holds. Explicit operator action only, never a default.
	ForceReprocess bool

	// DryRun computes everything but writes neither KPIs nor the ledger.
	DryRun bool
}

// Summary reports what one run did.
type Summary struct {
	RunID            string   `json:"run_id"`
	Scanned          int      `json:"scanned"`
	Complete         int      `json:"complete"`
	SkippedRecords   int      `json:"skipped_records"`
	Published        []string `json:"published_dates"`
	AlreadyProcessed []string `json:"already_processed_dates"`
	DurationSeconds  float64  `json:"duration_seconds"`
}

// Runner executes aggregation runs over the trip store.
type Runner struct {
	trips store.TripStore
	blobs blobstore.Store
	base  *logging.Logger
}

// NewRunner creates a runner. The logger is the base sink; each run wraps
// it in its own capture so the run's log output can be archived.
func NewRunner(trips store.TripStore, blobs blobstore.Store, base *logging.Logger) *Runner {
	return &Runner{trips: trips, blobs: blobs, base: base}
}

// Run performs one aggregation pass. Per-record problems are logged skips;
// only ledger or output write failures abort the run, and they abort it
// before the ledger is updated, so a retry republishes rather than loses.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	started := time.Now()
	runID := uuid.New().String()

	capture := logging.NewCapture(r.base)
	log := capture.Logger().With("run_id", runID)
	defer r.archiveLog(runID, capture, log)

	log.Info("aggregation run starting",
		"force_reprocess", opts.ForceReprocess,
		"dry_run", opts.DryRun,
	)

	led, err := ledger.Load(ctx, r.blobs)
	if err != nil {
		metrics.AggregateRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	summary := &Summary{
		RunID:            runID,
		Published:        []string{},
		AlreadyProcessed: []string{},
	}

	scanStart := time.Now()
	var qualified []*aggregator.Qualified
	err = r.trips.ScanTrips(ctx, func(rec *models.TripRecord) error {
		summary.Scanned++
		q, reason := aggregator.Qualify(rec)
		if q == nil {
			summary.SkippedRecords++
			log.Debug("skipping record", "entity_id", rec.EntityID, "reason", reason)
			return nil
		}
		summary.Complete++
		qualified = append(qualified, q)
		return nil
	})
	metrics.ScanDuration.Observe(time.Since(scanStart).Seconds())
	if err != nil {
		metrics.AggregateRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	kpis := aggregator.Aggregate(qualified)

	dates := make([]string, 0, len(kpis))
	for date := range kpis {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		if !opts.ForceReprocess && led.AlreadyProcessed(date) {
			summary.AlreadyProcessed = append(summary.AlreadyProcessed, date)
			log.Info("date already processed, skipping", "date", date)
			continue
		}

		if !opts.DryRun {
			if err := r.publishKPI(ctx, kpis[date]); err != nil {
				metrics.AggregateRuns.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("run %s: %w", runID, err)
			}
		}
		summary.Published = append(summary.Published, date)
		metrics.DatesPublished.Inc()
		kpi := kpis[date]
		log.Info("published kpi",
			"date", date,
			"count_trips", kpi.CountTrips,
			"total_fare", kpi.TotalFare.String(),
		)
	}

	// KPI objects are on disk before the ledger moves: a crash between the
	// two re-publishes on retry instead of silently losing a date.
	if !opts.DryRun {
		if err := led.MarkProcessed(ctx, summary.Published); err != nil {
			metrics.AggregateRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
	}

	summary.DurationSeconds = time.Since(started).Seconds()
	metrics.AggregateRuns.WithLabelValues("success").Inc()
	log.Info("aggregation run complete",
		"scanned", summary.Scanned,
		"complete", summary.Complete,
		"skipped_records", summary.SkippedRecords,
		"published", len(summary.Published),
		"already_processed", len(summary.AlreadyProcessed),
	)
	return summary, nil
}

// KPIKey returns the object key for one date's KPI output,
// path-partitioned by year/month/day.
func KPIKey(date string) string {
	// date is YYYY-MM-DD
	return fmt.Sprintf("kpis/year=%s/month=%s/day=%s/kpi-%s.json",
		date[:4], date[5:7], date[8:10], date)
}

func (r *Runner) publishKPI(ctx context.Context, kpi models.KPIRecord) error {
	data, err := json.Marshal(kpi)
	if err != nil {
		return fmt.Errorf("encode kpi for %s: %w", kpi.Date, err)
	}
	if err := r.blobs.Put(ctx, KPIKey(kpi.Date), data); err != nil {
		return fmt.Errorf("publish kpi for %s: %w", kpi.Date, err)
	}
	return nil
}

// archiveLog flushes the run's captured log output to the object store.
// Best effort: an archive failure never fails the run.
func (r *Runner) archiveLog(runID string, capture *logging.Capture, log *logging.Logger) {
	key := fmt.Sprintf("logs/runs/%s.log", runID)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.blobs.Put(ctx, key, capture.Bytes()); err != nil {
		log.Error("failed to archive run log", "key", key, "error", err)
	}
}
