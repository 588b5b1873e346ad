package downloads

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cratehub/registry/pkg/observability"
)

const (
	// DefaultPageSize bounds how many raw rows one page transaction may
	// touch, capping lock duration and memory regardless of backlog size.
	DefaultPageSize = 10000

	// DefaultFreezeWindow is how far behind the run's start a row's date
	// must be before the row is frozen and excluded from future runs.
	DefaultFreezeWindow = 24 * time.Hour

	defaultCrateCacheSize = 8192
)

// Config tunes an Engine. The zero value gives production defaults.
type Config struct {
	// PageSize is the maximum rows per page transaction.
	PageSize int

	// FreezeWindow is subtracted from the run's start time to compute the
	// freeze cutoff.
	FreezeWindow time.Duration

	// CrateCacheSize bounds the version-to-crate LRU.
	CrateCacheSize int

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now overrides the wall clock, for tests and backfills.
	Now func() time.Time
}

// Engine drains the unprocessed download counter backlog and folds it into
// the aggregates. One Engine corresponds to the single logical aggregator
// the registry runs; it performs no internal parallelism.
type Engine struct {
	store        Store
	pageSize     int
	freezeWindow time.Duration
	crateIDs     *lru.Cache[int64, int64]
	logger       *observability.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	tracer       trace.Tracer
}

// NewEngine creates an aggregation engine over the given store.
func NewEngine(store Store, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.FreezeWindow <= 0 {
		cfg.FreezeWindow = DefaultFreezeWindow
	}
	if cfg.CrateCacheSize <= 0 {
		cfg.CrateCacheSize = defaultCrateCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// lru.New only fails on a non-positive size, which is guarded above.
	cache, _ := lru.New[int64, int64](cfg.CrateCacheSize)

	return &Engine{
		store:        store,
		pageSize:     cfg.PageSize,
		freezeWindow: cfg.FreezeWindow,
		crateIDs:     cache,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		tracer:       otel.Tracer("downloads"),
	}
}

// RunStats summarizes one aggregation run.
type RunStats struct {
	// Pages is the number of non-empty pages committed.
	Pages int
	// Rows is the number of raw counter rows examined.
	Rows int
	// Downloads is the total delta folded into the aggregates.
	Downloads int64
	// Frozen is the number of rows past the freeze cutoff.
	Frozen int
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Run drains the backlog once: pages are fetched and committed one
// transaction at a time until a page comes back empty. Committed pages stay
// durable even if a later page fails; the error is returned and the backlog
// picks up from the committed boundary on the next run.
func (e *Engine) Run(ctx context.Context) (RunStats, error) {
	ctx, span := e.tracer.Start(ctx, "downloads.run")
	defer span.End()

	start := time.Now()
	cutoff := e.now().Add(-e.freezeWindow)
	log := e.logger.WithField("run_id", uuid.NewString())

	var stats RunStats
	var max int64
	for {
		fetched, res, err := e.runPage(ctx, max, cutoff)
		if err != nil {
			span.RecordError(err)
			e.observeRun("error", time.Since(start))
			return stats, err
		}
		if fetched == 0 {
			break
		}

		max = res.maxID
		stats.Pages++
		stats.Rows += fetched
		stats.Downloads += res.delta
		stats.Frozen += res.frozen
		log.WithFields(map[string]interface{}{
			"page_rows":  fetched,
			"page_delta": res.delta,
			"max_id":     max,
		}).Debug("page committed")
	}

	stats.Duration = time.Since(start)
	e.observeRun("success", stats.Duration)
	if e.metrics != nil {
		e.metrics.PagesTotal.Add(float64(stats.Pages))
		e.metrics.RowsReconciledTotal.Add(float64(stats.Rows))
		e.metrics.DownloadsCountedTotal.Add(float64(stats.Downloads))
		e.metrics.RowsFrozenTotal.Add(float64(stats.Frozen))
	}
	log.WithFields(map[string]interface{}{
		"pages":     stats.Pages,
		"rows":      stats.Rows,
		"downloads": stats.Downloads,
		"frozen":    stats.Frozen,
		"duration":  stats.Duration.String(),
	}).Info("aggregation run complete")

	return stats, nil
}

// runPage processes a single page in its own transaction and reports how
// many rows it fetched. Zero rows means the backlog is drained.
func (e *Engine) runPage(ctx context.Context, max int64, cutoff time.Time) (int, pageResult, error) {
	ctx, span := e.tracer.Start(ctx, "downloads.page")
	defer span.End()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, pageResult{}, err
	}

	page, err := fetchPage(ctx, tx, max, e.pageSize)
	if err != nil {
		tx.Rollback()
		return 0, pageResult{}, err
	}
	if len(page) == 0 {
		if err := tx.Commit(); err != nil {
			return 0, pageResult{}, err
		}
		return 0, pageResult{}, nil
	}

	res, err := e.reconcilePage(ctx, tx, page, cutoff)
	if err != nil {
		tx.Rollback()
		return 0, pageResult{}, err
	}
	if err := addToTotal(ctx, tx, res.delta); err != nil {
		tx.Rollback()
		return 0, pageResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return 0, pageResult{}, err
	}

	return len(page), res, nil
}

func (e *Engine) observeRun(status string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.AggregationRunsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		e.metrics.AggregationRunDuration.Observe(elapsed.Seconds())
		e.metrics.LastRunTimestamp.SetToCurrentTime()
	}
}
