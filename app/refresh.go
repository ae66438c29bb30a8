package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tola-labs/cfusage/domain/quarter"
	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/ports"
)

// ErrRefreshInProgress is returned when a bulk refresh is requested while one runs.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Refresher recomputes every cached rollup: foundations in parallel, and
// within a foundation its organizations and quarters one after another.
type Refresher struct {
	directory *OrgDirectory
	usage     *UsageService
	clock     ports.Clock
	ids       ports.IDGenerator
	logger    zerolog.Logger
	metrics   ports.UsageMetrics

	interval  time.Duration
	timeout   time.Duration
	onStartup bool

	running     atomic.Bool
	last        atomic.Pointer[RefreshReport]
	stopRefresh chan struct{}
	wg          sync.WaitGroup
}

// RefresherConfig contains configuration for Refresher.
type RefresherConfig struct {
	Interval  time.Duration // Time between scheduled runs (default: 6h)
	Timeout   time.Duration // Bound on one run (default: 30m)
	OnStartup bool          // Run once as soon as Start is called
	Metrics   ports.UsageMetrics
}

// RefreshReport summarizes one bulk refresh run.
type RefreshReport struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Periods    []quarter.Period `json:"periods"`
	Refreshed  int              `json:"refreshed"`
	Failed     int              `json:"failed"`
	Errors     []string         `json:"errors,omitempty"`
}

// Outcome is "success" when nothing failed, "partial" when some units
// failed, and "failed" when none succeeded.
func (r *RefreshReport) Outcome() string {
	switch {
	case r.Failed == 0:
		return "success"
	case r.Refreshed > 0:
		return "partial"
	default:
		return "failed"
	}
}

// maxReportErrors bounds the error strings kept in a report.
const maxReportErrors = 50

// NewRefresher creates a refresher.
func NewRefresher(
	directory *OrgDirectory,
	usageSvc *UsageService,
	clock ports.Clock,
	ids ports.IDGenerator,
	logger zerolog.Logger,
	cfg RefresherConfig,
) *Refresher {
	if cfg.Interval == 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}

	return &Refresher{
		directory:   directory,
		usage:       usageSvc,
		clock:       clock,
		ids:         ids,
		logger:      logger.With().Str("service", "refresh").Logger(),
		metrics:     cfg.Metrics,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		onStartup:   cfg.OnStartup,
		stopRefresh: make(chan struct{}),
	}
}

// Start begins the scheduled refresh goroutine.
func (r *Refresher) Start() {
	r.wg.Add(1)
	go r.refreshLoop()
}

// Stop stops scheduling, cancels any running refresh and waits for it to return.
func (r *Refresher) Stop() {
	close(r.stopRefresh)
	r.wg.Wait()
}

func (r *Refresher) refreshLoop() {
	defer r.wg.Done()

	if r.onStartup {
		r.runScheduled()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopRefresh:
			return
		case <-ticker.C:
			r.runScheduled()
		}
	}
}

// runContext bounds a run by the timeout and cancels it when Stop is called.
func (r *Refresher) runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	go func() {
		select {
		case <-r.stopRefresh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (r *Refresher) runScheduled() {
	ctx, cancel := r.runContext()
	defer cancel()

	if _, err := r.RefreshAll(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
		r.logger.Error().Err(err).Msg("scheduled refresh had failures")
	}
}

// Trigger starts a refresh of all elapsed quarters in the background and
// returns its run ID.
func (r *Refresher) Trigger() (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRefreshInProgress
	}
	runID := r.ids.New()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := r.runContext()
		defer cancel()
		if _, err := r.run(ctx, runID, r.directory.Foundations(), quarter.Elapsed(r.clock.Now())); err != nil {
			r.logger.Error().Err(err).Str("run_id", runID).Msg("triggered refresh had failures")
		}
	}()

	return runID, nil
}

// RefreshAll recomputes every org of every foundation for each elapsed
// quarter of the current year.
func (r *Refresher) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	return r.RefreshPeriods(ctx, r.directory.Foundations(), quarter.Elapsed(r.clock.Now()))
}

// RefreshPeriods recomputes the given foundations and quarters, overwriting
// cached entries. A failed unit is logged and counted and leaves its entry as
// it was; the returned error joins the unit failures.
func (r *Refresher) RefreshPeriods(ctx context.Context, foundations []string, periods []quarter.Period) (*RefreshReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	return r.run(ctx, r.ids.New(), foundations, periods)
}

// run expects r.running to be held by the caller and releases it.
func (r *Refresher) run(ctx context.Context, runID string, foundations []string, periods []quarter.Period) (*RefreshReport, error) {
	defer r.running.Store(false)

	report := &RefreshReport{
		RunID:     runID,
		StartedAt: r.clock.Now(),
		Periods:   periods,
	}
	logger := r.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Strs("foundations", foundations).
		Int("periods", len(periods)).
		Msg("refresh started")

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			report.Refreshed++
			return
		}
		report.Failed++
		errs = append(errs, err)
		if len(report.Errors) < maxReportErrors {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	for _, f := range foundations {
		g.Go(func() error {
			r.refreshFoundation(ctx, logger, f, periods, record)
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = r.clock.Now()
	r.last.Store(report)
	if r.metrics != nil {
		r.metrics.RefreshRun(report.Outcome(), report.FinishedAt.Sub(report.StartedAt))
	}

	logger.Info().
		Int("refreshed", report.Refreshed).
		Int("failed", report.Failed).
		Str("outcome", report.Outcome()).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("refresh finished")

	return report, errors.Join(errs...)
}

func (r *Refresher) refreshFoundation(ctx context.Context, logger zerolog.Logger, foundation string, periods []quarter.Period, record func(error)) {
	logger = logger.With().Str("foundation", foundation).Logger()

	if err := r.directory.Refresh(ctx, foundation); err != nil {
		logger.Error().Err(err).Msg("organization listing failed, using last snapshot")
	}
	orgs := r.directory.List(foundation)
	if len(orgs) == 0 {
		if err := r.directory.LastError(foundation); err != nil {
			record(fmt.Errorf("foundation %s: %w", foundation, err))
		}
		return
	}

	for _, o := range orgs {
		for _, p := range periods {
			if ctx.Err() != nil {
				record(fmt.Errorf("foundation %s: %w", foundation, ctx.Err()))
				return
			}

			key := usage.Key{Foundation: foundation, OrgGUID: o.GUID, Year: p.Year, Quarter: p.Quarter}
			r.refreshUnit(ctx, logger, KindApp, o.Name, p, key, record)
			r.refreshUnit(ctx, logger, KindService, o.Name, p, key, record)
		}
	}
}

func (r *Refresher) refreshUnit(ctx context.Context, logger zerolog.Logger, kind, orgName string, p quarter.Period, key usage.Key, record func(error)) {
	var err error
	if kind == KindApp {
		err = r.usage.RefreshApp(ctx, key)
	} else {
		err = r.usage.RefreshService(ctx, key)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		logger.Error().
			Err(err).
			Str("kind", kind).
			Str("org", key.OrgGUID).
			Str("org_name", orgName).
			Str("period", p.String()).
			Msg("rollup refresh failed")
	}
	if r.metrics != nil {
		r.metrics.RefreshUnit(kind, outcome)
	}
	record(err)
}

// Running reports whether a refresh is in progress.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// LastReport returns the report of the last finished run, or nil.
func (r *Refresher) LastReport() *RefreshReport {
	return r.last.Load()
}
