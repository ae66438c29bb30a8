// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tola-labs/cfusage/domain/org"
	"github.com/tola-labs/cfusage/ports"
)

// OrgDirectory keeps the latest organization listing of every foundation.
// Each refresh replaces a foundation's snapshot wholesale.
type OrgDirectory struct {
	fetcher ports.UsageFetcher
	clock   ports.Clock
	logger  zerolog.Logger
	metrics ports.UsageMetrics

	mu        sync.RWMutex
	snapshots map[string]*DirectorySnapshot
	attempted map[string]error

	refreshInterval time.Duration
	refreshTimeout  time.Duration
	stopRefresh     chan struct{}
	wg              sync.WaitGroup
}

// DirectorySnapshot is one foundation's organization listing. It is never
// modified after being published.
type DirectorySnapshot struct {
	Orgs        []org.Organization
	byGUID      map[string]org.Organization
	RefreshedAt time.Time
}

// OrgDirectoryConfig contains configuration for OrgDirectory.
type OrgDirectoryConfig struct {
	RefreshInterval time.Duration // How often to relist organizations (default: 1h)
	RefreshTimeout  time.Duration // Bound on one background RefreshAll (default: 2m)
	Metrics         ports.UsageMetrics
}

// NewOrgDirectory creates an empty directory.
func NewOrgDirectory(fetcher ports.UsageFetcher, clock ports.Clock, logger zerolog.Logger, cfg OrgDirectoryConfig) *OrgDirectory {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 2 * time.Minute
	}

	return &OrgDirectory{
		fetcher:         fetcher,
		clock:           clock,
		logger:          logger.With().Str("service", "directory").Logger(),
		metrics:         cfg.Metrics,
		snapshots:       make(map[string]*DirectorySnapshot),
		attempted:       make(map[string]error),
		refreshInterval: cfg.RefreshInterval,
		refreshTimeout:  cfg.RefreshTimeout,
		stopRefresh:     make(chan struct{}),
	}
}

// Start loads every foundation once and then relists on an interval.
// Initial failures are logged, not returned.
func (d *OrgDirectory) Start(ctx context.Context) {
	if err := d.RefreshAll(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("initial organization listing incomplete")
	}

	d.wg.Add(1)
	go d.refreshLoop()
}

// Stop stops the background refresh goroutine.
func (d *OrgDirectory) Stop() {
	close(d.stopRefresh)
	d.wg.Wait()
}

func (d *OrgDirectory) refreshLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopRefresh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.refreshTimeout)
			if err := d.RefreshAll(ctx); err != nil {
				d.logger.Error().Err(err).Msg("failed to refresh organizations")
			}
			cancel()
		}
	}
}

// Refresh relists one foundation and replaces its snapshot. On failure the
// previous snapshot is kept.
func (d *OrgDirectory) Refresh(ctx context.Context, foundation string) error {
	orgs, err := d.fetcher.ListOrganizations(ctx, foundation)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempted[foundation] = err
	if err != nil {
		return fmt.Errorf("list organizations of %s: %w", foundation, err)
	}

	snap := &DirectorySnapshot{
		Orgs:        orgs,
		byGUID:      make(map[string]org.Organization, len(orgs)),
		RefreshedAt: d.clock.Now(),
	}
	for _, o := range orgs {
		snap.byGUID[o.GUID] = o
	}
	d.snapshots[foundation] = snap

	if d.metrics != nil {
		d.metrics.DirectorySize(foundation, len(orgs))
	}
	d.logger.Info().
		Str("foundation", foundation).
		Int("orgs", len(orgs)).
		Msg("organizations refreshed")

	return nil
}

// RefreshAll relists every foundation concurrently. Failures are joined;
// a failing foundation does not stop the others.
func (d *OrgDirectory) RefreshAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, f := range d.fetcher.Foundations() {
		g.Go(func() error {
			if err := d.Refresh(ctx, f); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// List returns the last listing for foundation, or an empty slice if it was
// never listed successfully.
func (d *OrgDirectory) List(foundation string) []org.Organization {
	d.mu.RLock()
	snap := d.snapshots[foundation]
	d.mu.RUnlock()

	if snap == nil {
		return []org.Organization{}
	}
	out := make([]org.Organization, len(snap.Orgs))
	copy(out, snap.Orgs)
	return out
}

// Lookup finds an organization by GUID in the last listing.
func (d *OrgDirectory) Lookup(foundation, orgGUID string) (org.Organization, bool) {
	d.mu.RLock()
	snap := d.snapshots[foundation]
	d.mu.RUnlock()

	if snap == nil {
		return org.Organization{}, false
	}
	o, ok := snap.byGUID[orgGUID]
	return o, ok
}

// RefreshedAt reports when foundation was last listed successfully.
func (d *OrgDirectory) RefreshedAt(foundation string) (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := d.snapshots[foundation]
	if snap == nil {
		return time.Time{}, false
	}
	return snap.RefreshedAt, true
}

// Foundations lists configured foundation names.
func (d *OrgDirectory) Foundations() []string {
	return d.fetcher.Foundations()
}

// Ready reports whether every foundation has been listed at least once,
// successfully or not.
func (d *OrgDirectory) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, f := range d.fetcher.Foundations() {
		if _, ok := d.attempted[f]; !ok {
			return false
		}
	}
	return true
}

// LastError returns the error of the most recent listing attempt for foundation.
func (d *OrgDirectory) LastError(foundation string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.attempted[foundation]
}

// HealthCheck fails until every foundation has been listed at least once.
func (d *OrgDirectory) HealthCheck(context.Context) error {
	if !d.Ready() {
		return errors.New("organization directory not loaded")
	}
	return nil
}
