package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tola-labs/cfusage/domain/quarter"
	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/ports"
)

// Rollup kinds, used in logs and metrics.
const (
	KindApp     = "app"
	KindService = "service"
)

// UsageService serves org rollups: cached per (foundation, org, year, quarter),
// computed from the foundation's usage service on a miss.
type UsageService struct {
	fetcher  ports.UsageFetcher
	parser   ports.UsageParser
	apps     ports.RollupCache[*usage.OrgUsage]
	services ports.RollupCache[*usage.SIUsage]
	clock    ports.Clock
	logger   zerolog.Logger
	metrics  ports.UsageMetrics

	included atomic.Pointer[usage.ServiceFilter]
}

// UsageServiceConfig contains configuration for UsageService.
type UsageServiceConfig struct {
	IncludedServices []string
	Metrics          ports.UsageMetrics
}

// NewUsageService creates a usage service.
func NewUsageService(
	fetcher ports.UsageFetcher,
	parser ports.UsageParser,
	apps ports.RollupCache[*usage.OrgUsage],
	services ports.RollupCache[*usage.SIUsage],
	clock ports.Clock,
	logger zerolog.Logger,
	cfg UsageServiceConfig,
) *UsageService {
	s := &UsageService{
		fetcher:  fetcher,
		parser:   parser,
		apps:     apps,
		services: services,
		clock:    clock,
		logger:   logger.With().Str("service", "usage").Logger(),
		metrics:  cfg.Metrics,
	}
	s.SetIncludedServices(cfg.IncludedServices)
	return s
}

// SetIncludedServices replaces the service allow-list for future computations.
// Already cached rollups are not recomputed.
func (s *UsageService) SetIncludedServices(names []string) {
	f := usage.NewServiceFilter(names...)
	s.included.Store(&f)
}

// IncludedServices returns the current service allow-list.
func (s *UsageService) IncludedServices() usage.ServiceFilter {
	return *s.included.Load()
}

// AppUsage returns the app rollup for one org and quarter, computing it on a
// cache miss. The current quarter runs to today; future quarters are
// quarter.ErrInvalidDate.
func (s *UsageService) AppUsage(ctx context.Context, foundation, orgGUID string, year, q int) (*usage.OrgUsage, error) {
	w, err := quarter.Range(year, q, s.clock.Now())
	if err != nil {
		return nil, err
	}
	key := usage.Key{Foundation: foundation, OrgGUID: orgGUID, Year: year, Quarter: q}

	v, computed, err := s.apps.GetOrCompute(key.String(), func() (*usage.OrgUsage, error) {
		return s.computeApps(ctx, foundation, orgGUID, w)
	})
	s.recordLookup(KindApp, computed, s.apps.Len())
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ServiceUsage returns the service rollup for one org and quarter, computing
// it on a cache miss.
func (s *UsageService) ServiceUsage(ctx context.Context, foundation, orgGUID string, year, q int) (*usage.SIUsage, error) {
	w, err := quarter.Range(year, q, s.clock.Now())
	if err != nil {
		return nil, err
	}
	key := usage.Key{Foundation: foundation, OrgGUID: orgGUID, Year: year, Quarter: q}

	v, computed, err := s.services.GetOrCompute(key.String(), func() (*usage.SIUsage, error) {
		return s.computeServices(ctx, foundation, orgGUID, w)
	})
	s.recordLookup(KindService, computed, s.services.Len())
	if err != nil {
		return nil, err
	}
	return v, nil
}

// AppUsageRange computes an app rollup for an arbitrary date range. It is
// never cached. Year and quarter of the result are those of start.
func (s *UsageService) AppUsageRange(ctx context.Context, foundation, orgGUID string, start, end time.Time) (*usage.OrgUsage, error) {
	w, err := quarter.CustomRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.computeApps(ctx, foundation, orgGUID, w)
}

// ServiceUsageRange computes a service rollup for an arbitrary date range.
// It is never cached.
func (s *UsageService) ServiceUsageRange(ctx context.Context, foundation, orgGUID string, start, end time.Time) (*usage.SIUsage, error) {
	w, err := quarter.CustomRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.computeServices(ctx, foundation, orgGUID, w)
}

// RefreshApp recomputes and replaces the cached app rollup for key.
// On failure the previous entry, if any, stays.
func (s *UsageService) RefreshApp(ctx context.Context, key usage.Key) error {
	w, err := quarter.Range(key.Year, key.Quarter, s.clock.Now())
	if err != nil {
		return err
	}
	_, err = s.apps.Refresh(key.String(), func() (*usage.OrgUsage, error) {
		return s.computeApps(ctx, key.Foundation, key.OrgGUID, w)
	})
	if s.metrics != nil {
		s.metrics.CacheSize(KindApp, s.apps.Len())
	}
	return err
}

// RefreshService recomputes and replaces the cached service rollup for key.
func (s *UsageService) RefreshService(ctx context.Context, key usage.Key) error {
	w, err := quarter.Range(key.Year, key.Quarter, s.clock.Now())
	if err != nil {
		return err
	}
	_, err = s.services.Refresh(key.String(), func() (*usage.SIUsage, error) {
		return s.computeServices(ctx, key.Foundation, key.OrgGUID, w)
	})
	if s.metrics != nil {
		s.metrics.CacheSize(KindService, s.services.Len())
	}
	return err
}

// CachedApp returns the cached app rollup without computing.
func (s *UsageService) CachedApp(key usage.Key) (*usage.OrgUsage, bool) {
	return s.apps.Get(key.String())
}

// CachedService returns the cached service rollup without computing.
func (s *UsageService) CachedService(key usage.Key) (*usage.SIUsage, bool) {
	return s.services.Get(key.String())
}

func (s *UsageService) computeApps(ctx context.Context, foundation, orgGUID string, w quarter.Window) (*usage.OrgUsage, error) {
	start := time.Now()
	body, err := s.fetcher.FetchAppUsage(ctx, foundation, orgGUID, quarter.Format(w.Start), quarter.Format(w.End))
	if err != nil {
		return nil, fmt.Errorf("fetch app usage for %s/%s %s: %w", foundation, orgGUID, w.Period, err)
	}
	records, err := s.parser.ParseAppUsage(body)
	if err != nil {
		return nil, fmt.Errorf("app usage for %s/%s %s: %w", foundation, orgGUID, w.Period, err)
	}

	rollup := usage.AggregateApps(usage.MetaFor(orgGUID, w), records)

	s.logger.Debug().
		Str("foundation", foundation).
		Str("org", orgGUID).
		Str("period", w.Period.String()).
		Int("records", len(records)).
		Int("spaces", len(rollup.SpaceUsage)).
		Dur("took", time.Since(start)).
		Msg("app usage computed")

	return rollup, nil
}

func (s *UsageService) computeServices(ctx context.Context, foundation, orgGUID string, w quarter.Window) (*usage.SIUsage, error) {
	start := time.Now()
	body, err := s.fetcher.FetchServiceUsage(ctx, foundation, orgGUID, quarter.Format(w.Start), quarter.Format(w.End))
	if err != nil {
		return nil, fmt.Errorf("fetch service usage for %s/%s %s: %w", foundation, orgGUID, w.Period, err)
	}
	records, err := s.parser.ParseServiceUsage(body)
	if err != nil {
		return nil, fmt.Errorf("service usage for %s/%s %s: %w", foundation, orgGUID, w.Period, err)
	}

	rollup := usage.AggregateServices(usage.MetaFor(orgGUID, w), records, s.IncludedServices())

	s.logger.Debug().
		Str("foundation", foundation).
		Str("org", orgGUID).
		Str("period", w.Period.String()).
		Int("records", len(records)).
		Int("instances", len(rollup.InstanceUsage)).
		Dur("took", time.Since(start)).
		Msg("service usage computed")

	return rollup, nil
}

func (s *UsageService) recordLookup(kind string, computed bool, size int) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheLookup(kind, !computed)
	s.metrics.CacheSize(kind, size)
}
