// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/tola-labs/cfusage/domain/org"
	"github.com/tola-labs/cfusage/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Upstream Ports
// -----------------------------------------------------------------------------

// UsageFetcher talks to each foundation's usage service and cloud controller.
// Dates are YYYY-MM-DD. Errors are *usage.UpstreamError or
// *usage.ConfigurationError; an unconfigured name yields usage.ErrUnknownFoundation.
type UsageFetcher interface {
	// Foundations lists configured foundation names in configuration order.
	Foundations() []string

	// FetchAppUsage returns the raw app_usages payload for an org and date range.
	FetchAppUsage(ctx context.Context, foundation, orgGUID, start, end string) ([]byte, error)

	// FetchServiceUsage returns the raw service_usages payload for an org and date range.
	FetchServiceUsage(ctx context.Context, foundation, orgGUID, start, end string) ([]byte, error)

	// ListOrganizations returns the foundation's orgs with exclusions applied.
	ListOrganizations(ctx context.Context, foundation string) ([]org.Organization, error)
}

// UsageParser decodes usage payloads. Errors are *usage.ParseError.
type UsageParser interface {
	ParseAppUsage(data []byte) ([]usage.AppRecord, error)
	ParseServiceUsage(data []byte) ([]usage.ServiceRecord, error)
}

// -----------------------------------------------------------------------------
// Cache Ports
// -----------------------------------------------------------------------------

// RollupCache holds computed rollups by key. Failed computations are never stored.
type RollupCache[V any] interface {
	// Get returns the cached value without computing.
	Get(key string) (V, bool)

	// GetOrCompute returns the cached value or computes and stores it.
	// Concurrent callers for one absent key share a single compute call.
	// computed is true only for the caller that ran compute.
	GetOrCompute(key string, compute func() (V, error)) (v V, computed bool, err error)

	// Refresh always computes and, on success, replaces the cached value.
	Refresh(key string, compute func() (V, error)) (V, error)

	// Len returns the number of cached values.
	Len() int
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// UsageMetrics records cache and refresh outcomes.
type UsageMetrics interface {
	CacheLookup(kind string, hit bool)
	CacheSize(kind string, n int)
	RefreshUnit(kind, outcome string)
	RefreshRun(outcome string, d time.Duration)
	DirectorySize(foundation string, n int)
}
