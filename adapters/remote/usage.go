package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/tola-labs/cfusage/domain/org"
	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/ports"
)

// Foundation describes how to reach one foundation.
type Foundation struct {
	Name     string
	UsageURL string // app usage service, e.g. https://app-usage.sys.example.com
	APIURL   string // cloud controller, e.g. https://api.sys.example.com
	Tokens   TokenSource
	Timeout  time.Duration
}

// FetcherConfig configures the usage fetcher.
type FetcherConfig struct {
	Foundations  []Foundation
	ExcludedOrgs []string
	PageSize     int // Organizations per cloud controller page (default: 200)
	HTTPClient   *http.Client
	Observer     Observer
}

type foundationClients struct {
	usage *Client
	api   *Client
	// misconfigured is set when the foundation cannot be queried at all.
	misconfigured *usage.ConfigurationError
}

// Fetcher queries the app usage service and cloud controller of every
// configured foundation.
//
// API Contract (app usage service):
//
//	GET /organizations/{org}/app_usages?start=YYYY-MM-DD&end=YYYY-MM-DD
//	GET /organizations/{org}/service_usages?start=YYYY-MM-DD&end=YYYY-MM-DD
//
// API Contract (cloud controller):
//
//	GET /v3/organizations?per_page=N&order_by=name
type Fetcher struct {
	order       []string
	foundations map[string]*foundationClients
	excluded    atomic.Pointer[org.ExclusionSet]
	pageSize    int
}

// NewFetcher builds a fetcher. Foundations missing a token or URL are kept
// and report a *usage.ConfigurationError when used.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}

	f := &Fetcher{
		foundations: make(map[string]*foundationClients, len(cfg.Foundations)),
		pageSize:    cfg.PageSize,
	}
	f.SetExcludedOrgs(cfg.ExcludedOrgs)

	for _, fd := range cfg.Foundations {
		fc := &foundationClients{}
		switch {
		case fd.Tokens == nil:
			fc.misconfigured = &usage.ConfigurationError{Foundation: fd.Name, Reason: "no token or uaa credentials"}
		case fd.UsageURL == "":
			fc.misconfigured = &usage.ConfigurationError{Foundation: fd.Name, Reason: "no usage_url"}
		}
		if fd.UsageURL != "" {
			fc.usage = NewClient(ClientConfig{
				Foundation: fd.Name,
				BaseURL:    fd.UsageURL,
				Tokens:     fd.Tokens,
				Timeout:    fd.Timeout,
				HTTPClient: cfg.HTTPClient,
				Observer:   cfg.Observer,
			})
		}
		if fd.APIURL != "" {
			fc.api = NewClient(ClientConfig{
				Foundation: fd.Name,
				BaseURL:    fd.APIURL,
				Tokens:     fd.Tokens,
				Timeout:    fd.Timeout,
				HTTPClient: cfg.HTTPClient,
				Observer:   cfg.Observer,
			})
		}
		if _, dup := f.foundations[fd.Name]; !dup {
			f.order = append(f.order, fd.Name)
		}
		f.foundations[fd.Name] = fc
	}

	return f
}

// SetExcludedOrgs replaces the org exclusion list. Safe for concurrent use.
func (f *Fetcher) SetExcludedOrgs(names []string) {
	set := org.NewExclusionSet(names...)
	f.excluded.Store(&set)
}

// Foundations lists configured foundation names in configuration order.
func (f *Fetcher) Foundations() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Fetcher) lookup(foundation string) (*foundationClients, error) {
	fc, ok := f.foundations[foundation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", usage.ErrUnknownFoundation, foundation)
	}
	if fc.misconfigured != nil {
		return nil, fc.misconfigured
	}
	return fc, nil
}

// FetchAppUsage returns the raw app_usages payload.
func (f *Fetcher) FetchAppUsage(ctx context.Context, foundation, orgGUID, start, end string) ([]byte, error) {
	return f.fetchUsage(ctx, foundation, "app_usages", orgGUID, start, end)
}

// FetchServiceUsage returns the raw service_usages payload.
func (f *Fetcher) FetchServiceUsage(ctx context.Context, foundation, orgGUID, start, end string) ([]byte, error) {
	return f.fetchUsage(ctx, foundation, "service_usages", orgGUID, start, end)
}

func (f *Fetcher) fetchUsage(ctx context.Context, foundation, endpoint, orgGUID, start, end string) ([]byte, error) {
	fc, err := f.lookup(foundation)
	if err != nil {
		return nil, err
	}

	path := "/organizations/" + url.PathEscape(orgGUID) + "/" + endpoint
	query := url.Values{}
	query.Set("start", start)
	query.Set("end", end)

	return fc.usage.Get(ctx, endpoint, path, query)
}

// Ensure interface compliance.
var _ ports.UsageFetcher = (*Fetcher)(nil)
