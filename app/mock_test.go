package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tola-labs/cfusage/adapters/clock"
	"github.com/tola-labs/cfusage/adapters/idgen"
	"github.com/tola-labs/cfusage/adapters/memory"
	"github.com/tola-labs/cfusage/adapters/remote"
	"github.com/tola-labs/cfusage/app"
	"github.com/tola-labs/cfusage/domain/org"
	"github.com/tola-labs/cfusage/domain/usage"
)

// mockFetcher implements ports.UsageFetcher for testing.
type mockFetcher struct {
	mu          sync.Mutex
	foundations []string
	orgs        map[string][]org.Organization
	orgErr      map[string]error
	appBody     string
	svcBody     string
	usageErr    map[string]error // by org GUID
	delay       time.Duration
	excluded    org.ExclusionSet

	appCalls atomic.Int32
	svcCalls atomic.Int32
	lastApp  [2]string // start, end of the last app fetch
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		foundations: []string{"east", "west"},
		orgs: map[string][]org.Organization{
			"east": {{GUID: "o1", Name: "payments"}, {GUID: "o-sys", Name: "system"}, {GUID: "o2", Name: "search"}},
			"west": {{GUID: "w1", Name: "retail"}},
		},
		orgErr:   map[string]error{},
		usageErr: map[string]error{},
		appBody: `{"app_usages":[
			{"space_guid":"s1","space_name":"S1","app_guid":"a1","app_name":"A1","memory_in_mb_per_instance":512,"duration_in_seconds":100},
			{"space_guid":"s1","space_name":"S1","app_guid":"a1","app_name":"A1","memory_in_mb_per_instance":512,"duration_in_seconds":50},
			{"space_guid":"s1","space_name":"S1","app_guid":"a2","app_name":"A2","memory_in_mb_per_instance":1024,"duration_in_seconds":200}]}`,
		svcBody: `{"service_usages":[
			{"space_guid":"s1","space_name":"S1","service_instance_guid":"i1","service_instance_name":"db","service_name":"p.mysql","duration_in_seconds":864000},
			{"space_guid":"s1","space_name":"S1","service_instance_guid":"i2","service_instance_name":"logs","service_name":"user-provided","duration_in_seconds":864000}]}`,
	}
}

func (m *mockFetcher) Foundations() []string { return m.foundations }

func (m *mockFetcher) known(foundation string) error {
	for _, f := range m.foundations {
		if f == foundation {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", usage.ErrUnknownFoundation, foundation)
}

func (m *mockFetcher) FetchAppUsage(ctx context.Context, foundation, orgGUID, start, end string) ([]byte, error) {
	m.appCalls.Add(1)
	m.mu.Lock()
	m.lastApp = [2]string{start, end}
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err := m.known(foundation); err != nil {
		return nil, err
	}
	if err := m.usageErr[orgGUID]; err != nil {
		return nil, err
	}
	return []byte(m.appBody), nil
}

func (m *mockFetcher) FetchServiceUsage(ctx context.Context, foundation, orgGUID, start, end string) ([]byte, error) {
	m.svcCalls.Add(1)
	if err := m.known(foundation); err != nil {
		return nil, err
	}
	if err := m.usageErr[orgGUID]; err != nil {
		return nil, err
	}
	return []byte(m.svcBody), nil
}

func (m *mockFetcher) ListOrganizations(ctx context.Context, foundation string) ([]org.Organization, error) {
	if err := m.known(foundation); err != nil {
		return nil, err
	}
	if err := m.orgErr[foundation]; err != nil {
		return nil, err
	}
	return org.Filter(m.orgs[foundation], m.excluded), nil
}

func (m *mockFetcher) lastAppRange() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastApp[0], m.lastApp[1]
}

// mockMetrics implements ports.UsageMetrics for testing.
type mockMetrics struct {
	mu      sync.Mutex
	hits    map[string]int
	misses  map[string]int
	units   map[string]int
	runs    []string
	dirSize map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		hits:    map[string]int{},
		misses:  map[string]int{},
		units:   map[string]int{},
		dirSize: map[string]int{},
	}
}

func (m *mockMetrics) CacheLookup(kind string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits[kind]++
	} else {
		m.misses[kind]++
	}
}
func (m *mockMetrics) CacheSize(string, int) {}
func (m *mockMetrics) RefreshUnit(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[kind+"/"+outcome]++
}
func (m *mockMetrics) RefreshRun(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, outcome)
}
func (m *mockMetrics) DirectorySize(foundation string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirSize[foundation] = n
}

// testNow is mid Q2 2024.
var testNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	fetcher   *mockFetcher
	metrics   *mockMetrics
	clock     *clock.Fake
	usage     *app.UsageService
	directory *app.OrgDirectory
	refresher *app.Refresher
}

func newFixture() *fixture {
	f := &fixture{
		fetcher: newMockFetcher(),
		metrics: newMockMetrics(),
		clock:   clock.NewFake(testNow),
	}
	logger := zerolog.Nop()

	f.usage = app.NewUsageService(
		f.fetcher,
		remote.JSONParser{},
		memory.NewRollupStore[*usage.OrgUsage](memory.RollupStoreConfig{}),
		memory.NewRollupStore[*usage.SIUsage](memory.RollupStoreConfig{}),
		f.clock,
		logger,
		app.UsageServiceConfig{IncludedServices: []string{"p.mysql"}, Metrics: f.metrics},
	)
	f.directory = app.NewOrgDirectory(f.fetcher, f.clock, logger, app.OrgDirectoryConfig{Metrics: f.metrics})
	f.refresher = app.NewRefresher(f.directory, f.usage, f.clock, idgen.NewSequential("run-"), logger,
		app.RefresherConfig{Metrics: f.metrics})
	return f
}
