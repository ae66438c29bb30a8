// Package usage turns flat usage records from a foundation's usage service into
// per-organization quarterly rollups.
package usage

import (
	"fmt"
	"strconv"
	"strings"
)

// AppRecord is one application usage span as reported upstream.
type AppRecord struct {
	SpaceGUID           string
	SpaceName           string
	AppGUID             string
	AppName             string
	InstanceCount       int64
	MemoryMBPerInstance int64
	DurationSeconds     int64
}

// MemoryTime is memory-MB multiplied by duration-seconds.
func (r AppRecord) MemoryTime() int64 {
	return r.MemoryMBPerInstance * r.DurationSeconds
}

// ServiceRecord is one service instance usage span as reported upstream.
type ServiceRecord struct {
	SpaceGUID           string
	SpaceName           string
	ServiceInstanceGUID string
	ServiceInstanceName string
	ServiceInstanceType string
	ServiceName         string
	ServicePlanName     string
	DurationSeconds     int64
}

// Key identifies one cached rollup.
type Key struct {
	Foundation string
	OrgGUID    string
	Year       int
	Quarter    int
}

// String renders the key as foundation$org$year$quarter.
func (k Key) String() string {
	return fmt.Sprintf("%s$%s$%d$%d", k.Foundation, k.OrgGUID, k.Year, k.Quarter)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("invalid usage key %q", s)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("invalid usage key %q: %w", s, err)
	}
	q, err := strconv.Atoi(parts[3])
	if err != nil {
		return Key{}, fmt.Errorf("invalid usage key %q: %w", s, err)
	}
	return Key{Foundation: parts[0], OrgGUID: parts[1], Year: year, Quarter: q}, nil
}

// ServiceFilter is an allow-list of service names.
// A nil or empty filter admits nothing.
type ServiceFilter map[string]struct{}

// NewServiceFilter builds a filter from service names. Blank names are ignored.
func NewServiceFilter(names ...string) ServiceFilter {
	f := make(ServiceFilter, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			f[n] = struct{}{}
		}
	}
	return f
}

// Allows reports whether records for the named service are counted.
func (f ServiceFilter) Allows(name string) bool {
	_, ok := f[name]
	return ok
}
