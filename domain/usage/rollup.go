package usage

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tola-labs/cfusage/domain/quarter"
)

// Meta describes the organization and window a rollup covers.
type Meta struct {
	OrgGUID     string
	Year        int
	Quarter     int
	PeriodStart time.Time
	PeriodEnd   time.Time
	DaysElapsed int
}

// MetaFor builds rollup metadata from a resolved quarter window.
func MetaFor(orgGUID string, w quarter.Window) Meta {
	return Meta{
		OrgGUID:     orgGUID,
		Year:        w.Period.Year,
		Quarter:     w.Period.Quarter,
		PeriodStart: w.Start,
		PeriodEnd:   w.End,
		DaysElapsed: w.Days(),
	}
}

// SpaceUsage is the application rollup for one space.
type SpaceUsage struct {
	SpaceGUID        string `json:"space_guid"`
	SpaceName        string `json:"space_name"`
	TotalApps        int64  `json:"total_apps"`
	TotalAis         int64  `json:"total_ais"`
	TotalMbPerAis    int64  `json:"total_mb_per_ais"`
	AiDurationInSecs int64  `json:"ai_duration_in_secs"`
}

// AppUsage is the rollup for one application. SpaceGUID and SpaceName point
// back at the owning space.
type AppUsage struct {
	AppGUID          string `json:"app_guid"`
	AppName          string `json:"app_name"`
	SpaceGUID        string `json:"space_guid"`
	SpaceName        string `json:"space_name"`
	TotalAis         int64  `json:"total_ais"`
	TotalMbPerAis    int64  `json:"total_mb_per_ais"`
	AiDurationInSecs int64  `json:"ai_duration_in_secs"`
}

// OrgUsage is the application rollup for one organization and window.
// Organization totals are derived from SpaceUsage on every call.
type OrgUsage struct {
	OrgGUID     string                `json:"org_guid"`
	Year        int                   `json:"year"`
	Quarter     int                   `json:"quarter"`
	PeriodStart time.Time             `json:"-"`
	PeriodEnd   time.Time             `json:"-"`
	DaysElapsed int                   `json:"days_elapsed"`
	SpaceUsage  map[string]SpaceUsage `json:"space_usage"`
	AppUsage    map[string]AppUsage   `json:"app_usage"`
}

// TotalApps sums distinct apps across spaces.
func (o *OrgUsage) TotalApps() int64 {
	var n int64
	for _, s := range o.SpaceUsage {
		n += s.TotalApps
	}
	return n
}

// TotalAis sums app instance records across spaces.
func (o *OrgUsage) TotalAis() int64 {
	var n int64
	for _, s := range o.SpaceUsage {
		n += s.TotalAis
	}
	return n
}

// TotalMbPerAis sums memory-time across spaces.
func (o *OrgUsage) TotalMbPerAis() int64 {
	var n int64
	for _, s := range o.SpaceUsage {
		n += s.TotalMbPerAis
	}
	return n
}

// AiDurationInSecs sums raw app instance seconds across spaces.
func (o *OrgUsage) AiDurationInSecs() int64 {
	var n int64
	for _, s := range o.SpaceUsage {
		n += s.AiDurationInSecs
	}
	return n
}

// MarshalJSON adds the derived totals and period dates.
func (o *OrgUsage) MarshalJSON() ([]byte, error) {
	type plain OrgUsage
	return json.Marshal(struct {
		*plain
		PeriodStart      string `json:"period_start"`
		PeriodEnd        string `json:"period_end"`
		TotalApps        int64  `json:"total_apps"`
		TotalAis         int64  `json:"total_ais"`
		TotalMbPerAis    int64  `json:"total_mb_per_ais"`
		AiDurationInSecs int64  `json:"ai_duration_in_secs"`
	}{
		plain:            (*plain)(o),
		PeriodStart:      quarter.Format(o.PeriodStart),
		PeriodEnd:        quarter.Format(o.PeriodEnd),
		TotalApps:        o.TotalApps(),
		TotalAis:         o.TotalAis(),
		TotalMbPerAis:    o.TotalMbPerAis(),
		AiDurationInSecs: o.AiDurationInSecs(),
	})
}

// SISpaceUsage is the service rollup for one space.
type SISpaceUsage struct {
	SpaceGUID        string  `json:"space_guid"`
	SpaceName        string  `json:"space_name"`
	TotalSvcs        int64   `json:"total_svcs"`
	TotalSis         int64   `json:"total_sis"`
	SiDurationInSecs float64 `json:"si_duration_in_secs"`
}

// ServiceInstanceUsage is the rollup for one service instance.
type ServiceInstanceUsage struct {
	ServiceInstanceGUID string  `json:"service_instance_guid"`
	ServiceInstanceName string  `json:"service_instance_name"`
	ServiceName         string  `json:"service_name"`
	ServicePlanName     string  `json:"service_plan_name,omitempty"`
	SpaceGUID           string  `json:"space_guid"`
	SpaceName           string  `json:"space_name"`
	DurationInSecs      float64 `json:"duration_in_secs"`
}

// SIUsage is the service rollup for one organization and window.
// Organization totals are derived from SpaceUsage on every call.
type SIUsage struct {
	OrgGUID       string                          `json:"org_guid"`
	Year          int                             `json:"year"`
	Quarter       int                             `json:"quarter"`
	PeriodStart   time.Time                       `json:"-"`
	PeriodEnd     time.Time                       `json:"-"`
	DaysElapsed   int                             `json:"days_elapsed"`
	SpaceUsage    map[string]SISpaceUsage         `json:"si_space_usage"`
	InstanceUsage map[string]ServiceInstanceUsage `json:"service_instance_usage"`
}

// TotalSvcs sums distinct services across spaces.
func (s *SIUsage) TotalSvcs() int64 {
	var n int64
	for _, sp := range s.SpaceUsage {
		n += sp.TotalSvcs
	}
	return n
}

// TotalSis sums service usage records across spaces.
func (s *SIUsage) TotalSis() int64 {
	var n int64
	for _, sp := range s.SpaceUsage {
		n += sp.TotalSis
	}
	return n
}

// SiDurationInSecs sums normalized service seconds across spaces, in space
// GUID order so repeated calls agree to the last bit.
func (s *SIUsage) SiDurationInSecs() float64 {
	guids := make([]string, 0, len(s.SpaceUsage))
	for g := range s.SpaceUsage {
		guids = append(guids, g)
	}
	sort.Strings(guids)

	var n float64
	for _, g := range guids {
		n += s.SpaceUsage[g].SiDurationInSecs
	}
	return n
}

// MarshalJSON adds the derived totals and period dates.
func (s *SIUsage) MarshalJSON() ([]byte, error) {
	type plain SIUsage
	return json.Marshal(struct {
		*plain
		PeriodStart      string  `json:"period_start"`
		PeriodEnd        string  `json:"period_end"`
		TotalSvcs        int64   `json:"total_svcs"`
		TotalSis         int64   `json:"total_sis"`
		SiDurationInSecs float64 `json:"si_duration_in_secs"`
	}{
		plain:            (*plain)(s),
		PeriodStart:      quarter.Format(s.PeriodStart),
		PeriodEnd:        quarter.Format(s.PeriodEnd),
		TotalSvcs:        s.TotalSvcs(),
		TotalSis:         s.TotalSis(),
		SiDurationInSecs: s.SiDurationInSecs(),
	})
}
