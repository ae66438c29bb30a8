package remote

import (
	"encoding/json"
	"fmt"

	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/ports"
)

// appUsagePayload is the app usage service response for app_usages.
type appUsagePayload struct {
	OrganizationGUID string          `json:"organization_guid"`
	PeriodStart      string          `json:"period_start"`
	PeriodEnd        string          `json:"period_end"`
	AppUsages        *[]appUsageWire `json:"app_usages"`
}

type appUsageWire struct {
	SpaceGUID             string `json:"space_guid"`
	SpaceName             string `json:"space_name"`
	AppName               string `json:"app_name"`
	AppGUID               string `json:"app_guid"`
	InstanceCount         int64  `json:"instance_count"`
	MemoryInMBPerInstance int64  `json:"memory_in_mb_per_instance"`
	DurationInSeconds     int64  `json:"duration_in_seconds"`
}

// serviceUsagePayload is the app usage service response for service_usages.
type serviceUsagePayload struct {
	OrganizationGUID string              `json:"organization_guid"`
	PeriodStart      string              `json:"period_start"`
	PeriodEnd        string              `json:"period_end"`
	ServiceUsages    *[]serviceUsageWire `json:"service_usages"`
}

type serviceUsageWire struct {
	Deleted             bool   `json:"deleted"`
	DurationInSeconds   int64  `json:"duration_in_seconds"`
	SpaceGUID           string `json:"space_guid"`
	SpaceName           string `json:"space_name"`
	ServiceInstanceGUID string `json:"service_instance_guid"`
	ServiceInstanceName string `json:"service_instance_name"`
	ServiceInstanceType string `json:"service_instance_type"`
	ServicePlanGUID     string `json:"service_plan_guid"`
	ServicePlanName     string `json:"service_plan_name"`
	ServiceName         string `json:"service_name"`
	ServiceGUID         string `json:"service_guid"`
}

// JSONParser decodes app usage service payloads.
type JSONParser struct{}

// ParseAppUsage decodes an app_usages payload. A body that is not JSON, lacks
// the app_usages list, or has a record without space or app GUID is a
// *usage.ParseError.
func (JSONParser) ParseAppUsage(data []byte) ([]usage.AppRecord, error) {
	var p appUsagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &usage.ParseError{Kind: "app_usages", Err: err}
	}
	if p.AppUsages == nil {
		return nil, &usage.ParseError{Kind: "app_usages", Err: fmt.Errorf("missing app_usages list")}
	}

	records := make([]usage.AppRecord, 0, len(*p.AppUsages))
	for i, w := range *p.AppUsages {
		if w.SpaceGUID == "" || w.AppGUID == "" {
			return nil, &usage.ParseError{Kind: "app_usages", Err: fmt.Errorf("record %d: missing space_guid or app_guid", i)}
		}
		records = append(records, usage.AppRecord{
			SpaceGUID:           w.SpaceGUID,
			SpaceName:           w.SpaceName,
			AppGUID:             w.AppGUID,
			AppName:             w.AppName,
			InstanceCount:       w.InstanceCount,
			MemoryMBPerInstance: w.MemoryInMBPerInstance,
			DurationSeconds:     w.DurationInSeconds,
		})
	}
	return records, nil
}

// ParseServiceUsage decodes a service_usages payload. A body that is not JSON,
// lacks the service_usages list, or has a record without space or instance
// GUID is a *usage.ParseError.
func (JSONParser) ParseServiceUsage(data []byte) ([]usage.ServiceRecord, error) {
	var p serviceUsagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &usage.ParseError{Kind: "service_usages", Err: err}
	}
	if p.ServiceUsages == nil {
		return nil, &usage.ParseError{Kind: "service_usages", Err: fmt.Errorf("missing service_usages list")}
	}

	records := make([]usage.ServiceRecord, 0, len(*p.ServiceUsages))
	for i, w := range *p.ServiceUsages {
		if w.SpaceGUID == "" || w.ServiceInstanceGUID == "" {
			return nil, &usage.ParseError{Kind: "service_usages", Err: fmt.Errorf("record %d: missing space_guid or service_instance_guid", i)}
		}
		records = append(records, usage.ServiceRecord{
			SpaceGUID:           w.SpaceGUID,
			SpaceName:           w.SpaceName,
			ServiceInstanceGUID: w.ServiceInstanceGUID,
			ServiceInstanceName: w.ServiceInstanceName,
			ServiceInstanceType: w.ServiceInstanceType,
			ServiceName:         w.ServiceName,
			ServicePlanName:     w.ServicePlanName,
			DurationSeconds:     w.DurationInSeconds,
		})
	}
	return records, nil
}

// Ensure interface compliance.
var _ ports.UsageParser = JSONParser{}
