package usage

// AggregateApps rolls application records up by space and then by app.
// Durations are raw seconds. App entries are keyed "appName-spaceName"; when two
// app GUIDs share a name within one space the later one gets its GUID appended
// so neither is lost.
// This is a PURE function.
func AggregateApps(meta Meta, records []AppRecord) *OrgUsage {
	out := &OrgUsage{
		OrgGUID:     meta.OrgGUID,
		Year:        meta.Year,
		Quarter:     meta.Quarter,
		PeriodStart: meta.PeriodStart,
		PeriodEnd:   meta.PeriodEnd,
		DaysElapsed: meta.DaysElapsed,
		SpaceUsage:  make(map[string]SpaceUsage),
		AppUsage:    make(map[string]AppUsage),
	}

	spaceOrder, bySpace := groupBy(records, func(r AppRecord) string { return r.SpaceGUID })

	for _, spaceGUID := range spaceOrder {
		group := bySpace[spaceGUID]
		if len(group) == 0 {
			continue
		}

		space := SpaceUsage{
			SpaceGUID: spaceGUID,
			SpaceName: group[0].SpaceName,
			TotalAis:  int64(len(group)),
		}
		for _, r := range group {
			space.AiDurationInSecs += r.DurationSeconds
		}

		appOrder, byApp := groupBy(group, func(r AppRecord) string { return r.AppGUID })
		space.TotalApps = int64(len(appOrder))

		for _, appGUID := range appOrder {
			appRecords := byApp[appGUID]
			if len(appRecords) == 0 {
				continue
			}

			app := AppUsage{
				AppGUID:   appGUID,
				AppName:   appRecords[0].AppName,
				SpaceGUID: space.SpaceGUID,
				SpaceName: space.SpaceName,
				TotalAis:  int64(len(appRecords)),
			}
			for _, r := range appRecords {
				app.AiDurationInSecs += r.DurationSeconds
				app.TotalMbPerAis += r.MemoryTime()
			}
			space.TotalMbPerAis += app.TotalMbPerAis

			key := app.AppName + "-" + space.SpaceName
			if prev, taken := out.AppUsage[key]; taken && prev.AppGUID != appGUID {
				key += "-" + appGUID
			}
			out.AppUsage[key] = app
		}

		out.SpaceUsage[spaceGUID] = space
	}

	return out
}

// AggregateServices rolls service records up by space and projects each record
// onto its service instance. Records whose service is not in included are
// dropped. Durations are normalized by 86400 * DaysElapsed. Repeated spans of
// one instance accumulate into its entry.
// This is a PURE function.
func AggregateServices(meta Meta, records []ServiceRecord, included ServiceFilter) *SIUsage {
	out := &SIUsage{
		OrgGUID:       meta.OrgGUID,
		Year:          meta.Year,
		Quarter:       meta.Quarter,
		PeriodStart:   meta.PeriodStart,
		PeriodEnd:     meta.PeriodEnd,
		DaysElapsed:   meta.DaysElapsed,
		SpaceUsage:    make(map[string]SISpaceUsage),
		InstanceUsage: make(map[string]ServiceInstanceUsage),
	}

	kept := make([]ServiceRecord, 0, len(records))
	for _, r := range records {
		if included.Allows(r.ServiceName) {
			kept = append(kept, r)
		}
	}

	divisor := float64(86400 * normalizeDays(meta.DaysElapsed))

	spaceOrder, bySpace := groupBy(kept, func(r ServiceRecord) string { return r.SpaceGUID })

	for _, spaceGUID := range spaceOrder {
		group := bySpace[spaceGUID]
		if len(group) == 0 {
			continue
		}

		services := make(map[string]struct{})
		var seconds int64
		for _, r := range group {
			services[r.ServiceName] = struct{}{}
			seconds += r.DurationSeconds

			inst, ok := out.InstanceUsage[r.ServiceInstanceGUID]
			if !ok {
				inst = ServiceInstanceUsage{
					ServiceInstanceGUID: r.ServiceInstanceGUID,
					ServiceInstanceName: r.ServiceInstanceName,
					ServiceName:         r.ServiceName,
					ServicePlanName:     r.ServicePlanName,
					SpaceGUID:           spaceGUID,
					SpaceName:           r.SpaceName,
				}
			}
			inst.DurationInSecs += float64(r.DurationSeconds) / divisor
			out.InstanceUsage[r.ServiceInstanceGUID] = inst
		}

		out.SpaceUsage[spaceGUID] = SISpaceUsage{
			SpaceGUID:        spaceGUID,
			SpaceName:        group[0].SpaceName,
			TotalSvcs:        int64(len(services)),
			TotalSis:         int64(len(group)),
			SiDurationInSecs: float64(seconds) / divisor,
		}
	}

	return out
}

func normalizeDays(days int) int {
	if days < 1 {
		return 1
	}
	return days
}

// groupBy buckets items by key, returning keys in first-seen order.
func groupBy[T any](items []T, key func(T) string) ([]string, map[string][]T) {
	order := make([]string, 0)
	groups := make(map[string][]T)
	for _, it := range items {
		k := key(it)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}
	return order, groups
}
