package usage

import "medlink-service/internal/domain/plan"

// DefaultPlanName is reported when an entity has no active subscription.
const DefaultPlanName = "Free Plan"

// Limits maps entity type and resource to a monthly cap.
type Limits map[EntityType]map[Resource]int

// Get returns the cap for (et, r) and whether one is configured.
func (l Limits) Get(et EntityType, r Resource) (int, bool) {
	byRes, ok := l[et]
	if !ok {
		return 0, false
	}
	v, ok := byRes[r]
	return v, ok
}

// DefaultLimits are applied when an entity has no active plan.
func DefaultLimits() Limits {
	return Limits{
		EntityHospital: {ResourcePatients: 10, ResourceAssignments: 20},
		EntityDoctor:   {ResourceAssignments: 5},
	}
}

// tierLimits backs feature rows that leave a limit unset.
var tierLimits = map[plan.Tier]Limits{
	plan.TierFree: {
		EntityHospital: {ResourcePatients: 10, ResourceAssignments: 20},
		EntityDoctor:   {ResourceAssignments: 5},
	},
	plan.TierBasic: {
		EntityHospital: {ResourcePatients: 50, ResourceAssignments: 100},
		EntityDoctor:   {ResourceAssignments: 20},
	},
	plan.TierPremium: {
		EntityHospital: {ResourcePatients: plan.Unlimited, ResourceAssignments: plan.Unlimited},
		EntityDoctor:   {ResourceAssignments: plan.Unlimited},
	},
	plan.TierEnterprise: {
		EntityHospital: {ResourcePatients: plan.Unlimited, ResourceAssignments: plan.Unlimited},
		EntityDoctor:   {ResourceAssignments: plan.Unlimited},
	},
}

// TierLimit returns the standard cap for a tier.
func TierLimit(t plan.Tier, et EntityType, r Resource) (int, bool) {
	l, ok := tierLimits[t]
	if !ok {
		return 0, false
	}
	return l.Get(et, r)
}

// FeatureLimit reads the limit field for r from a feature row.
func FeatureLimit(f *plan.Features, r Resource) (int, bool) {
	if f == nil {
		return 0, false
	}
	switch r {
	case ResourceAssignments:
		return f.MaxAssignmentsPerMonth, true
	case ResourcePatients:
		if f.MaxPatientsPerMonth == nil {
			return 0, false
		}
		return *f.MaxPatientsPerMonth, true
	}
	return 0, false
}
