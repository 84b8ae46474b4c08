package usage

import (
	"testing"
	"time"

	"medlink-service/internal/domain/plan"

	"github.com/stretchr/testify/assert"
)

func TestMonthKeyAndResetDate(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2024-12", MonthKey(now))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), ResetDate(now))

	mid := time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ResetDate(mid))
}

func TestNewMetricStatuses(t *testing.T) {
	cases := []struct {
		used, limit int
		status      Status
		remaining   int
		percentage  int
	}{
		{0, 10, StatusOK, 10, 0},
		{5, 10, StatusOK, 5, 50},
		{6, 10, StatusWarning, 4, 60},
		{8, 10, StatusCritical, 2, 80},
		{10, 10, StatusReached, 0, 100},
		{12, 10, StatusReached, 0, 120},
		{0, 0, StatusReached, 0, 100},
		{500, plan.Unlimited, StatusOK, plan.Unlimited, 0},
	}

	for _, tc := range cases {
		m := NewMetric(tc.used, tc.limit)
		assert.Equal(t, tc.status, m.Status, "used=%d limit=%d", tc.used, tc.limit)
		assert.Equal(t, tc.remaining, m.Remaining, "used=%d limit=%d", tc.used, tc.limit)
		assert.Equal(t, tc.percentage, m.Percentage, "used=%d limit=%d", tc.used, tc.limit)
	}
}

func TestFeatureLimit(t *testing.T) {
	patients := 3
	f := &plan.Features{Role: plan.RoleHospital, MaxAssignmentsPerMonth: plan.Unlimited, MaxPatientsPerMonth: &patients}

	v, ok := FeatureLimit(f, ResourcePatients)
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = FeatureLimit(f, ResourceAssignments)
	assert.True(t, ok)
	assert.Equal(t, plan.Unlimited, v)

	doctor := &plan.Features{Role: plan.RoleDoctor, MaxAssignmentsPerMonth: 20}
	_, ok = FeatureLimit(doctor, ResourcePatients)
	assert.False(t, ok)
}

func TestTrackedResources(t *testing.T) {
	assert.True(t, EntityHospital.Tracks(ResourcePatients))
	assert.False(t, EntityDoctor.Tracks(ResourcePatients))
	assert.True(t, EntityDoctor.Tracks(ResourceAssignments))

	v, ok := TierLimit(plan.TierBasic, EntityDoctor, ResourceAssignments)
	assert.True(t, ok)
	assert.Equal(t, 20, v)
}
