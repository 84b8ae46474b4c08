package usage

import (
	"math"
	"time"

	"medlink-service/internal/domain/plan"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusReached  Status = "reached"
)

const (
	warningPercent  = 60
	criticalPercent = 80
)

// Metric is the consumption summary of one resource.
type Metric struct {
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	Percentage int    `json:"percentage"`
	Remaining  int    `json:"remaining"`
	Status     Status `json:"status"`
}

// NewMetric derives percentage, remaining and status from used/limit.
func NewMetric(used, limit int) Metric {
	m := Metric{Used: used, Limit: limit}

	if limit == plan.Unlimited {
		m.Remaining = plan.Unlimited
		m.Status = StatusOK
		return m
	}

	if limit <= 0 {
		m.Percentage = 100
	} else {
		m.Percentage = int(math.Round(float64(used) / float64(limit) * 100))
	}

	m.Remaining = limit - used
	if m.Remaining < 0 {
		m.Remaining = 0
	}

	switch {
	case used >= limit:
		m.Status = StatusReached
	case m.Percentage >= criticalPercent:
		m.Status = StatusCritical
	case m.Percentage >= warningPercent:
		m.Status = StatusWarning
	default:
		m.Status = StatusOK
	}
	return m
}

// Snapshot is the usage view of one entity for the current month.
type Snapshot struct {
	EntityID   string              `json:"entity_id"`
	EntityType EntityType          `json:"entity_type"`
	Month      string              `json:"month"`
	PlanName   string              `json:"plan_name"`
	Tier       plan.Tier           `json:"tier"`
	ResetDate  time.Time           `json:"reset_date"`
	Resources  map[Resource]Metric `json:"resources"`
}
