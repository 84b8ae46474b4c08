package usage

import (
	"fmt"
	"time"

	"medlink-service/internal/domain/plan"
)

type EntityType string

const (
	EntityDoctor   EntityType = "doctor"
	EntityHospital EntityType = "hospital"
)

// Role maps the entity onto the plan audience it buys from.
func (e EntityType) Role() plan.Role {
	if e == EntityDoctor {
		return plan.RoleDoctor
	}
	return plan.RoleHospital
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	return e == EntityDoctor || e == EntityHospital
}

// Resource is a quota-consuming action kind.
type Resource string

const (
	ResourcePatients    Resource = "patients"
	ResourceAssignments Resource = "assignments"
)

// Resources lists the quotas tracked for an entity type.
func (e EntityType) Resources() []Resource {
	if e == EntityHospital {
		return []Resource{ResourcePatients, ResourceAssignments}
	}
	return []Resource{ResourceAssignments}
}

// Tracks reports whether r is metered for entity type e.
func (e EntityType) Tracks(r Resource) bool {
	for _, res := range e.Resources() {
		if res == r {
			return true
		}
	}
	return false
}

// Key identifies one monthly counter.
type Key struct {
	EntityID   string
	EntityType EntityType
	Resource   Resource
	Month      string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.EntityType, k.EntityID, k.Resource, k.Month)
}

// MonthKey formats t as the "YYYY-MM" bucket it falls into (UTC).
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ResetDate is midnight UTC on the first day of the month after t.
func ResetDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// KeyAt builds the counter key for the month containing now.
func KeyAt(entityID string, et EntityType, r Resource, now time.Time) Key {
	return Key{EntityID: entityID, EntityType: et, Resource: r, Month: MonthKey(now)}
}

// Record is a persisted monthly counter.
type Record struct {
	ID         string     `json:"id" db:"id"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	Resource   Resource   `json:"resource" db:"resource"`
	Month      string     `json:"month" db:"month"`
	CountUsed  int        `json:"count_used" db:"count_used"`
	LimitCount int        `json:"limit_count" db:"limit_count"`
	ResetDate  time.Time  `json:"reset_date" db:"reset_date"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Key returns the counter key of r.
func (r *Record) Key() Key {
	return Key{EntityID: r.EntityID, EntityType: r.EntityType, Resource: r.Resource, Month: r.Month}
}

// Exhausted reports whether no further consumption fits under the limit.
func (r *Record) Exhausted() bool {
	return r.LimitCount != plan.Unlimited && r.CountUsed >= r.LimitCount
}

// Entitlement is the plan an entity currently consumes against.
type Entitlement struct {
	SubscriptionID string
	PlanID         string
	PlanName       string
	Tier           plan.Tier
	Features       *plan.Features
}
