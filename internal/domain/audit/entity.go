package audit

import (
	"context"
	"time"
)

// Actions written by the service.
const (
	ActionSubscriptionActivated  = "subscription.activated"
	ActionSubscriptionCancelled  = "subscription.cancelled"
	ActionSubscriptionSuspended  = "subscription.suspended"
	ActionSubscriptionReactivate = "subscription.reactivated"
	ActionSubscriptionExpired    = "subscription.expired"
	ActionPlanChangeScheduled    = "subscription.plan_change_scheduled"
	ActionPaymentVerified        = "payment.verified"
	ActionSubscriptionJobFailed  = "payment.subscription_job_failed"
	ActionAssignmentCreated      = "assignment.created"
	ActionAssignmentResponded    = "assignment.responded"
	ActionAssignmentCancelled    = "assignment.cancelled"
	ActionAssignmentCompleted    = "assignment.completed"
	ActionPatientCreated         = "patient.created"
)

type Entry struct {
	ID         string                 `json:"id" db:"id"`
	Action     string                 `json:"action" db:"action"`
	EntityType string                 `json:"entity_type" db:"entity_type"`
	EntityID   string                 `json:"entity_id" db:"entity_id"`
	Changes    map[string]interface{} `json:"changes,omitempty" db:"changes"`
	ActorID    *string                `json:"actor_id,omitempty" db:"actor_id"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, e *Entry) error
}
