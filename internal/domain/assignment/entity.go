package assignment

import (
	"context"
	"fmt"
	"time"

	xerrors "medlink-service/internal/pkg/errors"
)

var (
	ErrAssignmentNotFound = fmt.Errorf("assignment not found: %w", xerrors.ErrNotFound)
	ErrDoctorNotFound     = fmt.Errorf("doctor not found: %w", xerrors.ErrNotFound)
	ErrHospitalNotFound   = fmt.Errorf("hospital not found: %w", xerrors.ErrNotFound)
	ErrSlotNotOwned       = fmt.Errorf("slot does not belong to the requested doctor: %w", xerrors.ErrInvalidInput)
	ErrAssignmentExpired  = fmt.Errorf("assignment response window has passed: %w", xerrors.ErrInvalidTransition)
	ErrPatientNotFound    = fmt.Errorf("patient not found: %w", xerrors.ErrNotFound)
	ErrCancelTooLate      = fmt.Errorf("assignment starts inside the cancellation notice period: %w", xerrors.ErrInvalidTransition)
)

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityRoutine || p == PriorityUrgent || p == PriorityEmergency
}

// ResponseWindow is how long a doctor has to answer a request.
func (p Priority) ResponseWindow() time.Duration {
	switch p {
	case PriorityEmergency:
		return time.Hour
	case PriorityUrgent:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Party is one side of an assignment.
type Party string

const (
	PartyHospital Party = "hospital"
	PartyDoctor   Party = "doctor"
)

// Actor is the caller acting on an assignment, identified by its profile.
type Actor struct {
	Party Party
	ID    string
}

// Assignment is a hospital's request for a doctor in a booked slot.
type Assignment struct {
	ID                 string     `json:"id" db:"id"`
	HospitalID         string     `json:"hospital_id" db:"hospital_id"`
	DoctorID           string     `json:"doctor_id" db:"doctor_id"`
	PatientID          *string    `json:"patient_id,omitempty" db:"patient_id"`
	SlotID             string     `json:"slot_id" db:"slot_id"`
	SlotCarved         bool       `json:"slot_carved" db:"slot_carved"`
	Priority           Priority   `json:"priority" db:"priority"`
	Status             Status     `json:"status" db:"status"`
	Notes              string     `json:"notes,omitempty" db:"notes"`
	ExpiresAt          time.Time  `json:"expires_at" db:"expires_at"`
	RespondedAt        *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	CancelledBy        *Party     `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason string     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	TreatmentNotes     string     `json:"treatment_notes,omitempty" db:"treatment_notes"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// InvolvedAs reports whether actor is the hospital or doctor on a.
func (a *Assignment) InvolvedAs(actor Actor) bool {
	switch actor.Party {
	case PartyHospital:
		return a.HospitalID == actor.ID
	case PartyDoctor:
		return a.DoctorID == actor.ID
	}
	return false
}

// Cancellable reports whether the assignment still holds doctor time.
func (a *Assignment) Cancellable() bool {
	return a.Status == StatusPending || a.Status == StatusAccepted
}

type CreateAssignmentRequest struct {
	DoctorID  string   `json:"doctor_id" binding:"required,uuid"`
	PatientID *string  `json:"patient_id" binding:"omitempty,uuid"`
	SlotID    string   `json:"slot_id" binding:"required,uuid"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Priority  Priority `json:"priority" binding:"omitempty,oneof=routine urgent emergency"`
	Notes     string   `json:"notes" binding:"max=1000"`
}

type CancelAssignmentRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

type CompleteAssignmentRequest struct {
	TreatmentNotes string `json:"treatment_notes" binding:"max=2000"`
}

type ListFilters struct {
	Status   Status `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type ListResponse struct {
	Assignments []Assignment `json:"assignments"`
	Total       int64        `json:"total"`
	Page        int          `json:"page"`
	PageSize    int          `json:"page_size"`
	TotalPages  int          `json:"total_pages"`
}

type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	FindByID(ctx context.Context, id string) (*Assignment, error)
	ListByHospital(ctx context.Context, hospitalID string, filters *ListFilters) ([]Assignment, int64, error)
	ListByDoctor(ctx context.Context, doctorID string, filters *ListFilters) ([]Assignment, int64, error)
	// UpdateStatus moves the assignment from -> to, failing with
	// xerrors.ErrConflict when it is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	// Cancel moves the assignment from -> cancelled, failing with
	// xerrors.ErrConflict when it is no longer in from.
	Cancel(ctx context.Context, id string, from Status, by Party, reason string, at time.Time) error
	// Complete closes an accepted assignment.
	Complete(ctx context.Context, id, treatmentNotes string, at time.Time) error
	// ExpirePending flips overdue pending rows to expired and returns them.
	ExpirePending(ctx context.Context, now time.Time) ([]Assignment, error)
}
