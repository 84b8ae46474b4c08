package availability

import (
	"fmt"
	"time"

	xerrors "medlink-service/internal/pkg/errors"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

var (
	ErrParentNotFound   = fmt.Errorf("parent slot not found: %w", xerrors.ErrNotFound)
	ErrSlotNotFound     = fmt.Errorf("slot not found: %w", xerrors.ErrNotFound)
	ErrCannotBookParent = fmt.Errorf("parent slots cannot be booked directly, request a sub-slot: %w", xerrors.ErrInvalidInput)
	ErrSlotUnavailable  = fmt.Errorf("slot is not available: %w", xerrors.ErrConflict)
	ErrParentOverlap    = fmt.Errorf("availability overlaps an existing window: %w", xerrors.ErrConflict)
	ErrInvalidWindow    = fmt.Errorf("start time must be before end time: %w", xerrors.ErrInvalidInput)
)

// Slot is a doctor's availability window. Parent slots (ParentSlotID nil)
// are the declared windows; sub-slots are the booked pieces carved from
// them. Parents generated from a recurring Template carry its ID.
type Slot struct {
	ID                 string     `json:"id" db:"id"`
	DoctorID           string     `json:"doctor_id" db:"doctor_id"`
	SlotDate           time.Time  `json:"slot_date" db:"slot_date"`
	StartTime          Clock      `json:"start_time" db:"start_time"`
	EndTime            Clock      `json:"end_time" db:"end_time"`
	ParentSlotID       *string    `json:"parent_slot_id,omitempty" db:"parent_slot_id"`
	Status             Status     `json:"status" db:"status"`
	BookedByHospitalID *string    `json:"booked_by_hospital_id,omitempty" db:"booked_by_hospital_id"`
	BookedAt           *time.Time `json:"booked_at,omitempty" db:"booked_at"`
	IsManual           bool       `json:"is_manual" db:"is_manual"`
	TemplateID         *string    `json:"template_id,omitempty" db:"template_id"`
	Notes              string     `json:"notes,omitempty" db:"notes"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// IsParent reports whether s is a declared window rather than a carved piece.
func (s *Slot) IsParent() bool {
	return s.ParentSlotID == nil
}

// Window returns the slot's time range.
func (s *Slot) Window() Window {
	return Window{Start: s.StartTime, End: s.EndTime}
}

// Occupies reports whether the sub-slot still holds its time range.
func (s *Slot) Occupies() bool {
	return s.Status != StatusCancelled
}

// StartsAt is the slot's start instant. Slot dates and times are UTC.
func (s *Slot) StartsAt() time.Time {
	d := s.SlotDate
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Add(time.Duration(s.StartTime) * time.Minute)
}

// DateString formats the slot date as YYYY-MM-DD.
func (s *Slot) DateString() string {
	return s.SlotDate.Format(DateLayout)
}

// DateLayout is the wire format of slot dates.
const DateLayout = "2006-01-02"
