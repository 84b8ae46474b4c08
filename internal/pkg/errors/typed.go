package xerrors

import (
	"fmt"
	"time"
)

// LimitReachedError is returned when a monthly quota is exhausted.
type LimitReachedError struct {
	EntityType string
	EntityID   string
	Resource   string
	Used       int
	Limit      int
	ResetDate  time.Time
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("%s %s limit reached (%d/%d), resets %s",
		e.EntityType, e.Resource, e.Used, e.Limit, e.ResetDate.Format("2006-01-02"))
}

func (e *LimitReachedError) Unwrap() error { return ErrLimitReached }

func (e *LimitReachedError) Details() map[string]interface{} {
	return map[string]interface{}{
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"resource":    e.Resource,
		"used":        e.Used,
		"limit":       e.Limit,
		"reset_date":  e.ResetDate,
	}
}

// RangeErrorKind distinguishes invalid time range failures.
type RangeErrorKind string

const (
	RangeOutOfBounds RangeErrorKind = "out_of_bounds"
	RangeOverlap     RangeErrorKind = "overlap"
)

// SlotRangeError reports a requested window that cannot be carved.
// Conflicting holds the parent window for out_of_bounds and the
// colliding sibling for overlap.
type SlotRangeError struct {
	Kind            RangeErrorKind
	Requested       string
	Conflicting     string
	ConflictingSlot string
}

func (e *SlotRangeError) Error() string {
	if e.Kind == RangeOverlap {
		return fmt.Sprintf("requested %s overlaps booked slot %s", e.Requested, e.Conflicting)
	}
	return fmt.Sprintf("requested %s is outside parent window %s", e.Requested, e.Conflicting)
}

func (e *SlotRangeError) Unwrap() error {
	if e.Kind == RangeOverlap {
		return ErrConflict
	}
	return ErrUnprocessable
}

func (e *SlotRangeError) Details() map[string]interface{} {
	d := map[string]interface{}{
		"kind":        e.Kind,
		"requested":   e.Requested,
		"conflicting": e.Conflicting,
	}
	if e.ConflictingSlot != "" {
		d["conflicting_slot_id"] = e.ConflictingSlot
	}
	return d
}
