package availability

import (
	"sort"

	xerrors "medlink-service/internal/pkg/errors"
)

// ValidateCarve checks that requested can be cut from parent given the
// parent's existing sub-slots. Cancelled siblings no longer hold time.
func ValidateCarve(parent *Slot, siblings []Slot, requested Window) error {
	if parent == nil || !parent.IsParent() {
		return ErrParentNotFound
	}

	bounds := parent.Window()
	if !requested.Valid() || !bounds.Contains(requested) {
		return &xerrors.SlotRangeError{
			Kind:        xerrors.RangeOutOfBounds,
			Requested:   requested.String(),
			Conflicting: bounds.String(),
		}
	}

	for i := range siblings {
		sib := &siblings[i]
		if !sib.Occupies() {
			continue
		}
		if sib.Window().Overlaps(requested) {
			return &xerrors.SlotRangeError{
				Kind:            xerrors.RangeOverlap,
				Requested:       requested.String(),
				Conflicting:     sib.Window().String(),
				ConflictingSlot: sib.ID,
			}
		}
	}
	return nil
}

// ValidateBooking checks that slot is a free sub-slot.
func ValidateBooking(slot *Slot) error {
	if slot == nil {
		return ErrSlotNotFound
	}
	if slot.IsParent() {
		return ErrCannotBookParent
	}
	if slot.Status != StatusAvailable {
		return ErrSlotUnavailable
	}
	return nil
}

// FreeRanges returns the gaps in parent not covered by occupying sub-slots.
func FreeRanges(parent *Slot, subSlots []Slot) []Window {
	taken := make([]Window, 0, len(subSlots))
	for i := range subSlots {
		if subSlots[i].Occupies() {
			taken = append(taken, subSlots[i].Window())
		}
	}
	sort.Slice(taken, func(i, j int) bool { return taken[i].Start < taken[j].Start })

	var free []Window
	cursor := parent.StartTime
	for _, w := range taken {
		if w.Start > cursor {
			free = append(free, Window{Start: cursor, End: w.Start})
		}
		if w.End > cursor {
			cursor = w.End
		}
	}
	if cursor < parent.EndTime {
		free = append(free, Window{Start: cursor, End: parent.EndTime})
	}
	return free
}
