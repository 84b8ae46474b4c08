package availability

import (
	"testing"

	xerrors "medlink-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func parentSlot(start, end string) *Slot {
	return &Slot{ID: "parent", StartTime: MustClock(start), EndTime: MustClock(end), Status: StatusAvailable}
}

func subSlot(id, start, end string, status Status) Slot {
	return Slot{ID: id, ParentSlotID: strPtr("parent"), StartTime: MustClock(start), EndTime: MustClock(end), Status: status}
}

func win(start, end string) Window {
	return Window{Start: MustClock(start), End: MustClock(end)}
}

func TestValidateCarveMorningScenario(t *testing.T) {
	parent := parentSlot("09:00", "12:00")
	siblings := []Slot{subSlot("a", "09:00", "10:00", StatusBooked)}

	err := ValidateCarve(parent, siblings, win("09:30", "10:30"))
	var rangeErr *xerrors.SlotRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, xerrors.RangeOverlap, rangeErr.Kind)
	assert.Equal(t, "09:00-10:00", rangeErr.Conflicting)
	assert.Equal(t, "a", rangeErr.ConflictingSlot)

	assert.NoError(t, ValidateCarve(parent, siblings, win("10:00", "11:00")))
}

func TestValidateCarveContainmentAndOverlapRule(t *testing.T) {
	parent := parentSlot("09:00", "12:00")
	siblings := []Slot{
		subSlot("a", "09:00", "10:00", StatusBooked),
		subSlot("b", "11:00", "11:30", StatusBooked),
	}

	// succeeds iff Ps<=Rs, Re<=Pe and no sibling has Es<Re and Ee>Rs
	for rs := MustClock("08:00"); rs <= MustClock("12:30"); rs += 15 {
		for re := rs + 15; re <= MustClock("13:00"); re += 15 {
			req := Window{Start: rs, End: re}
			contained := parent.StartTime <= rs && re <= parent.EndTime
			overlaps := false
			for _, s := range siblings {
				if s.StartTime < re && s.EndTime > rs {
					overlaps = true
				}
			}

			err := ValidateCarve(parent, siblings, req)
			if contained && !overlaps {
				assert.NoError(t, err, req.String())
			} else {
				assert.Error(t, err, req.String())
			}
		}
	}
}

func TestValidateCarveOutOfBounds(t *testing.T) {
	parent := parentSlot("09:00", "12:00")

	err := ValidateCarve(parent, nil, win("08:30", "09:30"))
	assert.ErrorIs(t, err, xerrors.ErrUnprocessable)

	err = ValidateCarve(parent, nil, win("10:00", "10:00"))
	assert.ErrorIs(t, err, xerrors.ErrUnprocessable)
}

func TestValidateCarveRejectsSubSlotAsParent(t *testing.T) {
	child := subSlot("x", "09:00", "10:00", StatusBooked)
	assert.ErrorIs(t, ValidateCarve(&child, nil, win("09:00", "09:30")), ErrParentNotFound)
	assert.ErrorIs(t, ValidateCarve(nil, nil, win("09:00", "09:30")), ErrParentNotFound)
}

func TestValidateCarveIgnoresCancelledSiblings(t *testing.T) {
	parent := parentSlot("09:00", "12:00")
	siblings := []Slot{subSlot("a", "09:00", "10:00", StatusCancelled)}
	assert.NoError(t, ValidateCarve(parent, siblings, win("09:00", "10:00")))
}

func TestValidateBooking(t *testing.T) {
	assert.ErrorIs(t, ValidateBooking(nil), ErrSlotNotFound)
	assert.ErrorIs(t, ValidateBooking(parentSlot("09:00", "10:00")), ErrCannotBookParent)

	booked := subSlot("a", "09:00", "10:00", StatusBooked)
	assert.ErrorIs(t, ValidateBooking(&booked), ErrSlotUnavailable)

	open := subSlot("b", "10:00", "11:00", StatusAvailable)
	assert.NoError(t, ValidateBooking(&open))
}

func TestFreeRanges(t *testing.T) {
	parent := parentSlot("09:00", "12:00")
	subs := []Slot{
		subSlot("b", "11:00", "11:30", StatusBooked),
		subSlot("a", "09:00", "10:00", StatusBooked),
		subSlot("c", "10:00", "10:30", StatusCancelled),
	}

	free := FreeRanges(parent, subs)
	require.Len(t, free, 2)
	assert.Equal(t, "10:00-11:00", free[0].String())
	assert.Equal(t, "11:30-12:00", free[1].String())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30:00")
	require.NoError(t, err)
	assert.Equal(t, "09:30", c.String())

	for _, bad := range []string{"9", "25:00", "10:75", "ab:cd", "24:30"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
