package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTemplateOccursOn(t *testing.T) {
	until := day("2024-06-30")
	tests := []struct {
		name string
		tpl  Template
		date string
		want bool
	}{
		{"daily inside range", Template{Recurrence: RecurrenceDaily, ValidFrom: day("2024-03-01")}, "2024-03-09", true},
		{"before valid_from", Template{Recurrence: RecurrenceDaily, ValidFrom: day("2024-03-01")}, "2024-02-29", false},
		{"after valid_until", Template{Recurrence: RecurrenceDaily, ValidFrom: day("2024-03-01"), ValidUntil: &until}, "2024-07-01", false},
		{"on valid_until", Template{Recurrence: RecurrenceDaily, ValidFrom: day("2024-03-01"), ValidUntil: &until}, "2024-06-30", true},
		{"weekly match", Template{Recurrence: RecurrenceWeekly, Weekdays: []string{"mon", "fri"}, ValidFrom: day("2024-03-01")}, "2024-03-15", true},
		{"weekly miss", Template{Recurrence: RecurrenceWeekly, Weekdays: []string{"mon", "fri"}, ValidFrom: day("2024-03-01")}, "2024-03-16", false},
		{"custom acts weekly", Template{Recurrence: RecurrenceCustom, Weekdays: []string{"sun"}, ValidFrom: day("2024-03-01")}, "2024-03-17", true},
		{"monthly same day", Template{Recurrence: RecurrenceMonthly, ValidFrom: day("2024-01-20")}, "2024-04-20", true},
		{"monthly other day", Template{Recurrence: RecurrenceMonthly, ValidFrom: day("2024-01-20")}, "2024-04-21", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tpl.IsActive = true
			assert.Equal(t, tt.want, tt.tpl.OccursOn(day(tt.date)))
		})
	}
}

func TestInactiveTemplateNeverOccurs(t *testing.T) {
	tpl := Template{Recurrence: RecurrenceDaily, ValidFrom: day("2024-03-01")}
	assert.False(t, tpl.OccursOn(day("2024-03-02")))
}

func TestTemplateValidate(t *testing.T) {
	base := func() Template {
		return Template{StartTime: MustClock("09:00"), EndTime: MustClock("12:00"), ValidFrom: day("2024-03-01")}
	}

	weekly := base()
	weekly.Recurrence = RecurrenceWeekly
	weekly.Weekdays = []string{" Tue ", "THU"}
	require.NoError(t, weekly.Validate())
	assert.Equal(t, []string{"tue", "thu"}, weekly.Weekdays)

	daily := base()
	daily.Recurrence = RecurrenceDaily
	daily.Weekdays = []string{"mon"}
	require.NoError(t, daily.Validate())
	assert.Nil(t, daily.Weekdays)

	unknownDay := base()
	unknownDay.Recurrence = RecurrenceCustom
	unknownDay.Weekdays = []string{"funday"}
	assert.ErrorIs(t, unknownDay.Validate(), ErrInvalidTemplate)

	unknown := base()
	unknown.Recurrence = "yearly"
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidTemplate)

	reversed := base()
	reversed.Recurrence = RecurrenceDaily
	before := day("2024-02-01")
	reversed.ValidUntil = &before
	assert.ErrorIs(t, reversed.Validate(), ErrInvalidTemplate)
}

func TestSlotStartsAt(t *testing.T) {
	s := Slot{SlotDate: day("2024-05-10"), StartTime: MustClock("09:30")}
	assert.Equal(t, time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC), s.StartsAt())
}
