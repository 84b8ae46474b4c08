package availability

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	xerrors "medlink-service/internal/pkg/errors"
)

type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	// RecurrenceCustom repeats on hand-picked weekdays like weekly.
	RecurrenceCustom Recurrence = "custom"
)

var ErrInvalidTemplate = fmt.Errorf("invalid availability template: %w", xerrors.ErrInvalidInput)

// weekdayNames maps time.Weekday to the short names stored in templates.
var weekdayNames = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// Template is a recurring availability window. The generator turns it
// into parent slots a few days ahead.
type Template struct {
	ID         string     `json:"id" db:"id"`
	DoctorID   string     `json:"doctor_id" db:"doctor_id"`
	Name       string     `json:"name" db:"name"`
	StartTime  Clock      `json:"start_time" db:"start_time"`
	EndTime    Clock      `json:"end_time" db:"end_time"`
	Recurrence Recurrence `json:"recurrence" db:"recurrence"`
	Weekdays   []string   `json:"recurrence_days" db:"recurrence_days"`
	ValidFrom  time.Time  `json:"valid_from" db:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	Notes      string     `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (t *Template) Window() Window {
	return Window{Start: t.StartTime, End: t.EndTime}
}

// OccursOn reports whether the template yields a window on date.
// Monthly templates repeat on ValidFrom's day of month.
func (t *Template) OccursOn(date time.Time) bool {
	d := dateOf(date)
	if !t.IsActive || d.Before(dateOf(t.ValidFrom)) {
		return false
	}
	if t.ValidUntil != nil && d.After(dateOf(*t.ValidUntil)) {
		return false
	}

	switch t.Recurrence {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly, RecurrenceCustom:
		return slices.Contains(t.Weekdays, weekdayNames[d.Weekday()])
	case RecurrenceMonthly:
		return d.Day() == t.ValidFrom.Day()
	}
	return false
}

// Validate checks the template and lower-cases its weekday names.
func (t *Template) Validate() error {
	if !t.Window().Valid() {
		return ErrInvalidWindow
	}
	switch t.Recurrence {
	case RecurrenceDaily, RecurrenceMonthly:
		t.Weekdays = nil
	case RecurrenceWeekly, RecurrenceCustom:
		if len(t.Weekdays) == 0 {
			return fmt.Errorf("%s recurrence needs at least one weekday: %w", t.Recurrence, ErrInvalidTemplate)
		}
		for i, day := range t.Weekdays {
			day = strings.ToLower(strings.TrimSpace(day))
			if !slices.Contains(weekdayNames[:], day) {
				return fmt.Errorf("unknown weekday %q: %w", day, ErrInvalidTemplate)
			}
			t.Weekdays[i] = day
		}
	default:
		return fmt.Errorf("unknown recurrence %q: %w", t.Recurrence, ErrInvalidTemplate)
	}
	if t.ValidUntil != nil && t.ValidUntil.Before(t.ValidFrom) {
		return fmt.Errorf("valid_until is before valid_from: %w", ErrInvalidTemplate)
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type CreateTemplateRequest struct {
	Name       string   `json:"name" binding:"required,max=120"`
	StartTime  string   `json:"start_time" binding:"required"`
	EndTime    string   `json:"end_time" binding:"required"`
	Recurrence string   `json:"recurrence" binding:"required,oneof=daily weekly monthly custom"`
	Weekdays   []string `json:"recurrence_days"`
	ValidFrom  string   `json:"valid_from" binding:"required"`
	ValidUntil string   `json:"valid_until"`
	Notes      string   `json:"notes" binding:"max=500"`
}

// TemplateOutcome is what one template produced in a generation run.
type TemplateOutcome struct {
	TemplateID string `json:"template_id"`
	DoctorID   string `json:"doctor_id"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
}

// GenerationSummary reports a generation run over [From, To].
type GenerationSummary struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Templates int               `json:"templates_processed"`
	Created   int               `json:"slots_created"`
	Skipped   int               `json:"slots_skipped"`
	Outcomes  []TemplateOutcome `json:"outcomes"`
}

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	ListByDoctor(ctx context.Context, doctorID string) ([]Template, error)
	// ListActive returns active templates whose validity overlaps [from, to].
	ListActive(ctx context.Context, from, to time.Time) ([]Template, error)
}
