package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/availability"
	"medlink-service/internal/metrics"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateTemplate registers a recurring availability window for doctorID.
func (c *Carver) CreateTemplate(ctx context.Context, doctorID string, req *availability.CreateTemplateRequest) (*availability.Template, error) {
	window, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	from, err := time.Parse(availability.DateLayout, req.ValidFrom)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "valid_from must be YYYY-MM-DD")
	}
	var until *time.Time
	if req.ValidUntil != "" {
		u, err := time.Parse(availability.DateLayout, req.ValidUntil)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "valid_until must be YYYY-MM-DD")
		}
		until = &u
	}

	t := &availability.Template{
		ID:         uuid.NewString(),
		DoctorID:   doctorID,
		Name:       req.Name,
		StartTime:  window.Start,
		EndTime:    window.End,
		Recurrence: availability.Recurrence(req.Recurrence),
		Weekdays:   append([]string(nil), req.Weekdays...),
		ValidFrom:  from,
		ValidUntil: until,
		IsActive:   true,
		Notes:      req.Notes,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := c.templates.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	c.logger.Info("availability template created",
		zap.String("template_id", t.ID),
		zap.String("doctor_id", doctorID),
		zap.String("recurrence", string(t.Recurrence)),
		zap.String("window", window.String()),
	)
	return t, nil
}

func (c *Carver) ListTemplates(ctx context.Context, doctorID string) ([]availability.Template, error) {
	return c.templates.ListByDoctor(ctx, doctorID)
}

// GenerateFromTemplates creates parent slots for every active template
// occurrence in the days days starting at start. Occurrences that overlap
// existing availability are skipped, so repeated runs are idempotent. A
// template that fails does not stop the others.
func (c *Carver) GenerateFromTemplates(ctx context.Context, start time.Time, days int) (*availability.GenerationSummary, error) {
	if days < 1 {
		days = 1
	}
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, days-1)

	templates, err := c.templates.ListActive(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	summary := &availability.GenerationSummary{
		From:      from.Format(availability.DateLayout),
		To:        to.Format(availability.DateLayout),
		Templates: len(templates),
		Outcomes:  make([]availability.TemplateOutcome, 0, len(templates)),
	}
	var errs []error
	for i := range templates {
		out, err := c.generate(ctx, &templates[i], from, to)
		summary.Created += out.Created
		summary.Skipped += out.Skipped
		summary.Outcomes = append(summary.Outcomes, out)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if summary.Created > 0 {
		c.logger.Info("availability generated from templates",
			zap.String("from", summary.From),
			zap.String("to", summary.To),
			zap.Int("templates", summary.Templates),
			zap.Int("created", summary.Created),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary, errors.Join(errs...)
}

func (c *Carver) generate(ctx context.Context, t *availability.Template, from, to time.Time) (availability.TemplateOutcome, error) {
	out := availability.TemplateOutcome{TemplateID: t.ID, DoctorID: t.DoctorID}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !t.OccursOn(day) {
			continue
		}
		templateID := t.ID
		slot := &availability.Slot{
			ID:         uuid.NewString(),
			DoctorID:   t.DoctorID,
			SlotDate:   day,
			StartTime:  t.StartTime,
			EndTime:    t.EndTime,
			Status:     availability.StatusAvailable,
			TemplateID: &templateID,
			Notes:      "Generated from template " + t.Name,
		}

		err := c.createParent(ctx, slot)
		switch {
		case err == nil:
			out.Created++
			metrics.GeneratedSlots.WithLabelValues("created").Inc()
		case xerrors.Is(err, xerrors.ErrConflict):
			out.Skipped++
			metrics.GeneratedSlots.WithLabelValues("skipped").Inc()
		default:
			c.logger.Error("template occurrence failed",
				zap.String("template_id", t.ID),
				zap.String("date", day.Format(availability.DateLayout)),
				zap.Error(err),
			)
			return out, fmt.Errorf("template %s on %s: %w", t.ID, day.Format(availability.DateLayout), err)
		}
	}
	return out, nil
}
