// internal/repository/postgres/template_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"medlink-service/internal/domain/availability"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const templateColumns = `id, doctor_id, name, start_time, end_time, recurrence, recurrence_days,
	valid_from, valid_until, is_active, COALESCE(notes, ''), created_at, updated_at`

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *availability.Template) error {
	days := t.Weekdays
	if days == nil {
		days = []string{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO availability_templates (
			id, doctor_id, name, start_time, end_time, recurrence, recurrence_days,
			valid_from, valid_until, is_active, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		RETURNING created_at, updated_at
	`,
		t.ID, t.DoctorID, t.Name, clockToTime(t.StartTime), clockToTime(t.EndTime), t.Recurrence, days,
		t.ValidFrom, t.ValidUntil, t.IsActive, t.Notes,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return mapError(err, "availability template")
	}
	return nil
}

func (r *TemplateRepository) ListByDoctor(ctx context.Context, doctorID string) ([]availability.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return collectTemplates(rows)
}

func (r *TemplateRepository) ListActive(ctx context.Context, from, to time.Time) ([]availability.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE is_active AND valid_from <= $2 AND (valid_until IS NULL OR valid_until >= $1)
		ORDER BY doctor_id, start_time
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list active templates: %w", err)
	}
	return collectTemplates(rows)
}

func collectTemplates(rows pgx.Rows) ([]availability.Template, error) {
	defer rows.Close()
	templates := []availability.Template{}
	for rows.Next() {
		var (
			t          availability.Template
			start, end pgtype.Time
		)
		if err := rows.Scan(
			&t.ID, &t.DoctorID, &t.Name, &start, &end, &t.Recurrence, &t.Weekdays,
			&t.ValidFrom, &t.ValidUntil, &t.IsActive, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		t.StartTime = timeToClock(start)
		t.EndTime = timeToClock(end)
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
