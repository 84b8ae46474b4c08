// internal/repository/postgres/assignment_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"medlink-service/internal/domain/assignment"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const assignmentColumns = `id, hospital_id, doctor_id, patient_id, slot_id, slot_carved, priority, status,
	COALESCE(notes, ''), expires_at, responded_at, cancelled_by, COALESCE(cancellation_reason, ''), cancelled_at,
	completed_at, COALESCE(treatment_notes, ''), created_at, updated_at`

type AssignmentRepository struct {
	db *pgxpool.Pool
}

func NewAssignmentRepository(db *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func scanAssignment(row pgx.Row) (*assignment.Assignment, error) {
	var a assignment.Assignment
	err := row.Scan(
		&a.ID, &a.HospitalID, &a.DoctorID, &a.PatientID, &a.SlotID, &a.SlotCarved, &a.Priority, &a.Status,
		&a.Notes, &a.ExpiresAt, &a.RespondedAt, &a.CancelledBy, &a.CancellationReason, &a.CancelledAt,
		&a.CompletedAt, &a.TreatmentNotes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAssignments(rows pgx.Rows) ([]assignment.Assignment, error) {
	defer rows.Close()
	items := []assignment.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

func (r *AssignmentRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	query := `
		INSERT INTO assignments (
			id, hospital_id, doctor_id, patient_id, slot_id, slot_carved, priority, status, notes, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		a.ID, a.HospitalID, a.DoctorID, a.PatientID, a.SlotID, a.SlotCarved, a.Priority, a.Status, a.Notes, a.ExpiresAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapError(err, "assignment")
	}
	return nil
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*assignment.Assignment, error) {
	a, err := scanAssignment(r.db.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "assignment")
	}
	return a, nil
}

func (r *AssignmentRepository) listBy(ctx context.Context, column, id string, filters *assignment.ListFilters) ([]assignment.Assignment, int64, error) {
	where := column + " = $1"
	args := []interface{}{id}
	if filters.Status != "" {
		where += " AND status = $2"
		args = append(args, filters.Status)
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM assignments WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assignments: %w", err)
	}

	limit, offset := pageBounds(filters.Page, filters.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		assignmentColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assignments: %w", err)
	}
	items, err := collectAssignments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *AssignmentRepository) ListByHospital(ctx context.Context, hospitalID string, filters *assignment.ListFilters) ([]assignment.Assignment, int64, error) {
	return r.listBy(ctx, "hospital_id", hospitalID, filters)
}

func (r *AssignmentRepository) ListByDoctor(ctx context.Context, doctorID string, filters *assignment.ListFilters) ([]assignment.Assignment, int64, error) {
	return r.listBy(ctx, "doctor_id", doctorID, filters)
}

func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, from, to assignment.Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE assignments SET status = $3, responded_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to, at)
	if err != nil {
		return mapError(err, "assignment")
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrConflict, fmt.Sprintf("assignment is no longer %s", from))
	}
	return nil
}

func (r *AssignmentRepository) Cancel(ctx context.Context, id string, from assignment.Status, by assignment.Party, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE assignments
		SET status = 'cancelled', cancelled_by = $3, cancellation_reason = NULLIF($4, ''), cancelled_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, by, reason, at)
	if err != nil {
		return mapError(err, "assignment")
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrConflict, fmt.Sprintf("assignment is no longer %s", from))
	}
	return nil
}

func (r *AssignmentRepository) Complete(ctx context.Context, id, treatmentNotes string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE assignments
		SET status = 'completed', treatment_notes = NULLIF($2, ''), completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'accepted'
	`, id, treatmentNotes, at)
	if err != nil {
		return mapError(err, "assignment")
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrConflict, "assignment is no longer accepted")
	}
	return nil
}

func (r *AssignmentRepository) ExpirePending(ctx context.Context, now time.Time) ([]assignment.Assignment, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE assignments SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING `+assignmentColumns, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire assignments: %w", err)
	}
	return collectAssignments(rows)
}
