// internal/repository/postgres/slot_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"medlink-service/internal/domain/availability"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, doctor_id, slot_date, start_time, end_time, parent_slot_id, status,
	booked_by_hospital_id, booked_at, is_manual, template_id, COALESCE(notes, ''), created_at, updated_at`

type SlotRepository struct {
	db Querier
}

func NewSlotRepository(db *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{db: db}
}

// InTx binds a copy of the repository to one transaction.
func (r *SlotRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo availability.Repository) error) error {
	return inTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &SlotRepository{db: tx})
	})
}

func clockToTime(c availability.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func timeToClock(t pgtype.Time) availability.Clock {
	return availability.Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func scanSlot(row pgx.Row) (*availability.Slot, error) {
	var (
		s          availability.Slot
		start, end pgtype.Time
	)
	err := row.Scan(
		&s.ID, &s.DoctorID, &s.SlotDate, &start, &end, &s.ParentSlotID, &s.Status,
		&s.BookedByHospitalID, &s.BookedAt, &s.IsManual, &s.TemplateID, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.StartTime = timeToClock(start)
	s.EndTime = timeToClock(end)
	return &s, nil
}

func (r *SlotRepository) collect(rows pgx.Rows) ([]availability.Slot, error) {
	defer rows.Close()
	slots := []availability.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

func (r *SlotRepository) insert(ctx context.Context, s *availability.Slot) error {
	query := `
		INSERT INTO availability_slots (
			id, doctor_id, slot_date, start_time, end_time, parent_slot_id, status,
			booked_by_hospital_id, booked_at, is_manual, template_id, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		s.ID, s.DoctorID, s.SlotDate, clockToTime(s.StartTime), clockToTime(s.EndTime), s.ParentSlotID, s.Status,
		s.BookedByHospitalID, s.BookedAt, s.IsManual, s.TemplateID, s.Notes,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return err
}

func (r *SlotRepository) CreateParent(ctx context.Context, s *availability.Slot) error {
	if err := r.insert(ctx, s); err != nil {
		return mapError(err, "availability slot")
	}
	return nil
}

// InsertSubSlot relies on the partial unique index over live sub-slots as
// a second guard behind the parent row lock.
func (r *SlotRepository) InsertSubSlot(ctx context.Context, s *availability.Slot) error {
	err := r.insert(ctx, s)
	if err == nil {
		return nil
	}
	mapped := mapError(err, "sub-slot")
	if xerrors.Is(mapped, xerrors.ErrConflict) {
		return &xerrors.SlotRangeError{
			Kind:        xerrors.RangeOverlap,
			Requested:   s.Window().String(),
			Conflicting: s.Window().String(),
		}
	}
	return mapped
}

func (r *SlotRepository) FindByID(ctx context.Context, id string) (*availability.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots WHERE id = $1`

	s, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "slot")
	}
	return s, nil
}

func (r *SlotRepository) LockByID(ctx context.Context, id string) (*availability.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots WHERE id = $1 FOR UPDATE`

	s, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "slot")
	}
	return s, nil
}

func (r *SlotRepository) ListSubSlots(ctx context.Context, parentID string) ([]availability.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE parent_slot_id = $1
		ORDER BY start_time, created_at`

	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-slots: %w", err)
	}
	return r.collect(rows)
}

func (r *SlotRepository) ListParentsOnDate(ctx context.Context, doctorID string, date time.Time) ([]availability.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE doctor_id = $1 AND slot_date = $2 AND parent_slot_id IS NULL
		ORDER BY start_time`

	rows, err := r.db.Query(ctx, query, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	return r.collect(rows)
}

func (r *SlotRepository) ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]availability.Slot, error) {
	query := `SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE doctor_id = $1 AND slot_date BETWEEN $2 AND $3
		ORDER BY slot_date, start_time, parent_slot_id NULLS FIRST`

	rows, err := r.db.Query(ctx, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return r.collect(rows)
}

func (r *SlotRepository) UpdateBooking(ctx context.Context, id string, status availability.Status, bookedBy *string, bookedAt *time.Time) error {
	query := `
		UPDATE availability_slots
		SET status = $2, booked_by_hospital_id = $3, booked_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, bookedBy, bookedAt)
	if err != nil {
		return mapError(err, "slot")
	}
	if tag.RowsAffected() == 0 {
		return availability.ErrSlotNotFound
	}
	return nil
}
