// internal/repository/postgres/patient_repo.go
package postgres

import (
	"context"
	"fmt"

	"medlink-service/internal/domain/patient"
	"medlink-service/internal/domain/profile"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PatientRepository struct {
	db *pgxpool.Pool
}

func NewPatientRepository(db *pgxpool.Pool) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	query := `
		INSERT INTO patients (id, hospital_id, full_name, date_of_birth, gender, phone, notes)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.HospitalID, p.FullName, p.DateOfBirth, p.Gender, p.Phone, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapError(err, "patient")
	}
	return nil
}

func (r *PatientRepository) FindByID(ctx context.Context, id string) (*patient.Patient, error) {
	query := `
		SELECT id, hospital_id, full_name, date_of_birth, COALESCE(gender, ''), COALESCE(phone, ''),
			COALESCE(notes, ''), created_at, updated_at
		FROM patients
		WHERE id = $1
	`
	var p patient.Patient
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.HospitalID, &p.FullName, &p.DateOfBirth, &p.Gender, &p.Phone,
		&p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "patient")
	}
	return &p, nil
}

func (r *PatientRepository) ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]patient.Patient, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE hospital_id = $1`, hospitalID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, hospital_id, full_name, date_of_birth, COALESCE(gender, ''), COALESCE(phone, ''),
			COALESCE(notes, ''), created_at, updated_at
		FROM patients
		WHERE hospital_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	patients := []patient.Patient{}
	for rows.Next() {
		var p patient.Patient
		if err := rows.Scan(
			&p.ID, &p.HospitalID, &p.FullName, &p.DateOfBirth, &p.Gender, &p.Phone,
			&p.Notes, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

// ProfileRepository reads the doctor and hospital profiles that own
// quotas and slots. Profiles are managed elsewhere.
type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindDoctor(ctx context.Context, id string) (*profile.Doctor, error) {
	var d profile.Doctor
	err := r.db.QueryRow(ctx, `SELECT id, user_id, full_name FROM doctors WHERE id = $1`, id).
		Scan(&d.ID, &d.UserID, &d.FullName)
	if err != nil {
		return nil, mapError(err, "doctor")
	}
	return &d, nil
}

func (r *ProfileRepository) FindHospital(ctx context.Context, id string) (*profile.Hospital, error) {
	var h profile.Hospital
	err := r.db.QueryRow(ctx, `SELECT id, user_id, name FROM hospitals WHERE id = $1`, id).
		Scan(&h.ID, &h.UserID, &h.Name)
	if err != nil {
		return nil, mapError(err, "hospital")
	}
	return &h, nil
}

