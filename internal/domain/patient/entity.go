package patient

import (
	"context"
	"time"
)

type Patient struct {
	ID          string     `json:"id" db:"id"`
	HospitalID  string     `json:"hospital_id" db:"hospital_id"`
	FullName    string     `json:"full_name" db:"full_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender      string     `json:"gender,omitempty" db:"gender"`
	Phone       string     `json:"phone,omitempty" db:"phone"`
	Notes       string     `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type CreatePatientRequest struct {
	FullName    string `json:"full_name" binding:"required,max=255"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender" binding:"omitempty,oneof=male female other"`
	Phone       string `json:"phone" binding:"max=32"`
	Notes       string `json:"notes" binding:"max=2000"`
}

type ListResponse struct {
	Patients   []Patient `json:"patients"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	FindByID(ctx context.Context, id string) (*Patient, error)
	ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]Patient, int64, error)
}
