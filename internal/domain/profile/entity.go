// Package profile holds the doctor and hospital accounts that own quotas,
// slots and assignments.
package profile

import "context"

type Doctor struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	FullName string `json:"full_name" db:"full_name"`
}

type Hospital struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`
}

type Repository interface {
	FindDoctor(ctx context.Context, id string) (*Doctor, error)
	FindHospital(ctx context.Context, id string) (*Hospital, error)
}
