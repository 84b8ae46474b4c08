package availability

import (
	"context"
	"time"
)

type Repository interface {
	// InTx runs fn inside one transaction; repo is bound to it.
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CreateParent(ctx context.Context, slot *Slot) error
	FindByID(ctx context.Context, id string) (*Slot, error)
	// LockByID loads the slot and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id string) (*Slot, error)
	ListSubSlots(ctx context.Context, parentID string) ([]Slot, error)
	ListParentsOnDate(ctx context.Context, doctorID string, date time.Time) ([]Slot, error)
	ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]Slot, error)
	InsertSubSlot(ctx context.Context, slot *Slot) error
	UpdateBooking(ctx context.Context, id string, status Status, bookedBy *string, bookedAt *time.Time) error
}
