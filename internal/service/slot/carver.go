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

// Carver turns parent availability windows into booked sub-slots.
type Carver struct {
	repo      availability.Repository
	templates availability.TemplateRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewCarver(repo availability.Repository, templates availability.TemplateRepository, logger *zap.Logger) *Carver {
	return &Carver{
		repo:      repo,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateParentSlot declares a new availability window for a doctor.
func (c *Carver) CreateParentSlot(ctx context.Context, doctorID string, req *availability.CreateParentSlotRequest) (*availability.Slot, error) {
	date, err := time.Parse(availability.DateLayout, req.SlotDate)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "slot_date must be YYYY-MM-DD")
	}
	window, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	slot := &availability.Slot{
		ID:        uuid.NewString(),
		DoctorID:  doctorID,
		SlotDate:  date,
		StartTime: window.Start,
		EndTime:   window.End,
		Status:    availability.StatusAvailable,
		IsManual:  true,
		Notes:     req.Notes,
	}
	if err := c.createParent(ctx, slot); err != nil {
		return nil, err
	}

	c.logger.Info("availability created",
		zap.String("slot_id", slot.ID),
		zap.String("doctor_id", doctorID),
		zap.String("date", slot.DateString()),
		zap.String("window", window.String()),
	)
	return slot, nil
}

// createParent inserts slot unless it overlaps a live parent window of the
// same doctor on that day.
func (c *Carver) createParent(ctx context.Context, slot *availability.Slot) error {
	window := slot.Window()
	return c.repo.InTx(ctx, func(ctx context.Context, repo availability.Repository) error {
		existing, err := repo.ListParentsOnDate(ctx, slot.DoctorID, slot.SlotDate)
		if err != nil {
			return fmt.Errorf("failed to load existing availability: %w", err)
		}
		for i := range existing {
			if existing[i].Occupies() && existing[i].Window().Overlaps(window) {
				return fmt.Errorf("%s conflicts with %s: %w", window, existing[i].Window(), availability.ErrParentOverlap)
			}
		}
		return repo.CreateParent(ctx, slot)
	})
}

// CreateSubSlot carves and books [start,end) inside a parent window. The
// parent row stays locked while siblings are checked and the piece is
// inserted.
func (c *Carver) CreateSubSlot(ctx context.Context, req availability.CarveRequest) (*availability.Slot, error) {
	var created *availability.Slot

	err := c.repo.InTx(ctx, func(ctx context.Context, repo availability.Repository) error {
		parent, err := repo.LockByID(ctx, req.ParentSlotID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return availability.ErrParentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock parent slot: %w", err)
		}

		siblings, err := repo.ListSubSlots(ctx, parent.ID)
		if err != nil {
			return fmt.Errorf("failed to load sub-slots: %w", err)
		}

		if err := availability.ValidateCarve(parent, siblings, req.Window); err != nil {
			return err
		}

		now := c.now()
		bookedBy := req.BookedBy
		created = &availability.Slot{
			ID:                 uuid.NewString(),
			DoctorID:           parent.DoctorID,
			SlotDate:           parent.SlotDate,
			StartTime:          req.Window.Start,
			EndTime:            req.Window.End,
			ParentSlotID:       &parent.ID,
			Status:             availability.StatusBooked,
			BookedByHospitalID: &bookedBy,
			BookedAt:           &now,
			Notes:              req.Notes,
		}
		return repo.InsertSubSlot(ctx, created)
	})
	if err != nil {
		metrics.SlotBookings.WithLabelValues("carve", outcome(err)).Inc()
		return nil, err
	}

	metrics.SlotBookings.WithLabelValues("carve", "booked").Inc()
	c.logger.Info("sub-slot booked",
		zap.String("slot_id", created.ID),
		zap.String("parent_slot_id", req.ParentSlotID),
		zap.String("window", req.Window.String()),
		zap.String("booked_by", req.BookedBy),
	)
	return created, nil
}

// BookExistingSubSlot books a sub-slot that was published open.
func (c *Carver) BookExistingSubSlot(ctx context.Context, slotID, bookedBy string) (*availability.Slot, error) {
	var booked *availability.Slot

	err := c.repo.InTx(ctx, func(ctx context.Context, repo availability.Repository) error {
		slot, err := repo.LockByID(ctx, slotID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return availability.ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}

		if err := availability.ValidateBooking(slot); err != nil {
			return err
		}

		now := c.now()
		if err := repo.UpdateBooking(ctx, slot.ID, availability.StatusBooked, &bookedBy, &now); err != nil {
			return fmt.Errorf("failed to book slot: %w", err)
		}
		slot.Status = availability.StatusBooked
		slot.BookedByHospitalID = &bookedBy
		slot.BookedAt = &now
		booked = slot
		return nil
	})
	if err != nil {
		metrics.SlotBookings.WithLabelValues("book", outcome(err)).Inc()
		return nil, err
	}

	metrics.SlotBookings.WithLabelValues("book", "booked").Inc()
	c.logger.Info("sub-slot booked",
		zap.String("slot_id", booked.ID),
		zap.String("booked_by", bookedBy),
	)
	return booked, nil
}

// Release frees a booked sub-slot. Carved pieces are cancelled so their
// time returns to the parent; pre-published pieces reopen.
func (c *Carver) Release(ctx context.Context, slotID string, reopen bool) error {
	return c.repo.InTx(ctx, func(ctx context.Context, repo availability.Repository) error {
		slot, err := repo.LockByID(ctx, slotID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return availability.ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}
		if slot.IsParent() {
			return availability.ErrCannotBookParent
		}

		status := availability.StatusCancelled
		if reopen {
			status = availability.StatusAvailable
		}
		if err := repo.UpdateBooking(ctx, slot.ID, status, nil, nil); err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}

		c.logger.Info("sub-slot released", zap.String("slot_id", slotID), zap.String("status", string(status)))
		return nil
	})
}

func (c *Carver) Get(ctx context.Context, slotID string) (*availability.Slot, error) {
	slot, err := c.repo.FindByID(ctx, slotID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, availability.ErrSlotNotFound
	}
	return slot, err
}

func (c *Carver) ListByDoctor(ctx context.Context, doctorID string, filters *availability.ListFilters) ([]availability.Slot, error) {
	from := c.now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 1, 0)
	if filters != nil && filters.From != "" {
		t, err := time.Parse(availability.DateLayout, filters.From)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "from must be YYYY-MM-DD")
		}
		from = t
	}
	if filters != nil && filters.To != "" {
		t, err := time.Parse(availability.DateLayout, filters.To)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "to must be YYYY-MM-DD")
		}
		to = t
	}
	if to.Before(from) {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "to must not be before from")
	}
	return c.repo.ListByDoctor(ctx, doctorID, from, to)
}

func (c *Carver) ListSubSlots(ctx context.Context, parentID string) ([]availability.Slot, error) {
	if _, err := c.parent(ctx, parentID); err != nil {
		return nil, err
	}
	return c.repo.ListSubSlots(ctx, parentID)
}

// AvailableRanges reports the unbooked gaps of a parent window.
func (c *Carver) AvailableRanges(ctx context.Context, parentID string) (*availability.RangesResponse, error) {
	parent, err := c.parent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	subs, err := c.repo.ListSubSlots(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-slots: %w", err)
	}

	booked := make([]availability.Slot, 0, len(subs))
	for _, s := range subs {
		if s.Occupies() {
			booked = append(booked, s)
		}
	}
	return &availability.RangesResponse{
		Parent: parent,
		Booked: booked,
		Free:   availability.FreeRanges(parent, subs),
	}, nil
}

func (c *Carver) parent(ctx context.Context, id string) (*availability.Slot, error) {
	slot, err := c.repo.FindByID(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, availability.ErrParentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !slot.IsParent() {
		return nil, availability.ErrParentNotFound
	}
	return slot, nil
}

// ParseWindow converts "HH:MM" bounds into a validated window.
func ParseWindow(start, end string) (availability.Window, error) {
	return parseWindow(start, end)
}

func parseWindow(start, end string) (availability.Window, error) {
	s, err := availability.ParseClock(start)
	if err != nil {
		return availability.Window{}, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}
	e, err := availability.ParseClock(end)
	if err != nil {
		return availability.Window{}, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}
	w := availability.Window{Start: s, End: e}
	if !w.Valid() {
		return availability.Window{}, availability.ErrInvalidWindow
	}
	return w, nil
}

func outcome(err error) string {
	var rangeErr *xerrors.SlotRangeError
	switch {
	case errors.As(err, &rangeErr):
		return string(rangeErr.Kind)
	case errors.Is(err, xerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, availability.ErrCannotBookParent):
		return "parent"
	case errors.Is(err, xerrors.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
