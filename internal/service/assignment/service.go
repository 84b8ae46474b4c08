// internal/service/assignment/service.go
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medlink-service/internal/domain/assignment"
	"medlink-service/internal/domain/audit"
	"medlink-service/internal/domain/availability"
	"medlink-service/internal/domain/notification"
	"medlink-service/internal/domain/patient"
	"medlink-service/internal/domain/profile"
	"medlink-service/internal/domain/usage"
	xerrors "medlink-service/internal/pkg/errors"
	slotsvc "medlink-service/internal/service/slot"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger reserves and returns monthly quota units.
type Ledger interface {
	Reserve(ctx context.Context, entityID string, et usage.EntityType, res usage.Resource) (*usage.Record, error)
	Release(ctx context.Context, key usage.Key) error
}

// SlotBooker takes and frees doctor time.
type SlotBooker interface {
	Get(ctx context.Context, slotID string) (*availability.Slot, error)
	CreateSubSlot(ctx context.Context, req availability.CarveRequest) (*availability.Slot, error)
	BookExistingSubSlot(ctx context.Context, slotID, bookedBy string) (*availability.Slot, error)
	Release(ctx context.Context, slotID string, reopen bool) error
}

// PatientFinder loads patient records.
type PatientFinder interface {
	FindByID(ctx context.Context, id string) (*patient.Patient, error)
}

type Notifier interface {
	Notify(ctx context.Context, msg notification.Message)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Service books doctors for hospitals. A booking consumes one assignment
// unit from both parties and one sub-slot of the doctor's availability.
type Service struct {
	repo         assignment.Repository
	profiles     profile.Repository
	patients     PatientFinder
	ledger       Ledger
	slots        SlotBooker
	notifier     Notifier
	auditor      Auditor
	cancelNotice time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*Service)

// WithCancellationNotice sets how long before the slot starts an
// assignment can still be cancelled.
func WithCancellationNotice(d time.Duration) Option {
	return func(s *Service) { s.cancelNotice = d }
}

func NewService(
	repo assignment.Repository,
	profiles profile.Repository,
	patients PatientFinder,
	ledger Ledger,
	slots SlotBooker,
	notifier Notifier,
	auditor Auditor,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:         repo,
		profiles:     profiles,
		patients:     patients,
		ledger:       ledger,
		slots:        slots,
		notifier:     notifier,
		auditor:      auditor,
		cancelNotice: 24 * time.Hour,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// undoStack collects compensations for the steps already taken.
type undoStack []func(ctx context.Context) error

func (u *undoStack) push(fn func(ctx context.Context) error) {
	*u = append(*u, fn)
}

// Create runs the booking flow. When a step fails, everything taken
// before it is given back in reverse order.
func (s *Service) Create(ctx context.Context, hospitalID string, req *assignment.CreateAssignmentRequest) (*assignment.Assignment, error) {
	priority := req.Priority
	if priority == "" {
		priority = assignment.PriorityRoutine
	}
	if !priority.Valid() {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown priority")
	}

	carving := req.StartTime != "" || req.EndTime != ""
	var window availability.Window
	if carving {
		w, err := slotsvc.ParseWindow(req.StartTime, req.EndTime)
		if err != nil {
			return nil, err
		}
		window = w
	}

	doctor, err := s.profiles.FindDoctor(ctx, req.DoctorID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, assignment.ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor: %w", err)
	}

	slot, err := s.slots.Get(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.DoctorID != doctor.ID {
		return nil, assignment.ErrSlotNotOwned
	}

	if req.PatientID != nil {
		if err := s.checkPatient(ctx, hospitalID, *req.PatientID); err != nil {
			return nil, err
		}
	}

	var undo undoStack
	fail := func(err error) (*assignment.Assignment, error) {
		s.compensate(ctx, undo)
		return nil, err
	}

	hospitalUnit, err := s.ledger.Reserve(ctx, hospitalID, usage.EntityHospital, usage.ResourceAssignments)
	if err != nil {
		return nil, err
	}
	undo.push(func(ctx context.Context) error { return s.ledger.Release(ctx, hospitalUnit.Key()) })

	doctorUnit, err := s.ledger.Reserve(ctx, doctor.ID, usage.EntityDoctor, usage.ResourceAssignments)
	if err != nil {
		return fail(err)
	}
	undo.push(func(ctx context.Context) error { return s.ledger.Release(ctx, doctorUnit.Key()) })

	var booked *availability.Slot
	if carving {
		booked, err = s.slots.CreateSubSlot(ctx, availability.CarveRequest{
			ParentSlotID: slot.ID,
			Window:       window,
			BookedBy:     hospitalID,
			Notes:        req.Notes,
		})
	} else {
		booked, err = s.slots.BookExistingSubSlot(ctx, slot.ID, hospitalID)
	}
	if err != nil {
		return fail(err)
	}
	undo.push(func(ctx context.Context) error { return s.slots.Release(ctx, booked.ID, !carving) })

	now := s.now()
	a := &assignment.Assignment{
		ID:         uuid.NewString(),
		HospitalID: hospitalID,
		DoctorID:   doctor.ID,
		PatientID:  req.PatientID,
		SlotID:     booked.ID,
		SlotCarved: carving,
		Priority:   priority,
		Status:     assignment.StatusPending,
		Notes:      req.Notes,
		ExpiresAt:  now.Add(priority.ResponseWindow()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return fail(fmt.Errorf("failed to create assignment: %w", err))
	}

	s.logger.Info("assignment created",
		zap.String("assignment_id", a.ID),
		zap.String("hospital_id", hospitalID),
		zap.String("doctor_id", doctor.ID),
		zap.String("slot_id", booked.ID),
		zap.String("priority", string(priority)),
	)

	s.notify(ctx, notification.Message{
		UserID: doctor.UserID,
		Title:  "New assignment request",
		Body:   fmt.Sprintf("A hospital requested you on %s %s.", booked.DateString(), booked.Window()),
		Type:   notification.TypeAssignment,
		Data: map[string]interface{}{
			"assignment_id": a.ID,
			"priority":      a.Priority,
			"expires_at":    a.ExpiresAt,
		},
	})
	s.audit(ctx, audit.Entry{
		Action:     audit.ActionAssignmentCreated,
		EntityType: "assignment",
		EntityID:   a.ID,
		ActorID:    &hospitalID,
		Changes: map[string]interface{}{
			"doctor_id": a.DoctorID,
			"slot_id":   a.SlotID,
			"priority":  a.Priority,
		},
	})
	return a, nil
}

// checkPatient fails with ErrPatientNotFound unless the patient is
// registered to hospitalID.
func (s *Service) checkPatient(ctx context.Context, hospitalID, patientID string) error {
	p, err := s.patients.FindByID(ctx, patientID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return assignment.ErrPatientNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load patient: %w", err)
	}
	if p.HospitalID != hospitalID {
		return assignment.ErrPatientNotFound
	}
	return nil
}

// compensate runs undo in reverse. It ignores cancellation of ctx so a
// client disconnect cannot strand a reservation.
func (s *Service) compensate(ctx context.Context, undo undoStack) {
	bg := context.WithoutCancel(ctx)
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i](bg); err != nil {
			s.logger.Error("assignment compensation step failed", zap.Int("step", i), zap.Error(err))
		}
	}
}

// Accept confirms a pending assignment addressed to doctorID.
func (s *Service) Accept(ctx context.Context, doctorID, id string) (*assignment.Assignment, error) {
	return s.respond(ctx, doctorID, id, assignment.StatusAccepted)
}

// Decline refuses a pending assignment and frees its slot.
func (s *Service) Decline(ctx context.Context, doctorID, id string) (*assignment.Assignment, error) {
	return s.respond(ctx, doctorID, id, assignment.StatusDeclined)
}

func (s *Service) respond(ctx context.Context, doctorID, id string, to assignment.Status) (*assignment.Assignment, error) {
	a, err := s.load(ctx, assignment.Actor{Party: assignment.PartyDoctor, ID: doctorID}, id)
	if err != nil {
		return nil, err
	}
	if a.Status != assignment.StatusPending {
		return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("assignment is %s", a.Status))
	}

	now := s.now()
	if !now.Before(a.ExpiresAt) {
		return nil, assignment.ErrAssignmentExpired
	}

	if err := s.repo.UpdateStatus(ctx, a.ID, assignment.StatusPending, to, now); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, "assignment was already answered")
		}
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}
	a.Status = to
	a.RespondedAt = &now
	a.UpdatedAt = now

	if to == assignment.StatusDeclined {
		s.freeSlot(ctx, a)
	}

	s.logger.Info("assignment answered",
		zap.String("assignment_id", a.ID),
		zap.String("doctor_id", doctorID),
		zap.String("status", string(to)),
	)

	s.notifyHospital(ctx, a, fmt.Sprintf("Your assignment request was %s.", to))
	s.audit(ctx, audit.Entry{
		Action:     audit.ActionAssignmentResponded,
		EntityType: "assignment",
		EntityID:   a.ID,
		ActorID:    &doctorID,
		Changes: map[string]interface{}{
			"status": to,
		},
	})
	return a, nil
}

// Cancel withdraws a pending or accepted assignment on behalf of either
// party and frees its slot. It is refused once the slot starts within the
// cancellation notice period.
func (s *Service) Cancel(ctx context.Context, actor assignment.Actor, id, reason string) (*assignment.Assignment, error) {
	a, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !a.Cancellable() {
		return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("assignment is %s", a.Status))
	}

	slot, err := s.slots.Get(ctx, a.SlotID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if slot.StartsAt().Sub(now) < s.cancelNotice {
		return nil, assignment.ErrCancelTooLate
	}

	if err := s.repo.Cancel(ctx, a.ID, a.Status, actor.Party, reason, now); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, "assignment changed while cancelling")
		}
		return nil, fmt.Errorf("failed to cancel assignment: %w", err)
	}
	by := actor.Party
	a.Status = assignment.StatusCancelled
	a.CancelledBy = &by
	a.CancellationReason = reason
	a.CancelledAt = &now
	a.UpdatedAt = now

	s.freeSlot(ctx, a)

	s.logger.Info("assignment cancelled",
		zap.String("assignment_id", a.ID),
		zap.String("cancelled_by", string(actor.Party)),
		zap.String("actor_id", actor.ID),
	)

	body := fmt.Sprintf("The assignment on %s %s was cancelled: %s", slot.DateString(), slot.Window(), reason)
	if actor.Party == assignment.PartyDoctor {
		s.notifyHospital(ctx, a, body)
	} else {
		s.notifyDoctor(ctx, a, body)
	}
	s.audit(ctx, audit.Entry{
		Action:     audit.ActionAssignmentCancelled,
		EntityType: "assignment",
		EntityID:   a.ID,
		ActorID:    &actor.ID,
		Changes: map[string]interface{}{
			"cancelled_by": actor.Party,
			"reason":       reason,
		},
	})
	return a, nil
}

// Complete closes an accepted assignment once the doctor has seen it through.
func (s *Service) Complete(ctx context.Context, doctorID, id, treatmentNotes string) (*assignment.Assignment, error) {
	a, err := s.load(ctx, assignment.Actor{Party: assignment.PartyDoctor, ID: doctorID}, id)
	if err != nil {
		return nil, err
	}
	if a.Status != assignment.StatusAccepted {
		return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, fmt.Sprintf("only accepted assignments can be completed, this one is %s", a.Status))
	}

	now := s.now()
	if err := s.repo.Complete(ctx, a.ID, treatmentNotes, now); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			return nil, xerrors.Wrap(xerrors.ErrInvalidTransition, "assignment is no longer accepted")
		}
		return nil, fmt.Errorf("failed to complete assignment: %w", err)
	}
	a.Status = assignment.StatusCompleted
	a.CompletedAt = &now
	a.TreatmentNotes = treatmentNotes
	a.UpdatedAt = now

	s.logger.Info("assignment completed", zap.String("assignment_id", a.ID), zap.String("doctor_id", doctorID))

	s.notifyHospital(ctx, a, "Your assignment was completed.")
	s.audit(ctx, audit.Entry{
		Action:     audit.ActionAssignmentCompleted,
		EntityType: "assignment",
		EntityID:   a.ID,
		ActorID:    &doctorID,
	})
	return a, nil
}

// load returns the assignment when actor is one of its parties. Others
// get not-found so ids of foreign assignments do not leak.
func (s *Service) load(ctx context.Context, actor assignment.Actor, id string) (*assignment.Assignment, error) {
	a, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, assignment.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !a.InvolvedAs(actor) {
		return nil, assignment.ErrAssignmentNotFound
	}
	return a, nil
}

// ExpirePending expires unanswered assignments and frees their slots.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire assignments: %w", err)
	}

	for i := range expired {
		a := &expired[i]
		s.freeSlot(ctx, a)
		s.notifyHospital(ctx, a, "Your assignment request expired without a response.")
	}

	if len(expired) > 0 {
		s.logger.Info("pending assignments expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (s *Service) ListForHospital(ctx context.Context, hospitalID string, filters *assignment.ListFilters) (*assignment.ListResponse, error) {
	filters = normalise(filters)
	items, total, err := s.repo.ListByHospital(ctx, hospitalID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return page(items, total, filters), nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID string, filters *assignment.ListFilters) (*assignment.ListResponse, error) {
	filters = normalise(filters)
	items, total, err := s.repo.ListByDoctor(ctx, doctorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return page(items, total, filters), nil
}

func (s *Service) freeSlot(ctx context.Context, a *assignment.Assignment) {
	if err := s.slots.Release(context.WithoutCancel(ctx), a.SlotID, !a.SlotCarved); err != nil {
		s.logger.Error("failed to free assignment slot",
			zap.String("assignment_id", a.ID),
			zap.String("slot_id", a.SlotID),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyHospital(ctx context.Context, a *assignment.Assignment, body string) {
	h, err := s.profiles.FindHospital(ctx, a.HospitalID)
	if err != nil {
		s.logger.Warn("hospital lookup for notification failed", zap.String("hospital_id", a.HospitalID), zap.Error(err))
		return
	}
	s.notify(ctx, notification.Message{
		UserID: h.UserID,
		Title:  "Assignment update",
		Body:   body,
		Type:   notification.TypeAssignment,
		Data: map[string]interface{}{
			"assignment_id": a.ID,
			"status":        a.Status,
		},
	})
}

func (s *Service) notifyDoctor(ctx context.Context, a *assignment.Assignment, body string) {
	d, err := s.profiles.FindDoctor(ctx, a.DoctorID)
	if err != nil {
		s.logger.Warn("doctor lookup for notification failed", zap.String("doctor_id", a.DoctorID), zap.Error(err))
		return
	}
	s.notify(ctx, notification.Message{
		UserID: d.UserID,
		Title:  "Assignment update",
		Body:   body,
		Type:   notification.TypeAssignment,
		Data: map[string]interface{}{
			"assignment_id": a.ID,
			"status":        a.Status,
		},
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, msg)
	}
}

func (s *Service) audit(ctx context.Context, e audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(ctx, e)
	}
}

func normalise(f *assignment.ListFilters) *assignment.ListFilters {
	out := assignment.ListFilters{}
	if f != nil {
		out = *f
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PageSize < 1 {
		out.PageSize = 20
	}
	if out.PageSize > 100 {
		out.PageSize = 100
	}
	return &out
}

func page(items []assignment.Assignment, total int64, f *assignment.ListFilters) *assignment.ListResponse {
	if items == nil {
		items = []assignment.Assignment{}
	}
	pages := int(total) / f.PageSize
	if int(total)%f.PageSize != 0 {
		pages++
	}
	return &assignment.ListResponse{
		Assignments: items,
		Total:       total,
		Page:        f.Page,
		PageSize:    f.PageSize,
		TotalPages:  pages,
	}
}
