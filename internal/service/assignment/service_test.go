package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medlink-service/internal/domain/assignment"
	"medlink-service/internal/domain/audit"
	"medlink-service/internal/domain/availability"
	"medlink-service/internal/domain/notification"
	"medlink-service/internal/domain/patient"
	"medlink-service/internal/domain/profile"
	"medlink-service/internal/domain/usage"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	hospitalID = "hosp-1"
	doctorID   = "doc-1"
	parentID   = "parent-1"

	ownPatientID     = "6b7a9f2e-1c3d-4e5f-8a9b-0c1d2e3f4a5b"
	foreignPatientID = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a"
)

type memAssignments struct {
	mu        sync.Mutex
	items     map[string]*assignment.Assignment
	createErr error
}

func (m *memAssignments) Create(_ context.Context, a *assignment.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memAssignments) FindByID(_ context.Context, id string) (*assignment.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssignments) list(match func(*assignment.Assignment) bool) ([]assignment.Assignment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []assignment.Assignment
	for _, a := range m.items {
		if match(a) {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memAssignments) ListByHospital(_ context.Context, id string, _ *assignment.ListFilters) ([]assignment.Assignment, int64, error) {
	return m.list(func(a *assignment.Assignment) bool { return a.HospitalID == id })
}

func (m *memAssignments) ListByDoctor(_ context.Context, id string, _ *assignment.ListFilters) ([]assignment.Assignment, int64, error) {
	return m.list(func(a *assignment.Assignment) bool { return a.DoctorID == id })
}

func (m *memAssignments) UpdateStatus(_ context.Context, id string, from, to assignment.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if a.Status != from {
		return xerrors.ErrConflict
	}
	a.Status = to
	a.RespondedAt = &at
	return nil
}

func (m *memAssignments) Cancel(_ context.Context, id string, from assignment.Status, by assignment.Party, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if a.Status != from {
		return xerrors.ErrConflict
	}
	a.Status = assignment.StatusCancelled
	a.CancelledBy = &by
	a.CancellationReason = reason
	a.CancelledAt = &at
	return nil
}

func (m *memAssignments) Complete(_ context.Context, id, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if a.Status != assignment.StatusAccepted {
		return xerrors.ErrConflict
	}
	a.Status = assignment.StatusCompleted
	a.TreatmentNotes = notes
	a.CompletedAt = &at
	return nil
}

func (m *memAssignments) ExpirePending(_ context.Context, now time.Time) ([]assignment.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []assignment.Assignment
	for _, a := range m.items {
		if a.Status == assignment.StatusPending && !a.ExpiresAt.After(now) {
			a.Status = assignment.StatusExpired
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeProfiles struct{}

func (fakeProfiles) FindDoctor(_ context.Context, id string) (*profile.Doctor, error) {
	if id != doctorID {
		return nil, xerrors.ErrNotFound
	}
	return &profile.Doctor{ID: doctorID, UserID: "doc-user", FullName: "Dr. Rao"}, nil
}

func (fakeProfiles) FindHospital(_ context.Context, id string) (*profile.Hospital, error) {
	if id != hospitalID {
		return nil, xerrors.ErrNotFound
	}
	return &profile.Hospital{ID: hospitalID, UserID: "hosp-user", Name: "City Hospital"}, nil
}

// fakePatients holds one patient per hospital.
type fakePatients map[string]*patient.Patient

func (f fakePatients) FindByID(_ context.Context, id string) (*patient.Patient, error) {
	p, ok := f[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p, nil
}

// fakeLedger counts reservations per entity against a fixed limit.
type fakeLedger struct {
	mu     sync.Mutex
	limits map[string]int
	used   map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{limits: make(map[string]int), used: make(map[string]int)}
}

func (l *fakeLedger) Reserve(_ context.Context, entityID string, et usage.EntityType, res usage.Resource) (*usage.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit, ok := l.limits[entityID]
	if !ok {
		limit = -1
	}
	if limit >= 0 && l.used[entityID] >= limit {
		return nil, &xerrors.LimitReachedError{EntityType: string(et), EntityID: entityID, Resource: string(res), Used: l.used[entityID], Limit: limit}
	}
	l.used[entityID]++
	return &usage.Record{EntityID: entityID, EntityType: et, Resource: res, Month: "2024-05", CountUsed: l.used[entityID], LimitCount: limit}, nil
}

func (l *fakeLedger) Release(_ context.Context, key usage.Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used[key.EntityID] > 0 {
		l.used[key.EntityID]--
	}
	return nil
}

func (l *fakeLedger) count(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[id]
}

// fakeSlots carves sub-slots from in-memory parents with the domain rules.
type fakeSlots struct {
	mu    sync.Mutex
	slots map[string]*availability.Slot
}

func newFakeSlots() *fakeSlots {
	f := &fakeSlots{slots: make(map[string]*availability.Slot)}
	f.slots[parentID] = &availability.Slot{
		ID:        parentID,
		DoctorID:  doctorID,
		SlotDate:  time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		StartTime: availability.MustClock("09:00"),
		EndTime:   availability.MustClock("13:00"),
		Status:    availability.StatusAvailable,
		IsManual:  true,
	}
	return f
}

func (f *fakeSlots) Get(_ context.Context, id string) (*availability.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, availability.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSlots) subSlots(parent string) []availability.Slot {
	var out []availability.Slot
	for _, s := range f.slots {
		if s.ParentSlotID != nil && *s.ParentSlotID == parent {
			out = append(out, *s)
		}
	}
	return out
}

func (f *fakeSlots) CreateSubSlot(_ context.Context, req availability.CarveRequest) (*availability.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.slots[req.ParentSlotID]
	if !ok {
		return nil, availability.ErrParentNotFound
	}
	if err := availability.ValidateCarve(parent, f.subSlots(parent.ID), req.Window); err != nil {
		return nil, err
	}
	by := req.BookedBy
	s := &availability.Slot{
		ID:                 uuid.NewString(),
		DoctorID:           parent.DoctorID,
		SlotDate:           parent.SlotDate,
		StartTime:          req.Window.Start,
		EndTime:            req.Window.End,
		ParentSlotID:       &parent.ID,
		Status:             availability.StatusBooked,
		BookedByHospitalID: &by,
	}
	f.slots[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeSlots) BookExistingSubSlot(_ context.Context, id, bookedBy string) (*availability.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, availability.ErrSlotNotFound
	}
	if err := availability.ValidateBooking(s); err != nil {
		return nil, err
	}
	s.Status = availability.StatusBooked
	s.BookedByHospitalID = &bookedBy
	cp := *s
	return &cp, nil
}

func (f *fakeSlots) Release(_ context.Context, id string, reopen bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return availability.ErrSlotNotFound
	}
	s.Status = availability.StatusCancelled
	if reopen {
		s.Status = availability.StatusAvailable
	}
	s.BookedByHospitalID = nil
	return nil
}

func (f *fakeSlots) status(id string) availability.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[id].Status
}

type sink struct {
	mu       sync.Mutex
	messages []notification.Message
	entries  []audit.Entry
}

func (s *sink) Notify(_ context.Context, msg notification.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *sink) Record(_ context.Context, e audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

type fixture struct {
	svc    *Service
	repo   *memAssignments
	ledger *fakeLedger
	slots  *fakeSlots
	sink   *sink
	clock  time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:   &memAssignments{items: make(map[string]*assignment.Assignment)},
		ledger: newFakeLedger(),
		slots:  newFakeSlots(),
		sink:   &sink{},
		clock:  time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC),
	}
	patients := fakePatients{
		ownPatientID:     {ID: ownPatientID, HospitalID: hospitalID, FullName: "Asha Verma"},
		foreignPatientID: {ID: foreignPatientID, HospitalID: "hosp-2", FullName: "Ravi Iyer"},
	}
	f.svc = NewService(f.repo, fakeProfiles{}, patients, f.ledger, f.slots, f.sink, f.sink, zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func carveRequest(start, end string) *assignment.CreateAssignmentRequest {
	return &assignment.CreateAssignmentRequest{
		DoctorID:  doctorID,
		SlotID:    parentID,
		StartTime: start,
		EndTime:   end,
	}
}

func TestCreateCarvesAndReservesBothParties(t *testing.T) {
	f := newFixture()

	a, err := f.svc.Create(context.Background(), hospitalID, &assignment.CreateAssignmentRequest{
		DoctorID:  doctorID,
		SlotID:    parentID,
		StartTime: "09:00",
		EndTime:   "10:00",
		Priority:  assignment.PriorityUrgent,
	})
	require.NoError(t, err)

	assert.Equal(t, assignment.StatusPending, a.Status)
	assert.True(t, a.SlotCarved)
	assert.NotEqual(t, parentID, a.SlotID)
	assert.Equal(t, f.clock.Add(6*time.Hour), a.ExpiresAt)
	assert.Equal(t, 1, f.ledger.count(hospitalID))
	assert.Equal(t, 1, f.ledger.count(doctorID))
	assert.Equal(t, availability.StatusBooked, f.slots.status(a.SlotID))

	require.Len(t, f.sink.messages, 1)
	assert.Equal(t, "doc-user", f.sink.messages[0].UserID)
	require.Len(t, f.sink.entries, 1)
	assert.Equal(t, audit.ActionAssignmentCreated, f.sink.entries[0].Action)
}

func TestCreateDefaultsToRoutineWindow(t *testing.T) {
	f := newFixture()

	a, err := f.svc.Create(context.Background(), hospitalID, carveRequest("10:00", "11:00"))
	require.NoError(t, err)
	assert.Equal(t, assignment.PriorityRoutine, a.Priority)
	assert.Equal(t, f.clock.Add(24*time.Hour), a.ExpiresAt)
}

func TestCreateRejectsSlotOfAnotherDoctor(t *testing.T) {
	f := newFixture()
	f.slots.slots[parentID].DoctorID = "doc-2"

	_, err := f.svc.Create(context.Background(), hospitalID, carveRequest("09:00", "10:00"))
	assert.ErrorIs(t, err, assignment.ErrSlotNotOwned)
	assert.Zero(t, f.ledger.count(hospitalID))
}

func TestCreateUnknownDoctor(t *testing.T) {
	f := newFixture()
	req := carveRequest("09:00", "10:00")
	req.DoctorID = "nobody"

	_, err := f.svc.Create(context.Background(), hospitalID, req)
	assert.ErrorIs(t, err, assignment.ErrDoctorNotFound)
}

func TestHospitalLimitStopsBeforeDoctorIsCharged(t *testing.T) {
	f := newFixture()
	f.ledger.limits[hospitalID] = 0

	_, err := f.svc.Create(context.Background(), hospitalID, carveRequest("09:00", "10:00"))
	var limitErr *xerrors.LimitReachedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, string(usage.EntityHospital), limitErr.EntityType)
	assert.Zero(t, f.ledger.count(doctorID))
	assert.Empty(t, f.slots.subSlots(parentID))
}

func TestDoctorLimitReleasesHospitalUnit(t *testing.T) {
	f := newFixture()
	f.ledger.limits[doctorID] = 0

	_, err := f.svc.Create(context.Background(), hospitalID, carveRequest("09:00", "10:00"))
	assert.ErrorIs(t, err, xerrors.ErrLimitReached)
	assert.Zero(t, f.ledger.count(hospitalID))
	assert.Empty(t, f.slots.subSlots(parentID))
}

func TestOverlappingCarveReleasesReservations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, hospitalID, carveRequest("09:30", "10:30"))
	var rangeErr *xerrors.SlotRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, xerrors.RangeOverlap, rangeErr.Kind)

	assert.Equal(t, 1, f.ledger.count(hospitalID))
	assert.Equal(t, 1, f.ledger.count(doctorID))
}

func TestPersistFailureUndoesEveryStep(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), hospitalID, carveRequest("09:00", "10:00"))
	require.Error(t, err)

	assert.Zero(t, f.ledger.count(hospitalID))
	assert.Zero(t, f.ledger.count(doctorID))
	subs := f.slots.subSlots(parentID)
	require.Len(t, subs, 1)
	assert.Equal(t, availability.StatusCancelled, subs[0].Status)

	// the range is free again
	f.repo.createErr = nil
	_, err = f.svc.Create(context.Background(), hospitalID, carveRequest("09:00", "10:00"))
	assert.NoError(t, err)
}

func TestBookExistingSubSlotReopensOnFailure(t *testing.T) {
	f := newFixture()
	parent := parentID
	f.slots.slots["open-1"] = &availability.Slot{
		ID:           "open-1",
		DoctorID:     doctorID,
		StartTime:    availability.MustClock("11:00"),
		EndTime:      availability.MustClock("12:00"),
		ParentSlotID: &parent,
		Status:       availability.StatusAvailable,
	}
	f.repo.createErr = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), hospitalID, &assignment.CreateAssignmentRequest{DoctorID: doctorID, SlotID: "open-1"})
	require.Error(t, err)
	assert.Equal(t, availability.StatusAvailable, f.slots.status("open-1"))

	f.repo.createErr = nil
	a, err := f.svc.Create(context.Background(), hospitalID, &assignment.CreateAssignmentRequest{DoctorID: doctorID, SlotID: "open-1"})
	require.NoError(t, err)
	assert.False(t, a.SlotCarved)
	assert.Equal(t, "open-1", a.SlotID)
}

func TestAcceptAndDecline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, hospitalID, carveRequest("10:00", "11:00"))
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, "doc-2", first.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	accepted, err := f.svc.Accept(ctx, doctorID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusAccepted, accepted.Status)
	assert.Equal(t, availability.StatusBooked, f.slots.status(first.SlotID))

	_, err = f.svc.Decline(ctx, doctorID, first.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)

	declined, err := f.svc.Decline(ctx, doctorID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusDeclined, declined.Status)
	assert.Equal(t, availability.StatusCancelled, f.slots.status(second.SlotID))

	// quota stays consumed
	assert.Equal(t, 2, f.ledger.count(hospitalID))
}

func TestRespondAfterDeadline(t *testing.T) {
	f := newFixture()
	req := carveRequest("09:00", "10:00")
	req.Priority = assignment.PriorityEmergency

	a, err := f.svc.Create(context.Background(), hospitalID, req)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	_, err = f.svc.Accept(context.Background(), doctorID, a.ID)
	assert.ErrorIs(t, err, assignment.ErrAssignmentExpired)
}

func TestExpirePendingFreesSlots(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	routine, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)
	urgentReq := carveRequest("10:00", "11:00")
	urgentReq.Priority = assignment.PriorityUrgent
	urgent, err := f.svc.Create(ctx, hospitalID, urgentReq)
	require.NoError(t, err)

	f.clock = f.clock.Add(7 * time.Hour)
	n, err := f.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, availability.StatusCancelled, f.slots.status(urgent.SlotID))
	assert.Equal(t, availability.StatusBooked, f.slots.status(routine.SlotID))

	stored, err := f.repo.FindByID(ctx, urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusExpired, stored.Status)
}

func TestListPaginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)

	res, err := f.svc.ListForHospital(ctx, hospitalID, nil)
	require.NoError(t, err)
	assert.Len(t, res.Assignments, 1)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.PageSize)
	assert.Equal(t, 1, res.TotalPages)

	res, err = f.svc.ListForDoctor(ctx, "doc-2", &assignment.ListFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Empty(t, res.Assignments)
	assert.Equal(t, 100, res.PageSize)
	assert.Zero(t, res.TotalPages)
}

func TestCreateRejectsPatientOfAnotherHospital(t *testing.T) {
	for name, id := range map[string]string{
		"foreign": foreignPatientID,
		"unknown": uuid.NewString(),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			req := carveRequest("09:00", "10:00")
			req.PatientID = &id

			_, err := f.svc.Create(context.Background(), hospitalID, req)
			assert.ErrorIs(t, err, assignment.ErrPatientNotFound)
			assert.ErrorIs(t, err, xerrors.ErrNotFound)
			assert.Zero(t, f.ledger.count(hospitalID))
			assert.Zero(t, f.ledger.count(doctorID))
			assert.Empty(t, f.slots.subSlots(parentID))
		})
	}
}

func TestCreateWithOwnPatient(t *testing.T) {
	f := newFixture()
	id := ownPatientID
	req := carveRequest("09:00", "10:00")
	req.PatientID = &id

	a, err := f.svc.Create(context.Background(), hospitalID, req)
	require.NoError(t, err)
	require.NotNil(t, a.PatientID)
	assert.Equal(t, ownPatientID, *a.PatientID)
}

func TestCancelByEitherParty(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	pending, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)
	accepted, err := f.svc.Create(ctx, hospitalID, carveRequest("10:00", "11:00"))
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, doctorID, accepted.ID)
	require.NoError(t, err)
	f.sink.messages = nil

	byHospital, err := f.svc.Cancel(ctx, assignment.Actor{Party: assignment.PartyHospital, ID: hospitalID}, pending.ID, "patient transferred")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCancelled, byHospital.Status)
	require.NotNil(t, byHospital.CancelledBy)
	assert.Equal(t, assignment.PartyHospital, *byHospital.CancelledBy)
	assert.Equal(t, "patient transferred", byHospital.CancellationReason)
	assert.Equal(t, availability.StatusCancelled, f.slots.status(pending.SlotID))

	byDoctor, err := f.svc.Cancel(ctx, assignment.Actor{Party: assignment.PartyDoctor, ID: doctorID}, accepted.ID, "unwell")
	require.NoError(t, err)
	assert.Equal(t, assignment.PartyDoctor, *byDoctor.CancelledBy)
	assert.Equal(t, availability.StatusCancelled, f.slots.status(accepted.SlotID))

	// each cancellation notifies the other side
	require.Len(t, f.sink.messages, 2)
	assert.Equal(t, "doc-user", f.sink.messages[0].UserID)
	assert.Equal(t, "hosp-user", f.sink.messages[1].UserID)

	stored, err := f.repo.FindByID(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCancelled, stored.Status)

	// the freed range can be booked again
	_, err = f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	assert.NoError(t, err)
}

func TestCancelRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	hospital := assignment.Actor{Party: assignment.PartyHospital, ID: hospitalID}

	a, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, assignment.Actor{Party: assignment.PartyHospital, ID: "hosp-2"}, a.ID, "mistake")
	assert.ErrorIs(t, err, assignment.ErrAssignmentNotFound)
	_, err = f.svc.Cancel(ctx, assignment.Actor{Party: assignment.PartyDoctor, ID: hospitalID}, a.ID, "mistake")
	assert.ErrorIs(t, err, assignment.ErrAssignmentNotFound)

	// slot starts 2024-05-10 09:00, one hour away
	f.clock = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	_, err = f.svc.Cancel(ctx, hospital, a.ID, "mistake")
	assert.ErrorIs(t, err, assignment.ErrCancelTooLate)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	assert.Equal(t, availability.StatusBooked, f.slots.status(a.SlotID))

	f.svc.cancelNotice = 30 * time.Minute
	_, err = f.svc.Cancel(ctx, hospital, a.ID, "mistake")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, hospital, a.ID, "again")
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestCancelDeclinedIsRefused(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, doctorID, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, assignment.Actor{Party: assignment.PartyHospital, ID: hospitalID}, a.ID, "late")
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func TestCompleteOnlyFromAccepted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, hospitalID, carveRequest("09:00", "10:00"))
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, doctorID, a.ID, "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)

	_, err = f.svc.Accept(ctx, doctorID, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, "doc-2", a.ID, "")
	assert.ErrorIs(t, err, assignment.ErrAssignmentNotFound)

	f.clock = time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)
	done, err := f.svc.Complete(ctx, doctorID, a.ID, "sutured, follow up in a week")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, f.clock, *done.CompletedAt)
	assert.Equal(t, availability.StatusBooked, f.slots.status(a.SlotID))

	last := f.sink.entries[len(f.sink.entries)-1]
	assert.Equal(t, audit.ActionAssignmentCompleted, last.Action)

	_, err = f.svc.Cancel(ctx, assignment.Actor{Party: assignment.PartyHospital, ID: hospitalID}, a.ID, "too late")
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}
