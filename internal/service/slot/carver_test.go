package slot

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"medlink-service/internal/domain/availability"
	xerrors "medlink-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRepo serialises transactions the way a parent row lock would.
type memRepo struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	slots map[string]*availability.Slot
}

func newMemRepo() *memRepo {
	return &memRepo{slots: make(map[string]*availability.Slot)}
}

func (m *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, repo availability.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}

func (m *memRepo) CreateParent(_ context.Context, slot *availability.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *slot
	m.slots[slot.ID] = &cp
	return nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) LockByID(ctx context.Context, id string) (*availability.Slot, error) {
	return m.FindByID(ctx, id)
}

func (m *memRepo) ListSubSlots(_ context.Context, parentID string) ([]availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Slot
	for _, s := range m.slots {
		if s.ParentSlotID != nil && *s.ParentSlotID == parentID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memRepo) ListParentsOnDate(_ context.Context, doctorID string, date time.Time) ([]availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Slot
	for _, s := range m.slots {
		if s.IsParent() && s.DoctorID == doctorID && s.SlotDate.Equal(date) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) ListByDoctor(_ context.Context, doctorID string, from, to time.Time) ([]availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.SlotDate.Before(from) && !s.SlotDate.After(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) InsertSubSlot(_ context.Context, slot *availability.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *slot
	m.slots[slot.ID] = &cp
	return nil
}

func (m *memRepo) UpdateBooking(_ context.Context, id string, status availability.Status, bookedBy *string, bookedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	s.Status = status
	s.BookedByHospitalID = bookedBy
	s.BookedAt = bookedAt
	return nil
}

func newCarver(t *testing.T) (*Carver, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewCarver(repo, &memTemplates{}, zap.NewNop()), repo
}

func window(t *testing.T, start, end string) availability.Window {
	t.Helper()
	w, err := ParseWindow(start, end)
	require.NoError(t, err)
	return w
}

func createParent(t *testing.T, c *Carver, start, end string) *availability.Slot {
	t.Helper()
	parent, err := c.CreateParentSlot(context.Background(), "doc-1", &availability.CreateParentSlotRequest{
		SlotDate:  "2024-03-15",
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	return parent
}

func carve(c *Carver, parentID string, w availability.Window) (*availability.Slot, error) {
	return c.CreateSubSlot(context.Background(), availability.CarveRequest{
		ParentSlotID: parentID,
		Window:       w,
		BookedBy:     "hosp-1",
	})
}

func TestCarveMorningScenario(t *testing.T) {
	c, _ := newCarver(t)
	parent := createParent(t, c, "09:00", "12:00")

	first, err := carve(c, parent.ID, window(t, "09:00", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, availability.StatusBooked, first.Status)
	assert.Equal(t, parent.ID, *first.ParentSlotID)
	assert.Equal(t, "hosp-1", *first.BookedByHospitalID)
	assert.Equal(t, parent.DoctorID, first.DoctorID)

	_, err = carve(c, parent.ID, window(t, "10:00", "11:00"))
	require.NoError(t, err)

	_, err = carve(c, parent.ID, window(t, "10:30", "11:30"))
	var rangeErr *xerrors.SlotRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, xerrors.RangeOverlap, rangeErr.Kind)
	assert.Equal(t, "10:00-11:00", rangeErr.Conflicting)
	assert.True(t, errors.Is(err, xerrors.ErrConflict))

	_, err = carve(c, parent.ID, window(t, "11:30", "12:30"))
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, xerrors.RangeOutOfBounds, rangeErr.Kind)

	ranges, err := c.AvailableRanges(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Len(t, ranges.Booked, 2)
	assert.Equal(t, []availability.Window{window(t, "11:00", "12:00")}, ranges.Free)
}

func TestConcurrentCarvesOfSameRangeBookOnce(t *testing.T) {
	c, repo := newCarver(t)
	parent := createParent(t, c, "09:00", "12:00")
	w := window(t, "09:30", "10:30")

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := carve(c, parent.ID, w); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	subs, err := repo.ListSubSlots(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestCarveRejectsUnknownOrSubSlotParent(t *testing.T) {
	c, _ := newCarver(t)
	parent := createParent(t, c, "09:00", "12:00")
	sub, err := carve(c, parent.ID, window(t, "09:00", "09:30"))
	require.NoError(t, err)

	_, err = carve(c, "missing", window(t, "09:00", "09:30"))
	assert.ErrorIs(t, err, availability.ErrParentNotFound)

	_, err = carve(c, sub.ID, window(t, "09:00", "09:15"))
	assert.ErrorIs(t, err, availability.ErrParentNotFound)
}

func TestReleasedRangeCanBeCarvedAgain(t *testing.T) {
	c, _ := newCarver(t)
	parent := createParent(t, c, "09:00", "12:00")
	w := window(t, "09:00", "10:00")

	sub, err := carve(c, parent.ID, w)
	require.NoError(t, err)
	require.NoError(t, c.Release(context.Background(), sub.ID, false))

	again, err := carve(c, parent.ID, w)
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, again.ID)
}

func TestBookExistingSubSlot(t *testing.T) {
	c, repo := newCarver(t)
	parent := createParent(t, c, "09:00", "12:00")

	open := &availability.Slot{
		ID:           "open-1",
		DoctorID:     parent.DoctorID,
		SlotDate:     parent.SlotDate,
		StartTime:    availability.MustClock("11:00"),
		EndTime:      availability.MustClock("12:00"),
		ParentSlotID: &parent.ID,
		Status:       availability.StatusAvailable,
	}
	require.NoError(t, repo.InsertSubSlot(context.Background(), open))

	booked, err := c.BookExistingSubSlot(context.Background(), open.ID, "hosp-2")
	require.NoError(t, err)
	assert.Equal(t, availability.StatusBooked, booked.Status)
	assert.Equal(t, "hosp-2", *booked.BookedByHospitalID)

	_, err = c.BookExistingSubSlot(context.Background(), open.ID, "hosp-3")
	assert.ErrorIs(t, err, availability.ErrSlotUnavailable)

	_, err = c.BookExistingSubSlot(context.Background(), parent.ID, "hosp-3")
	assert.ErrorIs(t, err, availability.ErrCannotBookParent)

	_, err = c.BookExistingSubSlot(context.Background(), "missing", "hosp-3")
	assert.ErrorIs(t, err, availability.ErrSlotNotFound)

	require.NoError(t, c.Release(context.Background(), open.ID, true))
	reopened, err := c.Get(context.Background(), open.ID)
	require.NoError(t, err)
	assert.Equal(t, availability.StatusAvailable, reopened.Status)
	assert.Nil(t, reopened.BookedByHospitalID)
}

func TestCreateParentSlotValidation(t *testing.T) {
	c, _ := newCarver(t)
	createParent(t, c, "09:00", "12:00")

	tests := []struct {
		name  string
		req   availability.CreateParentSlotRequest
		want  error
		valid bool
	}{
		{"bad date", availability.CreateParentSlotRequest{SlotDate: "15/03/2024", StartTime: "13:00", EndTime: "14:00"}, xerrors.ErrInvalidInput, false},
		{"reversed", availability.CreateParentSlotRequest{SlotDate: "2024-03-15", StartTime: "14:00", EndTime: "13:00"}, availability.ErrInvalidWindow, false},
		{"overlaps existing", availability.CreateParentSlotRequest{SlotDate: "2024-03-15", StartTime: "11:00", EndTime: "13:00"}, availability.ErrParentOverlap, false},
		{"adjacent", availability.CreateParentSlotRequest{SlotDate: "2024-03-15", StartTime: "12:00", EndTime: "13:00"}, nil, true},
		{"other day", availability.CreateParentSlotRequest{SlotDate: "2024-03-16", StartTime: "09:00", EndTime: "12:00"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := c.CreateParentSlot(context.Background(), "doc-1", &req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestListByDoctorRange(t *testing.T) {
	c, _ := newCarver(t)
	createParent(t, c, "09:00", "12:00")

	slots, err := c.ListByDoctor(context.Background(), "doc-1", &availability.ListFilters{From: "2024-03-01", To: "2024-03-31"})
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	_, err = c.ListByDoctor(context.Background(), "doc-1", &availability.ListFilters{From: "2024-03-31", To: "2024-03-01"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}
