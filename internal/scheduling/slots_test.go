package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotTimes(date time.Time, startHour, endHour int) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), startHour, 0, 0, 0, time.UTC)
	end := time.Date(date.Year(), date.Month(), date.Day(), endHour, 0, 0, 0, time.UTC)
	return start, end
}

func TestAddSlot(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)

	slot, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)
	assert.Equal(t, doctorID, slot.DoctorID)
	assert.False(t, slot.IsBooked)
	assert.NotEqual(t, uuid.Nil, slot.ID)
}

func TestAddSlotValidation(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 10, 9)

	_, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = store.AddSlot(context.Background(), doctorID, date, start, start)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = store.AddSlot(context.Background(), doctorID, time.Time{}, start, end)
	assert.ErrorIs(t, err, ErrMissingDate)
}

func TestAddSlotUnknownDoctor(t *testing.T) {
	repo := newMemRepo()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)

	_, err := store.AddSlot(context.Background(), uuid.New(), date, start, end)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestAddSlotOverlap(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)
	_, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)

	cases := []struct {
		name       string
		start, end int
		overlap    bool
	}{
		{"identical", 9, 10, true},
		{"straddles start", 8, 10, true},
		{"straddles end", 9, 11, true},
		{"covers", 8, 11, true},
		{"touching before", 8, 9, false},
		{"touching after", 10, 11, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, e := slotTimes(date, tc.start, tc.end)
			_, err := store.AddSlot(context.Background(), doctorID, date, s, e)
			if tc.overlap {
				assert.ErrorIs(t, err, ErrSlotOverlap)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAddSlotDifferentDoctorOrDateNoConflict(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	otherDoctor := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)
	_, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)

	// Same window, different doctor.
	_, err = store.AddSlot(context.Background(), otherDoctor, date, start, end)
	assert.NoError(t, err)

	// Same doctor and window, next day.
	nextDay := date.AddDate(0, 0, 1)
	s2, e2 := slotTimes(nextDay, 9, 10)
	_, err = store.AddSlot(context.Background(), doctorID, nextDay, s2, e2)
	assert.NoError(t, err)
}

func TestUpdateSlot(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)
	slot, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)

	newStart, newEnd := slotTimes(date, 14, 15)
	updated, err := store.UpdateSlot(context.Background(), doctorID, slot.ID,
		SlotUpdate{StartTime: &newStart, EndTime: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, 14, updated.StartTime.Hour())
	assert.Equal(t, 15, updated.EndTime.Hour())
}

func TestUpdateSlotDateOnlyMovesTimestamps(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)
	slot, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)

	newDate := date.AddDate(0, 0, 3)
	updated, err := store.UpdateSlot(context.Background(), doctorID, slot.ID, SlotUpdate{Date: &newDate})
	require.NoError(t, err)
	assert.Equal(t, newDate.Day(), updated.StartTime.Day())
	assert.Equal(t, 9, updated.StartTime.Hour())
	assert.Equal(t, 10, updated.EndTime.Hour())
}

func TestUpdateSlotGuards(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	otherDoctor := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	bookedID := repo.addSlot(doctorID, date, 9, true)

	newStart, _ := slotTimes(date, 14, 15)

	// Not the owner.
	_, err := store.UpdateSlot(context.Background(), otherDoctor, bookedID, SlotUpdate{StartTime: &newStart})
	assert.ErrorIs(t, err, ErrSlotNotFound)

	// Booked slots are frozen.
	_, err = store.UpdateSlot(context.Background(), doctorID, bookedID, SlotUpdate{StartTime: &newStart})
	assert.ErrorIs(t, err, ErrSlotBooked)
}

func TestUpdateSlotOverlapExcludesSelf(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)
	slot, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)

	// A no-op update overlaps only itself and must pass.
	updated, err := store.UpdateSlot(context.Background(), doctorID, slot.ID,
		SlotUpdate{StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, slot.ID, updated.ID)

	// Moving onto a sibling slot is rejected.
	_, err = store.AddSlot(context.Background(), doctorID, date, mustTime(date, 11), mustTime(date, 12))
	require.NoError(t, err)

	collideStart := mustTime(date, 11)
	collideEnd := mustTime(date, 12)
	_, err = store.UpdateSlot(context.Background(), doctorID, slot.ID,
		SlotUpdate{StartTime: &collideStart, EndTime: &collideEnd})
	assert.ErrorIs(t, err, ErrSlotOverlap)
}

func mustTime(date time.Time, hour int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, time.UTC)
}

func TestDeleteSlot(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	freeID := repo.addSlot(doctorID, date, 9, false)
	bookedID := repo.addSlot(doctorID, date, 10, true)

	require.NoError(t, store.DeleteSlot(context.Background(), doctorID, freeID))
	_, err := repo.GetSlotByID(context.Background(), freeID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	err = store.DeleteSlot(context.Background(), doctorID, bookedID)
	assert.ErrorIs(t, err, ErrSlotBooked)
}

func TestDeleteSlotFreesWindowForNewSlot(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	start, end := slotTimes(date, 9, 10)
	slot, err := store.AddSlot(context.Background(), doctorID, date, start, end)
	require.NoError(t, err)

	require.NoError(t, store.DeleteSlot(context.Background(), doctorID, slot.ID))

	// The deleted slot no longer counts against the overlap check.
	_, err = store.AddSlot(context.Background(), doctorID, date, start, end)
	assert.NoError(t, err)
}

func TestDeleteSlotAfterCancelledAppointment(t *testing.T) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	coord := newTestCoordinator(repo, nil, notifier)
	store := NewSlotStore(repo, nil)

	patientID, doctorID, slotID, appointmentID := bookOne(t, coord, repo)

	err := coord.Cancel(context.Background(), Actor{ID: patientID, Role: RolePatient}, appointmentID)
	require.NoError(t, err)

	// The freed slot is deletable even though the cancelled appointment
	// still references it.
	require.NoError(t, store.DeleteSlot(context.Background(), doctorID, slotID))
	_, err = repo.GetSlotByID(context.Background(), slotID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	// History stays readable.
	detail, err := coord.GetAppointment(context.Background(), Actor{ID: patientID, Role: RolePatient}, appointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, detail.Status)
}

// bookBehindRepo claims the slot right after each ownership read,
// standing in for a booking that lands between the store's guard check
// and the repository write.
type bookBehindRepo struct {
	*memRepo
}

func (r *bookBehindRepo) GetSlotForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Slot, error) {
	s, err := r.memRepo.GetSlotForDoctor(ctx, id, doctorID)
	if err == nil {
		_, _ = r.memRepo.ClaimSlot(ctx, id)
	}
	return s, err
}

func TestUpdateSlotLosesToConcurrentBooking(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	date := tomorrow()
	slotID := repo.addSlot(doctorID, date, 9, false)
	store := NewSlotStore(&bookBehindRepo{memRepo: repo}, nil)

	newStart := mustTime(date, 14)
	newEnd := mustTime(date, 15)
	_, err := store.UpdateSlot(context.Background(), doctorID, slotID,
		SlotUpdate{StartTime: &newStart, EndTime: &newEnd})
	assert.ErrorIs(t, err, ErrSlotBooked)

	slot, err := repo.GetSlotByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.True(t, slot.IsBooked)
	assert.Equal(t, 9, slot.StartTime.Hour(), "booked slot keeps its window")
}

func TestDeleteSlotLosesToConcurrentBooking(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	slotID := repo.addSlot(doctorID, tomorrow(), 9, false)
	store := NewSlotStore(&bookBehindRepo{memRepo: repo}, nil)

	err := store.DeleteSlot(context.Background(), doctorID, slotID)
	assert.ErrorIs(t, err, ErrSlotBooked)

	slot, err := repo.GetSlotByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.True(t, slot.IsBooked)
}

func TestListSlotsFilters(t *testing.T) {
	repo := newMemRepo()
	doctorID := repo.addDoctor()
	store := NewSlotStore(repo, nil)

	date := tomorrow()
	otherDate := date.AddDate(0, 0, 1)
	repo.addSlot(doctorID, date, 9, false)
	repo.addSlot(doctorID, date, 10, true)
	repo.addSlot(doctorID, otherDate, 9, false)

	all, err := store.ListSlots(context.Background(), doctorID, nil, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onDate, err := store.ListSlots(context.Background(), doctorID, &date, false)
	require.NoError(t, err)
	assert.Len(t, onDate, 2)

	free, err := store.ListSlots(context.Background(), doctorID, &date, true)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.False(t, free[0].IsBooked)
}
