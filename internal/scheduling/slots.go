package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

var (
	ErrSlotOverlap = errors.New("slot overlaps with an existing slot")
	ErrSlotBooked  = errors.New("cannot modify a booked slot")
	ErrInvalidSlot = errors.New("slot end must be after start")
	ErrMissingDate = errors.New("slot date is required")
)

// SlotStore owns availability records and enforces the non-overlap
// invariant per doctor and date.
type SlotStore struct {
	repo   Repository
	logger *logging.Logger
}

func NewSlotStore(repo Repository, logger *logging.Logger) *SlotStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotStore{repo: repo, logger: logger}
}

// AddSlot creates a free slot for the doctor after checking the [start, end)
// interval against the doctor's existing slots on that date.
func (s *SlotStore) AddSlot(ctx context.Context, doctorID uuid.UUID, date, start, end time.Time) (*Slot, error) {
	if date.IsZero() {
		return nil, ErrMissingDate
	}
	if !start.Before(end) {
		return nil, ErrInvalidSlot
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	overlap, err := s.repo.SlotOverlapExists(ctx, doctorID, date, start, end, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("check slot overlap: %w", err)
	}
	if overlap {
		return nil, ErrSlotOverlap
	}

	slot, err := s.repo.CreateSlot(ctx, &Slot{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("slot added", "slot_id", slot.ID, "doctor_id", doctorID, "date", date.Format("2006-01-02"))
	return slot, nil
}

// UpdateSlot merges the update with the stored values and re-runs the
// overlap check against the doctor's other slots, excluding this one.
func (s *SlotStore) UpdateSlot(ctx context.Context, doctorID, slotID uuid.UUID, upd SlotUpdate) (*Slot, error) {
	slot, err := s.repo.GetSlotForDoctor(ctx, slotID, doctorID)
	if err != nil {
		return nil, err
	}
	// Early reject; the repository re-checks this as part of the write,
	// which is what holds against a concurrent booking.
	if slot.IsBooked {
		return nil, ErrSlotBooked
	}

	newDate := slot.Date
	newStart := slot.StartTime
	newEnd := slot.EndTime
	if upd.Date != nil {
		newDate = *upd.Date
	}
	if upd.StartTime != nil {
		newStart = *upd.StartTime
	}
	if upd.EndTime != nil {
		newEnd = *upd.EndTime
	}
	// Keep the timestamps anchored to the slot date even when only one
	// of the three fields changed.
	newStart = onDate(newDate, newStart)
	newEnd = onDate(newDate, newEnd)

	if !newStart.Before(newEnd) {
		return nil, ErrInvalidSlot
	}

	overlap, err := s.repo.SlotOverlapExists(ctx, doctorID, newDate, newStart, newEnd, slotID)
	if err != nil {
		return nil, fmt.Errorf("check slot overlap: %w", err)
	}
	if overlap {
		return nil, ErrSlotOverlap
	}

	updated, err := s.repo.UpdateSlotTimes(ctx, slotID, newDate, newStart, newEnd)
	if err != nil {
		return nil, fmt.Errorf("update slot: %w", err)
	}

	s.logger.Info("slot updated", "slot_id", slotID, "doctor_id", doctorID)
	return updated, nil
}

// DeleteSlot removes a slot from the doctor's availability. Booked
// slots cannot be deleted; past appointments keep their reference
// because the repository tombstones the row rather than dropping it.
func (s *SlotStore) DeleteSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	slot, err := s.repo.GetSlotForDoctor(ctx, slotID, doctorID)
	if err != nil {
		return err
	}
	if slot.IsBooked {
		return ErrSlotBooked
	}

	if err := s.repo.DeleteSlot(ctx, slotID); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	s.logger.Info("slot deleted", "slot_id", slotID, "doctor_id", doctorID)
	return nil
}

func onDate(date, t time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

// ListSlots returns the doctor's slots ordered by date then start time.
func (s *SlotStore) ListSlots(ctx context.Context, doctorID uuid.UUID, date *time.Time, availableOnly bool) ([]Slot, error) {
	slots, err := s.repo.ListSlots(ctx, doctorID, date, availableOnly)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}
