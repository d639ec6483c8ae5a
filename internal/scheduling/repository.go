package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrCodeNotFound        = errors.New("check-in code not found")
)

// Repository contains all DB interactions needed by the slot store, the
// booking coordinator and the check-in gate.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Slots
	CreateSlot(ctx context.Context, s *Slot) (*Slot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetSlotForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Slot, error)
	SlotOverlapExists(ctx context.Context, doctorID uuid.UUID, date, start, end time.Time, excludeID uuid.UUID) (bool, error)
	// UpdateSlotTimes and DeleteSlot apply only to free slots. The
	// condition is part of the write itself; they return ErrSlotBooked
	// when a booking claimed the slot since the caller last read it.
	UpdateSlotTimes(ctx context.Context, id uuid.UUID, date, start, end time.Time) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	ListSlots(ctx context.Context, doctorID uuid.UUID, date *time.Time, availableOnly bool) ([]Slot, error)

	// Slot claim/release. ClaimSlot only succeeds if the slot is free,
	// which is what makes concurrent bookings lose cleanly.
	ClaimSlot(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseSlot(ctx context.Context, id uuid.UUID) error

	// Appointments
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error)
	MoveAppointmentSlot(ctx context.Context, id, newSlotID uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)

	// Check-in codes
	DeleteUnverifiedCodes(ctx context.Context, appointmentID uuid.UUID) error
	InsertCheckinCode(ctx context.Context, c *CheckinCode) (*CheckinCode, error)
	LatestUnverifiedCode(ctx context.Context, appointmentID uuid.UUID) (*CheckinCode, error)
	LatestCode(ctx context.Context, appointmentID uuid.UUID) (*CheckinCode, error)
	MarkCodeVerified(ctx context.Context, id int64) error

	// Event logging
	InsertEvent(ctx context.Context, ev SchedulingEvent) error

	// WithinTx runs fn against a transactional view of the repository.
	// All writes land on commit or none do.
	WithinTx(ctx context.Context, fn func(Repository) error) error
}
