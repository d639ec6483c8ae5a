package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled          AppointmentStatus = "scheduled"
	StatusOTPPending         AppointmentStatus = "otp_pending"
	StatusCompleted          AppointmentStatus = "completed"
	StatusCancelled          AppointmentStatus = "cancelled"
	StatusEmergencyCancelled AppointmentStatus = "emergency_cancelled"
	StatusRescheduled        AppointmentStatus = "rescheduled"
)

// ValidStatus reports whether s is one of the six appointment statuses.
func ValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusScheduled, StatusOTPPending, StatusCompleted,
		StatusCancelled, StatusEmergencyCancelled, StatusRescheduled:
		return true
	}
	return false
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated principal behind a request. The core never
// reads ambient session state; every call carries its actor explicitly.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Doctor struct {
	ID             uuid.UUID
	Code           string
	Name           string
	Specialization string
	Hospital       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a doctor's availability window on a given date. For a doctor
// and date, [StartTime, EndTime) intervals never overlap.
type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	IsBooked  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotUpdate enumerates the mutable slot fields. Nil means keep the
// stored value. Unknown fields are rejected at the API boundary.
type SlotUpdate struct {
	Date      *time.Time
	StartTime *time.Time
	EndTime   *time.Time
}

type Appointment struct {
	ID        uuid.UUID
	Code      string
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    uuid.UUID
	Status    AppointmentStatus
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail carries the denormalized display fields joined from
// the slot, doctor and patient rows.
type AppointmentDetail struct {
	Appointment
	SlotDate       time.Time
	StartTime      time.Time
	EndTime        time.Time
	DoctorName     string
	Specialization string
	Hospital       *string
	PatientName    string
	PatientCode    string
}

// CheckinCode is a short-lived one-time code gating the transition into
// active consultation. At most one unverified code exists per appointment.
type CheckinCode struct {
	ID            int64
	AppointmentID uuid.UUID
	Code          string
	Verified      bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

type SchedulingEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
