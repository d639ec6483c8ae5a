package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/notify"
	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
)

type AddSlotRequest struct {
	Date      string `json:"date"`       // 2006-01-02
	StartTime string `json:"start_time"` // 15:04
	EndTime   string `json:"end_time"`   // 15:04
}

type UpdateSlotRequest struct {
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

type BookAppointmentRequest struct {
	SlotID   string  `json:"slot_id"`
	DoctorID *string `json:"doctor_id,omitempty"`
	Reason   *string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type IssueCodeRequest struct {
	Profile string `json:"profile,omitempty"` // "checkin" (default) or "booking"
}

type VerifyCodeRequest struct {
	Code string `json:"code"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	IsBooked  bool      `json:"is_booked"`
}

func toSlotResponse(s *scheduling.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.Format("2006-01-02"),
		StartTime: s.StartTime.Format("15:04"),
		EndTime:   s.EndTime.Format("15:04"),
		IsBooked:  s.IsBooked,
	}
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	PatientID      uuid.UUID `json:"patient_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	SlotID         uuid.UUID `json:"slot_id"`
	Status         string    `json:"status"`
	Reason         *string   `json:"reason,omitempty"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	DoctorName     string    `json:"doctor_name"`
	Specialization string    `json:"specialization"`
	Hospital       *string   `json:"hospital,omitempty"`
	PatientName    string    `json:"patient_name"`
	PatientCode    string    `json:"patient_code"`
}

func toAppointmentResponse(d *scheduling.AppointmentDetail) AppointmentResponse {
	return AppointmentResponse{
		ID:             d.ID,
		Code:           d.Code,
		PatientID:      d.PatientID,
		DoctorID:       d.DoctorID,
		SlotID:         d.SlotID,
		Status:         string(d.Status),
		Reason:         d.Reason,
		Date:           d.SlotDate.Format("2006-01-02"),
		StartTime:      d.StartTime.Format("15:04"),
		EndTime:        d.EndTime.Format("15:04"),
		DoctorName:     d.DoctorName,
		Specialization: d.Specialization,
		Hospital:       d.Hospital,
		PatientName:    d.PatientName,
		PatientCode:    d.PatientCode,
	}
}

type CheckinCodeResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Code          string    `json:"code"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type CodeStatusResponse struct {
	Verified  bool      `json:"verified"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationResponse struct {
	ID            int64      `json:"id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toNotificationResponse(n notify.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		Kind:          n.Kind,
		Title:         n.Title,
		Message:       n.Message,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt,
	}
}

// parseDate parses a calendar date in 2006-01-02 form.
func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

// parseTimeOn combines a wall-clock HH:MM with the given date.
func parseTimeOn(date time.Time, raw string) (time.Time, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be HH:MM: %w", err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
