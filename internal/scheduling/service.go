package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/clinidesk/clinic-scheduling/internal/redis"
	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

const (
	EventAppointmentBooked             = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled          = "APPOINTMENT_CANCELLED"
	EventAppointmentEmergencyCancelled = "APPOINTMENT_EMERGENCY_CANCELLED"
	EventAppointmentRescheduled        = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatusUpdated      = "APPOINTMENT_STATUS_UPDATED"
)

var (
	ErrSlotUnavailable  = errors.New("slot is no longer available")
	ErrSlotOwnership    = errors.New("slot does not belong to this doctor")
	ErrNotOwner         = errors.New("actor does not own this resource")
	ErrNotCancellable   = errors.New("appointment cannot be cancelled in its current state")
	ErrNotReschedulable = errors.New("appointment cannot be rescheduled in its current state")
	ErrInvalidStatus    = errors.New("invalid appointment status")
)

// Coordinator owns the atomic slot-claim + appointment transitions. Each
// transition runs under a per-slot lock and inside a single transaction,
// so slot state and appointment state never disagree.
type Coordinator struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

func NewCoordinator(repo Repository, locker redisclient.Locker, notifier Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

type BookRequest struct {
	SlotID   uuid.UUID
	DoctorID uuid.UUID // optional, resolved from the slot when zero
	Reason   *string
}

// Book claims a free slot for the acting patient and creates the
// appointment in the same transaction. The slot claim is a conditional
// update re-checked inside the transaction, so two concurrent bookers
// cannot both observe "free".
func (c *Coordinator) Book(ctx context.Context, actor Actor, req BookRequest) (*AppointmentDetail, error) {
	start := time.Now()

	if actor.Role != RolePatient {
		return nil, ErrNotOwner
	}
	if _, err := c.repo.GetPatientByID(ctx, actor.ID); err != nil {
		return nil, err
	}

	slot, err := c.repo.GetSlotByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			c.metrics.ObserveTransition("book", "unavailable")
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}

	doctorID := slot.DoctorID
	if req.DoctorID != uuid.Nil && req.DoctorID != slot.DoctorID {
		return nil, ErrSlotOwnership
	}

	var created *Appointment
	err = c.withSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		return c.repo.WithinTx(lockCtx, func(tx Repository) error {
			claimed, err := tx.ClaimSlot(lockCtx, req.SlotID)
			if err != nil {
				return err
			}
			if !claimed {
				return ErrSlotUnavailable
			}

			appt, err := tx.CreateAppointment(lockCtx, &Appointment{
				ID:        uuid.New(),
				Code:      newAppointmentCode(),
				PatientID: actor.ID,
				DoctorID:  doctorID,
				SlotID:    req.SlotID,
				Status:    StatusScheduled,
				Reason:    req.Reason,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			created = appt

			c.logEvent(lockCtx, tx, appt.ID, EventAppointmentBooked, map[string]any{
				"slot_id":    req.SlotID.String(),
				"patient_id": actor.ID.String(),
				"doctor_id":  doctorID.String(),
			})
			return nil
		})
	})
	if err != nil {
		c.metrics.ObserveTransition("book", outcomeLabel(err))
		return nil, err
	}

	detail, err := c.repo.GetAppointmentDetail(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("load appointment detail: %w", err)
	}

	c.metrics.ObserveTransition("book", "success")
	c.metrics.ObserveBookingLatency(time.Since(start).Seconds())
	c.logger.Info("appointment booked",
		"appointment_id", created.ID, "code", created.Code,
		"slot_id", req.SlotID, "patient_id", actor.ID, "doctor_id", doctorID)

	when := detail.SlotDate.Format("2006-01-02") + " at " + detail.StartTime.Format("15:04")
	c.notifier.Notify(ctx, NotificationEvent{
		Kind:          NotifyBooking,
		RecipientRole: RolePatient,
		RecipientID:   actor.ID,
		AppointmentID: created.ID,
		Title:         "Appointment Booked",
		Message:       fmt.Sprintf("Your appointment has been confirmed for %s.", when),
	})
	c.notifier.Notify(ctx, NotificationEvent{
		Kind:          NotifyBooking,
		RecipientRole: RoleDoctor,
		RecipientID:   doctorID,
		AppointmentID: created.ID,
		Title:         "New Appointment",
		Message:       fmt.Sprintf("A new appointment has been booked for %s.", when),
	})

	return detail, nil
}

// Cancel moves a scheduled appointment to cancelled and frees its slot.
func (c *Coordinator) Cancel(ctx context.Context, actor Actor, appointmentID uuid.UUID) error {
	appt, err := c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if err := c.requireOwnership(actor, appt); err != nil {
		return err
	}

	err = c.withSlotLock(ctx, appt.SlotID, func(lockCtx context.Context) error {
		return c.repo.WithinTx(lockCtx, func(tx Repository) error {
			updated, err := tx.UpdateAppointmentStatus(lockCtx, appt.ID,
				[]AppointmentStatus{StatusScheduled}, StatusCancelled)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return ErrNotCancellable
				}
				return fmt.Errorf("cancel appointment: %w", err)
			}
			if err := tx.ReleaseSlot(lockCtx, updated.SlotID); err != nil {
				return err
			}
			c.logEvent(lockCtx, tx, appt.ID, EventAppointmentCancelled, map[string]any{
				"cancelled_by": string(actor.Role),
			})
			return nil
		})
	})
	if err != nil {
		c.metrics.ObserveTransition("cancel", outcomeLabel(err))
		return err
	}

	c.metrics.ObserveTransition("cancel", "success")
	c.logger.Info("appointment cancelled", "appointment_id", appt.ID, "by", actor.Role)

	if actor.Role == RolePatient {
		c.notifier.Notify(ctx, NotificationEvent{
			Kind:          NotifyCancel,
			RecipientRole: RoleDoctor,
			RecipientID:   appt.DoctorID,
			AppointmentID: appt.ID,
			Title:         "Appointment Cancelled",
			Message:       "An appointment has been cancelled by the patient.",
		})
	} else {
		c.notifier.Notify(ctx, NotificationEvent{
			Kind:          NotifyCancel,
			RecipientRole: RolePatient,
			RecipientID:   appt.PatientID,
			AppointmentID: appt.ID,
			Title:         "Appointment Cancelled",
			Message:       "Your appointment has been cancelled by the doctor.",
		})
	}
	return nil
}

// EmergencyCancel is restricted to the owning doctor; it returns the
// patient id so the caller can follow up.
func (c *Coordinator) EmergencyCancel(ctx context.Context, actor Actor, appointmentID uuid.UUID) (uuid.UUID, error) {
	if actor.Role != RoleDoctor {
		return uuid.Nil, ErrNotOwner
	}

	appt, err := c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return uuid.Nil, err
	}
	if appt.DoctorID != actor.ID {
		return uuid.Nil, ErrNotOwner
	}

	err = c.withSlotLock(ctx, appt.SlotID, func(lockCtx context.Context) error {
		return c.repo.WithinTx(lockCtx, func(tx Repository) error {
			updated, err := tx.UpdateAppointmentStatus(lockCtx, appt.ID,
				[]AppointmentStatus{StatusScheduled}, StatusEmergencyCancelled)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return ErrNotCancellable
				}
				return fmt.Errorf("emergency cancel: %w", err)
			}
			if err := tx.ReleaseSlot(lockCtx, updated.SlotID); err != nil {
				return err
			}
			c.logEvent(lockCtx, tx, appt.ID, EventAppointmentEmergencyCancelled, map[string]any{
				"doctor_id": actor.ID.String(),
			})
			return nil
		})
	})
	if err != nil {
		c.metrics.ObserveTransition("emergency_cancel", outcomeLabel(err))
		return uuid.Nil, err
	}

	c.metrics.ObserveTransition("emergency_cancel", "success")
	c.logger.Info("appointment emergency cancelled", "appointment_id", appt.ID, "doctor_id", actor.ID)

	c.notifier.Notify(ctx, NotificationEvent{
		Kind:          NotifyEmergency,
		RecipientRole: RolePatient,
		RecipientID:   appt.PatientID,
		AppointmentID: appt.ID,
		Title:         "Emergency: Appointment Cancelled",
		Message:       "Your appointment has been cancelled due to an emergency. Please reschedule at your earliest convenience.",
	})

	return appt.PatientID, nil
}

var reschedulableStatuses = []AppointmentStatus{StatusScheduled, StatusEmergencyCancelled}

// Reschedule moves the appointment to a free slot, releasing the old one
// and claiming the new one in a single transaction.
func (c *Coordinator) Reschedule(ctx context.Context, actor Actor, appointmentID, newSlotID uuid.UUID) (*AppointmentDetail, error) {
	if actor.Role != RolePatient {
		return nil, ErrNotOwner
	}

	appt, err := c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actor.ID {
		return nil, ErrNotOwner
	}
	if !statusIn(appt.Status, reschedulableStatuses) {
		return nil, ErrNotReschedulable
	}

	oldSlotID := appt.SlotID

	err = c.withSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		return c.repo.WithinTx(lockCtx, func(tx Repository) error {
			claimed, err := tx.ClaimSlot(lockCtx, newSlotID)
			if err != nil {
				return err
			}
			if !claimed {
				return ErrSlotUnavailable
			}
			if err := tx.ReleaseSlot(lockCtx, oldSlotID); err != nil {
				return err
			}
			if _, err := tx.MoveAppointmentSlot(lockCtx, appt.ID, newSlotID,
				reschedulableStatuses, StatusRescheduled); err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return ErrNotReschedulable
				}
				return fmt.Errorf("move appointment: %w", err)
			}
			c.logEvent(lockCtx, tx, appt.ID, EventAppointmentRescheduled, map[string]any{
				"old_slot_id": oldSlotID.String(),
				"new_slot_id": newSlotID.String(),
			})
			return nil
		})
	})
	if err != nil {
		c.metrics.ObserveTransition("reschedule", outcomeLabel(err))
		return nil, err
	}

	detail, err := c.repo.GetAppointmentDetail(ctx, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("load appointment detail: %w", err)
	}

	c.metrics.ObserveTransition("reschedule", "success")
	c.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID, "old_slot_id", oldSlotID, "new_slot_id", newSlotID)

	c.notifier.Notify(ctx, NotificationEvent{
		Kind:          NotifyReschedule,
		RecipientRole: RoleDoctor,
		RecipientID:   appt.DoctorID,
		AppointmentID: appt.ID,
		Title:         "Appointment Rescheduled",
		Message: fmt.Sprintf("An appointment has been rescheduled to %s at %s.",
			detail.SlotDate.Format("2006-01-02"), detail.StartTime.Format("15:04")),
	})

	return detail, nil
}

// UpdateStatus is the doctor-only direct status set, used for marking
// an appointment completed.
func (c *Coordinator) UpdateStatus(ctx context.Context, actor Actor, appointmentID uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	if actor.Role != RoleDoctor && actor.Role != RoleAdmin {
		return nil, ErrNotOwner
	}

	appt, err := c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleDoctor && appt.DoctorID != actor.ID {
		return nil, ErrNotOwner
	}

	var updated *Appointment
	err = c.repo.WithinTx(ctx, func(tx Repository) error {
		u, err := tx.SetAppointmentStatus(ctx, appointmentID, status)
		if err != nil {
			return err
		}
		updated = u
		c.logEvent(ctx, tx, appointmentID, EventAppointmentStatusUpdated, map[string]any{
			"status": string(status),
		})
		return nil
	})
	if err != nil {
		c.metrics.ObserveTransition("update_status", outcomeLabel(err))
		return nil, err
	}

	c.metrics.ObserveTransition("update_status", "success")
	c.logger.Info("appointment status updated", "appointment_id", appointmentID, "status", status)
	return updated, nil
}

// GetAppointment returns the denormalized view, scoped to the actor.
func (c *Coordinator) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := c.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case RolePatient:
		if detail.PatientID != actor.ID {
			return nil, ErrNotOwner
		}
	case RoleDoctor:
		if detail.DoctorID != actor.ID {
			return nil, ErrNotOwner
		}
	}
	return detail, nil
}

func (c *Coordinator) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	if status != nil && !ValidStatus(*status) {
		return nil, ErrInvalidStatus
	}
	return c.repo.ListPatientAppointments(ctx, patientID, status)
}

func (c *Coordinator) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	if status != nil && !ValidStatus(*status) {
		return nil, ErrInvalidStatus
	}
	return c.repo.ListDoctorAppointments(ctx, doctorID, status)
}

// withSlotLock serializes transitions touching the same slot. A lock
// miss means another request is mid-transition on this slot; per the
// no-waiting rule it surfaces immediately as an unavailable slot.
func (c *Coordinator) withSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	err := c.locker.WithSlotLock(ctx, slotID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotUnavailable
	}
	return err
}

func (c *Coordinator) requireOwnership(actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.ID {
			return ErrNotOwner
		}
	case RoleDoctor:
		if appt.DoctorID != actor.ID {
			return ErrNotOwner
		}
	case RoleAdmin:
	default:
		return ErrNotOwner
	}
	return nil
}

func (c *Coordinator) logEvent(ctx context.Context, repo Repository, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID
	ev := SchedulingEvent{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := repo.InsertEvent(ctx, ev); err != nil {
		c.logger.Error("insert scheduling event", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}

func statusIn(s AppointmentStatus, set []AppointmentStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrNotReschedulable):
		return "invalid_state"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrSlotOwnership):
		return "forbidden"
	default:
		return "error"
	}
}

// newAppointmentCode builds the human-facing code, e.g. APT-3FA29C01.
func newAppointmentCode() string {
	return "APT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
