package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

// Notification is a durable per-recipient message row.
type Notification struct {
	ID            int64
	RecipientRole scheduling.Role
	RecipientID   uuid.UUID
	AppointmentID *uuid.UUID
	Kind          string
	Title         string
	Message       string
	IsRead        bool
	CreatedAt     time.Time
}

// Service is the concrete Notification Sink: it persists notification
// rows and optionally relays them by email. It never propagates failures
// to the caller; a missed notification must not undo a committed
// transition.
type Service struct {
	db     scheduling.DB
	email  EmailSender
	logger *logging.Logger
}

func NewService(db scheduling.DB, email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, email: email, logger: logger}
}

// Notify implements scheduling.Notifier.
func (s *Service) Notify(ctx context.Context, ev scheduling.NotificationEvent) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (recipient_role, recipient_id, appointment_id, kind, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, now())
	`, string(ev.RecipientRole), ev.RecipientID, nullableUUID(ev.AppointmentID), ev.Kind, ev.Title, ev.Message)
	if err != nil {
		s.logger.Error("insert notification", "kind", ev.Kind, "recipient_id", ev.RecipientID, "error", err)
		return
	}

	if s.email != nil && ev.RecipientRole == scheduling.RolePatient {
		s.relayEmail(ctx, ev)
	}
}

// relayEmail best-effort sends the event to the patient's email address,
// when one is on file.
func (s *Service) relayEmail(ctx context.Context, ev scheduling.NotificationEvent) {
	var name string
	var email *string
	err := s.db.QueryRow(ctx, `
		SELECT full_name, email FROM patients WHERE id = $1
	`, ev.RecipientID).Scan(&name, &email)
	if err != nil {
		s.logger.Error("load patient for email relay", "recipient_id", ev.RecipientID, "error", err)
		return
	}
	if email == nil || *email == "" {
		return
	}

	if err := s.email.Send(ctx, EmailMessage{
		To:      *email,
		ToName:  name,
		Subject: ev.Title,
		Body:    ev.Message,
	}); err != nil {
		s.logger.Error("email relay failed", "recipient_id", ev.RecipientID, "error", err)
	}
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, role scheduling.Role, recipientID uuid.UUID, unreadOnly bool) ([]Notification, error) {
	query := `
		SELECT id, recipient_role, recipient_id, appointment_id, kind, title, message, is_read, created_at
		FROM notifications
		WHERE recipient_role = $1 AND recipient_id = $2`
	if unreadOnly {
		query += " AND is_read = false"
	}
	query += " ORDER BY created_at DESC LIMIT 50"

	rows, err := s.db.Query(ctx, query, string(role), recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientRole,
			&n.RecipientID,
			&n.AppointmentID,
			&n.Kind,
			&n.Title,
			&n.Message,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkRead marks one notification read, scoped to the recipient.
func (s *Service) MarkRead(ctx context.Context, role scheduling.Role, recipientID uuid.UUID, notificationID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1 AND recipient_role = $2 AND recipient_id = $3
	`, notificationID, string(role), recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification read for the recipient.
func (s *Service) MarkAllRead(ctx context.Context, role scheduling.Role, recipientID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE recipient_role = $1 AND recipient_id = $2
	`, string(role), recipientID)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// UnreadCount counts unread notifications for the recipient.
func (s *Service) UnreadCount(ctx context.Context, role scheduling.Role, recipientID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_role = $1 AND recipient_id = $2 AND is_read = false
	`, string(role), recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// SweepReminders inserts reminder notifications for active appointments
// starting within the window that have not been reminded yet. It is
// driven by the reminder worker on a timer.
func (s *Service) SweepReminders(ctx context.Context, window time.Duration) (int, error) {
	now := time.Now()
	until := now.Add(window)

	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.patient_id, d.full_name, s.start_time
		FROM appointments a
		JOIN slots s ON a.slot_id = s.id
		JOIN doctors d ON a.doctor_id = d.id
		WHERE a.status IN ('scheduled', 'otp_pending')
		  AND s.start_time > $1
		  AND s.start_time <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.appointment_id = a.id AND n.kind = 'reminder'
		  )
	`, now, until)
	if err != nil {
		return 0, fmt.Errorf("find upcoming appointments: %w", err)
	}
	defer rows.Close()

	type upcoming struct {
		apptID     uuid.UUID
		patientID  uuid.UUID
		doctorName string
		startTime  time.Time
	}
	var due []upcoming
	for rows.Next() {
		var u upcoming
		if err := rows.Scan(&u.apptID, &u.patientID, &u.doctorName, &u.startTime); err != nil {
			return 0, err
		}
		due = append(due, u)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	sent := 0
	for _, u := range due {
		s.Notify(ctx, scheduling.NotificationEvent{
			Kind:          scheduling.NotifyReminder,
			RecipientRole: scheduling.RolePatient,
			RecipientID:   u.patientID,
			AppointmentID: u.apptID,
			Title:         "Appointment Reminder",
			Message: fmt.Sprintf("Reminder: your appointment with Dr. %s starts at %s.",
				u.doctorName, u.startTime.Format("15:04")),
		})
		sent++
	}

	if sent > 0 {
		s.logger.Info("reminder sweep complete", "sent", sent)
	}
	return sent, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
