package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
)

type mockEmailSender struct {
	sent    []EmailMessage
	callErr error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newMockService(t *testing.T, email EmailSender) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewService(mock, email, nil), mock
}

func TestNotifyInsertsRow(t *testing.T) {
	svc, mock := newMockService(t, nil)

	ev := scheduling.NotificationEvent{
		Kind:          scheduling.NotifyBooking,
		RecipientRole: scheduling.RoleDoctor,
		RecipientID:   uuid.New(),
		AppointmentID: uuid.New(),
		Title:         "New Appointment",
		Message:       "A new appointment has been booked.",
	}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(string(ev.RecipientRole), ev.RecipientID, &ev.AppointmentID, ev.Kind, ev.Title, ev.Message).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc.Notify(context.Background(), ev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyPatientRelaysEmail(t *testing.T) {
	email := &mockEmailSender{}
	svc, mock := newMockService(t, email)

	recipientID := uuid.New()
	ev := scheduling.NotificationEvent{
		Kind:          scheduling.NotifyBooking,
		RecipientRole: scheduling.RolePatient,
		RecipientID:   recipientID,
		AppointmentID: uuid.New(),
		Title:         "Appointment Booked",
		Message:       "Your appointment has been confirmed.",
	}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(string(ev.RecipientRole), ev.RecipientID, &ev.AppointmentID, ev.Kind, ev.Title, ev.Message).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	addr := "jane@example.com"
	mock.ExpectQuery("SELECT full_name, email FROM patients").
		WithArgs(recipientID).
		WillReturnRows(pgxmock.NewRows([]string{"full_name", "email"}).AddRow("Jane Doe", &addr))

	svc.Notify(context.Background(), ev)

	require.Len(t, email.sent, 1)
	assert.Equal(t, addr, email.sent[0].To)
	assert.Equal(t, ev.Title, email.sent[0].Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyPatientWithoutEmailSkipsRelay(t *testing.T) {
	email := &mockEmailSender{}
	svc, mock := newMockService(t, email)

	recipientID := uuid.New()
	ev := scheduling.NotificationEvent{
		Kind:          scheduling.NotifyReminder,
		RecipientRole: scheduling.RolePatient,
		RecipientID:   recipientID,
		AppointmentID: uuid.New(),
		Title:         "Appointment Reminder",
		Message:       "Your appointment starts soon.",
	}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(string(ev.RecipientRole), ev.RecipientID, &ev.AppointmentID, ev.Kind, ev.Title, ev.Message).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery("SELECT full_name, email FROM patients").
		WithArgs(recipientID).
		WillReturnRows(pgxmock.NewRows([]string{"full_name", "email"}).AddRow("Jane Doe", (*string)(nil)))

	svc.Notify(context.Background(), ev)

	assert.Empty(t, email.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifySwallowsInsertFailure(t *testing.T) {
	email := &mockEmailSender{}
	svc, mock := newMockService(t, email)

	ev := scheduling.NotificationEvent{
		Kind:          scheduling.NotifyCancel,
		RecipientRole: scheduling.RolePatient,
		RecipientID:   uuid.New(),
		AppointmentID: uuid.New(),
		Title:         "Appointment Cancelled",
		Message:       "Your appointment has been cancelled.",
	}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(string(ev.RecipientRole), ev.RecipientID, &ev.AppointmentID, ev.Kind, ev.Title, ev.Message).
		WillReturnError(errors.New("db down"))

	// Must not panic and must not attempt the email relay.
	svc.Notify(context.Background(), ev)
	assert.Empty(t, email.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	svc, mock := newMockService(t, nil)
	recipientID := uuid.New()

	mock.ExpectExec("UPDATE notifications").
		WithArgs(int64(7), string(scheduling.RolePatient), recipientID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := svc.MarkRead(context.Background(), scheduling.RolePatient, recipientID, 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCount(t *testing.T) {
	svc, mock := newMockService(t, nil)
	recipientID := uuid.New()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(string(scheduling.RoleDoctor), recipientID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := svc.UnreadCount(context.Background(), scheduling.RoleDoctor, recipientID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepRemindersNotifiesDue(t *testing.T) {
	svc, mock := newMockService(t, nil)

	apptID := uuid.New()
	patientID := uuid.New()
	start := time.Now().Add(20 * time.Minute)

	mock.ExpectQuery("SELECT a.id, a.patient_id, d.full_name, s.start_time").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "full_name", "start_time"}).
			AddRow(apptID, patientID, "Meredith Grey", start))

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(string(scheduling.RolePatient), patientID, &apptID,
			scheduling.NotifyReminder, "Appointment Reminder", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sent, err := svc.SweepReminders(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepRemindersNothingDue(t *testing.T) {
	svc, mock := newMockService(t, nil)

	mock.ExpectQuery("SELECT a.id, a.patient_id, d.full_name, s.start_time").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "full_name", "start_time"}))

	sent, err := svc.SweepReminders(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
