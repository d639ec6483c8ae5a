package scheduling

import (
	"context"

	"github.com/google/uuid"
)

const (
	NotifyBooking     = "booking"
	NotifyCancel      = "cancellation"
	NotifyEmergency   = "emergency"
	NotifyReschedule  = "reschedule"
	NotifyCheckinCode = "checkin"
	NotifyReminder    = "reminder"
)

// NotificationEvent describes a committed transition a recipient should
// hear about.
type NotificationEvent struct {
	Kind          string
	RecipientRole Role
	RecipientID   uuid.UUID
	AppointmentID uuid.UUID
	Title         string
	Message       string
}

// Notifier relays events to patients and doctors. It is called only
// after a transition has committed, fire-and-forget: implementations
// swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, ev NotificationEvent)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, NotificationEvent) {}
