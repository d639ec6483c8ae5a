package scheduling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/observability/metrics"
	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

const (
	EventCheckinIssued   = "CHECKIN_CODE_ISSUED"
	EventCheckinVerified = "CHECKIN_CODE_VERIFIED"

	checkinCodeLength = 6
)

var (
	ErrInvalidCode = errors.New("invalid check-in code")
	ErrCodeExpired = errors.New("check-in code has expired")
)

// CheckinGate manages the one-time code gating the transition into
// active consultation. Issuing a code invalidates any prior unverified
// one; a verified code is consumed and cannot match again.
type CheckinGate struct {
	repo    Repository
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

func NewCheckinGate(repo Repository, m *metrics.SchedulingMetrics, logger *logging.Logger) *CheckinGate {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckinGate{repo: repo, metrics: m, logger: logger}
}

type IssueCodeParams struct {
	TTL        time.Duration
	SetPending bool // flip the appointment to otp_pending
}

// IssueCode creates a fresh numeric code with an absolute expiry. Two
// call profiles exist: a short-lived code during active check-in (which
// flips the appointment to otp_pending) and a long-lived code issued at
// booking time by the chatbot flow (which does not).
func (g *CheckinGate) IssueCode(ctx context.Context, appointmentID uuid.UUID, params IssueCodeParams) (*CheckinCode, error) {
	if _, err := g.repo.GetAppointmentByID(ctx, appointmentID); err != nil {
		return nil, err
	}

	var issued *CheckinCode
	err := g.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.DeleteUnverifiedCodes(ctx, appointmentID); err != nil {
			return err
		}

		code, err := tx.InsertCheckinCode(ctx, &CheckinCode{
			AppointmentID: appointmentID,
			Code:          generateNumericCode(checkinCodeLength),
			ExpiresAt:     time.Now().Add(params.TTL),
		})
		if err != nil {
			return fmt.Errorf("insert check-in code: %w", err)
		}
		issued = code

		if params.SetPending {
			if _, err := tx.SetAppointmentStatus(ctx, appointmentID, StatusOTPPending); err != nil {
				return fmt.Errorf("set otp_pending: %w", err)
			}
		}

		apptID := appointmentID
		return tx.InsertEvent(ctx, SchedulingEvent{
			EventType:     EventCheckinIssued,
			AppointmentID: &apptID,
			CreatedAt:     time.Now(),
		})
	})
	if err != nil {
		g.metrics.ObserveCheckin("issue", "error")
		return nil, err
	}

	g.metrics.ObserveCheckin("issue", "success")
	g.logger.Info("check-in code issued",
		"appointment_id", appointmentID, "expires_at", issued.ExpiresAt, "set_pending", params.SetPending)
	return issued, nil
}

// VerifyCode matches the submitted code against the latest unverified
// one. Expiry is checked against the stored absolute timestamp. On a
// match the code is consumed and the appointment flips back to scheduled.
func (g *CheckinGate) VerifyCode(ctx context.Context, appointmentID uuid.UUID, code string) error {
	record, err := g.repo.LatestUnverifiedCode(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			g.metrics.ObserveCheckin("verify", "invalid")
			return ErrInvalidCode
		}
		return err
	}

	if record.Code != code {
		g.metrics.ObserveCheckin("verify", "invalid")
		return ErrInvalidCode
	}
	if time.Now().After(record.ExpiresAt) {
		g.metrics.ObserveCheckin("verify", "expired")
		return ErrCodeExpired
	}

	err = g.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.MarkCodeVerified(ctx, record.ID); err != nil {
			return err
		}
		if _, err := tx.SetAppointmentStatus(ctx, appointmentID, StatusScheduled); err != nil {
			return fmt.Errorf("restore scheduled status: %w", err)
		}
		apptID := appointmentID
		return tx.InsertEvent(ctx, SchedulingEvent{
			EventType:     EventCheckinVerified,
			AppointmentID: &apptID,
			CreatedAt:     time.Now(),
		})
	})
	if err != nil {
		g.metrics.ObserveCheckin("verify", "error")
		return err
	}

	g.metrics.ObserveCheckin("verify", "success")
	g.logger.Info("check-in code verified", "appointment_id", appointmentID)
	return nil
}

type CodeStatus struct {
	Verified  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Status reports the latest code's state, verified or not.
func (g *CheckinGate) Status(ctx context.Context, appointmentID uuid.UUID) (*CodeStatus, error) {
	record, err := g.repo.LatestCode(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return &CodeStatus{
		Verified:  record.Verified,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

func generateNumericCode(length int) string {
	const digits = "0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return string(b)
}
