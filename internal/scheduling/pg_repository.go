package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. pgx.Tx satisfies
// it as well, which is how WithinTx hands out a transactional view.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Name,
		&d.Specialization,
		&d.Hospital,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.IsBooked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.Code,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.PatientID,
		&d.DoctorID,
		&d.SlotID,
		&d.Status,
		&d.Reason,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.SlotDate,
		&d.StartTime,
		&d.EndTime,
		&d.DoctorName,
		&d.Specialization,
		&d.Hospital,
		&d.PatientName,
		&d.PatientCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanCheckinCode(row pgx.Row) (*CheckinCode, error) {
	var c CheckinCode
	err := row.Scan(
		&c.ID,
		&c.AppointmentID,
		&c.Code,
		&c.Verified,
		&c.ExpiresAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &c, nil
}

func statusStrings(in []AppointmentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// Doctors and patients

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, code, full_name, specialization, hospital, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, code, full_name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Slots

func (r *PgRepository) CreateSlot(ctx context.Context, s *Slot) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO slots (id, doctor_id, slot_date, start_time, end_time, is_booked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, now(), now())
		RETURNING id, doctor_id, slot_date, start_time, end_time, is_booked, created_at, updated_at
	`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime)
	return scanSlot(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, slot_date, start_time, end_time, is_booked, created_at, updated_at
		FROM slots
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetSlotForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, slot_date, start_time, end_time, is_booked, created_at, updated_at
		FROM slots
		WHERE id = $1 AND doctor_id = $2
		  AND deleted_at IS NULL
	`, id, doctorID)
	return scanSlot(row)
}

// SlotOverlapExists checks the [start, end) interval against the doctor's
// other slots on the same date. Two intervals intersect iff each starts
// before the other ends.
func (r *PgRepository) SlotOverlapExists(ctx context.Context, doctorID uuid.UUID, date, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE doctor_id = $1
			  AND slot_date = $2
			  AND id <> $3
			  AND deleted_at IS NULL
			  AND start_time < $5
			  AND end_time > $4
		)
	`, doctorID, date, excludeID, start, end).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateSlotTimes only writes while the slot is still free. The guard
// is part of the UPDATE itself, so a booking claiming the slot after
// the caller's own check cannot have its slot edited under it.
func (r *PgRepository) UpdateSlotTimes(ctx context.Context, id uuid.UUID, date, start, end time.Time) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET slot_date = $2,
		    start_time = $3,
		    end_time = $4,
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = false
		  AND deleted_at IS NULL
		RETURNING id, doctor_id, slot_date, start_time, end_time, is_booked, created_at, updated_at
	`, id, date, start, end)
	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, r.slotWriteMiss(ctx, id)
	}
	return slot, err
}

// DeleteSlot tombstones the row instead of removing it; appointments
// that ever referenced the slot keep a valid slot_id. Same free-slot
// condition as UpdateSlotTimes.
func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET deleted_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = false
		  AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("tombstone slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.slotWriteMiss(ctx, id)
	}
	return nil
}

// slotWriteMiss explains why a conditional slot write matched no rows.
func (r *PgRepository) slotWriteMiss(ctx context.Context, id uuid.UUID) error {
	var booked bool
	err := r.db.QueryRow(ctx, `
		SELECT is_booked FROM slots
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id).Scan(&booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return err
	}
	if booked {
		return ErrSlotBooked
	}
	return ErrSlotNotFound
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, date *time.Time, availableOnly bool) ([]Slot, error) {
	query := `
		SELECT id, doctor_id, slot_date, start_time, end_time, is_booked, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1 AND deleted_at IS NULL`
	args := []any{doctorID}

	if date != nil {
		args = append(args, *date)
		query += fmt.Sprintf(" AND slot_date = $%d", len(args))
	}
	if availableOnly {
		query += " AND is_booked = false"
	}
	query += " ORDER BY slot_date, start_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ClaimSlot(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET is_booked = true,
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = false
		  AND deleted_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim slot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE slots
		SET is_booked = false,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, code, patient_id, doctor_id, slot_id, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, code, patient_id, doctor_id, slot_id, status, reason, created_at, updated_at
	`, a.ID, a.Code, a.PatientID, a.DoctorID, a.SlotID, a.Status, a.Reason)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, code, patient_id, doctor_id, slot_id, status, reason, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

const appointmentDetailColumns = `
	a.id, a.code, a.patient_id, a.doctor_id, a.slot_id, a.status, a.reason, a.created_at, a.updated_at,
	s.slot_date, s.start_time, s.end_time,
	d.full_name, d.specialization, d.hospital,
	p.full_name, p.code`

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+appointmentDetailColumns+`
		FROM appointments a
		JOIN slots s ON a.slot_id = s.id
		JOIN doctors d ON a.doctor_id = d.id
		JOIN patients p ON a.patient_id = p.id
		WHERE a.id = $1
	`, id)
	return scanAppointmentDetail(row)
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, "a.patient_id", patientID, status)
}

func (r *PgRepository) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, "a.doctor_id", doctorID, status)
}

func (r *PgRepository) listAppointments(ctx context.Context, keyColumn string, keyID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	query := `
		SELECT` + appointmentDetailColumns + `
		FROM appointments a
		JOIN slots s ON a.slot_id = s.id
		JOIN doctors d ON a.doctor_id = d.id
		JOIN patients p ON a.patient_id = p.id
		WHERE ` + keyColumn + ` = $1`
	args := []any{keyID}

	if status != nil {
		args = append(args, string(*status))
		query += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	query += " ORDER BY s.slot_date DESC, s.start_time DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateAppointmentStatus is a compare-and-set: the update only lands if
// the current status is one of from.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING id, code, patient_id, doctor_id, slot_id, status, reason, created_at, updated_at
	`, id, to, statusStrings(from))
	return scanAppointment(row)
}

func (r *PgRepository) SetAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, code, patient_id, doctor_id, slot_id, status, reason, created_at, updated_at
	`, id, to)
	return scanAppointment(row)
}

func (r *PgRepository) MoveAppointmentSlot(ctx context.Context, id, newSlotID uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING id, code, patient_id, doctor_id, slot_id, status, reason, created_at, updated_at
	`, id, newSlotID, to, statusStrings(from))
	return scanAppointment(row)
}

// Check-in codes

func (r *PgRepository) DeleteUnverifiedCodes(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM checkin_codes
		WHERE appointment_id = $1
		  AND verified = false
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("delete unverified codes: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertCheckinCode(ctx context.Context, c *CheckinCode) (*CheckinCode, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO checkin_codes (appointment_id, code, verified, expires_at, created_at)
		VALUES ($1, $2, false, $3, now())
		RETURNING id, appointment_id, code, verified, expires_at, created_at
	`, c.AppointmentID, c.Code, c.ExpiresAt)
	return scanCheckinCode(row)
}

func (r *PgRepository) LatestUnverifiedCode(ctx context.Context, appointmentID uuid.UUID) (*CheckinCode, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, appointment_id, code, verified, expires_at, created_at
		FROM checkin_codes
		WHERE appointment_id = $1
		  AND verified = false
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID)
	return scanCheckinCode(row)
}

func (r *PgRepository) LatestCode(ctx context.Context, appointmentID uuid.UUID) (*CheckinCode, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, appointment_id, code, verified, expires_at, created_at
		FROM checkin_codes
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID)
	return scanCheckinCode(row)
}

func (r *PgRepository) MarkCodeVerified(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE checkin_codes
		SET verified = true
		WHERE id = $1
		  AND verified = false
	`, id)
	if err != nil {
		return fmt.Errorf("mark code verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev SchedulingEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO scheduling_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert scheduling event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
