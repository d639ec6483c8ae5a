package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinidesk/clinic-scheduling/internal/redis"
)

// memRepo is an in-memory Repository for unit tests. WithinTx runs the
// callback against the same store; transactional rollback is covered by
// the Postgres integration path, not here.
type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	slots        map[uuid.UUID]*Slot
	deletedSlots map[uuid.UUID]bool
	appointments map[uuid.UUID]*Appointment
	codes        []*CheckinCode
	events       []SchedulingEvent
	nextCodeID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		slots:        make(map[uuid.UUID]*Slot),
		deletedSlots: make(map[uuid.UUID]bool),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (m *memRepo) addDoctor() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.doctors[id] = &Doctor{ID: id, Code: "DOC-0001", Name: "Greg House", Specialization: "Diagnostics"}
	return id
}

func (m *memRepo) addPatient() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = &Patient{ID: id, Code: "PAT-000001", Name: "John Doe"}
	return id
}

func (m *memRepo) addSlot(doctorID uuid.UUID, date time.Time, startHour int, booked bool) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	start := time.Date(date.Year(), date.Month(), date.Day(), startHour, 0, 0, 0, time.UTC)
	m.slots[id] = &Slot{
		ID:        id,
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		IsBooked:  booked,
	}
	return id
}

func (m *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) CreateSlot(ctx context.Context, s *Slot) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.slots[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || m.deletedSlots[id] {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) GetSlotForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || m.deletedSlots[id] || s.DoctorID != doctorID {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) SlotOverlapExists(ctx context.Context, doctorID uuid.UUID, date, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.DoctorID != doctorID || s.ID == excludeID || m.deletedSlots[s.ID] {
			continue
		}
		if !sameDay(s.Date, date) {
			continue
		}
		if s.StartTime.Before(end) && s.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) UpdateSlotTimes(ctx context.Context, id uuid.UUID, date, start, end time.Time) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || m.deletedSlots[id] {
		return nil, ErrSlotNotFound
	}
	if s.IsBooked {
		return nil, ErrSlotBooked
	}
	s.Date = date
	s.StartTime = start
	s.EndTime = end
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memRepo) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || m.deletedSlots[id] {
		return ErrSlotNotFound
	}
	if s.IsBooked {
		return ErrSlotBooked
	}
	m.deletedSlots[id] = true
	return nil
}

func (m *memRepo) ListSlots(ctx context.Context, doctorID uuid.UUID, date *time.Time, availableOnly bool) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID != doctorID || m.deletedSlots[s.ID] {
			continue
		}
		if date != nil && !sameDay(s.Date, *date) {
			continue
		}
		if availableOnly && s.IsBooked {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (m *memRepo) ClaimSlot(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || m.deletedSlots[id] || s.IsBooked {
		return false, nil
	}
	s.IsBooked = true
	return true, nil
}

func (m *memRepo) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[id]; ok {
		s.IsBooked = false
	}
	return nil
}

func (m *memRepo) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appointments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.detailLocked(a), nil
}

func (m *memRepo) detailLocked(a *Appointment) *AppointmentDetail {
	d := &AppointmentDetail{Appointment: *a}
	if s, ok := m.slots[a.SlotID]; ok {
		d.SlotDate = s.Date
		d.StartTime = s.StartTime
		d.EndTime = s.EndTime
	}
	if doc, ok := m.doctors[a.DoctorID]; ok {
		d.DoctorName = doc.Name
		d.Specialization = doc.Specialization
		d.Hospital = doc.Hospital
	}
	if p, ok := m.patients[a.PatientID]; ok {
		d.PatientName = p.Name
		d.PatientCode = p.Code
	}
	return d
}

func (m *memRepo) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appointments {
		if a.PatientID != patientID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *m.detailLocked(a))
	}
	return out, nil
}

func (m *memRepo) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *m.detailLocked(a))
	}
	return out, nil
}

func (m *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || !statusIn(a.Status, from) {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) SetAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) MoveAppointmentSlot(ctx context.Context, id, newSlotID uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || !statusIn(a.Status, from) {
		return nil, ErrAppointmentNotFound
	}
	a.SlotID = newSlotID
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) DeleteUnverifiedCodes(ctx context.Context, appointmentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.codes[:0]
	for _, c := range m.codes {
		if c.AppointmentID == appointmentID && !c.Verified {
			continue
		}
		kept = append(kept, c)
	}
	m.codes = kept
	return nil
}

func (m *memRepo) InsertCheckinCode(ctx context.Context, c *CheckinCode) (*CheckinCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCodeID++
	cp := *c
	cp.ID = m.nextCodeID
	cp.CreatedAt = time.Now()
	m.codes = append(m.codes, &cp)
	out := cp
	return &out, nil
}

func (m *memRepo) LatestUnverifiedCode(ctx context.Context, appointmentID uuid.UUID) (*CheckinCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.codes) - 1; i >= 0; i-- {
		c := m.codes[i]
		if c.AppointmentID == appointmentID && !c.Verified {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (m *memRepo) LatestCode(ctx context.Context, appointmentID uuid.UUID) (*CheckinCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].AppointmentID == appointmentID {
			cp := *m.codes[i]
			return &cp, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (m *memRepo) MarkCodeVerified(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.ID == id {
			c.Verified = true
			return nil
		}
	}
	return ErrCodeNotFound
}

func (m *memRepo) InsertEvent(ctx context.Context, ev SchedulingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) WithinTx(ctx context.Context, fn func(Repository) error) error {
	return fn(m)
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// stubLocker runs the callback inline, or refuses with the configured
// error to simulate lock contention.
type stubLocker struct {
	err error
}

func (l stubLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

var _ redisclient.Locker = stubLocker{}

// recordingNotifier captures notification events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, ev NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) byKind(kind string) []NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NotificationEvent
	for _, ev := range n.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
