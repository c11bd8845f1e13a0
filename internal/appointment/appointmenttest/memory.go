// Package appointmenttest provides in-memory stand-ins for the appointment
// repository and slot locker.
package appointmenttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	redisclient "github.com/hospital/appointment-scheduling/internal/redis"
)

// Repository keeps everything in maps and enforces the same single-accepted
// per slot rule the Postgres index does.
type Repository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]appointment.Doctor
	patients     map[uuid.UUID]appointment.Patient
	appointments map[uuid.UUID]appointment.Appointment
	tests        []appointment.RoutineTest
	events       []appointment.EventLog

	// EventErr, when set, is returned by InsertEvent.
	EventErr error
	clock    int64
}

var _ appointment.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		doctors:      make(map[uuid.UUID]appointment.Doctor),
		patients:     make(map[uuid.UUID]appointment.Patient),
		appointments: make(map[uuid.UUID]appointment.Appointment),
	}
}

func (r *Repository) AddDoctor(d appointment.Doctor) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.doctors[d.ID] = d
	return d.ID
}

func (r *Repository) AddPatient(p appointment.Patient) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patients[p.ID] = p
	return p.ID
}

// Put stores a as-is, bypassing every rule. Use it to set up fixtures.
func (r *Repository) Put(a appointment.Appointment) appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.tick()
		a.UpdatedAt = a.CreatedAt
	}
	r.appointments[a.ID] = a
	return a
}

func (r *Repository) Appointments() []appointment.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]appointment.Appointment, 0, len(r.appointments))
	for _, a := range r.appointments {
		out = append(out, a)
	}
	sortAppointments(out)
	return out
}

func (r *Repository) Events() []appointment.EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]appointment.EventLog(nil), r.events...)
}

func (r *Repository) RoutineTests() []appointment.RoutineTest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]appointment.RoutineTest(nil), r.tests...)
}

// tick hands out strictly increasing timestamps so ordering by created_at is stable.
func (r *Repository) tick() time.Time {
	r.clock++
	return time.Unix(1_700_000_000+r.clock, 0).UTC()
}

func (r *Repository) GetDoctorByID(_ context.Context, id uuid.UUID) (*appointment.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *Repository) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return &p, nil
}

func (r *Repository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *Repository) GetAcceptedAppointmentForSlot(_ context.Context, doctorID uuid.UUID, date time.Time, period string) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.acceptedLocked(doctorID, date, period); ok {
		return &a, nil
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *Repository) acceptedLocked(doctorID uuid.UUID, date time.Time, period string) (appointment.Appointment, bool) {
	for _, a := range r.appointments {
		if a.Status == appointment.StatusAccepted && a.DoctorID == doctorID &&
			a.Date.Equal(date) && a.Period == period {
			return a, true
		}
	}
	return appointment.Appointment{}, false
}

func (r *Repository) ListAppointments(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []appointment.Appointment
	for _, a := range r.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		matched = append(matched, a)
	}
	sortAppointments(matched)

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *Repository) ListDoctorAppointmentsBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []appointment.Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *Repository) CreatePendingAppointment(_ context.Context, in appointment.NewAppointment) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.acceptedLocked(in.DoctorID, in.Date, in.Period); taken {
		return nil, appointment.ErrSlotConflict
	}

	now := r.tick()
	a := appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  in.DoctorID,
		PatientID: in.PatientID,
		Date:      in.Date,
		Period:    in.Period,
		Status:    appointment.StatusNeedAcknowledgement,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *Repository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	if to == appointment.StatusAccepted {
		if _, taken := r.acceptedLocked(a.DoctorID, a.Date, a.Period); taken {
			return nil, appointment.ErrSlotConflict
		}
	}

	a.Status = to
	a.UpdatedAt = r.tick()
	r.appointments[id] = a
	return &a, nil
}

func (r *Repository) MarkPendingDelayed(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, a := range r.appointments {
		if a.Status != appointment.StatusNeedAcknowledgement {
			continue
		}
		a.Status = appointment.StatusDelayed
		a.UpdatedAt = r.tick()
		r.appointments[id] = a
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Repository) CreateRoutineTest(_ context.Context, t appointment.RoutineTest) (*appointment.RoutineTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = r.tick()
	r.tests = append(r.tests, t)
	return &t, nil
}

func (r *Repository) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EventErr != nil {
		return r.EventErr
	}
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func sortAppointments(items []appointment.Appointment) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if pa, pb := periodStart(a.Period), periodStart(b.Period); pa != pb {
			return pa < pb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func periodStart(s string) int {
	p, err := appointment.ParsePeriod(s)
	if err != nil {
		return 1 << 30
	}
	return p.Start
}

// Locker mimics the Redis SETNX lock: a held key is refused, never waited on.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool

	// Refuse makes every acquisition fail, as if another process held the key.
	Refuse bool
}

var _ redisclient.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

func (l *Locker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.Refuse || l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// NoLock runs fn without any coordination, standing in for an expired or
// bypassed lock.
type NoLock struct{}

func (NoLock) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
