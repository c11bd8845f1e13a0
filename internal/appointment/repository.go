package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a listing; nil ids match everything.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Limit     int
	Offset    int
}

type NewAppointment struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	Period    string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	SlotReader

	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error)
	ListDoctorAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// CreatePendingAppointment inserts unless the slot already has an accepted
	// appointment, in which case it returns ErrSlotConflict.
	CreatePendingAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set on status. It returns
	// ErrAppointmentNotFound when the row is not in status from, and
	// ErrSlotConflict when accepting would double-book the slot.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	// MarkPendingDelayed moves every pending appointment to delayed.
	MarkPendingDelayed(ctx context.Context) ([]uuid.UUID, error)

	CreateRoutineTest(ctx context.Context, t RoutineTest) (*RoutineTest, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
