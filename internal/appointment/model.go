package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusNeedAcknowledgement Status = "need_acknowledgement"
	StatusAccepted            Status = "accepted"
	StatusRejected            Status = "rejected"
	StatusDelayed             Status = "delayed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNeedAcknowledgement, StatusAccepted, StatusRejected, StatusDelayed:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusDelayed
}

// transitions lists, per current status, the statuses it may move to.
var transitions = map[Status][]Status{
	StatusNeedAcknowledgement: {StatusAccepted, StatusRejected, StatusDelayed},
	StatusAccepted:            {},
	StatusRejected:            {},
	StatusDelayed:             {},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time // calendar day, midnight UTC
	Period    string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) Slot() Slot {
	return Slot{Date: a.Date, Period: a.Period}
}

type Doctor struct {
	ID             uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	DepartmentID   *uuid.UUID
	Specialization *string
}

type Patient struct {
	ID              uuid.UUID
	FirstName       string
	LastName        string
	Email           string
	EmailVerifiedAt *time.Time
}

type RoutineTest struct {
	ID              uuid.UUID
	AppointmentID   uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	BreathingRate   float64
	PulseRate       float64
	BodyTemperature float64
	MedicalNotes    *string
	Prescription    *string
	CreatedAt       time.Time
}

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentAccepted  = "APPOINTMENT_ACCEPTED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventAppointmentDelayed   = "APPOINTMENT_DELAYED"
	EventRoutineTestSubmitted = "ROUTINE_TEST_SUBMITTED"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
