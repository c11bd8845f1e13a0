package appointment

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation = errors.New("the given data was invalid")

	ErrAppointmentNotFound = errors.New("appointment does not exist")
	ErrDoctorNotFound      = errors.New("doctor does not exist")
	ErrPatientNotFound     = errors.New("patient does not exist")

	ErrSlotConflict = errors.New("the requested period is already reserved")
	ErrSlotBusy     = errors.New("slot is currently being booked, please retry")

	ErrUnauthenticated  = errors.New("current user is undefined")
	ErrEmailNotVerified = errors.New("your email is not verified")
	ErrForbidden        = errors.New("this action is unauthorized")

	ErrNotPending  error = &StateError{msg: "current appointment does not need acknowledgement"}
	ErrNotAccepted error = &StateError{msg: "appointment is not accepted"}
)

// StateError reports an operation the appointment's current status does not allow.
type StateError struct {
	msg string
}

func (e *StateError) Error() string { return e.msg }

// ValidationError collects per-field messages. It matches ErrValidation.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
