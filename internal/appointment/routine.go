package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hospital/appointment-scheduling/internal/auth"
)

type RoutineTestInput struct {
	BreathingRate   *float64
	PulseRate       *float64
	BodyTemperature *float64
	MedicalNotes    *string
	Prescription    *string
}

func (in RoutineTestInput) validate() error {
	verr := &ValidationError{}
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"breathing_rate", in.BreathingRate},
		{"pulse_rate", in.PulseRate},
		{"body_temperature", in.BodyTemperature},
	} {
		switch {
		case f.value == nil:
			verr.Add(f.name, fmt.Sprintf("the %s field is required", f.name))
		case *f.value < 0 || *f.value > 100:
			verr.Add(f.name, fmt.Sprintf("the %s must be between 0 and 100", f.name))
		}
	}
	return verr.Err()
}

// SubmitRoutineTest records vitals against an accepted appointment. Only the
// doctor the appointment was booked with may submit.
func (s *Service) SubmitRoutineTest(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID, in RoutineTestInput) (*RoutineTest, error) {
	if err := authorizeRoles(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := allow(caller, canSubmitTest(caller, appt)); err != nil {
		return nil, err
	}
	if appt.Status != StatusAccepted {
		return nil, ErrNotAccepted
	}

	test, err := s.repo.CreateRoutineTest(ctx, RoutineTest{
		ID:              uuid.New(),
		AppointmentID:   appt.ID,
		DoctorID:        appt.DoctorID,
		PatientID:       appt.PatientID,
		BreathingRate:   *in.BreathingRate,
		PulseRate:       *in.PulseRate,
		BodyTemperature: *in.BodyTemperature,
		MedicalNotes:    in.MedicalNotes,
		Prescription:    in.Prescription,
	})
	if err != nil {
		return nil, fmt.Errorf("create routine test: %w", err)
	}

	s.metrics.RoutineTestSubmitted()
	s.logEvent(ctx, appt.ID, EventRoutineTestSubmitted, map[string]any{
		"routine_test_id": test.ID.String(),
		"doctor_id":       appt.DoctorID.String(),
	})

	return test, nil
}
