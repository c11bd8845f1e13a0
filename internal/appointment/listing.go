package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hospital/appointment-scheduling/internal/auth"
)

const (
	DefaultPerPage = 5
	MaxPerPage     = 100
)

type Page struct {
	Number  int
	PerPage int
}

// NewPage clamps page to >= 1 and perPage to 1..MaxPerPage, defaulting to DefaultPerPage.
func NewPage(number, perPage int) Page {
	if number < 1 {
		number = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Page{Number: number, PerPage: perPage}
}

func (p Page) offset() int {
	return (p.Number - 1) * p.PerPage
}

type AppointmentPage struct {
	Items   []Appointment
	Page    int
	PerPage int
	Total   int
}

func (s *Service) list(ctx context.Context, doctorID, patientID *uuid.UUID, page Page) (*AppointmentPage, error) {
	page = NewPage(page.Number, page.PerPage)
	items, total, err := s.repo.ListAppointments(ctx, ListFilter{
		DoctorID:  doctorID,
		PatientID: patientID,
		Limit:     page.PerPage,
		Offset:    page.offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if items == nil {
		items = []Appointment{}
	}
	return &AppointmentPage{Items: items, Page: page.Number, PerPage: page.PerPage, Total: total}, nil
}

// ListAppointments returns every appointment; admin and staff only.
func (s *Service) ListAppointments(ctx context.Context, caller auth.Caller, page Page) (*AppointmentPage, error) {
	if err := allow(caller, canViewAny(caller)); err != nil {
		return nil, err
	}
	return s.list(ctx, nil, nil, page)
}

func (s *Service) ListDoctorAppointments(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, page Page) (*AppointmentPage, error) {
	if err := allow(caller, canViewAny(caller)); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return s.list(ctx, &doctorID, nil, page)
}

func (s *Service) ListPatientAppointments(ctx context.Context, caller auth.Caller, patientID uuid.UUID, page Page) (*AppointmentPage, error) {
	if err := allow(caller, canViewAny(caller)); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return s.list(ctx, nil, &patientID, page)
}

// ListMyAppointments lists the calling patient's own appointments.
func (s *Service) ListMyAppointments(ctx context.Context, caller auth.Caller, page Page) (*AppointmentPage, error) {
	if err := authorizePatient(caller); err != nil {
		return nil, err
	}
	return s.list(ctx, nil, &caller.UserID, page)
}

func (s *Service) GetMyAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := authorizePatient(caller); err != nil {
		return nil, err
	}
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := allow(caller, canViewAsPatient(caller, appt)); err != nil {
		return nil, err
	}
	return appt, nil
}

// ListMyPatientAppointments lists appointments booked with the calling doctor.
func (s *Service) ListMyPatientAppointments(ctx context.Context, caller auth.Caller, page Page) (*AppointmentPage, error) {
	if err := authorizeRoles(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	return s.list(ctx, &caller.UserID, nil, page)
}

func (s *Service) GetMyPatientAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := authorizeRoles(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := allow(caller, canViewAsDoctor(caller, appt)); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) getAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}
