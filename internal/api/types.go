package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/appointment-scheduling/internal/appointment"
)

// Wire codes clients send and receive for appointment status.
var statusCodes = map[appointment.Status]int{
	appointment.StatusNeedAcknowledgement: 0,
	appointment.StatusAccepted:            1,
	appointment.StatusRejected:            2,
	appointment.StatusDelayed:             3,
}

// statusFromCode returns "" for codes outside the table.
func statusFromCode(code int) appointment.Status {
	for st, c := range statusCodes {
		if c == code {
			return st
		}
	}
	return ""
}

type CreateAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Period   string `json:"period"`
}

type AcknowledgeRequest struct {
	Status *int `json:"status"`
}

type RoutineTestRequest struct {
	BreathingRate   *float64 `json:"breathing_rate"`
	PulseRate       *float64 `json:"pulse_rate"`
	BodyTemperature *float64 `json:"body_temperature"`
	MedicalNotes    *string  `json:"medical_notes"`
	Prescription    *string  `json:"prescription"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Date       string    `json:"date"`
	Period     string    `json:"period"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		DoctorID:   a.DoctorID,
		PatientID:  a.PatientID,
		Date:       a.Date.Format(appointment.DateLayout),
		Period:     a.Period,
		Status:     string(a.Status),
		StatusCode: statusCodes[a.Status],
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type PageResponse struct {
	Data    []AppointmentResponse `json:"data"`
	Page    int                   `json:"page"`
	PerPage int                   `json:"per_page"`
	Total   int                   `json:"total"`
}

func toPageResponse(p *appointment.AppointmentPage) PageResponse {
	data := make([]AppointmentResponse, 0, len(p.Items))
	for i := range p.Items {
		data = append(data, toAppointmentResponse(&p.Items[i]))
	}
	return PageResponse{Data: data, Page: p.Page, PerPage: p.PerPage, Total: p.Total}
}

// MutationResponse wraps the result of a create or update.
type MutationResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type PeriodResponse struct {
	Period   string `json:"period"`
	Occupied bool   `json:"occupied"`
}

type DayResponse struct {
	Date    string           `json:"date"`
	DayName string           `json:"day_name"`
	Periods []PeriodResponse `json:"periods"`
}

type ScheduleResponse struct {
	DoctorID    uuid.UUID     `json:"doctor_id"`
	WorkingTime string        `json:"working_time"`
	Schedule    []DayResponse `json:"schedule"`
}

func toScheduleResponse(g *appointment.ScheduleGrid) ScheduleResponse {
	days := make([]DayResponse, 0, len(g.Days))
	for _, d := range g.Days {
		periods := make([]PeriodResponse, 0, len(d.Periods))
		for _, p := range d.Periods {
			periods = append(periods, PeriodResponse{Period: p.Period, Occupied: p.Occupied})
		}
		days = append(days, DayResponse{
			Date:    d.Date.Format(appointment.DateLayout),
			DayName: d.DayName,
			Periods: periods,
		})
	}
	return ScheduleResponse{DoctorID: g.DoctorID, WorkingTime: g.WorkingTime, Schedule: days}
}

type RoutineTestResponse struct {
	ID              uuid.UUID `json:"id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	BreathingRate   float64   `json:"breathing_rate"`
	PulseRate       float64   `json:"pulse_rate"`
	BodyTemperature float64   `json:"body_temperature"`
	MedicalNotes    *string   `json:"medical_notes"`
	Prescription    *string   `json:"prescription"`
	CreatedAt       time.Time `json:"created_at"`
}

func toRoutineTestResponse(t *appointment.RoutineTest) RoutineTestResponse {
	return RoutineTestResponse{
		ID:              t.ID,
		AppointmentID:   t.AppointmentID,
		DoctorID:        t.DoctorID,
		PatientID:       t.PatientID,
		BreathingRate:   t.BreathingRate,
		PulseRate:       t.PulseRate,
		BodyTemperature: t.BodyTemperature,
		MedicalNotes:    t.MedicalNotes,
		Prescription:    t.Prescription,
		CreatedAt:       t.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}
