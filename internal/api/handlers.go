package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/auth"
)

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pageFromQuery reads ?page= and ?per_page=; junk values fall back to defaults.
func pageFromQuery(r *http.Request) appointment.Page {
	number, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return appointment.NewPage(number, perPage)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decode(w, r, &req) {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), auth.CallerFromContext(r.Context()), appointment.CreateInput{
			DoctorID: req.DoctorID,
			Date:     req.Date,
			Period:   req.Period,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, MutationResponse{Status: "created", Data: toAppointmentResponse(appt)})
	}
}

func acknowledgeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req AcknowledgeRequest
		if !decode(w, r, &req) {
			return
		}

		var target appointment.Status
		if req.Status != nil {
			target = statusFromCode(*req.Status)
		}

		appt, err := svc.AcknowledgeAppointment(r.Context(), auth.CallerFromContext(r.Context()), id, target)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MutationResponse{Status: "updated", Data: toAppointmentResponse(appt)})
	}
}

func submitRoutineTestHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req RoutineTestRequest
		if !decode(w, r, &req) {
			return
		}

		test, err := svc.SubmitRoutineTest(r.Context(), auth.CallerFromContext(r.Context()), id, appointment.RoutineTestInput{
			BreathingRate:   req.BreathingRate,
			PulseRate:       req.PulseRate,
			BodyTemperature: req.BodyTemperature,
			MedicalNotes:    req.MedicalNotes,
			Prescription:    req.Prescription,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, MutationResponse{Status: "created", Data: toRoutineTestResponse(test)})
	}
}

func doctorScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		days := 0
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				verr := &appointment.ValidationError{}
				verr.Add("days", "the days must be a whole number between 1 and 31")
				writeServiceError(w, r, verr)
				return
			}
			days = n
		}

		grid, err := svc.DoctorSchedule(r.Context(), auth.CallerFromContext(r.Context()), id, days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(grid))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), auth.CallerFromContext(r.Context()), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type pageLister func(r *http.Request, caller auth.Caller, page appointment.Page) (*appointment.AppointmentPage, error)

func listHandler(list pageLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := list(r, auth.CallerFromContext(r.Context()), pageFromQuery(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPageResponse(page))
	}
}

func listAllHandler(svc *appointment.Service) http.HandlerFunc {
	return listHandler(func(r *http.Request, c auth.Caller, p appointment.Page) (*appointment.AppointmentPage, error) {
		return svc.ListAppointments(r.Context(), c, p)
	})
}

func listMineHandler(svc *appointment.Service) http.HandlerFunc {
	return listHandler(func(r *http.Request, c auth.Caller, p appointment.Page) (*appointment.AppointmentPage, error) {
		return svc.ListMyAppointments(r.Context(), c, p)
	})
}

func listMyPatientsHandler(svc *appointment.Service) http.HandlerFunc {
	return listHandler(func(r *http.Request, c auth.Caller, p appointment.Page) (*appointment.AppointmentPage, error) {
		return svc.ListMyPatientAppointments(r.Context(), c, p)
	})
}

func listByDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		listHandler(func(r *http.Request, c auth.Caller, p appointment.Page) (*appointment.AppointmentPage, error) {
			return svc.ListDoctorAppointments(r.Context(), c, id, p)
		})(w, r)
	}
}

func listByPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		listHandler(func(r *http.Request, c auth.Caller, p appointment.Page) (*appointment.AppointmentPage, error) {
			return svc.ListPatientAppointments(r.Context(), c, id, p)
		})(w, r)
	}
}

type appointmentGetter func(r *http.Request, caller auth.Caller, id uuid.UUID) (*appointment.Appointment, error)

func getHandler(get appointmentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		appt, err := get(r, auth.CallerFromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getMineHandler(svc *appointment.Service) http.HandlerFunc {
	return getHandler(func(r *http.Request, c auth.Caller, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.GetMyAppointment(r.Context(), c, id)
	})
}

func getMyPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return getHandler(func(r *http.Request, c auth.Caller, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.GetMyPatientAppointment(r.Context(), c, id)
	})
}
