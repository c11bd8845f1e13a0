package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/appointment/appointmenttest"
	"github.com/hospital/appointment-scheduling/internal/auth"
	"github.com/hospital/appointment-scheduling/internal/config"
	"github.com/hospital/appointment-scheduling/internal/metrics"
)

var fixedNow = time.Date(2030, 3, 10, 10, 0, 0, 0, time.UTC)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler  http.Handler
	repo     *appointmenttest.Repository
	tokens   *auth.Tokens
	metrics  *metrics.Collector
	doctorID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := appointmenttest.NewRepository()
	m := metrics.New()
	svc := appointment.NewService(repo, appointmenttest.NewLocker(), config.Config{ScheduleWindowDays: 7},
		appointment.WithClock(func() time.Time { return fixedNow }),
		appointment.WithMetrics(m),
	)
	tokens := auth.NewTokens([]byte("test-secret"), "test")

	ts := &testServer{
		repo:    repo,
		tokens:  tokens,
		metrics: m,
		handler: NewRouter(RouterConfig{
			Service:  svc,
			Tokens:   tokens,
			Postgres: stubPinger{},
			Redis:    stubPinger{},
			Metrics:  m,
			Logger:   zerolog.Nop(),
			Env:      "test",
			Version:  "v0",
		}),
	}
	ts.doctorID = repo.AddDoctor(appointment.Doctor{FirstName: "Gregory", LastName: "House"})
	return ts
}

func (ts *testServer) token(t *testing.T, c auth.Caller) string {
	t.Helper()
	tok, err := ts.tokens.Issue(c, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) patient(t *testing.T) string {
	t.Helper()
	id := ts.repo.AddPatient(appointment.Patient{FirstName: "Pat", LastName: "Ient"})
	return ts.token(t, auth.Caller{UserID: id, Role: auth.RolePatient, EmailVerified: true})
}

func (ts *testServer) doctor(t *testing.T) string {
	t.Helper()
	return ts.token(t, auth.Caller{UserID: ts.doctorID, Role: auth.RoleDoctor, EmailVerified: true})
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (ts *testServer) book(t *testing.T, token, date, period string) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/appointements", token, CreateAppointmentRequest{
		DoctorID: ts.doctorID.String(), Date: date, Period: period,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Status string              `json:"status"`
		Data   AppointmentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "created", resp.Status)
	return resp.Data
}

func TestCreateAppointment_HTTP(t *testing.T) {
	ts := newTestServer(t)

	a := ts.book(t, ts.patient(t), "2030-03-11", "9-10")

	assert.Equal(t, "need_acknowledgement", a.Status)
	assert.Equal(t, 0, a.StatusCode)
	assert.Equal(t, "2030-03-11", a.Date)
	assert.Equal(t, ts.doctorID, a.DoctorID)
}

func TestCreateAppointment_HTTPErrors(t *testing.T) {
	ts := newTestServer(t)
	patient := ts.patient(t)

	rec := ts.do(t, http.MethodPost, "/appointements", "", CreateAppointmentRequest{
		DoctorID: ts.doctorID.String(), Date: "2030-03-11", Period: "9-10",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointements", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointements", patient, CreateAppointmentRequest{Period: "8-9"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	verr := decodeBody[ValidationErrorResponse](t, rec)
	assert.Contains(t, verr.Errors, "period")
	assert.Contains(t, verr.Errors, "doctor_id")

	rec = ts.do(t, http.MethodPost, "/appointements", patient, CreateAppointmentRequest{
		DoctorID: uuid.NewString(), Date: "2030-03-11", Period: "9-10",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointements", ts.doctor(t), CreateAppointmentRequest{
		DoctorID: ts.doctorID.String(), Date: "2030-03-11", Period: "9-10",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	unverified := ts.token(t, auth.Caller{UserID: uuid.New(), Role: auth.RolePatient})
	rec = ts.do(t, http.MethodPost, "/appointements", unverified, CreateAppointmentRequest{
		DoctorID: ts.doctorID.String(), Date: "2030-03-11", Period: "9-10",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "email_not_verified", decodeBody[ErrorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/appointements", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+patient)
	raw := httptest.NewRecorder()
	ts.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestAcknowledge_HTTP(t *testing.T) {
	ts := newTestServer(t)
	first := ts.book(t, ts.patient(t), "2030-03-12", "11-12")
	second := ts.book(t, ts.patient(t), "2030-03-12", "11-12")
	doctor := ts.doctor(t)

	accepted := 1
	rec := ts.do(t, http.MethodPut, "/appointements/me/patients/"+first.ID.String(), doctor, AcknowledgeRequest{Status: &accepted})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Status string              `json:"status"`
		Data   AppointmentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "updated", resp.Status)
	assert.Equal(t, 1, resp.Data.StatusCode)

	// the slot is taken now
	rec = ts.do(t, http.MethodPut, "/appointements/me/patients/"+second.ID.String(), doctor, AcknowledgeRequest{Status: &accepted})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "slot_conflict", decodeBody[ErrorResponse](t, rec).Error)

	// already resolved
	rejected := 2
	rec = ts.do(t, http.MethodPut, "/appointements/me/patients/"+first.ID.String(), doctor, AcknowledgeRequest{Status: &rejected})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody[ErrorResponse](t, rec).Error)

	for _, code := range []*int{nil, ptr(0), ptr(3), ptr(7)} {
		rec = ts.do(t, http.MethodPut, "/appointements/me/patients/"+second.ID.String(), doctor, AcknowledgeRequest{Status: code})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	rec = ts.do(t, http.MethodPut, "/appointements/me/patients/"+uuid.NewString(), doctor, AcknowledgeRequest{Status: &rejected})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/appointements/me/patients/nope", doctor, AcknowledgeRequest{Status: &rejected})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeBody[ErrorResponse](t, rec).Error)

	other := ts.token(t, auth.Caller{UserID: uuid.New(), Role: auth.RoleDoctor, EmailVerified: true})
	rec = ts.do(t, http.MethodPut, "/appointements/me/patients/"+second.ID.String(), other, AcknowledgeRequest{Status: &rejected})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDoctorSchedule_HTTP(t *testing.T) {
	ts := newTestServer(t)
	patient := ts.patient(t)
	a := ts.book(t, patient, "2030-03-11", "10-11")

	accepted := 1
	rec := ts.do(t, http.MethodPut, "/appointements/me/patients/"+a.ID.String(), ts.doctor(t), AcknowledgeRequest{Status: &accepted})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointements/schedule/doctors/"+ts.doctorID.String(), patient, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sched := decodeBody[ScheduleResponse](t, rec)

	assert.Equal(t, "from 9:00 to 16:00", sched.WorkingTime)
	require.Len(t, sched.Schedule, 7)
	first := sched.Schedule[0]
	assert.Equal(t, "2030-03-11", first.Date)
	assert.Equal(t, "Monday", first.DayName)
	require.Len(t, first.Periods, 7)
	assert.Equal(t, PeriodResponse{Period: "9-10"}, first.Periods[0])
	assert.Equal(t, PeriodResponse{Period: "10-11", Occupied: true}, first.Periods[1])

	rec = ts.do(t, http.MethodGet, "/appointements/schedule/doctors/"+ts.doctorID.String()+"?days=3", patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ScheduleResponse](t, rec).Schedule, 3)

	for _, days := range []string{"0", "32", "week"} {
		rec = ts.do(t, http.MethodGet, "/appointements/schedule/doctors/"+ts.doctorID.String()+"?days="+days, patient, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, days)
	}

	rec = ts.do(t, http.MethodGet, "/appointements/schedule/doctors/"+uuid.NewString(), patient, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointements/schedule/doctors/"+ts.doctorID.String(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListings_HTTP(t *testing.T) {
	ts := newTestServer(t)
	patient := ts.patient(t)
	for _, p := range []string{"9-10", "10-11", "11-12"} {
		ts.book(t, patient, "2030-03-13", p)
	}
	ts.book(t, ts.patient(t), "2030-03-13", "12-13")

	admin := ts.token(t, auth.Caller{UserID: uuid.New(), Role: auth.RoleAdmin, EmailVerified: true})
	rec := ts.do(t, http.MethodGet, "/appointements?per_page=2&page=2", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[PageResponse](t, rec)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "11-12", page.Data[0].Period)

	rec = ts.do(t, http.MethodGet, "/appointements/me", patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decodeBody[PageResponse](t, rec)
	assert.Equal(t, 3, mine.Total)

	rec = ts.do(t, http.MethodGet, "/appointements/me/"+mine.Data[0].ID.String(), patient, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointements/me/patients", ts.doctor(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeBody[PageResponse](t, rec).Total)

	rec = ts.do(t, http.MethodGet, "/appointements", patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointements/doctors/"+ts.doctorID.String(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeBody[PageResponse](t, rec).Total)
}

func TestDeleteAppointment_HTTP(t *testing.T) {
	ts := newTestServer(t)
	patient := ts.patient(t)
	a := ts.book(t, patient, "2030-03-11", "9-10")

	rec := ts.do(t, http.MethodDelete, "/appointements/"+a.ID.String(), patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, ts.repo.Appointments(), 1)
}

func TestRoutineTest_HTTP(t *testing.T) {
	ts := newTestServer(t)
	a := ts.book(t, ts.patient(t), "2030-03-11", "9-10")
	doctor := ts.doctor(t)
	path := "/appointements/me/patients/" + a.ID.String() + "/tests"

	body := RoutineTestRequest{
		BreathingRate:   ptr(16.0),
		PulseRate:       ptr(72.0),
		BodyTemperature: ptr(36.8),
		Prescription:    ptr("rest"),
	}
	rec := ts.do(t, http.MethodPost, path, doctor, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pending appointment")

	accepted := 1
	rec = ts.do(t, http.MethodPut, "/appointements/me/patients/"+a.ID.String(), doctor, AcknowledgeRequest{Status: &accepted})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, path, doctor, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, ts.repo.RoutineTests(), 1)

	rec = ts.do(t, http.MethodPost, path, doctor, RoutineTestRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[LivenessResponse](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[ReadinessResponse](t, rec).Status)
}

func TestReadiness_Degraded(t *testing.T) {
	down := errors.New("connection refused")

	h := NewHealthHandler(stubPinger{}, stubPinger{err: down}, "test", "v0")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["redis"])

	h = NewHealthHandler(stubPinger{err: down}, stubPinger{}, "test", "v0")
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decodeBody[ReadinessResponse](t, rec).Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, ts.patient(t), "2030-03-11", "9-10")

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "appointments_created_total 1")
	assert.Contains(t, rec.Body.String(), `route="/appointements`)
}

func TestRequestIDPropagates(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func ptr[T any](v T) *T { return &v }
