package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/auth"
	"github.com/hospital/appointment-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service  *appointment.Service
	Tokens   *auth.Tokens
	Postgres Pinger
	Redis    Pinger
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	svc := cfg.Service
	r.Route("/appointements", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Tokens))

		r.Get("/", listAllHandler(svc))
		r.Post("/", createAppointmentHandler(svc))
		r.Get("/doctors/{id}", listByDoctorHandler(svc))
		r.Get("/patients/{id}", listByPatientHandler(svc))
		r.Get("/schedule/doctors/{id}", doctorScheduleHandler(svc))

		r.Get("/me", listMineHandler(svc))
		r.Get("/me/{id}", getMineHandler(svc))
		r.Get("/me/patients", listMyPatientsHandler(svc))
		r.Get("/me/patients/{id}", getMyPatientHandler(svc))
		r.Put("/me/patients/{id}", acknowledgeAppointmentHandler(svc))
		r.Post("/me/patients/{id}/tests", submitRoutineTestHandler(svc))

		r.Delete("/{id}", deleteAppointmentHandler(svc))
	})

	return r
}
