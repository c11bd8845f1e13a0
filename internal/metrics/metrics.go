package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Conflict stages.
const (
	StageCreate = "create"
	StageAccept = "accept"
	StageLock   = "lock"
)

// Collector owns the scheduling metrics. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	appointmentsCreated prometheus.Counter
	conflicts           *prometheus.CounterVec
	acknowledgements    *prometheus.CounterVec
	delayed             prometheus.Counter
	routineTests        prometheus.Counter
	httpDuration        *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		appointmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_created_total",
			Help: "Appointments booked by patients",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appointment_conflicts_total",
			Help: "Requests rejected because the slot was taken or being booked",
		}, []string{"stage"}),
		acknowledgements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appointment_acknowledgements_total",
			Help: "Doctor decisions on pending appointments",
		}, []string{"status"}),
		delayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_delayed_total",
			Help: "Pending appointments moved to delayed by the sweep",
		}),
		routineTests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routine_tests_submitted_total",
			Help: "Routine test results recorded against accepted appointments",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.appointmentsCreated,
		c.conflicts,
		c.acknowledgements,
		c.delayed,
		c.routineTests,
		c.httpDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) AppointmentCreated() {
	if c == nil {
		return
	}
	c.appointmentsCreated.Inc()
}

func (c *Collector) SlotConflict(stage string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(stage).Inc()
}

func (c *Collector) Acknowledged(status string) {
	if c == nil {
		return
	}
	c.acknowledgements.WithLabelValues(status).Inc()
}

func (c *Collector) Delayed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.delayed.Add(float64(n))
}

func (c *Collector) RoutineTestSubmitted() {
	if c == nil {
		return
	}
	c.routineTests.Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
