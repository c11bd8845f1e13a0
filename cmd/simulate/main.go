package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/auth"
	"github.com/hospital/appointment-scheduling/internal/config"
	"github.com/hospital/appointment-scheduling/internal/db"
	"github.com/hospital/appointment-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	AckRatio     float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int

	// HotDoctors narrows bookings to the first N doctors so slots collide.
	HotDoctors int
}

type booked struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type DataPool struct {
	Patients     []string // bearer tokens
	Doctors      []uuid.UUID
	DoctorTokens map[uuid.UUID]string
	Dates        []string

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	n := len(latencies)
	return sum / time.Duration(n), latencies[0], latencies[n-1], latencies[n*50/100], latencies[min(n*95/100, n-1)]
}

type Metrics struct {
	Booking     OperationMetrics
	Acknowledge OperationMetrics
	Schedule    OperationMetrics
	ListMine    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	base, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info", "simulate")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(base.Env, base.LogLevel, "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("ack", cfg.AckRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, base.PostgresDSN, base.DBMaxConns, base.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	tokens := auth.NewTokens([]byte(base.JWTSecret), base.JWTIssuer)
	today := appointment.DayOf(time.Now(), base.Location)

	dataPool, err := loadDataPool(ctx, pgPool, tokens, cfg, appointment.ScheduleWindow(today, base.ScheduleWindowDays))
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("doctors", len(dataPool.Doctors)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	if err := verifySlots(verifyCtx, pgPool); err != nil {
		logger.Error().Err(err).Msg("slot invariant violated")
		pgPool.Close()
		os.Exit(1)
	}
	logger.Info().Msg("every slot has at most one accepted appointment")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		AckRatio:     getFloat("SIM_ACK_RATIO", 0.3),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 50),
		HotDoctors:   getInt("SIM_HOT_DOCTORS", 3),
	}

	total := cfg.BookingRatio + cfg.AckRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AckRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotDoctors <= 0 {
		return fmt.Errorf("SIM_HOT_DOCTORS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, tokens *auth.Tokens, cfg SimConfig, window []time.Time) (*DataPool, error) {
	dataPool := &DataPool{DoctorTokens: make(map[uuid.UUID]string)}

	rows, err := pool.Query(ctx, `
		SELECT id FROM users
		WHERE role = 'patient' AND email_verified_at IS NOT NULL
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		tok, err := tokens.Issue(auth.Caller{UserID: id, Role: auth.RolePatient, EmailVerified: true}, 2*cfg.Duration+time.Minute)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, tok)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT user_id FROM doctors ORDER BY user_id LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		tok, err := tokens.Issue(auth.Caller{UserID: id, Role: auth.RoleDoctor, EmailVerified: true}, 2*cfg.Duration+time.Minute)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
		dataPool.DoctorTokens[id] = tok
	}
	rows.Close()

	for _, d := range window {
		dataPool.Dates = append(dataPool.Dates, d.Format(appointment.DateLayout))
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no verified patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}

	return dataPool, nil
}

// verifySlots fails if any doctor/date/period holds more than one accepted appointment.
func verifySlots(ctx context.Context, pool *pgxpool.Pool) error {
	var doubled int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1 FROM appointments
			WHERE status = 'accepted'
			GROUP BY doctor_id, date, period
			HAVING count(*) > 1
		) d
	`).Scan(&doubled)
	if err != nil {
		return fmt.Errorf("count double bookings: %w", err)
	}
	if doubled > 0 {
		return fmt.Errorf("%d slots hold more than one accepted appointment", doubled)
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.AckRatio:
				s.doAcknowledge(ctx, rng)
			case rng.Intn(2) == 0:
				s.doSchedule(ctx, rng)
			default:
				s.doListMine(ctx, rng)
			}
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	hot := min(s.config.HotDoctors, len(s.pool.Doctors))
	doctorID := s.pool.Doctors[rng.Intn(hot)]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	periods := appointment.Periods()

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/appointements", patient, map[string]string{
		"doctor_id": doctorID.String(),
		"date":      s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		"period":    periods[rng.Intn(len(periods))],
	})
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created struct {
				Data struct {
					ID uuid.UUID `json:"id"`
				} `json:"data"`
			}
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.Data.ID != uuid.Nil {
				s.pool.AddAppointment(booked{ID: created.Data.ID, DoctorID: doctorID})
			}
		case http.StatusBadRequest, http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

// doAcknowledge accepts three times out of four so that slots fill up.
func (s *Simulator) doAcknowledge(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	status := 1
	if rng.Intn(4) == 0 {
		status = 2
	}

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPut, "/appointements/me/patients/"+appt.ID.String(),
		s.pool.DoctorTokens[appt.DoctorID], map[string]int{"status": status})
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			success = true
		case http.StatusBadRequest, http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Acknowledge.Record(latency, success, conflict)
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, "/appointements/schedule/doctors/"+doctorID.String(), patient, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Schedule.Record(latency, success, false)
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, "/appointements/me?per_page=20", patient, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListMine.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Acknowledge", &s.metrics.Acknowledge)
	printOperationReport("Doctor schedule", &s.metrics.Schedule)
	printOperationReport("List mine", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
