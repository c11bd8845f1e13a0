package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hospital/appointment-scheduling/internal/config"
	"github.com/hospital/appointment-scheduling/internal/db"
	"github.com/hospital/appointment-scheduling/internal/logging"
)

var departments = []string{
	"Cardiology",
	"Dermatology",
	"Endocrinology",
	"ENT",
	"General Practice",
	"Neurology",
	"Ophthalmology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
}

type seeder struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info", "seed")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	s := &seeder{pool: pool, log: logger}
	if err := s.run(context.Background(), getInt("SEED_DOCTORS", 50), getInt("SEED_PATIENTS", 2000)); err != nil {
		pool.Close()
		logger.Error().Err(err).Msg("seed failed")
		os.Exit(1)
	}

	logger.Info().Msg("seed complete")
}

func (s *seeder) run(ctx context.Context, doctors, patients int) error {
	deptIDs, err := s.seedDepartments(ctx)
	if err != nil {
		return fmt.Errorf("seed departments: %w", err)
	}
	if err := s.seedStaff(ctx); err != nil {
		return fmt.Errorf("seed staff: %w", err)
	}
	if err := s.seedDoctors(ctx, deptIDs, doctors); err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if err := s.seedPatients(ctx, patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	return nil
}

func (s *seeder) seedDepartments(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(departments))
	for _, name := range departments {
		var id uuid.UUID
		err := s.pool.QueryRow(ctx, `
			INSERT INTO departments (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, uuid.New(), name).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	s.log.Info().Int("count", len(ids)).Msg("departments seeded")
	return ids, nil
}

// seedStaff makes sure there is one admin and one staff account to log in with.
func (s *seeder) seedStaff(ctx context.Context) error {
	for _, role := range []string{"admin", "staff"} {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO users (id, first_name, last_name, email, role, email_verified_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (email) DO NOTHING
		`, uuid.New(), gofakeit.FirstName(), gofakeit.LastName(), role+"@hospital.test", role)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, role string, verified bool) (uuid.UUID, error) {
	id := uuid.New()
	var verifiedAt *time.Time
	if verified {
		t := gofakeit.PastDate()
		verifiedAt = &t
	}

	first, last := gofakeit.FirstName(), gofakeit.LastName()
	email := fmt.Sprintf("%s.%s.%s@%s", strings.ToLower(first), strings.ToLower(last), id.String()[:8], gofakeit.DomainName())

	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, first_name, last_name, email, role, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, first, last, email, role, verifiedAt)
	return id, err
}

func (s *seeder) seedDoctors(ctx context.Context, deptIDs []uuid.UUID, count int) error {
	s.log.Info().Int("count", count).Msg("seeding doctors")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id, err := insertUser(ctx, tx, "doctor", true)
		if err != nil {
			return err
		}

		dept := deptIDs[gofakeit.Number(0, len(deptIDs)-1)]
		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (user_id, department_id, specialization)
			VALUES ($1, $2, $3)
		`, id, dept, gofakeit.JobDescriptor())
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.log.Info().Msg("doctors seeded")
	return nil
}

// seedPatients leaves roughly one patient in ten with an unverified email.
func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			if _, err := insertUser(ctx, tx, "patient", gofakeit.Number(1, 10) > 1); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		s.log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
