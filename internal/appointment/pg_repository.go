package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"

	acceptedSlotIndex = "appointments_accepted_slot_uniq"

	appointmentColumns = `id, doctor_id, patient_id, date, period, status, created_at, updated_at`
	appointmentOrder   = `ORDER BY date, split_part(period, '-', 1)::int, created_at`
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.FirstName,
		&d.LastName,
		&d.Email,
		&d.DepartmentID,
		&d.Specialization,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.EmailVerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.Period,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// isAcceptedSlotViolation reports whether err is the partial unique index
// refusing a second accepted appointment for the same slot.
func isAcceptedSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == acceptedSlotIndex
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT u.id, u.first_name, u.last_name, u.email, d.department_id, d.specialization
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.user_id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, email_verified_at
		FROM users
		WHERE id = $1 AND role = 'patient'
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAcceptedAppointmentForSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, period string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND period = $3 AND status = 'accepted'
	`, doctorID, date, period)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::uuid IS NULL OR patient_id = $2)
	`, f.DoctorID, f.PatientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::uuid IS NULL OR patient_id = $2)
		`+appointmentOrder+`
		LIMIT $3 OFFSET $4
	`, f.DoctorID, f.PatientID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan appointments: %w", err)
	}
	return items, total, nil
}

func (r *PgRepository) ListDoctorAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date BETWEEN $2 AND $3
		`+appointmentOrder+`
	`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreatePendingAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, period, status, created_at, updated_at)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::date, $5::text, 'need_acknowledgement', now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $2 AND date = $4 AND period = $5 AND status = 'accepted'
		)
		RETURNING `+appointmentColumns+`
	`, id, a.DoctorID, a.PatientID, a.Date, a.Period)

	created, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrSlotConflict
	}
	return created, err
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	updated, err := scanAppointment(row)
	if isAcceptedSlotViolation(err) {
		return nil, ErrSlotConflict
	}
	return updated, err
}

func (r *PgRepository) MarkPendingDelayed(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'delayed',
		    updated_at = now()
		WHERE status = 'need_acknowledgement'
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("mark pending delayed: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect delayed ids: %w", err)
	}
	return ids, nil
}

func (r *PgRepository) CreateRoutineTest(ctx context.Context, t RoutineTest) (*RoutineTest, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO routine_tests (
			id, appointment_id, doctor_id, patient_id,
			breathing_rate, pulse_rate, body_temperature,
			medical_notes, prescription, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING created_at
	`, t.ID, t.AppointmentID, t.DoctorID, t.PatientID,
		t.BreathingRate, t.PulseRate, t.BodyTemperature,
		t.MedicalNotes, t.Prescription,
	).Scan(&t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert routine test: %w", err)
	}
	return &t, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb), COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
