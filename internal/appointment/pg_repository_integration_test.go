//go:build integration

package appointment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hospital/appointment-scheduling/internal/appointment"
	"github.com/hospital/appointment-scheduling/internal/db"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "appointments_test",
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "testpass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:testpass@%s:%s/appointments_test?sslmode=disable", host, port.Port())
	pool, err := db.ConnectPostgres(ctx, dsn, 20, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool, db.Migrations()).Up(ctx)
	require.NoError(t, err)
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, first_name, last_name, email, role, email_verified_at)
		VALUES ($1, 'Test', $2, $3, $2, now())
	`, id, role, id.String()+"@example.test")
	require.NoError(t, err)
	if role == "doctor" {
		_, err = pool.Exec(context.Background(), `INSERT INTO doctors (user_id) VALUES ($1)`, id)
		require.NoError(t, err)
	}
	return id
}

func TestPgRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := appointment.NewPgRepository(pool)
	ctx := context.Background()

	doctor := insertUser(t, pool, "doctor")
	date := day("2030-05-06")

	t.Run("lookups", func(t *testing.T) {
		d, err := repo.GetDoctorByID(ctx, doctor)
		require.NoError(t, err)
		assert.Equal(t, doctor, d.ID)

		_, err = repo.GetDoctorByID(ctx, uuid.New())
		assert.ErrorIs(t, err, appointment.ErrDoctorNotFound)

		_, err = repo.GetPatientByID(ctx, doctor)
		assert.ErrorIs(t, err, appointment.ErrPatientNotFound)

		_, err = repo.GetAppointmentByID(ctx, uuid.New())
		assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	})

	t.Run("index allows one accepted appointment per slot under a race", func(t *testing.T) {
		const n = 10
		ids := make([]uuid.UUID, n)
		for i := range ids {
			a, err := repo.CreatePendingAppointment(ctx, appointment.NewAppointment{
				DoctorID: doctor, PatientID: insertUser(t, pool, "patient"), Date: date, Period: "9-10",
			})
			require.NoError(t, err)
			ids[i] = a.ID
		}

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.UpdateAppointmentStatus(ctx, ids[i], appointment.StatusNeedAcknowledgement, appointment.StatusAccepted)
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, appointment.ErrSlotConflict)
		}
		assert.Equal(t, 1, ok)

		var accepted int
		require.NoError(t, pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND period = '9-10' AND status = 'accepted'
		`, doctor, date).Scan(&accepted))
		assert.Equal(t, 1, accepted)

		free, err := appointment.NewConflictGuard(repo).CheckSlotFree(ctx, doctor, date, "9-10")
		require.NoError(t, err)
		assert.False(t, free)

		_, err = repo.CreatePendingAppointment(ctx, appointment.NewAppointment{
			DoctorID: doctor, PatientID: insertUser(t, pool, "patient"), Date: date, Period: "9-10",
		})
		assert.ErrorIs(t, err, appointment.ErrSlotConflict)
	})

	t.Run("status update is compare-and-set", func(t *testing.T) {
		a, err := repo.CreatePendingAppointment(ctx, appointment.NewAppointment{
			DoctorID: doctor, PatientID: insertUser(t, pool, "patient"), Date: date, Period: "11-12",
		})
		require.NoError(t, err)

		_, err = repo.UpdateAppointmentStatus(ctx, a.ID, appointment.StatusNeedAcknowledgement, appointment.StatusRejected)
		require.NoError(t, err)

		_, err = repo.UpdateAppointmentStatus(ctx, a.ID, appointment.StatusNeedAcknowledgement, appointment.StatusAccepted)
		assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	})

	t.Run("sweep and listing keep every row", func(t *testing.T) {
		var before int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&before))

		moved, err := repo.MarkPendingDelayed(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, moved)

		again, err := repo.MarkPendingDelayed(ctx)
		require.NoError(t, err)
		assert.Empty(t, again)

		items, total, err := repo.ListAppointments(ctx, appointment.ListFilter{DoctorID: &doctor, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, before, total)
		assert.Len(t, items, before)
		assert.Equal(t, "9-10", items[0].Period)

		window, err := repo.ListDoctorAppointmentsBetween(ctx, doctor, date, date)
		require.NoError(t, err)
		assert.Len(t, window, before)
	})

	t.Run("routine test and events", func(t *testing.T) {
		items, _, err := repo.ListAppointments(ctx, appointment.ListFilter{DoctorID: &doctor, Limit: 100})
		require.NoError(t, err)
		var accepted appointment.Appointment
		for _, a := range items {
			if a.Status == appointment.StatusAccepted {
				accepted = a
			}
		}
		require.NotEqual(t, uuid.Nil, accepted.ID)

		test, err := repo.CreateRoutineTest(ctx, appointment.RoutineTest{
			AppointmentID: accepted.ID, DoctorID: accepted.DoctorID, PatientID: accepted.PatientID,
			BreathingRate: 15, PulseRate: 70, BodyTemperature: 36.8,
		})
		require.NoError(t, err)
		assert.False(t, test.CreatedAt.IsZero())

		require.NoError(t, repo.InsertEvent(ctx, appointment.EventLog{
			EventType: appointment.EventRoutineTestSubmitted, AppointmentID: &accepted.ID,
		}))
	})
}
