package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/appointment-scheduling/internal/auth"
	"github.com/hospital/appointment-scheduling/internal/config"
	"github.com/hospital/appointment-scheduling/internal/metrics"
	redisclient "github.com/hospital/appointment-scheduling/internal/redis"
)

type Service struct {
	repo    Repository
	guard   *ConflictGuard
	locker  redisclient.Locker
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now, which decides what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ScheduleWindowDays <= 0 {
		cfg.ScheduleWindowDays = DefaultScheduleDays
	}

	s := &Service{
		repo:   repo,
		guard:  NewConflictGuard(repo),
		locker: locker,
		cfg:    cfg,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar day in the hospital's time zone.
func (s *Service) Today() time.Time {
	return DayOf(s.now(), s.cfg.Location)
}

type CreateInput struct {
	DoctorID string
	Date     string
	Period   string
}

func (s *Service) validateCreate(in CreateInput) (uuid.UUID, time.Time, string, error) {
	verr := &ValidationError{}

	var doctorID uuid.UUID
	if in.DoctorID == "" {
		verr.Add("doctor_id", "the doctor_id field is required")
	} else if id, err := uuid.Parse(in.DoctorID); err != nil {
		verr.Add("doctor_id", "the doctor_id must be a valid UUID")
	} else {
		doctorID = id
	}

	var date time.Time
	if in.Date == "" {
		verr.Add("date", "the date field is required")
	} else if d, err := ParseDate(in.Date); err != nil {
		verr.Add("date", "the date must be a date in YYYY-MM-DD format")
	} else if !d.After(s.Today()) {
		verr.Add("date", "the date must be a date after today")
	} else {
		date = d
	}

	if in.Period == "" {
		verr.Add("period", "the period field is required")
	} else if !PeriodValid(in.Period) {
		verr.Add("period", "the period must be a one-hour slot between 9 and 16, e.g. 9-10")
	}

	return doctorID, date, in.Period, verr.Err()
}

// CreateAppointment books a pending appointment for the calling patient.
// The free-slot check and the insert run under the slot's lock so two
// patients cannot both pass the check for the same doctor, date and period.
func (s *Service) CreateAppointment(ctx context.Context, caller auth.Caller, in CreateInput) (*Appointment, error) {
	if err := authorizePatient(caller); err != nil {
		return nil, err
	}

	doctorID, date, period, err := s.validateCreate(in)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	slot := Slot{Date: date, Period: period}
	var created *Appointment

	err = s.withSlotLock(ctx, doctorID, slot, func(lockCtx context.Context) error {
		free, err := s.guard.CheckSlotFree(lockCtx, doctorID, date, period)
		if err != nil {
			return err
		}
		if !free {
			s.metrics.SlotConflict(metrics.StageCreate)
			return ErrSlotConflict
		}

		appt, err := s.repo.CreatePendingAppointment(lockCtx, NewAppointment{
			DoctorID:  doctorID,
			PatientID: caller.UserID,
			Date:      date,
			Period:    period,
		})
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				s.metrics.SlotConflict(metrics.StageCreate)
				return err
			}
			return fmt.Errorf("create pending appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AppointmentCreated()
	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  doctorID.String(),
		"patient_id": caller.UserID.String(),
		"date":       date.Format(DateLayout),
		"period":     period,
	})

	return created, nil
}

// AcknowledgeAppointment records the doctor's decision on a pending
// appointment. Only accepted and rejected are valid targets.
func (s *Service) AcknowledgeAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID, target Status) (*Appointment, error) {
	if caller.IsAnonymous() {
		return nil, ErrUnauthenticated
	}
	if target != StatusAccepted && target != StatusRejected {
		verr := &ValidationError{}
		verr.Add("status", "the status must be 1 (accepted) or 2 (rejected)")
		return nil, verr
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := allow(caller, canAcknowledge(caller, appt)); err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, target) {
		return nil, ErrNotPending
	}

	var updated *Appointment
	transition := func(ctx context.Context) error {
		u, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusNeedAcknowledgement, target)
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			// someone else resolved it between our read and the update
			return ErrNotPending
		case errors.Is(err, ErrSlotConflict):
			s.metrics.SlotConflict(metrics.StageAccept)
			return err
		case err != nil:
			return fmt.Errorf("update appointment status: %w", err)
		}
		updated = u
		return nil
	}

	if target == StatusAccepted {
		err = s.withSlotLock(ctx, appt.DoctorID, appt.Slot(), func(lockCtx context.Context) error {
			free, err := s.guard.CheckSlotFree(lockCtx, appt.DoctorID, appt.Date, appt.Period)
			if err != nil {
				return err
			}
			if !free {
				s.metrics.SlotConflict(metrics.StageAccept)
				return ErrSlotConflict
			}
			return transition(lockCtx)
		})
	} else {
		err = transition(ctx)
	}
	if err != nil {
		return nil, err
	}

	event := EventAppointmentRejected
	if target == StatusAccepted {
		event = EventAppointmentAccepted
	}
	s.metrics.Acknowledged(string(target))
	s.logEvent(ctx, updated.ID, event, map[string]any{
		"by":   caller.UserID.String(),
		"role": string(caller.Role),
	})

	return updated, nil
}

// SweepDelayed moves every appointment still awaiting acknowledgement to
// delayed and returns how many moved. Running it again right away moves none.
func (s *Service) SweepDelayed(ctx context.Context) (int, error) {
	ids, err := s.repo.MarkPendingDelayed(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep pending appointments: %w", err)
	}

	for _, id := range ids {
		s.logEvent(ctx, id, EventAppointmentDelayed, map[string]any{
			"reason": "not acknowledged before sweep",
		})
	}
	s.metrics.Delayed(len(ids))

	s.log.Info().Int("delayed", len(ids)).Msg("delay sweep finished")
	return len(ids), nil
}

// DoctorSchedule projects the doctor's accepted appointments over the days
// after today. days <= 0 uses the configured window.
func (s *Service) DoctorSchedule(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, days int) (*ScheduleGrid, error) {
	if err := authorizePatient(caller); err != nil {
		return nil, err
	}

	if days == 0 {
		days = s.cfg.ScheduleWindowDays
	}
	if days < 1 || days > MaxScheduleDays {
		verr := &ValidationError{}
		verr.Add("days", fmt.Sprintf("the days must be between 1 and %d", MaxScheduleDays))
		return nil, verr
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	window := ScheduleWindow(s.Today(), days)
	from, to := window[0], window[len(window)-1]

	appts, err := s.repo.ListDoctorAppointmentsBetween(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load doctor appointments: %w", err)
	}

	grid := ProjectAvailability(doctorID, from, days, appts)
	return &grid, nil
}

// DeleteAppointment never deletes; it only tells the caller why not.
func (s *Service) DeleteAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if caller.IsAnonymous() {
		return ErrUnauthenticated
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	return allow(caller, canDelete(caller, appt))
}

func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, slot Slot, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, slot.Key(doctorID), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.SlotConflict(metrics.StageLock)
		return ErrSlotBusy
	}
	return err
}

// logEvent is best effort: a failed write is logged and never returned.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
