package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotReader is the storage view the guard needs.
type SlotReader interface {
	GetAcceptedAppointmentForSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, period string) (*Appointment, error)
}

// ConflictGuard answers whether a doctor's slot is still bookable. Only an
// accepted appointment occupies a slot; pending, rejected and delayed ones do not.
type ConflictGuard struct {
	repo SlotReader
}

func NewConflictGuard(repo SlotReader) *ConflictGuard {
	return &ConflictGuard{repo: repo}
}

func (g *ConflictGuard) CheckSlotFree(ctx context.Context, doctorID uuid.UUID, date time.Time, period string) (bool, error) {
	_, err := g.repo.GetAcceptedAppointmentForSlot(ctx, doctorID, date, period)
	if errors.Is(err, ErrAppointmentNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check accepted appointment: %w", err)
	}
	return false, nil
}
