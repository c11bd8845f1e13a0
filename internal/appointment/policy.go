package appointment

import (
	"github.com/hospital/appointment-scheduling/internal/auth"
)

// authorizeRoles returns ErrUnauthenticated for anonymous callers and
// ErrForbidden for callers outside roles.
func authorizeRoles(c auth.Caller, roles ...auth.Role) error {
	if c.IsAnonymous() {
		return ErrUnauthenticated
	}
	if !c.Is(roles...) {
		return ErrForbidden
	}
	return nil
}

// authorizePatient admits patients whose email has been verified.
func authorizePatient(c auth.Caller) error {
	if err := authorizeRoles(c, auth.RolePatient); err != nil {
		return err
	}
	if !c.EmailVerified {
		return ErrEmailNotVerified
	}
	return nil
}

func canViewAny(c auth.Caller) bool {
	return c.Is(auth.RoleAdmin, auth.RoleStaff)
}

func canViewAsPatient(c auth.Caller, a *Appointment) bool {
	return c.Is(auth.RolePatient) && a.PatientID == c.UserID
}

func canViewAsDoctor(c auth.Caller, a *Appointment) bool {
	return c.Is(auth.RoleDoctor) && a.DoctorID == c.UserID
}

func canAcknowledge(c auth.Caller, a *Appointment) bool {
	return canViewAny(c) || canViewAsDoctor(c, a)
}

func canSubmitTest(c auth.Caller, a *Appointment) bool {
	return canViewAsDoctor(c, a)
}

// Appointments are a permanent record.
func canDelete(auth.Caller, *Appointment) bool {
	return false
}

func allow(c auth.Caller, ok bool) error {
	if c.IsAnonymous() {
		return ErrUnauthenticated
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
