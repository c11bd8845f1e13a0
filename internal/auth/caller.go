package auth

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleDoctor    Role = "doctor"
	RoleNurse     Role = "nurse"
	RolePatient   Role = "patient"
	RoleAnonymous Role = "anonymous"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleStaff, RoleDoctor, RoleNurse, RolePatient, RoleAnonymous:
		return r, true
	}
	return "", false
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	UserID        uuid.UUID
	Role          Role
	EmailVerified bool
}

var Anonymous = Caller{Role: RoleAnonymous}

func (c Caller) IsAnonymous() bool {
	return c.Role == RoleAnonymous || c.Role == "" || c.UserID == uuid.Nil
}

// Is reports whether the caller holds any of roles.
func (c Caller) Is(roles ...Role) bool {
	if c.IsAnonymous() {
		return false
	}
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

type contextKey string

const callerKey contextKey = "caller"

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext returns Anonymous when no caller was attached.
func CallerFromContext(ctx context.Context) Caller {
	c, ok := ctx.Value(callerKey).(Caller)
	if !ok {
		return Anonymous
	}
	return c
}
