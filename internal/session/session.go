package session

import (
	"context"
	"time"
)

// Role separates the two login surfaces.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// Identity is what a session token resolves to.
type Identity struct {
	StudentID int64  `json:"student_id,omitempty"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// Store creates, resolves, and invalidates sessions by opaque token.
// Sessions expire after the store's TTL.
type Store interface {
	Create(ctx context.Context, id Identity) (string, error)
	Lookup(ctx context.Context, token string) (Identity, bool, error)
	Invalidate(ctx context.Context, token string) error
}

// clock is injectable for expiry tests on the in-memory backend.
type clock func() time.Time
