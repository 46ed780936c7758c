package claimsx

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ClaimsOp names a claims mutation.
type ClaimsOp string

const (
	ClaimsPut    ClaimsOp = "put"
	ClaimsDelete ClaimsOp = "delete"
)

// ClaimsEvent describes a claims mutation. It never carries the claims.
type ClaimsEvent struct {
	ID         string    `json:"id"`
	Op         ClaimsOp  `json:"op"`
	Identifier string    `json:"identifier"`
	At         time.Time `json:"at"`
}

// NewClaimsEvent stamps an event with a fresh id and the current time.
func NewClaimsEvent(op ClaimsOp, identifier string) ClaimsEvent {
	return ClaimsEvent{
		ID:         uuid.NewString(),
		Op:         op,
		Identifier: identifier,
		At:         time.Now().UTC(),
	}
}

// Auditor receives claims mutation events.
type Auditor interface {
	Record(ctx context.Context, event ClaimsEvent) error
}
