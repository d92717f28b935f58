package models

import "github.com/google/uuid"

// Hook is an ephemeral seek offer living only in the lobby's in-memory queue.
// At most one live hook exists per (user, time control); posting a duplicate
// toggles the existing one off.
type Hook struct {
	ID          string      `json:"id"`
	UserID      uuid.UUID   `json:"-"`
	Username    string      `json:"u"`
	Rating      int         `json:"rating"`
	Provisional bool        `json:"provisional,omitempty"`
	Clock       TimeControl `json:"clock"`
}
