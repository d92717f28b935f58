package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a persisted identity. Users are auto-provisioned as guests on first
// contact and may later claim the account with an email and password. Accounts
// are never hard-deleted, only marked inactive.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	Password string    `json:"password,omitempty"`

	IsGuest bool `json:"is_guest"`
	IsBot   bool `json:"is_bot"`

	CreatedAt     time.Time  `json:"created_at"`
	SeenAt        time.Time  `json:"seen_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
	Games  int `json:"games"`
}

// Active reports whether the account has not been administratively deactivated.
func (u *User) Active() bool {
	return u.DeactivatedAt == nil
}

// Perf is a per (user, time-control bucket) rating record. Only the rating
// engine mutates it, once per terminated match.
type Perf struct {
	UserID     uuid.UUID `json:"user_id"`
	Key        PerfKey   `json:"key"`
	Rating     float64   `json:"rating"`
	Deviation  float64   `json:"deviation"`
	Volatility float64   `json:"volatility"`
	Games      int       `json:"games"`
}
