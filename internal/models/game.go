package models

import (
	"time"

	"github.com/google/uuid"
)

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// GameStatus is ordered: a match only ever advances to a larger value and
// every status from Ended upward is terminal.
type GameStatus int

const (
	StatusCreated GameStatus = iota
	StatusStarted
	StatusEnded
	StatusDraw
	StatusResign
	StatusOutoftime
	StatusAborted
)

// Terminal reports whether no further moves are possible.
func (s GameStatus) Terminal() bool {
	return s >= StatusEnded
}

func (s GameStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusStarted:
		return "started"
	case StatusEnded:
		return "ended"
	case StatusDraw:
		return "draw"
	case StatusResign:
		return "resign"
	case StatusOutoftime:
		return "outoftime"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Player is one side's record within a match: a snapshot of the user's rating
// at pairing time plus the post-game rating movement.
type Player struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Color       Color     `json:"color"`
	Rating      int       `json:"rating"`
	Provisional bool      `json:"provisional"`
	RatingDiff  *int      `json:"rating_diff,omitempty"`
	IsWinner    bool      `json:"is_winner,omitempty"`
}

// Game is the persisted match record.
type Game struct {
	ID    uuid.UUID   `json:"id"`
	Clock TimeControl `json:"clock"`

	White Player `json:"white"`
	Black Player `json:"black"`

	Status GameStatus `json:"status"`
	Winner *Color     `json:"winner,omitempty"`

	// WClock and BClock are remaining milliseconds per side.
	WClock int64 `json:"wclock"`
	BClock int64 `json:"bclock"`

	// Moves is the UCI move list in play order.
	Moves []string `json:"moves"`
	// FEN is the serialized current position, produced by the rules engine.
	FEN string `json:"fen"`
	// Turn is the side to move.
	Turn Color `json:"turn"`

	CreatedAt time.Time  `json:"created_at"`
	MovedAt   *time.Time `json:"moved_at,omitempty"`
}

// PlayerFor returns the player record for the given user, if any.
func (g *Game) PlayerFor(userID uuid.UUID) (Player, bool) {
	if g.White.UserID == userID {
		return g.White, true
	}
	if g.Black.UserID == userID {
		return g.Black, true
	}
	return Player{}, false
}

// PlayerOf returns the player record on the given side.
func (g *Game) PlayerOf(c Color) Player {
	if c == White {
		return g.White
	}
	return g.Black
}
