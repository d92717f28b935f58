// internal/engine/engine.go
package engine

import (
	"errors"

	"github.com/veloce-hq/duckhub/internal/models"
)

// ErrIllegalMove is returned when a move fails validation for the current
// position.
var ErrIllegalMove = errors.New("illegal move")

// Outcome is the terminal verdict the rules engine reports for a position.
type Outcome int

const (
	Undecided Outcome = iota
	WhiteWins
	BlackWins
	Drawn
)

// Step is the result of one applied move, in machine and human-readable
// notation plus the resulting serialized position.
type Step struct {
	UCI string `json:"uci"`
	SAN string `json:"san"`
	FEN string `json:"fen"`
}

// Position is one game's mutable board state. Implementations are not safe
// for concurrent use; callers serialize access per match.
type Position interface {
	// Turn is the side to move.
	Turn() models.Color
	// Play validates the UCI move against the position and applies it.
	// Returns ErrIllegalMove (possibly wrapped) on rejection; the position
	// is unchanged on error.
	Play(uci string) (Step, error)
	// Outcome reports the terminal verdict, if any.
	Outcome() Outcome
	// FEN serializes the current position.
	FEN() string
	// Ply is the number of half-moves played.
	Ply() int
}

// Engine builds positions. The hub treats move legality and terminal
// detection as this collaborator's problem.
type Engine interface {
	// Start returns the initial position.
	Start() Position
	// Replay rebuilds a position from a stored UCI move list.
	Replay(ucis []string) (Position, error)
}
