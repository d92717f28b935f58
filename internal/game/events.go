// internal/game/events.go
package game

import (
	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/models"
)

// Event is one room-scoped broadcast produced by a match operation. The room
// controller publishes events in order; the match itself never talks to
// sockets.
type Event struct {
	T string `json:"t"`
	D any    `json:"d,omitempty"`
}

// ClockState carries both remaining clocks in milliseconds.
type ClockState struct {
	WClock int64 `json:"wclock"`
	BClock int64 `json:"bclock"`
}

// MoveEventData is the payload of a "move" event.
type MoveEventData struct {
	Step  engine.Step `json:"step"`
	Clock ClockState  `json:"clock"`
}

// RatingDiffPair carries the signed, floored rating movement per side.
type RatingDiffPair struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// EndEventData is the payload of an "endData" event.
type EndEventData struct {
	Status     string         `json:"status"`
	Winner     *models.Color  `json:"winner,omitempty"`
	Clock      ClockState     `json:"clock"`
	RatingDiff RatingDiffPair `json:"ratingDiff"`
}
