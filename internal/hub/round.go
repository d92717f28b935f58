// internal/hub/round.go
package hub

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/game"
	"github.com/veloce-hq/duckhub/internal/ws"
)

type roundRoom struct {
	baseRoom
	match *game.Match
}

type crowdData struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

// publishCrowd broadcasts the set of user ids connected to this match room,
// so observers can tell which side is present.
func (r *roundRoom) publishCrowd() {
	r.hub.broker.Publish(r.channel, "crowd", crowdData{UserIDs: r.hub.crowd.Ids(r.channel)})
}

func (r *roundRoom) Join(_ context.Context) {
	r.enter()
	r.publishCrowd()
}

func (r *roundRoom) Leave(_ context.Context) {
	r.exit()
	r.publishCrowd()
	if r.match.Terminal() {
		r.hub.games.Remove(r.match.Game().ID)
	}
}

func (r *roundRoom) Handle(ctx context.Context, env ws.Envelope) {
	switch env.T {
	case "move":
		var payload struct {
			UCI string `json:"uci"`
		}
		if err := json.Unmarshal(env.D, &payload); err != nil {
			r.hub.logger.Debugf("round: peer %s sent bad move payload", r.peer.ID)
			r.peer.Terminate()
			return
		}
		r.apply(r.match.PlayMove(ctx, r.peer.User.ID, payload.UCI))
	case "resign":
		r.apply(r.match.Resign(ctx, r.peer.User.ID))
	case "flag":
		r.apply(r.match.Flag(ctx, r.peer.User.ID))
	default:
		r.hub.logger.Debugf("round: peer %s sent unknown message %q", r.peer.ID, env.T)
	}
}

// apply publishes the events a match operation produced, or surfaces its
// rejection to the sender. Rule rejections mutate nothing and keep the
// connection alive.
func (r *roundRoom) apply(events []game.Event, err error) {
	if err != nil {
		switch {
		case errors.Is(err, game.ErrGameOver),
			errors.Is(err, game.ErrNotYourTurn),
			errors.Is(err, game.ErrNotPlayer),
			errors.Is(err, engine.ErrIllegalMove):
			r.peer.Send("error", err.Error())
		default:
			// Persistence failure: the in-flight operation is lost, the
			// match stays playable.
			r.hub.logger.Errorf("round %s: %v", r.channel, err)
			r.peer.Send("error", "internal error")
		}
		return
	}

	terminal := false
	for _, ev := range events {
		r.hub.broker.Publish(r.channel, ev.T, ev.D)
		if ev.T == "endData" {
			terminal = true
		}
	}
	if terminal {
		// The game counter just changed.
		r.hub.publishCounts()
	}
}
