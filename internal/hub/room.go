// internal/hub/room.go
package hub

import (
	"context"

	"github.com/veloce-hq/duckhub/internal/ws"
)

// room is the controller bound 1:1 to a peer while it occupies one room. A
// peer holds at most one room at a time; switching is leave-then-join.
type room interface {
	Channel() string
	Join(ctx context.Context)
	Leave(ctx context.Context)
	Handle(ctx context.Context, env ws.Envelope)
}

// baseRoom carries the lifecycle shared by every room: channel subscriptions,
// presence bookkeeping and the global counts event.
type baseRoom struct {
	hub     *Hub
	peer    *ws.Peer
	channel string
}

func (r *baseRoom) Channel() string {
	return r.channel
}

// enter runs the common join path before the subtype's own hook.
func (r *baseRoom) enter() {
	r.hub.broker.Subscribe(r.peer, UserChannel(r.peer.User.ID))
	r.hub.broker.Subscribe(r.peer, r.channel)
	r.hub.crowd.Connect(r.channel, r.peer.User.ID)
	r.hub.publishCounts()
}

// exit runs the common leave path: the peer drops every channel it held, not
// just the room channel, so a dangling subscription cannot outlive the room.
func (r *baseRoom) exit() {
	r.hub.broker.UnsubscribeAll(r.peer)
	r.hub.crowd.Disconnect(r.channel, r.peer.User.ID)
	r.hub.publishCounts()
}
