// internal/hub/session.go
package hub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/veloce-hq/duckhub/internal/ws"
)

// maxOnlinesQuery caps one is_onlines batch.
const maxOnlinesQuery = 40

// Session is the per-connection dispatcher. All of its methods are called
// from the connection's read goroutine, one message at a time; Close runs on
// the same goroutine after the read loop exits, so no locking is needed.
type Session struct {
	hub  *Hub
	peer *ws.Peer
	room room
}

// NewSession binds a dispatcher to an authenticated peer. The peer occupies
// no room until its first page message.
func (h *Hub) NewSession(peer *ws.Peer) *Session {
	return &Session{hub: h, peer: peer}
}

// HandleRaw processes one inbound frame: the bare heartbeat, the room-switch
// handshake, the room-independent presence queries, or a room message.
func (s *Session) HandleRaw(ctx context.Context, raw []byte) {
	if string(raw) == ws.PingFrame {
		s.peer.SendRaw([]byte(ws.PongFrame))
		return
	}

	var env ws.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.hub.logger.Debugf("peer %s: malformed envelope: %v", s.peer.ID, err)
		s.peer.Terminate()
		return
	}

	switch env.T {
	case "page":
		s.switchRoom(ctx, env.D)
	case "is_online":
		s.answerIsOnline(env.D)
	case "is_onlines":
		s.answerIsOnlines(env.D)
	default:
		if s.room == nil {
			s.hub.logger.Debugf("peer %s: %q before room selection", s.peer.ID, env.T)
			s.peer.Terminate()
			return
		}
		s.room.Handle(ctx, env)
	}
}

// switchRoom leaves the current room, if any, and joins the one named by the
// page payload. An unresolvable path is a protocol error and terminates the
// connection.
func (s *Session) switchRoom(ctx context.Context, d json.RawMessage) {
	var payload struct {
		Path   string          `json:"path"`
		Params json.RawMessage `json:"params,omitempty"`
	}
	if err := json.Unmarshal(d, &payload); err != nil {
		s.hub.logger.Debugf("peer %s: malformed page payload: %v", s.peer.ID, err)
		s.peer.Terminate()
		return
	}

	next, err := s.hub.roomFor(ctx, s.peer, payload.Path)
	if err != nil {
		s.hub.logger.Debugf("peer %s: %v", s.peer.ID, err)
		s.peer.Terminate()
		return
	}

	if s.room != nil {
		s.room.Leave(ctx)
		s.room = nil
	}
	s.room = next
	s.room.Join(ctx)
}

// Close runs the leave path exactly once. Safe to call on a session that
// never selected a room, or after a prior Close.
func (s *Session) Close(ctx context.Context) {
	if s.room == nil {
		return
	}
	s.room.Leave(ctx)
	s.room = nil
}

type onlineData struct {
	UserID uuid.UUID `json:"userId"`
	Online bool      `json:"online"`
}

// answerIsOnline replies with one user's presence, answered from the tracker
// without reaching any room. Malformed queries are dropped, not fatal.
func (s *Session) answerIsOnline(d json.RawMessage) {
	var userID uuid.UUID
	if err := json.Unmarshal(d, &userID); err != nil {
		return
	}
	s.peer.Send("is_online", onlineData{UserID: userID, Online: s.hub.crowd.IsOnline(userID)})
}

// answerIsOnlines replies with the online subset of a batch of user ids,
// capped at maxOnlinesQuery.
func (s *Session) answerIsOnlines(d json.RawMessage) {
	var ids []uuid.UUID
	if err := json.Unmarshal(d, &ids); err != nil {
		return
	}
	if len(ids) > maxOnlinesQuery {
		ids = ids[:maxOnlinesQuery]
	}
	online := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if s.hub.crowd.IsOnline(id) {
			online = append(online, id)
		}
	}
	s.peer.Send("is_onlines", online)
}
