// internal/ws/peer.go
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/veloce-hq/duckhub/internal/models"
)

// PongFrame is the heartbeat reply, sent bare outside the envelope.
const PongFrame = "0"

// PingFrame is the bare heartbeat the client sends on a fixed cadence.
const PingFrame = "ping"

// Envelope is the single application message shape: a type tag plus payload.
type Envelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// Peer is one authenticated socket connection. Outgoing traffic goes through
// Out, drained by a single write pump; the peer itself never touches the
// underlying connection.
type Peer struct {
	ID       uuid.UUID
	User     *models.User
	Out      chan []byte
	Cancel   func()

	closeOnce  sync.Once
	terminated bool
	mu         sync.Mutex
}

// NewPeer wires a peer for the given authenticated user. Cancel tears down
// the connection's context; the read loop exits and cleanup runs once.
func NewPeer(user *models.User, cancel func()) *Peer {
	return &Peer{
		ID:     uuid.New(),
		User:   user,
		Out:    make(chan []byte, 32),
		Cancel: cancel,
	}
}

// Send marshals an envelope and queues it non-blockingly. Messages for a
// stalled peer are dropped rather than blocking room handlers.
func (p *Peer) Send(t string, d any) {
	raw, err := json.Marshal(struct {
		T string `json:"t"`
		D any    `json:"d,omitempty"`
	}{T: t, D: d})
	if err != nil {
		log.Printf("peer %s: marshal %q message: %v", p.ID, t, err)
		return
	}
	p.SendRaw(raw)
}

// SendRaw queues pre-marshaled bytes, dropping them if the out channel is
// full or closed.
func (p *Peer) SendRaw(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return
	}
	select {
	case p.Out <- data:
	default:
		log.Printf("peer %s: out channel full, dropped %d bytes", p.ID, len(data))
	}
}

// Terminate forcibly shuts the connection down. Safe to call repeatedly and
// concurrently with Send.
func (p *Peer) Terminate() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.terminated = true
		close(p.Out)
		p.mu.Unlock()
		if p.Cancel != nil {
			p.Cancel()
		}
	})
}
