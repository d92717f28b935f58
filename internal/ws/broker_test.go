package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloce-hq/duckhub/internal/models"
)

func testPeer() *Peer {
	return NewPeer(&models.User{Username: "tester"}, func() {})
}

func drain(t *testing.T, p *Peer) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw := <-p.Out:
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	a, c := testPeer(), testPeer()
	b.Subscribe(a, "lobby")
	b.Subscribe(c, "lobby")

	b.Publish("lobby", "hello", map[string]int{"x": 1})

	assert.Len(t, drain(t, a), 1)
	assert.Len(t, drain(t, c), 1)
}

func TestPublishExceptSkipsSender(t *testing.T) {
	b := NewBroker()
	sender, other := testPeer(), testPeer()
	b.Subscribe(sender, "lobby")
	b.Subscribe(other, "lobby")

	b.PublishExcept("lobby", "hello", nil, sender)

	assert.Empty(t, drain(t, sender))
	assert.Len(t, drain(t, other), 1)
}

func TestUnsubscribeAll(t *testing.T) {
	b := NewBroker()
	p := testPeer()
	b.Subscribe(p, "lobby")
	b.Subscribe(p, "user:abc")

	chans := b.UnsubscribeAll(p)
	assert.ElementsMatch(t, []string{"lobby", "user:abc"}, chans)
	assert.Empty(t, b.Channels(p))

	b.Publish("lobby", "hello", nil)
	assert.Empty(t, drain(t, p))
}

func TestTerminatedPeerDropsSends(t *testing.T) {
	b := NewBroker()
	p := testPeer()
	b.Subscribe(p, "lobby")
	p.Terminate()
	p.Terminate() // idempotent

	// Must not panic on the closed out channel.
	b.Publish("lobby", "hello", nil)
}
