// internal/ws/broker.go
package ws

import (
	"encoding/json"
	"log"
	"sync"
)

/*
Broker is the in-process broadcast substrate. It keeps two mappings so that

 1. publishing to a channel touches only that channel's subscribers, and
 2. a closing peer can drop all of its subscriptions without scanning
    every channel.
*/
type Broker struct {
	mu        sync.RWMutex
	byChannel map[string]map[*Peer]struct{}
	byPeer    map[*Peer]map[string]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{
		byChannel: make(map[string]map[*Peer]struct{}),
		byPeer:    make(map[*Peer]map[string]struct{}),
	}
}

// Subscribe registers the peer on a channel. Subscribing twice is a no-op.
func (b *Broker) Subscribe(p *Peer, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.byChannel[channel]
	if !ok {
		subs = make(map[*Peer]struct{})
		b.byChannel[channel] = subs
	}
	subs[p] = struct{}{}

	chans, ok := b.byPeer[p]
	if !ok {
		chans = make(map[string]struct{})
		b.byPeer[p] = chans
	}
	chans[channel] = struct{}{}
}

// Unsubscribe removes the peer from one channel.
func (b *Broker) Unsubscribe(p *Peer, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(p, channel)
}

// UnsubscribeAll removes the peer from every channel it holds and returns the
// channels it held, so callers can run per-channel leave bookkeeping.
func (b *Broker) UnsubscribeAll(p *Peer) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	chans := make([]string, 0, len(b.byPeer[p]))
	for ch := range b.byPeer[p] {
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		b.unsubscribeLocked(p, ch)
	}
	return chans
}

func (b *Broker) unsubscribeLocked(p *Peer, channel string) {
	if subs, ok := b.byChannel[channel]; ok {
		delete(subs, p)
		if len(subs) == 0 {
			delete(b.byChannel, channel)
		}
	}
	if chans, ok := b.byPeer[p]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(b.byPeer, p)
		}
	}
}

// Channels returns the channels a peer is currently subscribed to.
func (b *Broker) Channels(p *Peer) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	chans := make([]string, 0, len(b.byPeer[p]))
	for ch := range b.byPeer[p] {
		chans = append(chans, ch)
	}
	return chans
}

// Publish marshals the envelope once and fans it out to every subscriber of
// the channel.
func (b *Broker) Publish(channel string, t string, d any) {
	b.publish(channel, t, d, nil)
}

// PublishExcept behaves like Publish but skips one peer, typically the sender
// that already applied the effect locally.
func (b *Broker) PublishExcept(channel string, t string, d any, except *Peer) {
	b.publish(channel, t, d, except)
}

func (b *Broker) publish(channel, t string, d any, except *Peer) {
	raw, err := json.Marshal(struct {
		T string `json:"t"`
		D any    `json:"d,omitempty"`
	}{T: t, D: d})
	if err != nil {
		log.Printf("broker: marshal %q for channel %s: %v", t, channel, err)
		return
	}

	b.mu.RLock()
	peers := make([]*Peer, 0, len(b.byChannel[channel]))
	for p := range b.byChannel[channel] {
		if p != except {
			peers = append(peers, p)
		}
	}
	b.mu.RUnlock()

	for _, p := range peers {
		p.SendRaw(raw)
	}
}
