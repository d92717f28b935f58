// Package hub routes authenticated peers into rooms (lobby, site, per-match
// round rooms) and bridges room traffic onto the broadcast broker.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/crowd"
	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/game"
	"github.com/veloce-hq/duckhub/internal/models"
	"github.com/veloce-hq/duckhub/internal/ws"
)

// Channel keys. Every peer additionally subscribes to its own user channel,
// which carries targeted events like game redirects.
const (
	LobbyChannel = "lobby"
	SiteChannel  = "site"
)

// RoundChannel is the broadcast channel for one match room.
func RoundChannel(id uuid.UUID) string {
	return "round:" + id.String()
}

// UserChannel is the per-user channel for targeted events.
func UserChannel(id uuid.UUID) string {
	return "user:" + id.String()
}

// ErrUnknownRoom rejects a page path that maps to no room.
var ErrUnknownRoom = errors.New("unknown room")

// Directory is the persistence surface the hub needs: user lookup, the bot
// pool, rating records and match insertion.
type Directory interface {
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Bots(ctx context.Context) ([]*models.User, error)
	PerfFor(ctx context.Context, userID uuid.UUID, key models.PerfKey) (*models.Perf, error)
	InsertGame(ctx context.Context, g *models.Game) error
}

// Hub owns the shared registries every connection routes through: the broker,
// the crowd tracker, the lobby hook queue and the live match store.
type Hub struct {
	broker *ws.Broker
	crowd  *crowd.Tracker
	hooks  *hookQueue
	games  *game.Store
	db     Directory
	eng    engine.Engine
	logger *logrus.Logger
}

// New wires a hub over its collaborators.
func New(broker *ws.Broker, tracker *crowd.Tracker, games *game.Store, db Directory, eng engine.Engine, logger *logrus.Logger) *Hub {
	return &Hub{
		broker: broker,
		crowd:  tracker,
		hooks:  newHookQueue(),
		games:  games,
		db:     db,
		eng:    eng,
		logger: logger,
	}
}

// roomFor maps a page path to a room controller bound to the peer. Paths are
// "lobby", "site" (also the empty path) and "round/<match-id>".
func (h *Hub) roomFor(ctx context.Context, peer *ws.Peer, path string) (room, error) {
	path = strings.Trim(path, "/")
	switch {
	case path == "" || path == "site":
		return &siteRoom{baseRoom{hub: h, peer: peer, channel: SiteChannel}}, nil
	case path == "lobby":
		return &lobbyRoom{baseRoom{hub: h, peer: peer, channel: LobbyChannel}}, nil
	case strings.HasPrefix(path, "round/"):
		id, err := uuid.Parse(strings.TrimPrefix(path, "round/"))
		if err != nil {
			return nil, fmt.Errorf("%w: bad match id in %q", ErrUnknownRoom, path)
		}
		m, err := h.games.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: no match %s", ErrUnknownRoom, id)
		}
		return &roundRoom{
			baseRoom: baseRoom{hub: h, peer: peer, channel: RoundChannel(id)},
			match:    m,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoom, path)
	}
}

// countsData is the global presence event payload, published to the lobby
// channel on every join and leave anywhere.
type countsData struct {
	OnlineCount int `json:"onlineCount"`
	GameCount   int `json:"gameCount"`
}

func (h *Hub) publishCounts() {
	h.broker.Publish(LobbyChannel, "n", countsData{
		OnlineCount: h.crowd.Connections(),
		GameCount:   h.games.CountActive(),
	})
}
