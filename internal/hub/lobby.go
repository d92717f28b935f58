// internal/hub/lobby.go
package hub

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/veloce-hq/duckhub/internal/game"
	"github.com/veloce-hq/duckhub/internal/models"
	"github.com/veloce-hq/duckhub/internal/rating"
	"github.com/veloce-hq/duckhub/internal/ws"
)

// hookSnapshotCap bounds the hook list a newly joined client receives.
const hookSnapshotCap = 20

// hookQueue is the process-wide seek queue. One lock over the whole thing;
// cardinality is low and every operation is a map touch.
type hookQueue struct {
	mu    sync.Mutex
	hooks map[string]*models.Hook
	order []string
}

func newHookQueue() *hookQueue {
	return &hookQueue{hooks: make(map[string]*models.Hook)}
}

func (q *hookQueue) add(h *models.Hook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks[h.ID] = h
	q.order = append(q.order, h.ID)
}

func (q *hookQueue) remove(id string) (*models.Hook, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *hookQueue) removeLocked(id string) (*models.Hook, bool) {
	h, ok := q.hooks[id]
	if !ok {
		return nil, false
	}
	delete(q.hooks, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return h, true
}

// byOwner finds the user's live hook for one time control, if any.
func (q *hookQueue) byOwner(userID uuid.UUID, clock models.TimeControl) (*models.Hook, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range q.hooks {
		if h.UserID == userID && h.Clock == clock {
			return h, true
		}
	}
	return nil, false
}

// removeOwned drops every hook the user owns and returns their ids.
func (q *hookQueue) removeOwned(userID uuid.UUID) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for id, h := range q.hooks {
		if h.UserID == userID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		q.removeLocked(id)
	}
	return ids
}

// snapshot returns up to limit hooks, most recent first.
func (q *hookQueue) snapshot(limit int) []*models.Hook {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Hook, 0, limit)
	for i := len(q.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, q.hooks[q.order[i]])
	}
	return out
}

func newHookID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

type lobbyRoom struct {
	baseRoom
}

// Join sends the hook snapshot to the newly joined peer only; the room does
// not see a join event.
func (r *lobbyRoom) Join(_ context.Context) {
	r.enter()
	r.peer.Send("hlist", r.hub.hooks.snapshot(hookSnapshotCap))
}

// Leave removes every hook the leaving user owns and announces the removal.
func (r *lobbyRoom) Leave(_ context.Context) {
	if ids := r.hub.hooks.removeOwned(r.peer.User.ID); len(ids) > 0 {
		r.hub.broker.Publish(LobbyChannel, "hrem", ids)
	}
	r.exit()
}

func (r *lobbyRoom) Handle(ctx context.Context, env ws.Envelope) {
	switch env.T {
	case "hadd":
		r.handleAdd(ctx, env.D)
	case "hjoin":
		r.handleJoin(ctx, env.D)
	case "hai":
		r.handleAI(ctx, env.D)
	default:
		r.hub.logger.Debugf("lobby: peer %s sent unknown message %q", r.peer.ID, env.T)
	}
}

type clockPayload struct {
	Clock models.TimeControl `json:"clock"`
}

// handleAdd posts a seek, or toggles an existing one off when the user
// already seeks the same time control.
func (r *lobbyRoom) handleAdd(ctx context.Context, d json.RawMessage) {
	var payload clockPayload
	if err := json.Unmarshal(d, &payload); err != nil || !payload.Clock.Valid() {
		r.hub.logger.Debugf("lobby: peer %s sent bad hadd payload", r.peer.ID)
		r.peer.Terminate()
		return
	}

	if h, ok := r.hub.hooks.byOwner(r.peer.User.ID, payload.Clock); ok {
		r.hub.hooks.remove(h.ID)
		r.hub.broker.Publish(LobbyChannel, "hrem", []string{h.ID})
		return
	}

	perf, err := r.perfOf(ctx, r.peer.User.ID, payload.Clock)
	if err != nil {
		// A missing rating record cannot be recovered mid-session.
		r.hub.logger.Warnf("lobby: no %s rating for user %s: %v", payload.Clock.PerfKeyOf(), r.peer.User.ID, err)
		r.peer.Terminate()
		return
	}

	hook := &models.Hook{
		ID:          newHookID(),
		UserID:      r.peer.User.ID,
		Username:    r.peer.User.Username,
		Rating:      perf.Floor(),
		Provisional: perf.Provisional(),
		Clock:       payload.Clock,
	}
	r.hub.hooks.add(hook)
	r.hub.broker.Publish(LobbyChannel, "hadd", hook)
}

// handleJoin accepts another user's hook, or cancels the caller's own. A
// hook id that is no longer live lost a race with a cancel or another
// acceptance and is silently dropped.
func (r *lobbyRoom) handleJoin(ctx context.Context, d json.RawMessage) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(d, &payload); err != nil {
		r.hub.logger.Debugf("lobby: peer %s sent bad hjoin payload", r.peer.ID)
		r.peer.Terminate()
		return
	}

	hook, ok := r.hub.hooks.remove(payload.ID)
	if !ok {
		r.hub.logger.Debugf("lobby: hook %s already gone", payload.ID)
		return
	}
	removed := []string{hook.ID}

	if hook.UserID == r.peer.User.ID {
		r.hub.broker.Publish(LobbyChannel, "hrem", removed)
		return
	}

	// The joiner stops seeking too; their own hooks go with the accepted one.
	removed = append(removed, r.hub.hooks.removeOwned(r.peer.User.ID)...)
	r.hub.broker.Publish(LobbyChannel, "hrem", removed)

	owner, err := r.hub.db.UserByID(ctx, hook.UserID)
	if err != nil {
		r.hub.logger.Warnf("lobby: hook %s owner %s not found: %v", hook.ID, hook.UserID, err)
		r.peer.Terminate()
		return
	}
	r.startMatch(ctx, owner, r.peer.User, hook.Clock)
}

// handleAI pairs the caller against a randomly chosen bot.
func (r *lobbyRoom) handleAI(ctx context.Context, d json.RawMessage) {
	var payload clockPayload
	if err := json.Unmarshal(d, &payload); err != nil || !payload.Clock.Valid() {
		r.hub.logger.Debugf("lobby: peer %s sent bad hai payload", r.peer.ID)
		r.peer.Terminate()
		return
	}

	bots, err := r.hub.db.Bots(ctx)
	if err != nil || len(bots) == 0 {
		r.hub.logger.Warnf("lobby: no bots available: %v", err)
		r.peer.Terminate()
		return
	}
	r.startMatch(ctx, bots[rand.Intn(len(bots))], r.peer.User, payload.Clock)
}

type redirectData struct {
	ID uuid.UUID `json:"id"`
}

// startMatch creates and registers the match, then redirects both users to it
// through their user channels.
func (r *lobbyRoom) startMatch(ctx context.Context, a, b *models.User, clock models.TimeControl) {
	g, err := r.createMatch(ctx, a, b, clock)
	if err != nil {
		r.hub.logger.Errorf("lobby: pairing %s vs %s failed: %v", a.ID, b.ID, err)
		r.peer.Terminate()
		return
	}

	if _, err := r.hub.games.Add(g); err != nil {
		r.hub.logger.Warnf("lobby: registering match %s: %v", g.ID, err)
	}
	redirect := redirectData{ID: g.ID}
	r.hub.broker.Publish(UserChannel(a.ID), "game_redirect", redirect)
	r.hub.broker.Publish(UserChannel(b.ID), "game_redirect", redirect)
}

func (r *lobbyRoom) createMatch(ctx context.Context, a, b *models.User, clock models.TimeControl) (*models.Game, error) {
	perfA, err := r.perfOf(ctx, a.ID, clock)
	if err != nil {
		return nil, err
	}
	perfB, err := r.perfOf(ctx, b.ID, clock)
	if err != nil {
		return nil, err
	}
	return game.CreateMatch(ctx, r.hub.db, r.hub.eng,
		game.Seat{User: a, Perf: perfA},
		game.Seat{User: b, Perf: perfB},
		clock)
}

// perfOf resolves a user's rating triple for the time control's bucket.
func (r *lobbyRoom) perfOf(ctx context.Context, userID uuid.UUID, clock models.TimeControl) (rating.Rating, error) {
	perf, err := r.hub.db.PerfFor(ctx, userID, clock.PerfKeyOf())
	if err != nil {
		return rating.Rating{}, err
	}
	return rating.Rating{Rating: perf.Rating, Deviation: perf.Deviation, Volatility: perf.Volatility}, nil
}
