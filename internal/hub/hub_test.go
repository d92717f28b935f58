// internal/hub/hub_test.go
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloce-hq/duckhub/internal/crowd"
	"github.com/veloce-hq/duckhub/internal/database"
	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/game"
	"github.com/veloce-hq/duckhub/internal/models"
	"github.com/veloce-hq/duckhub/internal/rating"
	"github.com/veloce-hq/duckhub/internal/ws"
)

// scriptPos accepts every move and never ends the game.
type scriptPos struct {
	turn models.Color
	ply  int
}

func (p *scriptPos) Turn() models.Color { return p.turn }

func (p *scriptPos) Play(uci string) (engine.Step, error) {
	p.ply++
	p.turn = p.turn.Opposite()
	return engine.Step{UCI: uci, SAN: uci, FEN: fmt.Sprintf("fen-%d", p.ply)}, nil
}

func (p *scriptPos) Outcome() engine.Outcome { return engine.Undecided }
func (p *scriptPos) FEN() string             { return fmt.Sprintf("fen-%d", p.ply) }
func (p *scriptPos) Ply() int                { return p.ply }

type scriptEngine struct{}

func (scriptEngine) Start() engine.Position { return &scriptPos{turn: models.White} }

func (scriptEngine) Replay(ucis []string) (engine.Position, error) {
	p := &scriptPos{turn: models.White}
	for _, uci := range ucis {
		if _, err := p.Play(uci); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// fakeDB is an in-memory stand-in for the persistence layer, covering the
// hub directory, the match store loader and the match repo.
type fakeDB struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
	bots  []*models.User
	games map[uuid.UUID]*models.Game
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users: make(map[uuid.UUID]*models.User),
		games: make(map[uuid.UUID]*models.Game),
	}
}

func (db *fakeDB) addUser(username string) *models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := &models.User{ID: uuid.New(), Username: username}
	db.users[u.ID] = u
	return u
}

func (db *fakeDB) addBot(username string) *models.User {
	u := db.addUser(username)
	u.IsBot = true
	db.mu.Lock()
	defer db.mu.Unlock()
	db.bots = append(db.bots, u)
	return u
}

func (db *fakeDB) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (db *fakeDB) Bots(_ context.Context) ([]*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]*models.User(nil), db.bots...), nil
}

func (db *fakeDB) PerfFor(_ context.Context, userID uuid.UUID, key models.PerfKey) (*models.Perf, error) {
	def := rating.Default()
	return &models.Perf{UserID: userID, Key: key, Rating: def.Rating, Deviation: def.Deviation, Volatility: def.Volatility}, nil
}

func (db *fakeDB) InsertGame(_ context.Context, g *models.Game) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.games[g.ID] = g
	return nil
}

func (db *fakeDB) GameByID(_ context.Context, id uuid.UUID) (*models.Game, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	g, ok := db.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s not found", id)
	}
	return g, nil
}

func (db *fakeDB) SaveMove(_ context.Context, _ database.MoveUpdate) error     { return nil }
func (db *fakeDB) FinishGame(_ context.Context, _ database.FinishUpdate) error { return nil }
func (db *fakeDB) ApplyRating(_ context.Context, _ database.RatingApplication) error {
	return nil
}

type hubFixture struct {
	hub *Hub
	db  *fakeDB
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	logger := logrus.New()
	db := newFakeDB()
	store := game.NewStore(db, db, scriptEngine{}, nil, logger)
	h := New(ws.NewBroker(), crowd.NewTracker(), store, db, scriptEngine{}, logger)
	return &hubFixture{hub: h, db: db}
}

// connect builds an authenticated peer plus its session, already in the
// given room.
func (f *hubFixture) connect(t *testing.T, username, path string) (*Session, *ws.Peer) {
	t.Helper()
	user := f.db.addUser(username)
	peer := ws.NewPeer(user, func() {})
	s := f.hub.NewSession(peer)
	send(t, s, "page", map[string]string{"path": path})
	return s, peer
}

func send(t *testing.T, s *Session, typ string, d any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"t": typ, "d": d})
	require.NoError(t, err)
	s.HandleRaw(context.Background(), raw)
}

// drain decodes every frame currently queued for the peer. Bare heartbeat
// pongs come back with T set to the frame itself.
func drain(t *testing.T, p *ws.Peer) []ws.Envelope {
	t.Helper()
	var out []ws.Envelope
	for {
		select {
		case raw, ok := <-p.Out:
			if !ok {
				return out
			}
			var env ws.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				env = ws.Envelope{T: string(raw)}
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func envOf(envs []ws.Envelope, typ string) (ws.Envelope, bool) {
	for _, e := range envs {
		if e.T == typ {
			return e, true
		}
	}
	return ws.Envelope{}, false
}

func isTerminated(p *ws.Peer) bool {
	for {
		select {
		case _, ok := <-p.Out:
			if !ok {
				return true
			}
		default:
			return false
		}
	}
}

func TestHeartbeat(t *testing.T) {
	f := newHubFixture(t)
	s, p := f.connect(t, "alice", "lobby")
	drain(t, p)

	s.HandleRaw(context.Background(), []byte("ping"))
	envs := drain(t, p)
	require.Len(t, envs, 1)
	assert.Equal(t, "0", envs[0].T)
}

func TestHookToggle(t *testing.T) {
	f := newHubFixture(t)
	s, p := f.connect(t, "alice", "lobby")

	send(t, s, "hadd", map[string]string{"clock": "fivefour"})
	assert.Len(t, f.hub.hooks.snapshot(20), 1)

	send(t, s, "hadd", map[string]string{"clock": "fivefour"})
	assert.Empty(t, f.hub.hooks.snapshot(20), "second add toggles the hook off")

	send(t, s, "hadd", map[string]string{"clock": "fivefour"})
	assert.Len(t, f.hub.hooks.snapshot(20), 1, "third add recreates it")

	envs := drain(t, p)
	_, ok := envOf(envs, "hrem")
	assert.True(t, ok, "the toggle-off was announced")
}

func TestHookExclusivity(t *testing.T) {
	f := newHubFixture(t)
	s, _ := f.connect(t, "alice", "lobby")

	send(t, s, "hadd", map[string]string{"clock": "fivefour"})
	send(t, s, "hadd", map[string]string{"clock": "threetwo"})

	hooks := f.hub.hooks.snapshot(20)
	require.Len(t, hooks, 2, "different clocks coexist")
	seen := make(map[string]bool)
	for _, h := range hooks {
		key := h.UserID.String() + "/" + string(h.Clock)
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestHooksRemovedOnLeave(t *testing.T) {
	f := newHubFixture(t)
	s, _ := f.connect(t, "alice", "lobby")
	send(t, s, "hadd", map[string]string{"clock": "tenzero"})
	require.Len(t, f.hub.hooks.snapshot(20), 1)

	s.Close(context.Background())
	assert.Empty(t, f.hub.hooks.snapshot(20))
}

func TestHookSnapshotOnJoin(t *testing.T) {
	f := newHubFixture(t)
	s, _ := f.connect(t, "alice", "lobby")
	send(t, s, "hadd", map[string]string{"clock": "fivefour"})

	_, p2 := f.connect(t, "bob", "lobby")
	envs := drain(t, p2)
	env, ok := envOf(envs, "hlist")
	require.True(t, ok)
	var hooks []models.Hook
	require.NoError(t, json.Unmarshal(env.D, &hooks))
	require.Len(t, hooks, 1)
	assert.Equal(t, "alice", hooks[0].Username)
	assert.Equal(t, rating.Default().Floor(), hooks[0].Rating)
	assert.True(t, hooks[0].Provisional, "fresh rating records are provisional")
}

func TestPairingScenario(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	sa, pa := f.connect(t, "alice", "lobby")
	sb, pb := f.connect(t, "bob", "lobby")

	send(t, sa, "hadd", map[string]string{"clock": "fivefour"})
	send(t, sb, "hadd", map[string]string{"clock": "fivefour"})
	require.Len(t, f.hub.hooks.snapshot(20), 2)

	hook, ok := f.hub.hooks.byOwner(sa.peer.User.ID, models.FiveFour)
	require.True(t, ok)
	drain(t, pa)
	drain(t, pb)

	send(t, sb, "hjoin", map[string]string{"id": hook.ID})

	assert.Empty(t, f.hub.hooks.snapshot(20), "both hooks are gone after pairing")

	envA, ok := envOf(drain(t, pa), "game_redirect")
	require.True(t, ok, "seeker receives the redirect")
	envB, ok := envOf(drain(t, pb), "game_redirect")
	require.True(t, ok, "joiner receives the redirect")

	var ra, rb redirectData
	require.NoError(t, json.Unmarshal(envA.D, &ra))
	require.NoError(t, json.Unmarshal(envB.D, &rb))
	assert.Equal(t, ra.ID, rb.ID, "both redirects point at the same match")

	m, err := f.hub.games.Get(ctx, ra.ID)
	require.NoError(t, err)
	g := m.Game()
	assert.Equal(t, int64(300_000), g.WClock)
	assert.Equal(t, int64(300_000), g.BClock)
	assert.Equal(t, models.FiveFour, g.Clock)
}

func TestSelfJoinCancels(t *testing.T) {
	f := newHubFixture(t)
	s, _ := f.connect(t, "alice", "lobby")
	send(t, s, "hadd", map[string]string{"clock": "fivefour"})

	hook, ok := f.hub.hooks.byOwner(s.peer.User.ID, models.FiveFour)
	require.True(t, ok)

	send(t, s, "hjoin", map[string]string{"id": hook.ID})
	assert.Empty(t, f.hub.hooks.snapshot(20))
	assert.Empty(t, f.db.games, "self-join never creates a match")
}

func TestStaleHookJoinIgnored(t *testing.T) {
	f := newHubFixture(t)
	s, p := f.connect(t, "alice", "lobby")
	drain(t, p)

	send(t, s, "hjoin", map[string]string{"id": "deadbeef"})
	assert.False(t, isTerminated(p), "a raced-away hook is not an error")
	assert.Empty(t, f.db.games)
}

func TestAIPairing(t *testing.T) {
	f := newHubFixture(t)
	f.db.addBot("quacker")
	s, p := f.connect(t, "alice", "lobby")
	drain(t, p)

	send(t, s, "hai", map[string]string{"clock": "tenzero"})

	env, ok := envOf(drain(t, p), "game_redirect")
	require.True(t, ok)
	var rd redirectData
	require.NoError(t, json.Unmarshal(env.D, &rd))

	g, err := f.db.GameByID(context.Background(), rd.ID)
	require.NoError(t, err)
	usernames := []string{g.White.Username, g.Black.Username}
	assert.Contains(t, usernames, "alice")
	assert.Contains(t, usernames, "quacker")
	assert.Equal(t, int64(600_000), g.WClock)
}

func TestPresenceQueries(t *testing.T) {
	f := newHubFixture(t)
	_, _ = f.connect(t, "alice", "lobby")
	sb, pb := f.connect(t, "bob", "site")
	drain(t, pb)

	var alice *models.User
	for _, u := range f.db.users {
		if u.Username == "alice" {
			alice = u
		}
	}
	require.NotNil(t, alice)

	send(t, sb, "is_online", alice.ID)
	env, ok := envOf(drain(t, pb), "is_online")
	require.True(t, ok)
	var od onlineData
	require.NoError(t, json.Unmarshal(env.D, &od))
	assert.Equal(t, alice.ID, od.UserID)
	assert.True(t, od.Online)

	send(t, sb, "is_onlines", []uuid.UUID{alice.ID, uuid.New()})
	env, ok = envOf(drain(t, pb), "is_onlines")
	require.True(t, ok)
	var online []uuid.UUID
	require.NoError(t, json.Unmarshal(env.D, &online))
	assert.Equal(t, []uuid.UUID{alice.ID}, online, "only the online subset comes back")
}

func TestGlobalCountsEvent(t *testing.T) {
	f := newHubFixture(t)
	_, pa := f.connect(t, "alice", "lobby")
	drain(t, pa)

	f.connect(t, "bob", "lobby")

	env, ok := envOf(drain(t, pa), "n")
	require.True(t, ok, "lobby residents see every join")
	var counts countsData
	require.NoError(t, json.Unmarshal(env.D, &counts))
	assert.Equal(t, 2, counts.OnlineCount)
	assert.Equal(t, 0, counts.GameCount)
}

func TestUnknownRoomTerminates(t *testing.T) {
	f := newHubFixture(t)
	_, p := f.connect(t, "alice", "nowhere/at/all")
	assert.True(t, isTerminated(p))
}

func TestMessageBeforeRoomTerminates(t *testing.T) {
	f := newHubFixture(t)
	user := f.db.addUser("alice")
	p := ws.NewPeer(user, func() {})
	s := f.hub.NewSession(p)

	send(t, s, "hadd", map[string]string{"clock": "fivefour"})
	assert.True(t, isTerminated(p))
}

func pairUsers(t *testing.T, f *hubFixture) (sa, sb *Session, pa, pb *ws.Peer, id uuid.UUID) {
	t.Helper()
	sa, pa = f.connect(t, "alice", "lobby")
	sb, pb = f.connect(t, "bob", "lobby")
	send(t, sa, "hadd", map[string]string{"clock": "fivefour"})
	hook, ok := f.hub.hooks.byOwner(sa.peer.User.ID, models.FiveFour)
	require.True(t, ok)
	drain(t, pa)
	send(t, sb, "hjoin", map[string]string{"id": hook.ID})
	env, ok := envOf(drain(t, pa), "game_redirect")
	require.True(t, ok)
	var rd redirectData
	require.NoError(t, json.Unmarshal(env.D, &rd))
	return sa, sb, pa, pb, rd.ID
}

func TestRoundRoomPlay(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()
	sa, sb, pa, pb, id := pairUsers(t, f)

	path := "round/" + id.String()
	send(t, sa, "page", map[string]string{"path": path})
	send(t, sb, "page", map[string]string{"path": path})
	drain(t, pa)
	drain(t, pb)

	m, err := f.hub.games.Get(ctx, id)
	require.NoError(t, err)
	g := m.Game()
	whiteSession, blackSession := sa, sb
	if g.White.UserID != sa.peer.User.ID {
		whiteSession, blackSession = sb, sa
	}

	// Out of turn first.
	send(t, blackSession, "move", map[string]string{"uci": "e7e5"})
	_, gotErr := envOf(drain(t, blackSession.peer), "error")
	assert.True(t, gotErr, "out-of-turn move is rejected toward the sender")

	send(t, whiteSession, "move", map[string]string{"uci": "e2e4"})

	envsA := drain(t, pa)
	envsB := drain(t, pb)
	_, okA := envOf(envsA, "move")
	_, okB := envOf(envsB, "move")
	assert.True(t, okA && okB, "both sides see the move event")

	send(t, blackSession, "resign", nil)
	end, ok := envOf(drain(t, pa), "endData")
	require.True(t, ok)
	var ed struct {
		Status string        `json:"status"`
		Winner *models.Color `json:"winner"`
	}
	require.NoError(t, json.Unmarshal(end.D, &ed))
	assert.Equal(t, "resign", ed.Status)
	require.NotNil(t, ed.Winner)
	assert.Equal(t, models.White, *ed.Winner)
}

func TestRoundCrowdBroadcast(t *testing.T) {
	f := newHubFixture(t)
	sa, _, pa, _, id := pairUsers(t, f)

	send(t, sa, "page", map[string]string{"path": "round/" + id.String()})
	env, ok := envOf(drain(t, pa), "crowd")
	require.True(t, ok)
	var cd crowdData
	require.NoError(t, json.Unmarshal(env.D, &cd))
	assert.Contains(t, cd.UserIDs, sa.peer.User.ID)
}
