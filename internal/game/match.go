// internal/game/match.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/cache"
	"github.com/veloce-hq/duckhub/internal/database"
	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/models"
	"github.com/veloce-hq/duckhub/internal/rating"
)

var (
	// ErrGameOver rejects any mutation of a terminal match.
	ErrGameOver = errors.New("game is over")
	// ErrNotPlayer rejects operations from users outside the match.
	ErrNotPlayer = errors.New("user is not a player in this game")
	// ErrNotYourTurn rejects out-of-turn moves.
	ErrNotYourTurn = errors.New("not your turn")
)

// minRatedPlies guards the rating engine against instantly-aborted games:
// only matches with more than one full move pair are rated.
const minRatedPlies = 2

// Repo is the persistence collaborator a match writes through.
type Repo interface {
	SaveMove(ctx context.Context, u database.MoveUpdate) error
	FinishGame(ctx context.Context, u database.FinishUpdate) error
	PerfFor(ctx context.Context, userID uuid.UUID, key models.PerfKey) (*models.Perf, error)
	ApplyRating(ctx context.Context, app database.RatingApplication) error
}

// HistoryFunc pushes a finished-game record onto the history queue.
// A nil HistoryFunc disables archiving.
type HistoryFunc func(ctx context.Context, rec cache.GameEndRecord) error

// Match is one live match. All operations on it serialize through its mutex:
// move, resign and flag read-modify-write the same clock and status fields,
// so a flag-vs-move race must never commit twice.
type Match struct {
	mu sync.Mutex

	g      *models.Game
	pos    engine.Position
	repo   Repo
	hist   HistoryFunc
	logger *logrus.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewMatch binds a persisted game record to a live position. The position is
// rebuilt from the stored move list.
func NewMatch(g *models.Game, eng engine.Engine, repo Repo, hist HistoryFunc, logger *logrus.Logger) (*Match, error) {
	pos, err := eng.Replay(g.Moves)
	if err != nil {
		return nil, fmt.Errorf("rebuilding position for game %s: %w", g.ID, err)
	}
	return &Match{
		g:      g,
		pos:    pos,
		repo:   repo,
		hist:   hist,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Game returns a snapshot copy of the match record.
func (m *Match) Game() models.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := *m.g
	snap.Moves = append([]string(nil), m.g.Moves...)
	return snap
}

// Terminal reports whether the match has ended.
func (m *Match) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.g.Status.Terminal()
}

// lastStamp is the reference point for elapsed-time arithmetic.
func (m *Match) lastStamp() time.Time {
	if m.g.MovedAt != nil {
		return *m.g.MovedAt
	}
	return m.g.CreatedAt
}

// remaining returns the given side's clock, in milliseconds.
func (m *Match) remaining(c models.Color) int64 {
	if c == models.White {
		return m.g.WClock
	}
	return m.g.BClock
}

func (m *Match) setRemaining(c models.Color, v int64) {
	if c == models.White {
		m.g.WClock = v
	} else {
		m.g.BClock = v
	}
}

// flagged reports whether the side to move has exhausted its clock.
func (m *Match) flagged() bool {
	elapsed := m.now().Sub(m.lastStamp()).Milliseconds()
	return m.remaining(m.pos.Turn())-elapsed <= 0
}

// applyClock charges elapsed time to the side that just moved and credits the
// increment, floored at zero.
func (m *Match) applyClock(mover models.Color) {
	elapsed := m.now().Sub(m.lastStamp()).Milliseconds()
	next := m.remaining(mover) - elapsed + m.g.Clock.IncrementMillis()
	if next < 0 {
		next = 0
	}
	m.setRemaining(mover, next)
}

// PlayMove validates and applies one move for the given user. A move sent
// with an exhausted clock is rejected and produces an out-of-time
// termination instead; the board is not mutated.
func (m *Match) PlayMove(ctx context.Context, userID uuid.UUID, uci string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.g.Status.Terminal() {
		return nil, ErrGameOver
	}
	player, ok := m.g.PlayerFor(userID)
	if !ok {
		return nil, ErrNotPlayer
	}
	if m.pos.Turn() != player.Color {
		return nil, ErrNotYourTurn
	}

	if m.flagged() {
		return m.finishLocked(ctx, models.StatusOutoftime, ptr(player.Color.Opposite()))
	}

	step, err := m.pos.Play(uci)
	if err != nil {
		return nil, err
	}

	m.applyClock(player.Color)

	status := m.g.Status
	if status == models.StatusCreated {
		status = models.StatusStarted
	}
	var winner *models.Color
	switch m.pos.Outcome() {
	case engine.WhiteWins:
		status = models.StatusEnded
		winner = ptr(models.White)
	case engine.BlackWins:
		status = models.StatusEnded
		winner = ptr(models.Black)
	case engine.Drawn:
		status = models.StatusDraw
	}

	movedAt := m.now()
	m.g.MovedAt = &movedAt
	m.g.Moves = append(m.g.Moves, step.UCI)
	m.g.FEN = step.FEN
	m.g.Turn = m.pos.Turn()
	if !status.Terminal() {
		m.g.Status = status
	}

	if err := m.repo.SaveMove(ctx, database.MoveUpdate{
		ID:      m.g.ID,
		Status:  m.g.Status,
		Moves:   m.g.Moves,
		FEN:     m.g.FEN,
		Turn:    m.g.Turn,
		WClock:  m.g.WClock,
		BClock:  m.g.BClock,
		MovedAt: movedAt,
	}); err != nil {
		return nil, err
	}

	events := []Event{{T: "move", D: MoveEventData{
		Step:  step,
		Clock: ClockState{WClock: m.g.WClock, BClock: m.g.BClock},
	}}}

	if status.Terminal() {
		endEvents, err := m.finishLocked(ctx, status, winner)
		if err != nil {
			return nil, err
		}
		events = append(events, endEvents...)
	}
	return events, nil
}

// Resign ends the match in the opponent's favor. Resigning before any move
// has been played aborts the match instead, with no winner.
func (m *Match) Resign(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.g.Status.Terminal() {
		return nil, ErrGameOver
	}
	player, ok := m.g.PlayerFor(userID)
	if !ok {
		return nil, ErrNotPlayer
	}
	if m.flagged() {
		return m.finishLocked(ctx, models.StatusOutoftime, ptr(m.pos.Turn().Opposite()))
	}
	if m.g.Status == models.StatusCreated {
		return m.finishLocked(ctx, models.StatusAborted, nil)
	}
	return m.finishLocked(ctx, models.StatusResign, ptr(player.Color.Opposite()))
}

// Flag claims a win on time. A no-op when the side to move still has time.
func (m *Match) Flag(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.g.Status.Terminal() {
		return nil, ErrGameOver
	}
	if _, ok := m.g.PlayerFor(userID); !ok {
		return nil, ErrNotPlayer
	}
	if !m.flagged() {
		return nil, nil
	}
	return m.finishLocked(ctx, models.StatusOutoftime, ptr(m.pos.Turn().Opposite()))
}

// finishLocked runs the single terminal path: clock settlement, the match
// record update, the rating update, the history push and the endData event.
// Callers hold the match lock and have verified the match is not yet
// terminal, which makes the whole sequence exactly-once per match.
func (m *Match) finishLocked(ctx context.Context, status models.GameStatus, winner *models.Color) ([]Event, error) {
	if status == models.StatusOutoftime {
		// The flagged side gets no increment; its clock settles at zero.
		m.setRemaining(m.pos.Turn(), 0)
	} else {
		m.applyClock(m.pos.Turn())
	}

	m.g.Status = status
	m.g.Winner = winner
	if winner != nil {
		if *winner == models.White {
			m.g.White.IsWinner = true
		} else {
			m.g.Black.IsWinner = true
		}
	}

	if err := m.repo.FinishGame(ctx, database.FinishUpdate{
		ID:     m.g.ID,
		Status: status,
		Winner: winner,
		WClock: m.g.WClock,
		BClock: m.g.BClock,
	}); err != nil {
		return nil, err
	}

	diffs, err := m.applyRatingLocked(ctx, winner)
	if err != nil {
		return nil, err
	}

	if m.hist != nil {
		rec := cache.GameEndRecord{
			GameID:          m.g.ID,
			Status:          status.String(),
			WhiteUserID:     m.g.White.UserID,
			BlackUserID:     m.g.Black.UserID,
			WClock:          m.g.WClock,
			BClock:          m.g.BClock,
			Plies:           len(m.g.Moves),
			RatingDiffWhite: diffs.White,
			RatingDiffBlack: diffs.Black,
			Timestamp:       m.now().UnixMilli(),
		}
		if winner != nil {
			rec.Winner = string(*winner)
		}
		if err := m.hist(ctx, rec); err != nil {
			// Archiving is best-effort; the match record is already final.
			m.logger.Warnf("history push for game %s failed: %v", m.g.ID, err)
		}
	}

	return []Event{{T: "endData", D: EndEventData{
		Status:     status.String(),
		Winner:     winner,
		Clock:      ClockState{WClock: m.g.WClock, BClock: m.g.BClock},
		RatingDiff: diffs,
	}}}, nil
}

// applyRatingLocked pairs both users' perf records through the Glicko-2
// update and persists the result. Matches at or below the ply threshold are
// left unrated.
func (m *Match) applyRatingLocked(ctx context.Context, winner *models.Color) (RatingDiffPair, error) {
	if len(m.g.Moves) <= minRatedPlies {
		return RatingDiffPair{}, nil
	}

	key := m.g.Clock.PerfKeyOf()
	whitePerf, err := m.repo.PerfFor(ctx, m.g.White.UserID, key)
	if err != nil {
		return RatingDiffPair{}, fmt.Errorf("no perf for white in game %s: %w", m.g.ID, err)
	}
	blackPerf, err := m.repo.PerfFor(ctx, m.g.Black.UserID, key)
	if err != nil {
		return RatingDiffPair{}, fmt.Errorf("no perf for black in game %s: %w", m.g.ID, err)
	}

	w := rating.Rating{Rating: whitePerf.Rating, Deviation: whitePerf.Deviation, Volatility: whitePerf.Volatility}
	b := rating.Rating{Rating: blackPerf.Rating, Deviation: blackPerf.Deviation, Volatility: blackPerf.Volatility}

	var nw, nb rating.Rating
	switch {
	case winner == nil:
		nw, nb = rating.UpdateDraw(w, b)
	case *winner == models.White:
		nw, nb = rating.UpdatePair(w, b)
	default:
		nb, nw = rating.UpdatePair(b, w)
	}

	diffs := RatingDiffPair{
		White: int(math.Floor(nw.Rating - w.Rating)),
		Black: int(math.Floor(nb.Rating - b.Rating)),
	}

	app := database.RatingApplication{
		GameID:    m.g.ID,
		Key:       key,
		White:     models.Perf{UserID: m.g.White.UserID, Key: key, Rating: nw.Rating, Deviation: nw.Deviation, Volatility: nw.Volatility},
		Black:     models.Perf{UserID: m.g.Black.UserID, Key: key, Rating: nb.Rating, Deviation: nb.Deviation, Volatility: nb.Volatility},
		DiffWhite: diffs.White,
		DiffBlack: diffs.Black,
		Winner:    winner,
	}
	if err := m.repo.ApplyRating(ctx, app); err != nil {
		return RatingDiffPair{}, err
	}

	m.g.White.RatingDiff = &diffs.White
	m.g.Black.RatingDiff = &diffs.Black
	return diffs, nil
}

func ptr[T any](v T) *T {
	return &v
}
