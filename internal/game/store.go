// internal/game/store.go
package game

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/models"
)

// Loader reads persisted match records, for matches not yet resident in
// memory (first visit after a pairing on another connection, or a restart).
type Loader interface {
	GameByID(ctx context.Context, id uuid.UUID) (*models.Game, error)
}

// Store keeps live matches in memory so that every connection referencing a
// match id shares the same single-writer Match instance.
type Store struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*Match

	loader Loader
	repo   Repo
	eng    engine.Engine
	hist   HistoryFunc
	logger *logrus.Logger
}

// NewStore returns an empty match store.
func NewStore(loader Loader, repo Repo, eng engine.Engine, hist HistoryFunc, logger *logrus.Logger) *Store {
	return &Store{
		matches: make(map[uuid.UUID]*Match),
		loader:  loader,
		repo:    repo,
		eng:     eng,
		hist:    hist,
		logger:  logger,
	}
}

// Add registers a freshly created match.
func (s *Store) Add(g *models.Game) (*Match, error) {
	m, err := NewMatch(g, s.eng, s.repo, s.hist, s.logger)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[g.ID] = m
	return m, nil
}

// Get returns the resident match, loading and materializing it from the
// repository when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Match, error) {
	s.mu.Lock()
	if m, ok := s.matches[id]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	g, err := s.loader.GameByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := NewMatch(g, s.eng, s.repo, s.hist, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another connection may have loaded it concurrently; keep the first.
	if existing, ok := s.matches[id]; ok {
		return existing, nil
	}
	s.matches[id] = m
	return m, nil
}

// Remove drops a match from memory, typically once it is terminal and its
// room has emptied.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, id)
}

// CountActive returns the number of resident non-terminal matches, for the
// global presence event.
func (s *Store) CountActive() int {
	s.mu.Lock()
	resident := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		resident = append(resident, m)
	}
	s.mu.Unlock()

	n := 0
	for _, m := range resident {
		if !m.Terminal() {
			n++
		}
	}
	return n
}
