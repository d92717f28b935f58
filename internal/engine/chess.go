// internal/engine/chess.go
package engine

import (
	"fmt"

	"github.com/corentings/chess/v2"

	"github.com/veloce-hq/duckhub/internal/models"
)

// ChessEngine implements Engine on top of corentings/chess.
type ChessEngine struct{}

// NewChessEngine returns the standard-chess rules engine.
func NewChessEngine() *ChessEngine {
	return &ChessEngine{}
}

func (e *ChessEngine) Start() Position {
	return &chessPosition{g: chess.NewGame()}
}

func (e *ChessEngine) Replay(ucis []string) (Position, error) {
	p := &chessPosition{g: chess.NewGame()}
	for i, uci := range ucis {
		if _, err := p.Play(uci); err != nil {
			return nil, fmt.Errorf("replaying move %d (%s): %w", i+1, uci, err)
		}
	}
	return p, nil
}

type chessPosition struct {
	g *chess.Game
}

func (p *chessPosition) Turn() models.Color {
	if p.g.Position().Turn() == chess.White {
		return models.White
	}
	return models.Black
}

func (p *chessPosition) Play(uci string) (Step, error) {
	pos := p.g.Position()
	mv, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return Step{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := chess.AlgebraicNotation{}.Encode(pos, mv)
	if err := p.g.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		return Step{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	return Step{UCI: uci, SAN: san, FEN: p.g.FEN()}, nil
}

func (p *chessPosition) Outcome() Outcome {
	switch p.g.Outcome() {
	case chess.WhiteWon:
		return WhiteWins
	case chess.BlackWon:
		return BlackWins
	case chess.Draw:
		return Drawn
	}
	return Undecided
}

func (p *chessPosition) FEN() string {
	return p.g.FEN()
}

func (p *chessPosition) Ply() int {
	return len(p.g.Moves())
}
