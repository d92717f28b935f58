package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdatePair(t *testing.T) {
	winner := Default()
	loser := Default()

	newW, newL := UpdatePair(winner, loser)
	if newW.Rating <= winner.Rating {
		t.Errorf("winner's rating should have gone up, got %f", newW.Rating)
	}
	if newL.Rating >= loser.Rating {
		t.Errorf("loser's rating should have gone down, got %f", newL.Rating)
	}
	assert.Less(t, newW.Deviation, winner.Deviation, "deviation narrows after a game")
	assert.Less(t, newL.Deviation, loser.Deviation, "deviation narrows after a game")
}

func TestUpdatePairSwapConsistency(t *testing.T) {
	a := Rating{Rating: 1650, Deviation: 120, Volatility: 0.06}
	b := Rating{Rating: 1480, Deviation: 200, Volatility: 0.07}

	// The same match reported from either side must produce the same triples.
	w1, l1 := UpdatePair(a, b)
	l2, w2 := func() (Rating, Rating) {
		nl, nw := updateBoth(b, a, 0.0)
		return nl, nw
	}()

	assert.InDelta(t, w1.Rating, w2.Rating, 1e-9)
	assert.InDelta(t, l1.Rating, l2.Rating, 1e-9)
	assert.InDelta(t, w1.Deviation, w2.Deviation, 1e-9)
	assert.InDelta(t, l1.Volatility, l2.Volatility, 1e-9)
}

func TestUpdateDrawSymmetric(t *testing.T) {
	a := Rating{Rating: 1500, Deviation: 350, Volatility: 0.06}
	b := Rating{Rating: 1500, Deviation: 350, Volatility: 0.06}

	na, nb := UpdateDraw(a, b)
	assert.InDelta(t, na.Rating, nb.Rating, 1e-9, "equal players drawing stay equal")
	assert.InDelta(t, 1500, na.Rating, 1e-6, "equal players drawing keep their rating")
}

func TestUpdateDrawUnevenPulls(t *testing.T) {
	strong := Rating{Rating: 1800, Deviation: 100, Volatility: 0.06}
	weak := Rating{Rating: 1400, Deviation: 100, Volatility: 0.06}

	ns, nw := UpdateDraw(strong, weak)
	assert.Less(t, ns.Rating, strong.Rating, "drawing down costs the stronger player")
	assert.Greater(t, nw.Rating, weak.Rating, "drawing up rewards the weaker player")
}

func TestProvisional(t *testing.T) {
	assert.True(t, Default().Provisional())
	assert.False(t, Rating{Rating: 1500, Deviation: 80, Volatility: 0.06}.Provisional())
}

func TestFloor(t *testing.T) {
	r := Rating{Rating: 1523.9}
	assert.Equal(t, 1523, r.Floor())
	assert.Equal(t, 1523, int(math.Floor(r.Rating)))
}
