// internal/rating/glicko2.go
package rating

import "math"

const (
	// GlickoScale is the multiplier used for converting between the display
	// rating scale and Glicko2's mu.
	GlickoScale = 173.7178
	// DefaultRating is the baseline rating every new perf starts at.
	DefaultRating = 1500.0
	// MaxDeviation is the deviation assigned to a perf with no games.
	MaxDeviation = 500.0
	// ProvisionalDeviation is the threshold above which a rating is displayed
	// as provisional.
	ProvisionalDeviation = 110.0
	// DefaultVolatility is the starting volatility for a new perf.
	DefaultVolatility = 0.09
	// Tau is the constraint on volatility changes.
	Tau = 0.5
	// Epsilon is the tolerance used in iteration stopping conditions.
	Epsilon = 0.000001
)

// Rating is a Glicko-2 triple in display scale: rating around 1500,
// deviation in rating points, volatility unitless.
type Rating struct {
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"deviation"`
	Volatility float64 `json:"volatility"`
}

// Default returns the triple assigned to a perf that has never played.
func Default() Rating {
	return Rating{Rating: DefaultRating, Deviation: MaxDeviation, Volatility: DefaultVolatility}
}

// Provisional reports whether the deviation is still too wide to trust.
func (r Rating) Provisional() bool {
	return r.Deviation >= ProvisionalDeviation
}

// Floor returns the integer rating used for display and hook snapshots.
func (r Rating) Floor() int {
	return int(math.Floor(r.Rating))
}

// glicko2 space representation of a Rating.
type scaled struct {
	mu    float64
	phi   float64
	sigma float64
}

func toScaled(r Rating) scaled {
	return scaled{
		mu:    (r.Rating - DefaultRating) / GlickoScale,
		phi:   r.Deviation / GlickoScale,
		sigma: r.Volatility,
	}
}

func fromScaled(s scaled) Rating {
	return Rating{
		Rating:     s.mu*GlickoScale + DefaultRating,
		Deviation:  s.phi * GlickoScale,
		Volatility: s.sigma,
	}
}

// UpdatePair applies a single-match Glicko-2 update for a decisive result.
// The loser's new triple is produced by the same two-player update with the
// argument order swapped, so swapping who calls it yields consistent results.
func UpdatePair(winner, loser Rating) (Rating, Rating) {
	return updateBoth(winner, loser, 1.0)
}

// UpdateDraw applies a single-match Glicko-2 update for a drawn result.
// Draws are symmetric: UpdateDraw(a, b) and UpdateDraw(b, a) swap outputs.
func UpdateDraw(a, b Rating) (Rating, Rating) {
	return updateBoth(a, b, 0.5)
}

// updateBoth runs the one-sided update twice, from each player's point of
// view, against the opponent's pre-update triple.
func updateBoth(first, second Rating, firstScore float64) (Rating, Rating) {
	f, s := toScaled(first), toScaled(second)
	nf := updateOne(f, s, firstScore)
	ns := updateOne(s, f, 1.0-firstScore)
	return fromScaled(nf), fromScaled(ns)
}

// updateOne performs the single-match Glicko-2 update with volatility for
// player r against opponent opp, given r's score in [0..1].
func updateOne(r, opp scaled, score float64) scaled {
	gVal := g(opp.phi)
	eVal := e(r.mu, opp.mu, opp.phi)

	v := 1.0 / (gVal * gVal * eVal * (1 - eVal))
	delta := v * gVal * (score - eVal)

	a := math.Log(r.sigma * r.sigma)
	bigA := a
	var bigB float64
	if delta*delta > r.phi*r.phi+v {
		bigB = math.Log(delta*delta - r.phi*r.phi - v)
	} else {
		k := 1.0
		for f(a-k*Tau, r.phi, v, delta, a) < 0 {
			k++
		}
		bigB = a - k*Tau
	}

	fA := func(x float64) float64 {
		return f(x, r.phi, v, delta, a)
	}

	fB := fA(bigB)
	for i := 0; i < 100; i++ {
		fAVal := fA(bigA)
		if math.Abs(fAVal) < Epsilon {
			break
		}
		prev := bigA
		bigA = prev - fAVal*(prev-bigB)/(fAVal-fB)
		fB = fA(bigB)
		if math.Abs(bigA-bigB) < Epsilon {
			break
		}
	}
	newSigma := math.Exp(bigA / 2)
	phiStar := math.Sqrt(r.phi*r.phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := r.mu + phiPrime*phiPrime*gVal*(score-eVal)

	return scaled{mu: muPrime, phi: phiPrime, sigma: newSigma}
}

// g is the G(phi) factor from Glicko2, 1/sqrt(1+3phi^2/pi^2).
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/math.Pi/math.Pi)
}

// e is the expected score formula in Glicko2 space.
func e(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

// f is the Glicko2 volatility root-finding function used in the iterative
// volatility update.
func f(x, phi, v, delta, a float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return (num / den) - ((x - a) / (Tau * Tau))
}
