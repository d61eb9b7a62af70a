// Package rating implements the two-player skill model: a Bayesian
// rating over a Plackett-Luce-style formulation, implemented directly
// from the published Plackett-Luce/TrueSkill update equations.
package rating

import "math"

// Rating is a single player's skill estimate.
type Rating struct {
	Mu    float64
	Sigma float64
}

// CreateRating builds a Rating from stored (mu, sigma).
func CreateRating(mu, sigma float64) Rating {
	return Rating{Mu: mu, Sigma: sigma}
}

// betaSquared is the additional per-player performance variance assumed
// by the model; 0.5 is the conventional default used by TrueSkill-style
// two-player implementations when sigma itself already carries the bulk
// of the uncertainty.
const betaSquared = 0.5 * 0.5

// PredictDraw returns the model's estimate of the probability that a
// match between r1 and r2 ends in a draw, in [0, 1].
func PredictDraw(r1, r2 Rating) float64 {
	c := math.Sqrt(2*betaSquared + r1.Sigma*r1.Sigma + r2.Sigma*r2.Sigma)
	if c == 0 {
		return 1
	}
	deltaMu := r1.Mu - r2.Mu
	p := 2*cdf(deltaMu/c) - 1
	drawProb := 1 - math.Abs(p)
	return clamp01(drawProb)
}

// Rate returns updated ratings for two players given their match scores.
// Higher score wins; equal scores are a draw. The update
// is deterministic given its inputs.
func Rate(r1, r2 Rating, score1, score2 float64) (Rating, Rating) {
	c := math.Sqrt(2*betaSquared + r1.Sigma*r1.Sigma + r2.Sigma*r2.Sigma)
	if c == 0 {
		c = 1e-9
	}

	var outcome float64 // 1 = player1 won, 0.5 = draw, 0 = player2 won
	switch {
	case score1 > score2:
		outcome = 1
	case score1 < score2:
		outcome = 0
	default:
		outcome = 0.5
	}

	deltaMu := r1.Mu - r2.Mu
	t := deltaMu / c
	v := vFunc(t, outcome)
	w := wFunc(t, outcome)

	sigma1Sq := r1.Sigma * r1.Sigma
	sigma2Sq := r2.Sigma * r2.Sigma

	muDelta1 := (sigma1Sq / c) * v
	muDelta2 := (sigma2Sq / c) * v

	sigmaMult1 := 1 - (sigma1Sq/(c*c))*w
	sigmaMult2 := 1 - (sigma2Sq/(c*c))*w
	if sigmaMult1 < 1e-6 {
		sigmaMult1 = 1e-6
	}
	if sigmaMult2 < 1e-6 {
		sigmaMult2 = 1e-6
	}

	newR1 := Rating{
		Mu:    r1.Mu + muDelta1,
		Sigma: math.Sqrt(sigma1Sq * sigmaMult1),
	}
	newR2 := Rating{
		Mu:    r2.Mu - muDelta2,
		Sigma: math.Sqrt(sigma2Sq * sigmaMult2),
	}

	return newR1, newR2
}

// vFunc and wFunc are the truncated-Gaussian correction terms used by
// TrueSkill/Plackett-Luce-style factor-graph updates for a win (outcome=1
// favors player1), a loss (outcome=0), or a draw (outcome=0.5).
func vFunc(t, outcome float64) float64 {
	if outcome == 0.5 {
		denom := cdf(t) - cdf(-t)
		if denom < 1e-9 {
			denom = 1e-9
		}
		return (pdf(-t) - pdf(t)) / denom
	}
	// Win for player1 is modeled as t; loss is modeled as -t, symmetric.
	sign := 1.0
	x := t
	if outcome == 0 {
		sign = -1.0
		x = -t
	}
	denom := cdf(x)
	if denom < 1e-9 {
		denom = 1e-9
	}
	return sign * pdf(x) / denom
}

func wFunc(t, outcome float64) float64 {
	if outcome == 0.5 {
		// The draw term is even in t: evaluate it at |t| so the
		// denominator stays positive, and use its t -> 0 limit of 1.
		t = math.Abs(t)
		denom := cdf(t) - cdf(-t)
		if denom < 1e-9 {
			return 1
		}
		vv := (pdf(-t) - pdf(t)) / denom
		return vv*vv + (t*pdf(t)-(-t)*pdf(-t))/denom
	}
	x := t
	if outcome == 0 {
		x = -t
	}
	vv := vFunc(t, outcome)
	return vv * (vv + x)
}

func pdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func cdf(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
