// Package pareto models bin placement across storage layers as a truncated
// Pareto distribution.
//
// Layers are integers in [min, max]. The continuous support is (min, max+1],
// so that the mass of layer l is CDF(l+1) - CDF(l) and the masses of all
// layers sum to one.
package pareto

import (
	"errors"
	"fmt"
	"math"
)

// Defaults used by Alpha when the caller passes zero values.
const (
	DefaultTolerance = 1e-5
	DefaultAlphaLow  = 0.01
	DefaultAlphaHigh = 5.0

	// maxBisections bounds the search even if the tolerance is below what
	// float64 can resolve.
	maxBisections = 200

	minimumAlpha = 0.001
)

// ErrInvalidRange is returned when the layer range is empty or non-positive.
var ErrInvalidRange = errors.New("invalid layer range")

// Allocator is a truncated Pareto distribution over a range of layers.
type Allocator struct {
	minLayer float64
	maxLayer float64 // exclusive upper layer, i.e. the top layer + 1
}

// New returns an Allocator over layers minLayer..maxLayer inclusive.
func New(minLayer, maxLayer int) (*Allocator, error) {
	if minLayer < 1 || maxLayer < minLayer {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, minLayer, maxLayer)
	}
	return &Allocator{
		minLayer: float64(minLayer),
		maxLayer: float64(maxLayer + 1),
	}, nil
}

// Layers returns the number of discrete layers covered.
func (a *Allocator) Layers() int {
	return int(a.maxLayer - a.minLayer)
}

// PDF is the probability density at x.
func (a *Allocator) PDF(x, alpha float64) float64 {
	if x <= a.minLayer || x > a.maxLayer {
		return 0
	}
	c := math.Pow(a.minLayer, -alpha) - math.Pow(a.maxLayer, -alpha)
	return alpha / c * math.Pow(x, -alpha-1)
}

// InversePDF returns the layer value whose density is y.
func (a *Allocator) InversePDF(y, alpha float64) float64 {
	if y <= 0 {
		return a.maxLayer
	}
	c := math.Pow(a.minLayer, -alpha) - math.Pow(a.maxLayer, -alpha)
	return math.Pow(alpha/(c*y), 1/(alpha+1))
}

// CDF is the cumulative probability at x. It is 0 at or below the lowest
// layer and 1 above the exclusive upper bound.
func (a *Allocator) CDF(x, alpha float64) float64 {
	if x <= a.minLayer {
		return 0
	}
	if x > a.maxLayer {
		return 1
	}
	c := 1 - math.Pow(a.minLayer/a.maxLayer, alpha)
	return 1 - math.Pow(a.minLayer, alpha)/c*(math.Pow(x, -alpha)-math.Pow(a.maxLayer, -alpha))
}

// InverseCDF returns the layer value at which the cumulative probability is y.
func (a *Allocator) InverseCDF(y, alpha float64) float64 {
	if y <= 0 {
		return a.minLayer
	}
	if y >= 1 {
		return a.maxLayer
	}
	c := 1 - math.Pow(a.minLayer/a.maxLayer, alpha)
	return math.Pow(c*(1-y)/math.Pow(a.minLayer, alpha)+math.Pow(a.maxLayer, -alpha), -1/alpha)
}

// ProbabilityOfLayer is the discrete mass assigned to an integer layer.
func (a *Allocator) ProbabilityOfLayer(layer int, alpha float64) float64 {
	x := float64(layer)
	return a.CDF(x+1, alpha) - a.CDF(x, alpha)
}

// TheoreticalCDFMinimum is the CDF for an alpha close to zero. No alpha in
// the search range can push CDF(x) below it, so a target p under this value
// is unreachable.
func (a *Allocator) TheoreticalCDFMinimum(x float64) float64 {
	return a.CDF(x, minimumAlpha)
}

// SearchOptions tunes the alpha bisection. Zero values select the defaults.
type SearchOptions struct {
	Tolerance float64
	Low       float64
	High      float64
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Low <= 0 {
		o.Low = DefaultAlphaLow
	}
	if o.High <= o.Low {
		o.High = DefaultAlphaHigh
	}
	return o
}

// Alpha finds the shape parameter for which a fraction q of the layers,
// counted from the top, holds a fraction p of the bins. It returns the
// cut-off point x0 together with alpha.
//
// The search bisects [Low, High] until the bracket is narrower than the
// tolerance. When p is not reachable inside the bracket, alpha converges to
// the nearest bound.
func (a *Allocator) Alpha(p, q float64, opts SearchOptions) (x0, alpha float64) {
	opts = opts.withDefaults()

	x0 = q*(a.maxLayer-a.minLayer) + a.minLayer
	left, right := opts.Low, opts.High

	for i := 0; math.Abs(right-left) > opts.Tolerance && i < maxBisections; i++ {
		mid := (left + right) / 2
		if a.CDF(x0, mid) < p {
			left = mid
		} else {
			right = mid
		}
	}

	return x0, (left + right) / 2
}

// Distribution is the per-layer result of a Pareto calculation.
type Distribution struct {
	Alpha float64
	X0    float64
	// Probabilities[i] is the mass of layer i+1.
	Probabilities []float64
}

// TopShare returns the total mass of the top int(X0) layers.
func (d Distribution) TopShare() float64 {
	n := int(d.X0)
	if n > len(d.Probabilities) {
		n = len(d.Probabilities)
	}
	var sum float64
	for _, p := range d.Probabilities[:n] {
		sum += p
	}
	return sum
}

// LayerProbabilities computes alpha for (p, q) over layers 1..layers and
// returns the mass of each layer.
func LayerProbabilities(layers int, p, q float64) (*Distribution, error) {
	if p < 0 || p > 1 || q < 0 || q > 1 {
		return nil, fmt.Errorf("p and q must be within [0, 1], got p=%v q=%v", p, q)
	}

	allocator, err := New(1, layers)
	if err != nil {
		return nil, err
	}

	x0, alpha := allocator.Alpha(p, q, SearchOptions{})

	probabilities := make([]float64, layers)
	for layer := 1; layer <= layers; layer++ {
		probabilities[layer-1] = allocator.ProbabilityOfLayer(layer, alpha)
	}

	return &Distribution{
		Alpha:         alpha,
		X0:            x0,
		Probabilities: probabilities,
	}, nil
}
