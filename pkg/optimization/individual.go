package optimization

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ducminhle1904/tradecore/internal/backtest"
)

// Params is one candidate, keyed by parameter name
type Params map[string]float64

// Copy returns an independent copy
func (p Params) Copy() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Key is a canonical string form, stable across map iteration order
func (p Params) Key() string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, k := range names {
		if i > 0 {
			sb.WriteByte(';')
		}
		fmt.Fprintf(&sb, "%s=%g", k, p[k])
	}
	return sb.String()
}

func (p Params) String() string { return p.Key() }

// FailedFitness scores a candidate whose replay failed. It is finite so
// results stay JSON encodable.
const FailedFitness = -math.MaxFloat64

// Individual is a candidate solution and, once evaluated, its replay
type Individual struct {
	Params    Params            `json:"params"`
	Fitness   float64           `json:"fitness"`
	Results   *backtest.Results `json:"-"`
	Err       error             `json:"-"`
	evaluated bool
}

// NewIndividual wraps a copy of p
func NewIndividual(p Params) *Individual {
	return &Individual{Params: p.Copy()}
}

// Evaluated reports whether fitness is current
func (i *Individual) Evaluated() bool { return i.evaluated }

func (i *Individual) setEvaluation(fitness float64, res *backtest.Results, err error) {
	if err != nil || math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		fitness = FailedFitness
	}
	i.Fitness, i.Results, i.Err, i.evaluated = fitness, res, err, true
}

// Copy keeps the evaluation; Params are copied
func (i *Individual) Copy() *Individual {
	c := *i
	c.Params = i.Params.Copy()
	return &c
}

// Reset forces re-evaluation
func (i *Individual) Reset() {
	i.Fitness, i.Results, i.Err, i.evaluated = 0, nil, nil, false
}
