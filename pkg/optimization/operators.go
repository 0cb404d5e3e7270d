package optimization

import (
	"math/rand"
)

// Operators implements selection, crossover and mutation over a set of ranges
type Operators struct {
	ranges Ranges
	names  []string
}

func NewOperators(ranges Ranges) *Operators {
	return &Operators{ranges: ranges, names: ranges.Names()}
}

// Random draws every parameter from its candidates
func (op *Operators) Random(base Params, rng *rand.Rand) *Individual {
	p := base.Copy()
	for _, name := range op.names {
		p[name] = randomChoice(op.ranges[name], rng)
	}
	return &Individual{Params: p}
}

// Crossover starts from parent1 and, with probability rate, takes each
// parameter from parent2 with even odds
func (op *Operators) Crossover(parent1, parent2 *Individual, rate float64, rng *rand.Rand) *Individual {
	child := &Individual{Params: parent1.Params.Copy()}
	if rng.Float64() < rate {
		for _, name := range op.names {
			if rng.Float64() < 0.5 {
				child.Params[name] = parent2.Params[name]
			}
		}
	}
	return child
}

// Mutate redraws parameters with probability geneRate once the individual
// is selected for mutation. At least one parameter changes.
func (op *Operators) Mutate(ind *Individual, rate, geneRate float64, rng *rand.Rand) {
	if len(op.names) == 0 || rng.Float64() >= rate {
		return
	}
	changed := false
	for _, name := range op.names {
		if rng.Float64() < geneRate {
			ind.Params[name] = randomChoice(op.ranges[name], rng)
			changed = true
		}
	}
	if !changed {
		name := op.names[rng.Intn(len(op.names))]
		ind.Params[name] = randomChoice(op.ranges[name], rng)
	}
	ind.Reset()
}

// Select runs a tournament of size k
func (op *Operators) Select(pop *Population, k int, rng *rand.Rand) *Individual {
	inds := pop.Individuals()
	if len(inds) == 0 {
		return nil
	}
	best := inds[rng.Intn(len(inds))]
	for i := 1; i < k; i++ {
		candidate := inds[rng.Intn(len(inds))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

func randomChoice[T any](choices []T, rng *rand.Rand) T {
	if len(choices) == 0 {
		var zero T
		return zero
	}
	return choices[rng.Intn(len(choices))]
}
