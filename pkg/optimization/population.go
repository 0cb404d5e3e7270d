package optimization

import (
	"sort"
)

// Population is one generation of individuals
type Population struct {
	individuals []*Individual
}

func NewPopulation(individuals []*Individual) *Population {
	return &Population{individuals: individuals}
}

func (p *Population) Individuals() []*Individual { return p.individuals }

func (p *Population) Size() int { return len(p.individuals) }

// Best returns the fittest individual; ties keep the earlier one
func (p *Population) Best() *Individual {
	if len(p.individuals) == 0 {
		return nil
	}
	best := p.individuals[0]
	for _, ind := range p.individuals[1:] {
		if ind.Fitness > best.Fitness {
			best = ind
		}
	}
	return best
}

// SortByFitness sorts best first. The sort is stable so equal scores keep
// their order and runs stay reproducible.
func (p *Population) SortByFitness() {
	sort.SliceStable(p.individuals, func(i, j int) bool {
		return p.individuals[i].Fitness > p.individuals[j].Fitness
	})
}

// AverageFitness ignores failed evaluations
func (p *Population) AverageFitness() float64 {
	sum, n := 0.0, 0
	for _, ind := range p.individuals {
		if !ind.evaluated || ind.Fitness == FailedFitness {
			continue
		}
		sum += ind.Fitness
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Elite returns copies of the top n individuals
func (p *Population) Elite(n int) []*Individual {
	p.SortByFitness()
	if n > len(p.individuals) {
		n = len(p.individuals)
	}
	elite := make([]*Individual, n)
	for i := 0; i < n; i++ {
		elite[i] = p.individuals[i].Copy()
	}
	return elite
}

// Pending lists individuals that still need an evaluation
func (p *Population) Pending() []*Individual {
	var out []*Individual
	for _, ind := range p.individuals {
		if !ind.evaluated {
			out = append(out, ind)
		}
	}
	return out
}
