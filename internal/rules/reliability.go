package rules

import (
	"math"
	"sync"
)

const (
	minWeight = 0.1
	maxWeight = 2.0
)

type outcome struct {
	hits  int
	total int
}

// Reliability tracks per-rule hit rates and turns them into vote weights.
// Untracked rules weigh 1.0.
type Reliability struct {
	mu       sync.RWMutex
	outcomes map[string]*outcome
	fixed    map[string]float64
}

// NewReliability creates an empty tracker
func NewReliability() *Reliability {
	return &Reliability{
		outcomes: make(map[string]*outcome),
		fixed:    make(map[string]float64),
	}
}

// Weight returns the current weight of a rule. Fixed weights win over
// recorded outcomes; otherwise weight = 2 * (hits+1)/(total+2), clamped.
func (r *Reliability) Weight(ruleID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.fixed[ruleID]; ok {
		return w
	}
	o, ok := r.outcomes[ruleID]
	if !ok || o.total == 0 {
		return 1.0
	}
	w := 2 * float64(o.hits+1) / float64(o.total+2)
	return math.Max(minWeight, math.Min(maxWeight, w))
}

// SetWeight pins a rule's weight. Non-positive or NaN values are ignored.
func (r *Reliability) SetWeight(ruleID string, w float64) {
	if math.IsNaN(w) || w <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixed[ruleID] = w
}

// RecordOutcome credits or debits every rule that contributed to a closed trade
func (r *Reliability) RecordOutcome(ruleIDs []string, win bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ruleIDs {
		o, ok := r.outcomes[id]
		if !ok {
			o = &outcome{}
			r.outcomes[id] = o
		}
		o.total++
		if win {
			o.hits++
		}
	}
}

// Snapshot returns the current weight of every tracked rule
func (r *Reliability) Snapshot() map[string]float64 {
	r.mu.RLock()
	ids := make([]string, 0, len(r.outcomes)+len(r.fixed))
	for id := range r.outcomes {
		ids = append(ids, id)
	}
	for id := range r.fixed {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		out[id] = r.Weight(id)
	}
	return out
}
