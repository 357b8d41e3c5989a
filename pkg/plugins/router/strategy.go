package router

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Strategy names.
const (
	StrategyRoundRobin = "round-robin"
	StrategyWeighted   = "weighted"
)

// counterReset bounds the selection counter.
const counterReset = 1_000_000_000

// ErrNoInstances is returned when there is nothing to select from.
var ErrNoInstances = errors.New("no instances available")

// Strategy picks one instance from a candidate list.
//
// Implementations must be thread-safe as they will be called concurrently
// from multiple goroutines.
type Strategy interface {
	// Select returns the index of the chosen instance.
	Select(candidates []Instance) (int, error)

	// Name returns the strategy name for logging.
	Name() string

	// Reset clears the strategy's internal state.
	Reset()
}

// NewStrategy creates the strategy named name. An empty name selects
// round-robin.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyRoundRobin:
		return &RoundRobin{}, nil
	case StrategyWeighted:
		return &RoundRobin{weighted: true}, nil
	default:
		return nil, fmt.Errorf("unsupported routing strategy %q", name)
	}
}

// RoundRobin distributes calls evenly across candidates, or in proportion to
// their weights when weighted.
//
// The strategy uses an atomic counter. It is reset on overflow to prevent
// unbounded growth.
type RoundRobin struct {
	counter  atomic.Int64
	weighted bool
}

// Select picks the next candidate.
//
// Algorithm:
//  1. Increment counter atomically
//  2. Unweighted: use counter % candidate count
//  3. Weighted: use counter % total weight and walk cumulative weights
//
// Example: A (weight 2), B (weight 1) picks A, A, B.
func (s *RoundRobin) Select(candidates []Instance) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrNoInstances
	}
	if len(candidates) == 1 {
		return 0, nil
	}

	count := s.counter.Add(1) - 1
	if count >= counterReset {
		s.counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	if s.weighted {
		if total := totalWeight(candidates); total > 0 {
			r := count % total
			for idx, inst := range candidates {
				w := effectiveWeight(inst)
				if r < w {
					return idx, nil
				}
				r -= w
			}
		}
		// Every candidate is excluded by weight, fall back to unweighted.
	}

	return int(count % int64(len(candidates))), nil
}

// effectiveWeight treats zero as one and excludes negative weights.
func effectiveWeight(inst Instance) int64 {
	switch {
	case inst.Weight == 0:
		return 1
	case inst.Weight < 0:
		return 0
	default:
		return int64(inst.Weight)
	}
}

func totalWeight(candidates []Instance) int64 {
	var total int64
	for _, inst := range candidates {
		total += effectiveWeight(inst)
	}
	return total
}

// Name returns the strategy name.
func (s *RoundRobin) Name() string {
	if s.weighted {
		return StrategyWeighted
	}
	return StrategyRoundRobin
}

// Reset resets the counter.
func (s *RoundRobin) Reset() {
	s.counter.Store(0)
}
