package sim

import (
	"context"
	"fmt"
	"sync"
)

// Ensemble runs independent simulations concurrently, one goroutine per
// run. build must give every run its own arena and component tree; a tree is
// never shared between goroutines.
type Ensemble struct {
	build   func(run int) (*Simulator, error)
	numRuns int
}

func NewEnsemble(numRuns int, build func(run int) (*Simulator, error)) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns}
}

func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			s, err := e.build(idx)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = s.Run(ctx, cfg)
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i, err)
		}
	}

	return results, nil
}
