// Package optim tunes controller parameters against simulated runs.
package optim

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/velctl/internal/experiment"
)

var ErrNoEvaluations = errors.New("optim: no parameter set could be evaluated")

// Builder turns one parameter set into a ready experiment.
type Builder func(params map[string]float64) (*experiment.Experiment, error)

type Evaluation struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Workers bounds concurrent runs; zero means GOMAXPROCS.
	Workers int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search runs every combination and returns the parameters minimizing
// metricName. Combinations that fail to build or run are skipped; the
// search fails only if none succeed or ctx ends.
func (g *GridSearch) Search(ctx context.Context, build Builder, metricName string) (map[string]float64, float64, error) {
	evals, err := g.Evaluate(ctx, build, metricName)
	if err != nil {
		return nil, 0, err
	}
	return Best(evals)
}

// Best picks the successful evaluation with the lowest value.
func Best(evals []Evaluation) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64
	var lastErr error
	for _, ev := range evals {
		if ev.Err != nil {
			lastErr = ev.Err
			continue
		}
		if bestParams == nil || ev.Value < best {
			best = ev.Value
			bestParams = ev.Params
		}
	}
	if bestParams == nil {
		if lastErr != nil {
			return nil, 0, errors.Wrap(ErrNoEvaluations, lastErr.Error())
		}
		return nil, 0, ErrNoEvaluations
	}
	return bestParams, best, nil
}

// Evaluate runs every combination, in grid order.
func (g *GridSearch) Evaluate(ctx context.Context, build Builder, metricName string) ([]Evaluation, error) {
	combos := g.combinations()
	evals := make([]Evaluation, len(combos))

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	var mu sync.Mutex
	for i, params := range combos {
		i, params := i, params
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev := Evaluation{Params: params}
			ev.Value, ev.Err = evaluate(ctx, build, params, metricName)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mu.Lock()
			evals[i] = ev
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return evals, nil
}

func evaluate(ctx context.Context, build Builder, params map[string]float64, metricName string) (float64, error) {
	exp, err := build(params)
	if err != nil {
		return 0, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}
	val, ok := result.Metrics[metricName]
	if !ok {
		return 0, errors.Errorf("metric %q not recorded", metricName)
	}
	return val, nil
}

func (g *GridSearch) combinations() []map[string]float64 {
	var out []map[string]float64
	g.searchRecursive(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) searchRecursive(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(depth+1, newParams, out)
	}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
