package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/models"
)

type Runner struct {
	logger *zerolog.Logger
}

func NewRunner(logger *zerolog.Logger) *Runner {
	return &Runner{logger: logger}
}

type indexedResult struct {
	index  int
	result Result
}

// Run queries every provider concurrently and waits for all of them. A
// failing provider never cancels the others. Results follow provider order.
func (r *Runner) Run(ctx context.Context, query string, providers []Provider) []Result {
	results := make(chan indexedResult, len(providers))
	var wg sync.WaitGroup

	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			results <- indexedResult{index: i, result: fetch(ctx, p, query)}
		}(i, p)
	}

	wg.Wait()
	close(results)

	ordered := make([]Result, len(providers))
	for res := range results {
		ordered[res.index] = res.result
		if res.result.Err != nil {
			r.logger.Warn().
				Err(res.result.Err).
				Str("engine", res.result.Engine).
				Str("query", query).
				Msg("Search provider failed")
		}
	}

	return ordered
}

func fetch(ctx context.Context, p Provider, query string) (res Result) {
	res.Engine = p.Name()

	defer func() {
		if rec := recover(); rec != nil {
			res.Documents = nil
			res.Err = models.NewError(models.KindProviderFailure, "search provider panicked", fmt.Errorf("%v", rec))
		}
	}()

	docs, err := p.Fetch(ctx, query)
	if err != nil {
		res.Err = models.NewError(models.KindProviderFailure, fmt.Sprintf("%s search failed", res.Engine), err)
		return res
	}

	res.Documents = tagEngine(docs, res.Engine)
	return res
}

// Merge concatenates successful results in order.
func Merge(results []Result) []models.Document {
	var docs []models.Document
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		docs = append(docs, res.Documents...)
	}
	return docs
}

// Failed counts failed results.
func Failed(results []Result) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
