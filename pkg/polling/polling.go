// Package polling runs stock checks for several sources at once.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/stockcheck"
)

const defaultConcurrency = 3

// Config holds everything StockAll needs.
type Config struct {
	Adapters    []sources.Adapter
	Store       stockcheck.Store
	Engine      stockcheck.Decider
	Concurrency int // defaults to 3 if <= 0
	Log         sources.Logger

	// Lock, when set, is held around each source's check. It returns the
	// release function.
	Lock func(source string) (func(), error)

	// OnSourceDone is called per source from worker goroutines once its
	// check finished. Nil = no callback.
	OnSourceDone func(res *stockcheck.Result, err error)
}

// Result holds the outcome of one StockAll call, sorted by source name.
type Result struct {
	Sources []*stockcheck.Result
	Errors  []error // non-fatal, one per failed source
}

// StockAll runs stockcheck.Run for every adapter using a worker pool. A
// failed source is recorded in Result.Errors and never stops the others.
func StockAll(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Store == nil || cfg.Engine == nil {
		return nil, errors.New("polling needs a store and an engine")
	}
	log := sources.OrNop(cfg.Log)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	result := &Result{}
	if len(cfg.Adapters) == 0 {
		return result, nil
	}

	adapterChan := make(chan sources.Adapter, len(cfg.Adapters))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range adapterChan {
				res, err := checkOne(ctx, cfg, a, log)
				mu.Lock()
				if res != nil {
					result.Sources = append(result.Sources, res)
				}
				if err != nil {
					result.Errors = append(result.Errors, err)
				}
				mu.Unlock()
				if cfg.OnSourceDone != nil {
					cfg.OnSourceDone(res, err)
				}
			}
		}()
	}

	for _, a := range cfg.Adapters {
		adapterChan <- a
	}
	close(adapterChan)
	wg.Wait()

	sort.Slice(result.Sources, func(i, j int) bool { return result.Sources[i].Source < result.Sources[j].Source })
	return result, ctx.Err()
}

func checkOne(ctx context.Context, cfg Config, a sources.Adapter, log sources.Logger) (*stockcheck.Result, error) {
	name := a.Source().Name
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if cfg.Lock != nil {
		unlock, err := cfg.Lock(name)
		if err != nil {
			log.Warnf("Could not lock %s: %v", name, err)
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defer unlock()
	}

	res, err := stockcheck.Run(ctx, stockcheck.Config{
		Store:   cfg.Store,
		Engine:  cfg.Engine,
		Adapter: a,
		Log:     log,
	})
	if err != nil {
		log.Warnf("Stock check for %s failed: %v", name, err)
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}
