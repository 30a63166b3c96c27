// Package stockcheck refreshes a source's catalogue from its listing pages.
package stockcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

type Store interface {
	KnownCodes(ctx context.Context, sourceID int64) (map[string]bool, error)
	SyncStock(ctx context.Context, updates []storage.StockUpdate) error
}

type Decider interface {
	Decide(ctx context.Context, src sources.Source, rec sources.Record, snap upsert.Snapshot) (upsert.Decision, error)
}

type Config struct {
	Store   Store
	Engine  Decider
	Adapter sources.Adapter
	// Categories defaults to every category the adapter lists.
	Categories []string
	Log        sources.Logger
}

type Result struct {
	Source     string `json:"source"`
	Categories int    `json:"categories"`
	Records    int    `json:"records"`
	Updated    int    `json:"updated"`
	Registered int    `json:"registered"`
	Queued     int    `json:"queued"`
	Rejected   int    `json:"rejected"`
	Failed     int    `json:"failed"`
}

// Run scrapes every category and feeds each record through the decision
// engine. Updates are flushed in bulk once per category. A category that
// fails is logged and skipped; only a cancelled context stops the run.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Store == nil || cfg.Engine == nil || cfg.Adapter == nil {
		return nil, errors.New("stock check needs a store, an engine and an adapter")
	}
	log := sources.OrNop(cfg.Log)
	src := cfg.Adapter.Source()
	res := &Result{Source: src.Name}

	known, err := cfg.Store.KnownCodes(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("loading known codes for %s: %w", src.Name, err)
	}
	snap := upsert.Snapshot(known)

	categories := cfg.Categories
	if len(categories) == 0 {
		categories = cfg.Adapter.Categories()
	}

	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		recs, err := cfg.Adapter.ScrapeListing(ctx, category)
		if err != nil {
			log.Errorf("[%s] listing %s failed: %v", src.Name, category, err)
			res.Failed++
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		res.Categories++
		res.Records += len(recs)

		var updates []storage.StockUpdate
		for _, rec := range recs {
			d, err := cfg.Engine.Decide(ctx, src, rec, snap)
			if err != nil {
				log.Errorf("[%s] %s (code %q): %v", src.Name, rec.URL, rec.Code, err)
				res.Failed++
				continue
			}
			switch d.Kind {
			case upsert.Updated:
				updates = append(updates, *d.Update)
			case upsert.Registered:
				res.Registered++
			case upsert.Queued:
				res.Queued++
			default:
				res.Rejected++
			}
		}

		if err := cfg.Store.SyncStock(ctx, updates); err != nil {
			log.Errorf("[%s] syncing %d %s updates failed: %v", src.Name, len(updates), category, err)
			res.Failed++
			continue
		}
		res.Updated += len(updates)
		log.Infof("[%s] %s: %d records, %d updated", src.Name, category, len(recs), len(updates))
	}
	return res, nil
}
