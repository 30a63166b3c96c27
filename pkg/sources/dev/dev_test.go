package dev

import (
	"context"
	"errors"
	"testing"

	"github.com/sw33tLie/stockfinder/pkg/sources"
)

func TestScrapeProducts(t *testing.T) {
	a := New(sources.Source{ID: 1, Name: "dev"}, "dev.test")
	a.SetProduct("https://dev.test/p/1", sources.Record{Code: "1", Name: "one", Category: "GPU"})
	a.SetFailure("https://dev.test/p/2", sources.ReasonSpecsNotFound)

	res, err := a.ScrapeProducts(context.Background(), []sources.Request{
		{EntryID: 10, URL: "https://dev.test/p/1/"},
		{EntryID: 11, URL: "https://dev.test/p/2"},
		{EntryID: 12, URL: "https://dev.test/p/3"},
	})
	if err != nil {
		t.Fatalf("ScrapeProducts: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if !res[0].OK() || res[0].Record.Code != "1" || !res[0].Record.AddProduct || res[0].Request.EntryID != 10 {
		t.Fatalf("unexpected first result %+v", res[0])
	}
	if res[1].Reason != sources.ReasonSpecsNotFound {
		t.Fatalf("expected specs not found, got %q", res[1].Reason)
	}
	if res[2].Reason != sources.ReasonGetNotCompleted {
		t.Fatalf("expected get not completed, got %q", res[2].Reason)
	}
	if a.Calls() != 1 || len(a.Requested()) != 3 {
		t.Fatalf("calls=%d requested=%v", a.Calls(), a.Requested())
	}
}

func TestFailBatches(t *testing.T) {
	a := Seeded()
	boom := errors.New("timeout")
	a.FailBatches(boom)
	if _, err := a.ScrapeProducts(context.Background(), []sources.Request{{URL: "x"}}); !errors.Is(err, boom) {
		t.Fatalf("expected batch error, got %v", err)
	}
	if _, err := a.ScrapeListing(context.Background(), "GPU"); !errors.Is(err, boom) {
		t.Fatalf("expected listing error, got %v", err)
	}
	a.FailBatches(nil)
	recs, err := a.ScrapeListing(context.Background(), "GPU")
	if err != nil || len(recs) != 3 {
		t.Fatalf("listing after reset: %v %v", recs, err)
	}
	if got := a.Categories(); len(got) != 2 || got[0] != "CPU" {
		t.Fatalf("unexpected categories %v", got)
	}
}
