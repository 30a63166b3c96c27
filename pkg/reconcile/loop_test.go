package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/sources/dev"
	"github.com/sw33tLie/stockfinder/pkg/storage"
	"github.com/sw33tLie/stockfinder/pkg/upsert"
)

type fixture struct {
	db    *storage.DB
	shopA *dev.Adapter
	shopB *dev.Adapter
	rec   *Reconciler
	slept int
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "stock.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:    db,
		shopA: dev.New(sources.Source{ID: 1, Name: "shopa"}, "shopa.test"),
		shopB: dev.New(sources.Source{ID: 2, Name: "shopb"}, "shopb.test"),
	}
	for _, a := range []*dev.Adapter{f.shopA, f.shopB} {
		if err := db.EnsureSource(context.Background(), a.Source().ID, a.Source().Name); err != nil {
			t.Fatal(err)
		}
	}
	reg, err := sources.NewRegistry(f.shopA, f.shopB)
	if err != nil {
		t.Fatal(err)
	}
	f.rec = New(db, reg, upsert.NewEngine(db, nil), cfg, nil)
	f.rec.sleep = func(context.Context, time.Duration) error {
		f.slept++
		return nil
	}
	return f
}

func product(code string) sources.Record {
	return sources.Record{Code: code, Name: "RTX " + code, Category: "GPU", PartNumber: "PN-" + code, Price: 500, Stock: true}
}

func (f *fixture) channel(t *testing.T, url string) int64 {
	t.Helper()
	if _, err := f.db.EnqueueChannelEntry(context.Background(), url, ""); err != nil {
		t.Fatal(err)
	}
	pending, err := f.db.PendingChannelEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range pending {
		if e.URL == url {
			return e.ID
		}
	}
	t.Fatalf("entry for %s not pending", url)
	return 0
}

func (f *fixture) user(t *testing.T, userID int64, url string) int64 {
	t.Helper()
	id, err := f.db.EnqueueUserEntry(context.Background(), storage.UserEntry{URL: url, UserID: userID, MaxPrice: 450, AlertByTelegram: true})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) tick(t *testing.T) *TickResult {
	t.Helper()
	res, err := f.rec.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return res
}

func (f *fixture) channelEntry(t *testing.T, id int64) *storage.ChannelEntry {
	t.Helper()
	e, err := f.db.GetChannelEntry(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) userEntry(t *testing.T, id int64) *storage.UserEntry {
	t.Helper()
	e, err := f.db.GetUserEntry(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestChannelSuccessMaterializes(t *testing.T) {
	f := newFixture(t, Config{})
	url := "https://shopa.test/p/1"
	id := f.channel(t, url)
	f.shopA.SetProduct(url, product("1"))

	res := f.tick(t)
	if res.Channel.Processed != 1 || res.ID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	e := f.channelEntry(t, id)
	if !e.Processed || e.Invalid || e.Counter != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if _, err := f.db.AvailabilityByURL(context.Background(), url); err != nil {
		t.Fatalf("availability not created: %v", err)
	}
}

func TestChannelFailures(t *testing.T) {
	tests := []struct {
		name        string
		startAt     int
		reason      sources.Reason
		wantCounter int
		wantInvalid bool
	}{
		{"soft failure retries", 0, sources.ReasonGetNotCompleted, 1, false},
		{"hard failure invalidates at once", 0, sources.ReasonSpecsNotFound, 1, true},
		{"hard failure on last attempt", 2, sources.ReasonSpecsNotFound, 3, true},
		{"soft failure on last attempt", 2, sources.ReasonJSON, 3, true},
	}
	for _, tt := range tests {
		f := newFixture(t, Config{})
		url := "https://shopa.test/p/x"
		id := f.channel(t, url)
		if tt.startAt > 0 {
			if err := f.db.UpdateChannelEntry(context.Background(), id, storage.ChannelTransition{Counter: tt.startAt}); err != nil {
				t.Fatal(err)
			}
		}
		f.shopA.SetFailure(url, tt.reason)
		f.tick(t)

		e := f.channelEntry(t, id)
		if e.Counter != tt.wantCounter || e.Invalid != tt.wantInvalid || e.Processed {
			t.Fatalf("%s: got counter=%d invalid=%v processed=%v", tt.name, e.Counter, e.Invalid, e.Processed)
		}
		if e.ErrorMessage != string(tt.reason) {
			t.Fatalf("%s: error message %q", tt.name, e.ErrorMessage)
		}
	}
}

func TestBatchErrorLeavesCountersUnchanged(t *testing.T) {
	f := newFixture(t, Config{})
	cid := f.channel(t, "https://shopa.test/p/1")
	uid := f.user(t, 7, "https://shopa.test/p/2")
	f.shopA.FailBatches(context.DeadlineExceeded)

	res := f.tick(t)
	if res.Channel.Untouched != 1 || res.User.Untouched != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if e := f.channelEntry(t, cid); e.Counter != 0 || e.Processed || e.Invalid {
		t.Fatalf("channel entry changed: %+v", e)
	}
	if e := f.userEntry(t, uid); e.Counter != 0 || e.Processed || e.Invalid {
		t.Fatalf("user entry changed: %+v", e)
	}
}

func TestExistingAvailabilitySkipsAdapter(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	url := "https://shopa.test/p/known"
	if _, err := f.db.RegisterProduct(ctx, storage.ProductRegistration{SourceID: 1, Code: "K", URL: url, Name: "known", Category: "GPU"}); err != nil {
		t.Fatal(err)
	}
	cid := f.channel(t, url)
	uid := f.user(t, 7, url)

	f.tick(t)
	if f.shopA.Calls() != 0 {
		t.Fatalf("adapter called %d times", f.shopA.Calls())
	}
	if e := f.channelEntry(t, cid); !e.Processed || e.Counter != 0 {
		t.Fatalf("channel entry %+v", e)
	}
	if e := f.userEntry(t, uid); !e.Processed || e.Counter != 0 {
		t.Fatalf("user entry %+v", e)
	}
	alerts, _ := f.db.ListAlerts(ctx, 7)
	if len(alerts) != 1 || !alerts[0].AlertByTelegram || alerts[0].MaxPrice != 450 {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
}

func TestUserConfirmationCreatesAlert(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	url := "https://shopb.test/p/9"
	uid := f.user(t, 7, url)
	dup := f.user(t, 7, url)
	other := f.user(t, 8, url)
	f.shopB.SetProduct(url, product("9"))

	res := f.tick(t)
	if res.User.Processed != 3 {
		t.Fatalf("unexpected result %+v", res.User)
	}
	for _, id := range []int64{uid, dup, other} {
		if e := f.userEntry(t, id); !e.Processed || e.Counter != 1 {
			t.Fatalf("user entry %+v", e)
		}
	}
	if alerts, _ := f.db.ListAlerts(ctx, 7); len(alerts) != 1 {
		t.Fatalf("expected a single alert for user 7, got %d", len(alerts))
	}
	if alerts, _ := f.db.ListAlerts(ctx, 8); len(alerts) != 1 {
		t.Fatalf("expected a single alert for user 8, got %d", len(alerts))
	}
}

func TestUserFailureIgnoresHardReason(t *testing.T) {
	f := newFixture(t, Config{})
	url := "https://shopa.test/p/bad"
	uid := f.user(t, 7, url)
	f.shopA.SetFailure(url, sources.ReasonSpecsNotFound)

	for i := 1; i <= 3; i++ {
		f.tick(t)
		e := f.userEntry(t, uid)
		if e.Counter != i || e.Invalid != (i == 3) {
			t.Fatalf("tick %d: %+v", i, e)
		}
	}
	res := f.tick(t)
	if res.User.Pending != 0 {
		t.Fatalf("invalid entry still pending: %+v", res.User)
	}
}

func TestUnknownSourceMarkedProcessed(t *testing.T) {
	f := newFixture(t, Config{})
	cid := f.channel(t, "https://unknown.example/p/1")
	uid := f.user(t, 7, "https://unknown.example/p/1")

	f.tick(t)
	if e := f.channelEntry(t, cid); !e.Processed || e.Counter != 0 {
		t.Fatalf("channel entry %+v", e)
	}
	if e := f.userEntry(t, uid); !e.Processed || e.Counter != 0 {
		t.Fatalf("user entry %+v", e)
	}
}

func TestBatchLimitPerSource(t *testing.T) {
	f := newFixture(t, Config{})
	for i := 0; i < 7; i++ {
		f.channel(t, fmt.Sprintf("https://shopa.test/p/%d", i))
	}
	f.channel(t, "https://shopb.test/p/1")

	res := f.tick(t)
	if got := len(f.shopA.Requested()); got != DefaultBatchLimit {
		t.Fatalf("shopa got %d requests, want %d", got, DefaultBatchLimit)
	}
	if len(f.shopB.Requested()) != 1 {
		t.Fatalf("shopb requests %v", f.shopB.Requested())
	}
	if res.Channel.Deferred != 2 || res.Channel.Retried != 6 {
		t.Fatalf("unexpected counts %+v", res.Channel)
	}
	if f.slept != 1 {
		t.Fatalf("expected one delay between two source batches, got %d", f.slept)
	}
}

func TestSourceFilter(t *testing.T) {
	f := newFixture(t, Config{Source: "ShopB"})
	a := f.channel(t, "https://shopa.test/p/1")
	u := f.channel(t, "https://unknown.example/p/1")
	b := f.channel(t, "https://shopb.test/p/1")
	f.shopB.SetProduct("https://shopb.test/p/1", product("1"))

	res := f.tick(t)
	if res.Channel.Untouched != 1 || res.Channel.Processed != 2 {
		t.Fatalf("unexpected counts %+v", res.Channel)
	}
	if f.shopA.Calls() != 0 {
		t.Fatal("filtered source was called")
	}
	if e := f.channelEntry(t, a); e.Processed || e.Invalid || e.Counter != 0 {
		t.Fatalf("shopa entry touched: %+v", e)
	}
	if e := f.channelEntry(t, u); !e.Processed || e.Counter != 0 {
		t.Fatalf("unclaimed entry not processed: %+v", e)
	}
	if e := f.channelEntry(t, b); !e.Processed {
		t.Fatalf("shopb entry not processed: %+v", e)
	}
}

func TestUnclaimedEntriesProcessedUnderEveryFilter(t *testing.T) {
	for _, source := range []string{"shopa", "shopb"} {
		f := newFixture(t, Config{Source: source})
		url := "https://cdn.partner.example/p/1"
		cid := f.channel(t, url)
		uid := f.user(t, 7, url)

		res := f.tick(t)
		if res.Channel.Processed != 1 || res.User.Processed != 1 {
			t.Fatalf("source=%s: unexpected result %+v", source, res)
		}
		if e := f.channelEntry(t, cid); !e.Processed || e.Invalid || e.Counter != 0 {
			t.Fatalf("source=%s: channel entry %+v", source, e)
		}
		if e := f.userEntry(t, uid); !e.Processed || e.Invalid {
			t.Fatalf("source=%s: user entry %+v", source, e)
		}
		if f.shopA.Calls()+f.shopB.Calls() != 0 {
			t.Fatalf("source=%s: adapter called for an unclaimed url", source)
		}
	}
}

func TestMissingResultLeavesCounterUnchanged(t *testing.T) {
	f := newFixture(t, Config{})
	kept := "https://shopa.test/p/1"
	dropped := "https://shopa.test/p/2"
	kid := f.channel(t, kept)
	did := f.channel(t, dropped)
	f.shopA.SetProduct(kept, product("1"))
	f.shopA.Omit(dropped)

	res := f.tick(t)
	if res.Channel.Processed != 1 || res.Channel.Untouched != 1 || res.Channel.Retried != 0 {
		t.Fatalf("unexpected counts %+v", res.Channel)
	}
	if e := f.channelEntry(t, kid); !e.Processed {
		t.Fatalf("returned entry not processed: %+v", e)
	}
	if e := f.channelEntry(t, did); e.Counter != 0 || e.Processed || e.Invalid || e.ErrorMessage != "" {
		t.Fatalf("omitted entry changed: %+v", e)
	}
}

func TestBatchTimeoutLeavesCountersUnchanged(t *testing.T) {
	f := newFixture(t, Config{BatchTimeout: 50 * time.Millisecond})
	cid := f.channel(t, "https://shopa.test/p/1")
	uid := f.user(t, 7, "https://shopa.test/p/2")
	f.shopA.Block()

	start := time.Now()
	res := f.tick(t)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("batch timeout not applied, tick took %s", elapsed)
	}
	if f.shopA.Calls() != 2 {
		t.Fatalf("expected one blocked call per queue, got %d", f.shopA.Calls())
	}
	if res.Channel.Untouched != 1 || res.User.Untouched != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if e := f.channelEntry(t, cid); e.Counter != 0 || e.Processed || e.Invalid {
		t.Fatalf("channel entry changed: %+v", e)
	}
	if e := f.userEntry(t, uid); e.Counter != 0 || e.Processed || e.Invalid {
		t.Fatalf("user entry changed: %+v", e)
	}
}

func TestMaterializationFailureCounts(t *testing.T) {
	f := newFixture(t, Config{})
	url := "https://shopa.test/p/1"
	id := f.channel(t, url)
	broken := product("1")
	broken.Category = "Juguetes"
	f.shopA.SetProduct(url, broken)

	f.tick(t)
	e := f.channelEntry(t, id)
	if e.Counter != 1 || e.Processed || e.ErrorMessage != string(sources.ReasonProductNotAdded) || e.Code != "1" {
		t.Fatalf("unexpected entry %+v", e)
	}
}
