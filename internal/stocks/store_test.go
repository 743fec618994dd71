package stocks_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pkt.systems/stockd/internal/clock"
	"pkt.systems/stockd/internal/storage"
	"pkt.systems/stockd/internal/storage/memory"
	"pkt.systems/stockd/internal/stocks"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store   *stocks.Store
	backend *memory.Store
	clock   *clock.Manual
}

func newFixture(t *testing.T, opts ...func(*stocks.Config)) fixture {
	t.Helper()
	backend := memory.New()
	clk := clock.NewManual(time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))
	cfg := stocks.Config{Backend: backend, Clock: clk}
	for _, opt := range opts {
		opt(&cfg)
	}
	store, err := stocks.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return fixture{store: store, backend: backend, clock: clk}
}

func TestOpenSeedsEmptyBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	list, err := f.store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"AAPL", "GOOGL", "MSFT", "TSLA", "NVDA"}
	if len(list) != len(want) {
		t.Fatalf("expected %d seeds, got %d", len(want), len(list))
	}
	for i, rec := range list {
		if rec.Symbol != want[i] {
			t.Fatalf("seed %d symbol = %s want %s", i, rec.Symbol, want[i])
		}
		if rec.ID == "" {
			t.Fatalf("seed %d has no id", i)
		}
		if !rec.CreatedAt.Equal(rec.UpdatedAt) {
			t.Fatalf("seed %d timestamps differ", i)
		}
	}
	if f.backend.Saves() != 1 {
		t.Fatalf("expected seeds to be written once, got %d saves", f.backend.Saves())
	}
	data, err := f.backend.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n  {") {
		t.Fatalf("snapshot should be an indented JSON array, got %q", string(data[:min(len(data), 20)]))
	}
}

func TestOpenReplacesUnparsableSnapshotWithSeeds(t *testing.T) {
	t.Parallel()

	backend := memory.NewWithSnapshot([]byte("{not json"))
	store, err := stocks.Open(context.Background(), stocks.Config{Backend: backend})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if store.Len() != 5 {
		t.Fatalf("expected seeds, got %d records", store.Len())
	}
	if backend.Saves() != 1 {
		t.Fatalf("expected seeds to be persisted, got %d saves", backend.Saves())
	}
}

func TestOpenLoadsExistingSnapshot(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := []stocks.Record{{ID: "one", Symbol: "IBM", Name: "IBM", Price: 10, CreatedAt: ts, UpdatedAt: ts}}
	data, err := stocks.EncodeSnapshot(existing)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	backend := memory.NewWithSnapshot(data)
	store, err := stocks.Open(context.Background(), stocks.Config{Backend: backend})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	got, err := store.Get(context.Background(), "one")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Symbol != "IBM" || !got.CreatedAt.Equal(ts) {
		t.Fatalf("unexpected record %+v", got)
	}
	if backend.Saves() != 0 {
		t.Fatalf("loading must not rewrite the snapshot, got %d saves", backend.Saves())
	}
}

func TestOpenEmptyArrayIsValid(t *testing.T) {
	t.Parallel()

	store, err := stocks.Open(context.Background(), stocks.Config{Backend: memory.NewWithSnapshot([]byte("[]"))})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if store.Len() != 0 {
		t.Fatalf("expected empty collection, got %d", store.Len())
	}
}

func TestOpenNormalizesHandEditedSnapshot(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	edited := []stocks.Record{{
		ID:        "one",
		Symbol:    " ibm ",
		Name:      " IBM ",
		Price:     10,
		Change:    -1,
		CreatedAt: created,
		UpdatedAt: created.Add(-time.Hour),
	}}
	data, err := stocks.EncodeSnapshot(edited)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	store, err := stocks.Open(context.Background(), stocks.Config{Backend: memory.NewWithSnapshot(data)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	got, err := store.GetBySymbol(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("get by symbol: %v", err)
	}
	if got.Symbol != "IBM" || got.Name != "IBM" {
		t.Fatalf("expected normalized text fields, got %+v", got)
	}
	if !got.UpdatedAt.Equal(created) {
		t.Fatalf("updated_at = %v, want clamped to %v", got.UpdatedAt, created)
	}
}

func TestOpenRejectsInvalidSnapshotRecords(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := map[string]stocks.Record{
		"negative price":  {ID: "one", Symbol: "IBM", Name: "IBM", Price: -1, CreatedAt: ts, UpdatedAt: ts},
		"negative volume": {ID: "one", Symbol: "IBM", Name: "IBM", Price: 1, Volume: -5, CreatedAt: ts, UpdatedAt: ts},
		"blank symbol":    {ID: "one", Symbol: "  ", Name: "IBM", Price: 1, CreatedAt: ts, UpdatedAt: ts},
		"blank name":      {ID: "one", Symbol: "IBM", Price: 1, CreatedAt: ts, UpdatedAt: ts},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			data, err := stocks.EncodeSnapshot([]stocks.Record{rec})
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			backend := memory.NewWithSnapshot(data)
			store, err := stocks.Open(context.Background(), stocks.Config{Backend: backend})
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer store.Close()
			if store.Len() != 5 {
				t.Fatalf("expected invalid snapshot to be replaced by seeds, got %d records", store.Len())
			}
			if backend.Saves() != 1 {
				t.Fatalf("expected seeds to be persisted, got %d saves", backend.Saves())
			}
		})
	}
}

func TestReloadKeepsCollectionOnInvalidRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data, err := stocks.EncodeSnapshot([]stocks.Record{{ID: "one", Symbol: "IBM", Name: "IBM", Price: -3, CreatedAt: ts, UpdatedAt: ts}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.backend.Save(ctx, data); err != nil {
		t.Fatalf("save: %v", err)
	}
	err = f.store.Reload(ctx)
	if err == nil {
		t.Fatal("expected reload error")
	}
	if errors.Is(err, stocks.ErrValidation) {
		t.Fatalf("snapshot errors must not surface as client validation errors: %v", err)
	}
	if f.store.Len() != 5 {
		t.Fatalf("failed reload must keep collection, got %d", f.store.Len())
	}
}

func TestCreateNormalizesAndAssignsIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	seen := map[string]bool{}
	list, _ := f.store.List(ctx)
	for _, rec := range list {
		seen[rec.ID] = true
	}
	for i := 0; i < 20; i++ {
		rec, err := f.store.Create(ctx, stocks.CreateInput{
			Symbol: fmt.Sprintf(" t%02d ", i),
			Name:   "Test",
			Price:  ptr(1.5),
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate id %s", rec.ID)
		}
		seen[rec.ID] = true
		if want := fmt.Sprintf("T%02d", i); rec.Symbol != want {
			t.Fatalf("symbol = %q want %q", rec.Symbol, want)
		}
		if rec.Change != 0 || rec.Volume != 0 || rec.MarketCap != 0 {
			t.Fatalf("optional fields should default to zero: %+v", rec)
		}
		if !rec.CreatedAt.Equal(f.clock.Now()) || !rec.UpdatedAt.Equal(rec.CreatedAt) {
			t.Fatalf("unexpected timestamps %v %v", rec.CreatedAt, rec.UpdatedAt)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		in    stocks.CreateInput
		field string
	}{
		{name: "missing symbol", in: stocks.CreateInput{Name: "X", Price: ptr(1.0)}, field: "symbol"},
		{name: "blank symbol", in: stocks.CreateInput{Symbol: "  ", Name: "X", Price: ptr(1.0)}, field: "symbol"},
		{name: "missing name", in: stocks.CreateInput{Symbol: "X", Price: ptr(1.0)}, field: "name"},
		{name: "missing price", in: stocks.CreateInput{Symbol: "X", Name: "X"}, field: "price"},
		{name: "negative price", in: stocks.CreateInput{Symbol: "X", Name: "X", Price: ptr(-1.0)}, field: "price"},
		{name: "nan price", in: stocks.CreateInput{Symbol: "X", Name: "X", Price: ptr(math.NaN())}, field: "price"},
		{name: "negative volume", in: stocks.CreateInput{Symbol: "X", Name: "X", Price: ptr(1.0), Volume: ptr(int64(-5))}, field: "volume"},
		{name: "negative market cap", in: stocks.CreateInput{Symbol: "X", Name: "X", Price: ptr(1.0), MarketCap: ptr(-1.0)}, field: "market_cap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.Create(ctx, tc.in)
			if !errors.Is(err, stocks.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var serr *stocks.Error
			if !errors.As(err, &serr) || serr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
	if f.store.Len() != 5 {
		t.Fatalf("failed creates must not change the collection, got %d", f.store.Len())
	}
	if f.backend.Saves() != 1 {
		t.Fatalf("failed creates must not persist, got %d saves", f.backend.Saves())
	}
}

func TestNegativeChangeIsAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec, err := f.store.Create(context.Background(), stocks.CreateInput{Symbol: "DOWN", Name: "Down Co", Price: ptr(3.0), Change: ptr(-2.5)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Change != -2.5 {
		t.Fatalf("change = %v", rec.Change)
	}
}

func TestUpdateMergesOnlyProvidedFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	orig, err := f.store.Create(ctx, stocks.CreateInput{
		Symbol: "abc", Name: "ABC Corp", Price: ptr(10.0), Change: ptr(1.0), Volume: ptr(int64(100)), MarketCap: ptr(5000.0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.clock.Advance(time.Minute)

	updated, err := f.store.Update(ctx, orig.ID, stocks.UpdateInput{Price: ptr(12.5), Symbol: ptr("abd")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != 12.5 || updated.Symbol != "ABD" {
		t.Fatalf("provided fields not applied: %+v", updated)
	}
	if updated.Name != orig.Name || updated.Change != orig.Change || updated.Volume != orig.Volume || updated.MarketCap != orig.MarketCap {
		t.Fatalf("unprovided fields changed: %+v vs %+v", updated, orig)
	}
	if !updated.CreatedAt.Equal(orig.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", orig.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(orig.UpdatedAt) {
		t.Fatalf("updated_at should advance: %v -> %v", orig.UpdatedAt, updated.UpdatedAt)
	}
	got, _ := f.store.Get(ctx, orig.ID)
	if got != updated {
		t.Fatalf("stored record differs from returned: %+v vs %+v", got, updated)
	}
}

func TestEmptyUpdateOnlyTouchesUpdatedAt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if !(stocks.UpdateInput{}).Empty() {
		t.Fatal("zero UpdateInput must report empty")
	}
	if (stocks.UpdateInput{Volume: ptr(int64(1))}).Empty() {
		t.Fatal("UpdateInput with a field must not report empty")
	}
	list, _ := f.store.List(ctx)
	before := list[0]
	f.clock.Advance(time.Minute)
	got, err := f.store.Update(ctx, before.ID, stocks.UpdateInput{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updated_at not refreshed: %v -> %v", before.UpdatedAt, got.UpdatedAt)
	}
	got.UpdatedAt = before.UpdatedAt
	if got != before {
		t.Fatalf("empty update changed fields: %+v -> %+v", before, got)
	}
}

func TestUpdateNeverMovesUpdatedAtBackwards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "T", Name: "T", Price: ptr(1.0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	back := &rewoundClock{Manual: f.clock, offset: -time.Hour}
	other, err := stocks.Open(context.Background(), stocks.Config{Backend: f.backend, Clock: back})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer other.Close()
	updated, err := other.Update(ctx, rec.ID, stocks.UpdateInput{Name: ptr("T2")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		t.Fatalf("updated_at %v before created_at %v", updated.UpdatedAt, updated.CreatedAt)
	}
}

type rewoundClock struct {
	*clock.Manual
	offset time.Duration
}

func (r *rewoundClock) Now() time.Time { return r.Manual.Now().Add(r.offset) }

func TestUpdateErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Update(ctx, "missing", stocks.UpdateInput{Price: ptr(1.0)}); !errors.Is(err, stocks.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	list, _ := f.store.List(ctx)
	id := list[0].ID
	if _, err := f.store.Update(ctx, id, stocks.UpdateInput{Price: ptr(-1.0)}); !errors.Is(err, stocks.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.store.Update(ctx, id, stocks.UpdateInput{Name: ptr(" ")}); !errors.Is(err, stocks.ErrValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	after, _ := f.store.Get(ctx, id)
	if after != list[0] {
		t.Fatalf("failed update modified record: %+v", after)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "amzn", Name: "Amazon.com Inc.", Price: ptr(180.0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := f.store.GetBySymbol(ctx, "AMZN")
	if err != nil || found.ID != created.ID {
		t.Fatalf("get by symbol: %+v %v", found, err)
	}
	deleted, err := f.store.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != created.ID {
		t.Fatalf("delete returned %s want %s", deleted.ID, created.ID)
	}
	list, _ := f.store.List(ctx)
	if len(list) != 5 {
		t.Fatalf("expected 5 records after delete, got %d", len(list))
	}
	if _, err := f.store.Get(ctx, created.ID); !errors.Is(err, stocks.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := f.store.Delete(ctx, created.ID); !errors.Is(err, stocks.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestGetBySymbolFirstMatchWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.store.Create(ctx, stocks.CreateInput{Symbol: "dup", Name: "First", Price: ptr(1.0)})
	if _, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "DUP", Name: "Second", Price: ptr(2.0)}); err != nil {
		t.Fatalf("duplicate symbols are allowed by default: %v", err)
	}
	got, err := f.store.GetBySymbol(ctx, "Dup")
	if err != nil {
		t.Fatalf("get by symbol: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected first inserted record, got %+v", got)
	}
	if _, err := f.store.GetBySymbol(ctx, "nope"); !errors.Is(err, stocks.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUniqueSymbolsMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *stocks.Config) { cfg.UniqueSymbols = true })
	ctx := context.Background()
	if _, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "aapl", Name: "Again", Price: ptr(1.0)}); !errors.Is(err, stocks.ErrValidation) {
		t.Fatalf("expected duplicate symbol rejection, got %v", err)
	}
	list, _ := f.store.List(ctx)
	if _, err := f.store.Update(ctx, list[0].ID, stocks.UpdateInput{Symbol: ptr("msft")}); !errors.Is(err, stocks.ErrValidation) {
		t.Fatalf("expected update duplicate rejection, got %v", err)
	}
	if _, err := f.store.Update(ctx, list[0].ID, stocks.UpdateInput{Symbol: ptr("aapl")}); err != nil {
		t.Fatalf("re-setting own symbol should succeed: %v", err)
	}
}

func TestStatsMatchesList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "CHEAP", Name: "Cheap", Price: ptr(0.1), MarketCap: ptr(0.2)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	stats, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	list, _ := f.store.List(ctx)
	sumPrice, sumCap := decimal.Zero, decimal.Zero
	for _, rec := range list {
		sumPrice = sumPrice.Add(decimal.NewFromFloat(rec.Price))
		sumCap = sumCap.Add(decimal.NewFromFloat(rec.MarketCap))
	}
	if stats.Count != len(list) {
		t.Fatalf("count = %d want %d", stats.Count, len(list))
	}
	if stats.TotalPrice != sumPrice.InexactFloat64() {
		t.Fatalf("total price = %v want %v", stats.TotalPrice, sumPrice)
	}
	if stats.TotalMarketCap != sumCap.InexactFloat64() {
		t.Fatalf("total market cap = %v want %v", stats.TotalMarketCap, sumCap)
	}
	avg := sumPrice.Div(decimal.NewFromInt(int64(len(list)))).Round(2).InexactFloat64()
	if stats.AveragePrice != avg {
		t.Fatalf("average price = %v want %v", stats.AveragePrice, avg)
	}
	if stats.HighestSymbol() != "NVDA" || stats.LowestSymbol() != "CHEAP" {
		t.Fatalf("unexpected extremes %s/%s", stats.HighestSymbol(), stats.LowestSymbol())
	}
}

func TestStatsSeedValues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stats, err := f.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	// (175.43 + 138.21 + 378.85 + 248.42 + 875.28) / 5 = 363.238
	if stats.TotalPrice != 1816.19 {
		t.Fatalf("total price = %v", stats.TotalPrice)
	}
	if stats.AveragePrice != 363.24 {
		t.Fatalf("average price = %v", stats.AveragePrice)
	}
	if stats.TotalMarketCap != 10290000000000 {
		t.Fatalf("total market cap = %v", stats.TotalMarketCap)
	}
	if stats.HighestSymbol() != "NVDA" || stats.LowestSymbol() != "GOOGL" {
		t.Fatalf("unexpected extremes %s/%s", stats.HighestSymbol(), stats.LowestSymbol())
	}
}

func TestStatsEmptyCollection(t *testing.T) {
	t.Parallel()

	store, err := stocks.Open(context.Background(), stocks.Config{Backend: memory.NewWithSnapshot([]byte("[]"))})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 0 || stats.AveragePrice != 0 || stats.TotalMarketCap != 0 || stats.Highest != nil || stats.Lowest != nil {
		t.Fatalf("unexpected empty stats %+v", stats)
	}
}

func TestPersistReloadRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "rt", Name: "Round Trip", Price: ptr(42.42), Change: ptr(-0.01), Volume: ptr(int64(7)), MarketCap: ptr(1e9)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := f.store.List(ctx)

	restarted, err := stocks.Open(ctx, stocks.Config{Backend: f.backend})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer restarted.Close()
	after, _ := restarted.List(ctx)
	if len(before) != len(after) {
		t.Fatalf("length mismatch %d vs %d", len(before), len(after))
	}
	for i := range before {
		b, a := before[i], after[i]
		if b.ID != a.ID || b.Symbol != a.Symbol || b.Name != a.Name || b.Price != a.Price ||
			b.Change != a.Change || b.Volume != a.Volume || b.MarketCap != a.MarketCap ||
			!b.CreatedAt.Equal(a.CreatedAt) || !b.UpdatedAt.Equal(a.UpdatedAt) {
			t.Fatalf("record %d differs after reload:\n%+v\n%+v", i, b, a)
		}
	}
}

func TestReloadPicksUpExternalSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	data, _ := stocks.EncodeSnapshot([]stocks.Record{{ID: "ext", Symbol: "EXT", Name: "External", Price: 1, CreatedAt: ts, UpdatedAt: ts}})
	if err := f.backend.Save(ctx, data); err != nil {
		t.Fatalf("external save: %v", err)
	}
	if err := f.store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected reloaded collection, got %d", f.store.Len())
	}
	if err := f.backend.Save(ctx, []byte("garbage")); err != nil {
		t.Fatalf("save garbage: %v", err)
	}
	if err := f.store.Reload(ctx); err == nil {
		t.Fatal("expected reload error for garbage snapshot")
	}
	if f.store.Len() != 1 {
		t.Fatalf("failed reload must keep collection, got %d", f.store.Len())
	}
}

type failingBackend struct {
	*memory.Store
	fail bool
}

func (f *failingBackend) Save(ctx context.Context, data []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, data)
}

func TestPersistFailureRollsBack(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{Store: memory.New()}
	store, err := stocks.Open(context.Background(), stocks.Config{Backend: backend})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	before, _ := store.List(ctx)
	backend.fail = true

	if _, err := store.Create(ctx, stocks.CreateInput{Symbol: "X", Name: "X", Price: ptr(1.0)}); err == nil {
		t.Fatal("expected create to fail")
	} else if errors.Is(err, stocks.ErrValidation) || errors.Is(err, stocks.ErrNotFound) {
		t.Fatalf("persistence failure must be internal, got %v", err)
	}
	if _, err := store.Update(ctx, before[0].ID, stocks.UpdateInput{Price: ptr(1.0)}); err == nil {
		t.Fatal("expected update to fail")
	}
	if _, err := store.Delete(ctx, before[0].ID); err == nil {
		t.Fatal("expected delete to fail")
	}
	after, _ := store.List(ctx)
	if len(after) != len(before) {
		t.Fatalf("collection changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("record %d changed after failed mutation", i)
		}
	}
}

func TestOpenPropagatesBackendErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("access denied")
	_, err := stocks.Open(context.Background(), stocks.Config{Backend: loadErrBackend{err: boom}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if _, err := stocks.Open(context.Background(), stocks.Config{}); err == nil {
		t.Fatal("expected error without backend")
	}
}

type loadErrBackend struct {
	err error
}

func (b loadErrBackend) Load(context.Context) ([]byte, error) { return nil, b.err }
func (b loadErrBackend) Save(context.Context, []byte) error   { return nil }
func (b loadErrBackend) Describe() string                     { return "err://" }
func (b loadErrBackend) Close() error                         { return nil }

var _ storage.Backend = loadErrBackend{}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.store.List(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := f.store.Create(ctx, stocks.CreateInput{Symbol: "X", Name: "X", Price: ptr(1.0)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
