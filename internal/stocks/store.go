package stocks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/clock"
	"pkt.systems/stockd/internal/storage"
	"pkt.systems/stockd/internal/svcfields"
	"pkt.systems/stockd/internal/uuidv7"
)

// Config wires a Store.
type Config struct {
	// Backend persists the JSON snapshot. Required.
	Backend storage.Backend
	// Clock supplies timestamps. Defaults to clock.Real.
	Clock clock.Clock
	// Logger receives store diagnostics. Defaults to a no-op logger.
	Logger pslog.Logger
	// NewID generates record identifiers. Defaults to UUIDv7.
	NewID func() string
	// UniqueSymbols rejects create/update requests that would give two
	// records the same symbol.
	UniqueSymbols bool
}

// Store owns the stock collection. Reads share a lock; every mutation holds
// the write lock across the snapshot write so the persisted document always
// matches memory.
type Store struct {
	backend storage.Backend
	clock   clock.Clock
	logger  pslog.Logger
	newID   func() string
	unique  bool
	metrics *storeMetrics
	gauge   metric.Registration

	mu      sync.RWMutex
	records []Record
}

// Open constructs a Store and loads its collection from cfg.Backend. When no
// snapshot exists, or it does not parse, the seed collection is installed
// and written out.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("stocks: backend required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.NoopLogger()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuidv7.NewString
	}
	s := &Store{
		backend: cfg.Backend,
		clock:   cfg.Clock,
		logger:  svcfields.WithSubsystem(cfg.Logger, "stocks.store"),
		newID:   cfg.NewID,
		unique:  cfg.UniqueSymbols,
	}
	s.metrics = newStoreMetrics(s.logger)
	s.gauge = s.metrics.registerStore(s)

	records, err := s.load(ctx)
	switch {
	case err == nil:
		s.records = records
		s.logger.Info("stocks.store.loaded", "records", len(records), "backend", s.backend.Describe())
		return s, nil
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info("stocks.store.seeding", "reason", "snapshot_missing", "backend", s.backend.Describe())
	case errors.As(err, new(*snapshotError)):
		s.logger.Warn("stocks.store.seeding", "reason", "snapshot_unparsable", "backend", s.backend.Describe(), "error", err)
	default:
		return nil, err
	}
	seeds := Seeds(s.now(), s.newID)
	if err := s.persist(ctx, seeds); err != nil {
		return nil, fmt.Errorf("stocks: write seed snapshot: %w", err)
	}
	s.records = seeds
	return s, nil
}

// snapshotError marks a snapshot that exists but cannot be decoded.
type snapshotError struct {
	err error
}

func (e *snapshotError) Error() string { return "stocks: decode snapshot: " + e.err.Error() }
func (e *snapshotError) Unwrap() error { return e.err }

func (s *Store) load(ctx context.Context) ([]Record, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &snapshotError{err: errors.New("empty document")}
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &snapshotError{err: err}
	}
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			return nil, &snapshotError{err: fmt.Errorf("record %d has no id", i)}
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, &snapshotError{err: fmt.Errorf("duplicate id %q", rec.ID)}
		}
		seen[rec.ID] = struct{}{}
		if err := normalizeLoaded(rec); err != nil {
			return nil, &snapshotError{err: fmt.Errorf("record %q: %v", rec.ID, err)}
		}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// normalizeLoaded brings a record read from a snapshot in line with what
// Create and Update produce. Hand edits that cannot be repaired are errors.
func normalizeLoaded(rec *Record) error {
	rec.Symbol = NormalizeSymbol(rec.Symbol)
	if rec.Symbol == "" {
		return validationError("symbol", "is required")
	}
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return validationError("name", "is required")
	}
	if err := validateNumbers(*rec); err != nil {
		return err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}
	return nil
}

// EncodeSnapshot renders records in the persisted document format: one JSON
// array, two-space indented.
func EncodeSnapshot(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("stocks: encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func (s *Store) persist(ctx context.Context, records []Record) error {
	data, err := EncodeSnapshot(records)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("stocks: persist snapshot: %w", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Round(0)
}

// Reload replaces the collection with the backend's current snapshot. The
// collection is left untouched when the snapshot is missing or invalid.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load(ctx)
	if err != nil {
		s.metrics.record(ctx, "reload", err)
		s.logger.Warn("stocks.store.reload.failed", "error", err)
		return err
	}
	s.records = records
	s.metrics.record(ctx, "reload", nil)
	s.logger.Info("stocks.store.reloaded", "records", len(records))
	return nil
}

// Close detaches the store from the metrics pipeline. The backend is owned
// by the caller and stays open.
func (s *Store) Close() error {
	if s.gauge == nil {
		return nil
	}
	err := s.gauge.Unregister()
	s.gauge = nil
	return err
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Backend returns the snapshot backend.
func (s *Store) Backend() storage.Backend { return s.backend }

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	s.mu.RUnlock()
	s.metrics.record(ctx, "list", nil)
	return out, nil
}

// Get returns the record with the given identifier.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	idx := s.indexOf(id)
	var rec Record
	if idx >= 0 {
		rec = s.records[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		err := notFoundError("stock %q not found", id)
		s.metrics.record(ctx, "get", err)
		return Record{}, err
	}
	s.metrics.record(ctx, "get", nil)
	return rec, nil
}

// GetBySymbol returns the first record, in insertion order, whose symbol
// matches case-insensitively.
func (s *Store) GetBySymbol(ctx context.Context, symbol string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	want := NormalizeSymbol(symbol)
	if want == "" {
		err := validationError("symbol", "must not be empty")
		s.metrics.record(ctx, "get_by_symbol", err)
		return Record{}, err
	}
	s.mu.RLock()
	idx := s.indexOfSymbol(want, "")
	var rec Record
	if idx >= 0 {
		rec = s.records[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		err := notFoundError("stock with symbol %q not found", want)
		s.metrics.record(ctx, "get_by_symbol", err)
		return Record{}, err
	}
	s.metrics.record(ctx, "get_by_symbol", nil)
	return rec, nil
}

// Create validates in, appends a new record and persists the collection.
func (s *Store) Create(ctx context.Context, in CreateInput) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := s.buildRecord(in)
	if err != nil {
		s.metrics.record(ctx, "create", err)
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unique && s.indexOfSymbol(rec.Symbol, "") >= 0 {
		err := validationError("symbol", "stock with symbol %q already exists", rec.Symbol)
		s.metrics.record(ctx, "create", err)
		return Record{}, err
	}
	for s.indexOf(rec.ID) >= 0 {
		rec.ID = s.newID()
	}
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	next := make([]Record, len(s.records), len(s.records)+1)
	copy(next, s.records)
	next = append(next, rec)
	if err := s.persist(ctx, next); err != nil {
		s.metrics.record(ctx, "create", err)
		s.logger.Error("stocks.store.create.persist_failed", "symbol", rec.Symbol, "error", err)
		return Record{}, err
	}
	s.records = next
	s.metrics.record(ctx, "create", nil)
	s.logger.Debug("stocks.store.created", "id", rec.ID, "symbol", rec.Symbol)
	return rec, nil
}

func (s *Store) buildRecord(in CreateInput) (Record, error) {
	symbol := NormalizeSymbol(in.Symbol)
	if symbol == "" {
		return Record{}, validationError("symbol", "is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Record{}, validationError("name", "is required")
	}
	if in.Price == nil {
		return Record{}, validationError("price", "is required")
	}
	rec := Record{
		ID:     s.newID(),
		Symbol: symbol,
		Name:   name,
		Price:  *in.Price,
	}
	if in.Change != nil {
		rec.Change = *in.Change
	}
	if in.Volume != nil {
		rec.Volume = *in.Volume
	}
	if in.MarketCap != nil {
		rec.MarketCap = *in.MarketCap
	}
	if err := validateNumbers(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func validateNumbers(rec Record) error {
	if err := checkAmount("price", rec.Price, false); err != nil {
		return err
	}
	if err := checkAmount("change", rec.Change, true); err != nil {
		return err
	}
	if rec.Volume < 0 {
		return validationError("volume", "must be non-negative")
	}
	return checkAmount("market_cap", rec.MarketCap, false)
}

func checkAmount(field string, v float64, signed bool) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return validationError(field, "must be a finite number")
	}
	if !signed && v < 0 {
		return validationError(field, "must be non-negative")
	}
	return nil
}

// Update merges the non-nil fields of in into the record and persists.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		err := notFoundError("stock %q not found", id)
		s.metrics.record(ctx, "update", err)
		return Record{}, err
	}
	rec := s.records[idx]
	if in.Empty() {
		s.logger.Debug("stocks.store.update.touch_only", "id", id)
	}
	if in.Symbol != nil {
		symbol := NormalizeSymbol(*in.Symbol)
		if symbol == "" {
			err := validationError("symbol", "must not be empty")
			s.metrics.record(ctx, "update", err)
			return Record{}, err
		}
		if s.unique && s.indexOfSymbol(symbol, rec.ID) >= 0 {
			err := validationError("symbol", "stock with symbol %q already exists", symbol)
			s.metrics.record(ctx, "update", err)
			return Record{}, err
		}
		rec.Symbol = symbol
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			err := validationError("name", "must not be empty")
			s.metrics.record(ctx, "update", err)
			return Record{}, err
		}
		rec.Name = name
	}
	if in.Price != nil {
		rec.Price = *in.Price
	}
	if in.Change != nil {
		rec.Change = *in.Change
	}
	if in.Volume != nil {
		rec.Volume = *in.Volume
	}
	if in.MarketCap != nil {
		rec.MarketCap = *in.MarketCap
	}
	if err := validateNumbers(rec); err != nil {
		s.metrics.record(ctx, "update", err)
		return Record{}, err
	}
	now := s.now()
	if now.Before(rec.UpdatedAt) {
		now = rec.UpdatedAt
	}
	if now.Before(rec.CreatedAt) {
		now = rec.CreatedAt
	}
	rec.UpdatedAt = now

	next := make([]Record, len(s.records))
	copy(next, s.records)
	next[idx] = rec
	if err := s.persist(ctx, next); err != nil {
		s.metrics.record(ctx, "update", err)
		s.logger.Error("stocks.store.update.persist_failed", "id", id, "error", err)
		return Record{}, err
	}
	s.records = next
	s.metrics.record(ctx, "update", nil)
	s.logger.Debug("stocks.store.updated", "id", rec.ID, "symbol", rec.Symbol)
	return rec, nil
}

// Delete removes the record and returns it as confirmation.
func (s *Store) Delete(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		err := notFoundError("stock %q not found", id)
		s.metrics.record(ctx, "delete", err)
		return Record{}, err
	}
	removed := s.records[idx]
	next := make([]Record, 0, len(s.records)-1)
	next = append(next, s.records[:idx]...)
	next = append(next, s.records[idx+1:]...)
	if err := s.persist(ctx, next); err != nil {
		s.metrics.record(ctx, "delete", err)
		s.logger.Error("stocks.store.delete.persist_failed", "id", id, "error", err)
		return Record{}, err
	}
	s.records = next
	s.metrics.record(ctx, "delete", nil)
	s.logger.Debug("stocks.store.deleted", "id", removed.ID, "symbol", removed.Symbol)
	return removed, nil
}

// Stats derives aggregate statistics from the current collection.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	stats := computeStats(s.records)
	s.mu.RUnlock()
	s.metrics.record(ctx, "stats", nil)
	return stats, nil
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// indexOfSymbol finds the first record with symbol, skipping exceptID.
func (s *Store) indexOfSymbol(symbol, exceptID string) int {
	for i := range s.records {
		if s.records[i].ID == exceptID {
			continue
		}
		if strings.EqualFold(s.records[i].Symbol, symbol) {
			return i
		}
	}
	return -1
}
