// Package memstore is an in-memory store backend. It is safe for concurrent
// use and loses everything when the process exits.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store holds records and ledger entries in maps.
type Store struct {
	mu      sync.RWMutex
	records map[string]model.CommittedRecord
	ledger  map[string]model.LedgerEntry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]model.CommittedRecord),
		ledger:  make(map[string]model.LedgerEntry),
	}
}

// CreateRecord fails if the ID is already taken.
func (s *Store) CreateRecord(_ context.Context, rec model.CommittedRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) GetRecord(_ context.Context, id string) (model.CommittedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return model.CommittedRecord{}, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) UpdateRecord(_ context.Context, rec model.CommittedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return fmt.Errorf("record %s: %w", rec.ID, store.ErrNotFound)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) ListRecords(_ context.Context) ([]model.CommittedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CommittedRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) FindByImportFingerprint(_ context.Context, fp string) (model.CommittedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ImportFingerprint == fp {
			return rec, nil
		}
	}
	return model.CommittedRecord{}, fmt.Errorf("record with fingerprint %s: %w", fp, store.ErrNotFound)
}

func (s *Store) ListByDateRange(_ context.Context, from, to time.Time) ([]model.CommittedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CommittedRecord
	for _, rec := range s.records {
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, fp string) (model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ledger[fp]
	if !ok {
		return model.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", fp, store.ErrNotFound)
	}
	return e, nil
}

func (s *Store) GetEntries(_ context.Context, fps []string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LedgerEntry
	for _, fp := range fps {
		if e, ok := s.ledger[fp]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) PutEntry(_ context.Context, e model.LedgerEntry) error {
	if e.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[e.Fingerprint]; !ok {
		s.ledger[e.Fingerprint] = e
	}
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[fp]; !ok {
		return fmt.Errorf("ledger entry %s: %w", fp, store.ErrNotFound)
	}
	delete(s.ledger, fp)
	return nil
}

func (s *Store) ListEntries(_ context.Context) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LedgerEntry, 0, len(s.ledger))
	for _, e := range s.ledger {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ImportedAt.Equal(out[j].ImportedAt) {
			return out[i].ImportedAt.Before(out[j].ImportedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func sortRecords(recs []model.CommittedRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].ID < recs[j].ID
	})
}
