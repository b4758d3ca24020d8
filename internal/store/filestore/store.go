// Package filestore keeps records and ledger entries as CSV files inside a
// workspace directory so they can be reviewed and versioned with git.
//
//	records/YYYY/MM/records.csv
//	ledger/ledger.csv
package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/id"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

const (
	recordsDir  = "records"
	recordsFile = "records.csv"
	ledgerDir   = "ledger"
	ledgerFile  = "ledger.csv"
)

var _ store.Store = (*Store)(nil)

// Store is a CSV-backed store rooted at a workspace directory. A single
// process is expected to own the directory.
type Store struct {
	root string

	mu     sync.RWMutex
	ledger map[string]model.LedgerEntry
	order  []string
}

// Open loads the ledger from root. Missing files are treated as empty.
func Open(root string) (*Store, error) {
	s := &Store{root: root, ledger: make(map[string]model.LedgerEntry)}

	data, err := os.ReadFile(s.ledgerPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if len(data) > 0 {
		entries, err := ReadEntries(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing ledger: %w", err)
		}
		for _, e := range entries {
			if _, ok := s.ledger[e.Fingerprint]; ok {
				continue
			}
			s.ledger[e.Fingerprint] = e
			s.order = append(s.order, e.Fingerprint)
		}
	}
	return s, nil
}

// Close is a no-op; every write goes straight to disk.
func (s *Store) Close() error { return nil }

func (s *Store) ledgerPath() string {
	return filepath.Join(s.root, ledgerDir, ledgerFile)
}

func (s *Store) monthPath(year, month int) string {
	return filepath.Join(s.root, recordsDir, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month), recordsFile)
}

func (s *Store) pathForID(recID string) (string, error) {
	_, year, month, err := id.ParseRecordID(recID)
	if err != nil {
		return "", err
	}
	return s.monthPath(year, month), nil
}

func (s *Store) readMonth(path string) ([]model.CommittedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	recs, err := ReadRecords(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return recs, nil
}

func (s *Store) writeMonth(path string, recs []model.CommittedRecord) error {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, recs); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// CreateRecord appends rec to its month file.
func (s *Store) CreateRecord(_ context.Context, rec model.CommittedRecord) error {
	path, err := s.pathForID(rec.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readMonth(path)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.ID == rec.ID {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
	}
	return s.writeMonth(path, append(recs, rec))
}

func (s *Store) GetRecord(_ context.Context, recID string) (model.CommittedRecord, error) {
	path, err := s.pathForID(recID)
	if err != nil {
		return model.CommittedRecord{}, fmt.Errorf("record %s: %w", recID, store.ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.readMonth(path)
	if err != nil {
		return model.CommittedRecord{}, err
	}
	for _, r := range recs {
		if r.ID == recID {
			return r, nil
		}
	}
	return model.CommittedRecord{}, fmt.Errorf("record %s: %w", recID, store.ErrNotFound)
}

func (s *Store) UpdateRecord(_ context.Context, rec model.CommittedRecord) error {
	return s.rewrite(rec.ID, func(recs []model.CommittedRecord, i int) []model.CommittedRecord {
		recs[i] = rec
		return recs
	})
}

func (s *Store) DeleteRecord(_ context.Context, recID string) error {
	return s.rewrite(recID, func(recs []model.CommittedRecord, i int) []model.CommittedRecord {
		return append(recs[:i], recs[i+1:]...)
	})
}

func (s *Store) rewrite(recID string, change func([]model.CommittedRecord, int) []model.CommittedRecord) error {
	path, err := s.pathForID(recID)
	if err != nil {
		return fmt.Errorf("record %s: %w", recID, store.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readMonth(path)
	if err != nil {
		return err
	}
	for i, r := range recs {
		if r.ID == recID {
			return s.writeMonth(path, change(recs, i))
		}
	}
	return fmt.Errorf("record %s: %w", recID, store.ErrNotFound)
}

// ListRecords walks every month file.
func (s *Store) ListRecords(_ context.Context) ([]model.CommittedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths, err := filepath.Glob(filepath.Join(s.root, recordsDir, "*", "*", recordsFile))
	if err != nil {
		return nil, fmt.Errorf("listing record files: %w", err)
	}

	var out []model.CommittedRecord
	for _, p := range paths {
		recs, err := s.readMonth(p)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) FindByImportFingerprint(ctx context.Context, fp string) (model.CommittedRecord, error) {
	recs, err := s.ListRecords(ctx)
	if err != nil {
		return model.CommittedRecord{}, err
	}
	for _, r := range recs {
		if r.ImportFingerprint == fp {
			return r, nil
		}
	}
	return model.CommittedRecord{}, fmt.Errorf("record with fingerprint %s: %w", fp, store.ErrNotFound)
}

// ListByDateRange reads only the month files overlapping [from, to].
func (s *Store) ListByDateRange(_ context.Context, from, to time.Time) ([]model.CommittedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CommittedRecord
	month := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !month.After(to) {
		recs, err := s.readMonth(s.monthPath(month.Year(), int(month.Month())))
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.Date.Before(from) || r.Date.After(to) {
				continue
			}
			out = append(out, r)
		}
		month = month.AddDate(0, 1, 0)
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

// PutEntry appends to ledger.csv unless the fingerprint is present.
func (s *Store) PutEntry(_ context.Context, e model.LedgerEntry) error {
	if e.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger[e.Fingerprint]; ok {
		return nil
	}
	if err := s.appendEntry(e); err != nil {
		return err
	}
	s.ledger[e.Fingerprint] = e
	s.order = append(s.order, e.Fingerprint)
	return nil
}

func (s *Store) appendEntry(e model.LedgerEntry) error {
	path := s.ledgerPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, []model.LedgerEntry{e}); err != nil {
			return err
		}
		return writeFileAtomic(path, buf.Bytes())
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(MarshalEntry(e)); err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// DeleteEntry rewrites ledger.csv without fp.
func (s *Store) DeleteEntry(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger[fp]; !ok {
		return fmt.Errorf("ledger entry %s: %w", fp, store.ErrNotFound)
	}

	remaining := make([]model.LedgerEntry, 0, len(s.order)-1)
	order := make([]string, 0, len(s.order)-1)
	for _, k := range s.order {
		if k == fp {
			continue
		}
		remaining = append(remaining, s.ledger[k])
		order = append(order, k)
	}

	var buf bytes.Buffer
	if err := WriteEntries(&buf, remaining); err != nil {
		return err
	}
	if err := writeFileAtomic(s.ledgerPath(), buf.Bytes()); err != nil {
		return err
	}
	delete(s.ledger, fp)
	s.order = order
	return nil
}

// ListEntries returns entries in the order they were written.
func (s *Store) ListEntries(_ context.Context) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LedgerEntry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.ledger[k])
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func sortRecords(recs []model.CommittedRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].ID < recs[j].ID
	})
}
