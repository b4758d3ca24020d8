// Package ledger tracks which fingerprints have already produced committed
// records. Presence in the ledger is the only authority for "already
// imported".
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

// DefaultChunkSize is the number of keys looked up per round trip.
const DefaultChunkSize = 30

// maxInFlight bounds concurrent chunk lookups.
const maxInFlight = 4

// FileMeta describes a committed source file.
type FileMeta struct {
	SourceLabel string
	RecordCount int
}

// Service is the duplicate ledger.
type Service struct {
	store     store.LedgerStore
	chunkSize int
	now       func() time.Time
}

// NewService creates a ledger over s. A chunkSize <= 0 uses DefaultChunkSize.
func NewService(s store.LedgerStore, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{store: s, chunkSize: chunkSize, now: time.Now}
}

// HasFile returns the ledger entry for a file fingerprint, or nil if the file
// was never committed.
func (s *Service) HasFile(ctx context.Context, fp string) (*model.LedgerEntry, error) {
	if fp == "" {
		return nil, nil
	}
	e, err := s.store.GetEntry(ctx, fp)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up file %s: %w", fp, err)
	}
	if e.Kind != model.EntryFile {
		return nil, nil
	}
	return &e, nil
}

// HasRecords returns the subset of fps already in the ledger. Lookups are
// chunked and run concurrently; the result is only returned once every chunk
// has answered.
func (s *Service) HasRecords(ctx context.Context, fps []string) (map[string]struct{}, error) {
	keys := unique(fps)
	found := make(map[string]struct{}, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)

	for start := 0; start < len(keys); start += s.chunkSize {
		end := min(start+s.chunkSize, len(keys))
		chunk := keys[start:end]
		g.Go(func() error {
			entries, err := s.store.GetEntries(gctx, chunk)
			if err != nil {
				return fmt.Errorf("checking %d fingerprints: %w", len(chunk), err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range entries {
				if e.Kind == model.EntryRecord {
					found[e.Fingerprint] = struct{}{}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// CommitFile records a whole source file as imported.
func (s *Service) CommitFile(ctx context.Context, fp string, meta FileMeta) error {
	err := s.store.PutEntry(ctx, model.LedgerEntry{
		Fingerprint: fp,
		Kind:        model.EntryFile,
		SourceLabel: meta.SourceLabel,
		ImportedAt:  s.now().UTC(),
		RecordCount: meta.RecordCount,
	})
	if err != nil {
		return fmt.Errorf("committing file %s: %w", fp, err)
	}
	return nil
}

// CommitRecords adds record fingerprints. Each insert is independent; the
// first failure is returned after the remaining inserts have been attempted.
func (s *Service) CommitRecords(ctx context.Context, fps []string, sourceLabel string) error {
	now := s.now().UTC()
	var errs []error
	for _, fp := range unique(fps) {
		err := s.store.PutEntry(ctx, model.LedgerEntry{
			Fingerprint: fp,
			Kind:        model.EntryRecord,
			SourceLabel: sourceLabel,
			ImportedAt:  now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("committing record %s: %w", fp, err))
		}
	}
	return errors.Join(errs...)
}

// Forget removes a fingerprint so its content can be imported again.
func (s *Service) Forget(ctx context.Context, fp string) error {
	err := s.store.DeleteEntry(ctx, fp)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("forgetting %s: %w", fp, err)
	}
	return nil
}

// Entries lists every ledger entry.
func (s *Service) Entries(ctx context.Context) ([]model.LedgerEntry, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	return entries, nil
}

func unique(fps []string) []string {
	seen := make(map[string]struct{}, len(fps))
	out := make([]string, 0, len(fps))
	for _, fp := range fps {
		if fp == "" {
			continue
		}
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, fp)
	}
	return out
}
