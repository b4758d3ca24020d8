// Package store defines the persistence boundary shared by the ledger and
// the reconciliation service. Backends live in the subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// ErrNotFound is returned by point lookups that find nothing.
var ErrNotFound = errors.New("not found")

// RecordStore persists committed expense and revenue records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec model.CommittedRecord) error
	GetRecord(ctx context.Context, id string) (model.CommittedRecord, error)
	UpdateRecord(ctx context.Context, rec model.CommittedRecord) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context) ([]model.CommittedRecord, error)
	FindByImportFingerprint(ctx context.Context, fp string) (model.CommittedRecord, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]model.CommittedRecord, error)
}

// LedgerStore persists ledger entries keyed by fingerprint.
type LedgerStore interface {
	GetEntry(ctx context.Context, fp string) (model.LedgerEntry, error)
	// GetEntries returns the entries that exist among fps. Callers keep fps
	// within the backend's query size limit.
	GetEntries(ctx context.Context, fps []string) ([]model.LedgerEntry, error)
	// PutEntry is a no-op when the fingerprint is already present.
	PutEntry(ctx context.Context, e model.LedgerEntry) error
	DeleteEntry(ctx context.Context, fp string) error
	ListEntries(ctx context.Context) ([]model.LedgerEntry, error)
}

// Store is a backend that holds both records and ledger entries.
type Store interface {
	RecordStore
	LedgerStore
	Close() error
}

// SameDayRange returns the inclusive [from, to] range covering days around d.
func SameDayRange(d time.Time, days int) (time.Time, time.Time) {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -days), day.AddDate(0, 0, days)
}
