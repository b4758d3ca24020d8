package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is the side of the books a committed record lands in.
type Book string

const (
	BookExpense Book = "expense"
	BookRevenue Book = "revenue"
)

// CommittedRecord is a durable expense or revenue entry.
type CommittedRecord struct {
	ID          string
	Book        Book
	Source      SourceType
	Date        time.Time
	Vendor      string
	Description string
	Amount      decimal.Decimal // original currency, signed as imported
	Currency    string
	Kind        Kind
	Category    string
	Reference   string
	Tax         TaxBreakdown

	AmountReporting decimal.Decimal
	ExchangeRate    decimal.Decimal
	RateApproximate bool

	ImportFingerprint string
	SourceLabel       string

	LinkedToID      string
	HasReceiptImage bool
	HasBankLink     bool

	CreatedAt time.Time
}

// IsLinked reports whether the record already has a counterpart.
func (r CommittedRecord) IsLinked() bool {
	return r.LinkedToID != ""
}

// LedgerEntryKind distinguishes whole-file and per-record ledger entries.
type LedgerEntryKind string

const (
	EntryFile   LedgerEntryKind = "file"
	EntryRecord LedgerEntryKind = "record"
)

// LedgerEntry marks a fingerprint whose content has already been committed.
type LedgerEntry struct {
	Fingerprint string
	Kind        LedgerEntryKind
	SourceLabel string
	ImportedAt  time.Time
	RecordCount int // file entries only
}
