// Package linker cross-references receipts with bank records that describe
// the same purchase and copies the receipt's tax detail onto the bank record.
package linker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/logger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/search"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

// Status is the result of a link attempt.
type Status string

const (
	StatusLinked    Status = "linked"
	StatusNoMatch   Status = "no_match"
	StatusAmbiguous Status = "ambiguous"
)

// Outcome describes what Link did.
type Outcome struct {
	Status        Status
	RecordID      string
	CounterpartID string   // set when linked
	CandidateIDs  []string // set when ambiguous
}

// Options tunes what counts as a plausible counterpart.
type Options struct {
	DateToleranceDays int
	AmountTolerance   decimal.Decimal
	// VendorMatch narrows several amount/date matches down by vendor text.
	VendorMatch bool
}

// DefaultOptions allows 3 days and 5 cents of drift.
func DefaultOptions() Options {
	return Options{
		DateToleranceDays: 3,
		AmountTolerance:   decimal.RequireFromString("0.05"),
		VendorMatch:       true,
	}
}

// Linker searches committed records for counterparts.
type Linker struct {
	records store.RecordStore
	opts    Options
}

// New creates a Linker.
func New(records store.RecordStore, opts Options) *Linker {
	if opts.DateToleranceDays < 0 {
		opts.DateToleranceDays = 0
	}
	return &Linker{records: records, opts: opts}
}

// counterpartSource returns the source type a record can be linked to.
func counterpartSource(s model.SourceType) (model.SourceType, bool) {
	switch s {
	case model.SourceReceipt:
		return model.SourceBank, true
	case model.SourceBank:
		return model.SourceReceipt, true
	default:
		return "", false
	}
}

// Link looks for exactly one counterpart of rec and links the pair. Finding
// nothing, or finding several, is not an error.
func (l *Linker) Link(ctx context.Context, rec model.CommittedRecord) (Outcome, error) {
	out := Outcome{Status: StatusNoMatch, RecordID: rec.ID}
	if rec.IsLinked() {
		out.Status = StatusLinked
		out.CounterpartID = rec.LinkedToID
		return out, nil
	}

	other, ok := counterpartSource(rec.Source)
	if !ok {
		return out, nil
	}

	from, to := store.SameDayRange(rec.Date, l.opts.DateToleranceDays)
	nearby, err := l.records.ListByDateRange(ctx, from, to)
	if err != nil {
		return out, fmt.Errorf("listing records near %s: %w", rec.Date.Format("2006-01-02"), err)
	}

	var plausible []model.CommittedRecord
	for _, c := range nearby {
		if c.ID == rec.ID || c.Source != other || c.Book != rec.Book || c.IsLinked() {
			continue
		}
		diff := c.AmountReporting.Abs().Sub(rec.AmountReporting.Abs()).Abs()
		if diff.GreaterThan(l.opts.AmountTolerance) {
			continue
		}
		plausible = append(plausible, c)
	}

	if len(plausible) > 1 && l.opts.VendorMatch {
		var narrowed []model.CommittedRecord
		for _, c := range plausible {
			if vendorMatches(rec, c) {
				narrowed = append(narrowed, c)
			}
		}
		if len(narrowed) > 0 {
			plausible = narrowed
		}
	}

	switch len(plausible) {
	case 0:
		return out, nil
	case 1:
		if err := l.link(ctx, rec, plausible[0]); err != nil {
			return out, err
		}
		out.Status = StatusLinked
		out.CounterpartID = plausible[0].ID
		return out, nil
	default:
		out.Status = StatusAmbiguous
		for _, c := range plausible {
			out.CandidateIDs = append(out.CandidateIDs, c.ID)
		}
		log := logger.FromContext(ctx)
		log.Info().
			Str("record", rec.ID).
			Strs("candidates", out.CandidateIDs).
			Msg("several possible counterparts, leaving unlinked")
		return out, nil
	}
}

// LinkPair links two records chosen by the user, for example to settle an
// ambiguous match.
func (l *Linker) LinkPair(ctx context.Context, recordID, counterpartID string) error {
	a, err := l.records.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	b, err := l.records.GetRecord(ctx, counterpartID)
	if err != nil {
		return err
	}
	other, ok := counterpartSource(a.Source)
	if !ok || b.Source != other {
		return fmt.Errorf("cannot link %s record %s with %s record %s", a.Source, a.ID, b.Source, b.ID)
	}
	if a.IsLinked() || b.IsLinked() {
		return fmt.Errorf("record %s or %s is already linked", a.ID, b.ID)
	}
	return l.link(ctx, a, b)
}

// Unlink clears the link fields on rec's counterpart. Used before rec is
// deleted so the counterpart is not left pointing at nothing.
func (l *Linker) Unlink(ctx context.Context, rec model.CommittedRecord) error {
	if !rec.IsLinked() {
		return nil
	}
	cp, err := l.records.GetRecord(ctx, rec.LinkedToID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cp.LinkedToID != rec.ID {
		return nil
	}
	cp.LinkedToID = ""
	if cp.Source == model.SourceBank {
		cp.HasReceiptImage = false
	} else {
		cp.HasBankLink = false
	}
	if err := l.records.UpdateRecord(ctx, cp); err != nil {
		return fmt.Errorf("unlinking %s: %w", cp.ID, err)
	}
	return nil
}

// link writes the link fields on both records. Tax detail only ever flows
// from the receipt to the bank record.
func (l *Linker) link(ctx context.Context, a, b model.CommittedRecord) error {
	receipt, bank := a, b
	if a.Source == model.SourceBank {
		receipt, bank = b, a
	}

	bank.LinkedToID = receipt.ID
	bank.HasReceiptImage = receipt.HasReceiptImage
	if !receipt.Tax.IsZero() {
		bank.Tax = receipt.Tax
	}
	receipt.LinkedToID = bank.ID
	receipt.HasBankLink = true

	if err := l.records.UpdateRecord(ctx, bank); err != nil {
		return fmt.Errorf("linking %s: %w", bank.ID, err)
	}
	if err := l.records.UpdateRecord(ctx, receipt); err != nil {
		return fmt.Errorf("linking %s: %w", receipt.ID, err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("bank", bank.ID).Str("receipt", receipt.ID).Msg("linked receipt to bank record")
	return nil
}

// vendorMatches compares the receipt's vendor words against the bank text.
func vendorMatches(a, b model.CommittedRecord) bool {
	receipt, bank := a, b
	if a.Source == model.SourceBank {
		receipt, bank = b, a
	}
	vendor := receipt.Vendor
	if vendor == "" {
		vendor = receipt.Description
	}
	bankText := bank.Description + " " + bank.Vendor
	for _, tok := range search.Tokenize(vendor) {
		if len(tok) < 3 {
			continue
		}
		if search.FuzzyMatch(tok, bankText) {
			return true
		}
	}
	return false
}
