package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/rates"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/reconcile"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/workspace"
)

type importJSON struct {
	RunID             string        `json:"run_id"`
	Source            string        `json:"source"`
	ExpensesCreated   int           `json:"expenses_created"`
	RevenuesCreated   int           `json:"revenues_created"`
	Skipped           int           `json:"skipped"`
	Replaced          int           `json:"replaced"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	FileSeenBefore    bool          `json:"file_seen_before"`
	OfferForce        bool          `json:"offer_force"`
	ApproximateRates  int           `json:"approximate_rates"`
	Linked            int           `json:"linked"`
	Ambiguous         int           `json:"ambiguous"`
	CreatedIDs        []string      `json:"created_ids"`
	Failures          []failureJSON `json:"failures,omitempty"`
	Warnings          []string      `json:"warnings,omitempty"`
	CommitHash        string        `json:"commit_hash,omitempty"`
}

type failureJSON struct {
	Index       int    `json:"index"`
	Fingerprint string `json:"fingerprint"`
	Kind        string `json:"kind"`
}

func toImportJSON(rep *workspace.ImportReport) importJSON {
	res := rep.Result
	out := importJSON{
		RunID:             rep.RunID,
		Source:            rep.Label,
		ExpensesCreated:   res.ExpensesCreated,
		RevenuesCreated:   res.RevenuesCreated,
		Skipped:           res.Skipped,
		Replaced:          res.Replaced,
		DuplicatesSkipped: res.DuplicatesSkipped,
		FileSeenBefore:    res.FileSeenBefore,
		OfferForce:        res.NeedsForceOffer(),
		ApproximateRates:  res.ApproximateRates,
		Linked:            res.Linked,
		Ambiguous:         res.Ambiguous,
		CreatedIDs:        res.CreatedIDs,
		CommitHash:        rep.CommitHash,
	}
	if out.CreatedIDs == nil {
		out.CreatedIDs = []string{}
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, failureJSON{Index: f.Index, Fingerprint: f.Fingerprint, Kind: failureKind(f.Err)})
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}

// failureKind names the failure category without leaking storage errors.
func failureKind(err error) string {
	var (
		pf *reconcile.PersistenceFailure
		li *reconcile.LedgerInconsistency
	)
	switch {
	case errors.As(err, &pf):
		return "persistence"
	case errors.As(err, &li):
		return "ledger_inconsistency"
	default:
		return "unknown"
	}
}

type entryJSON struct {
	Fingerprint string    `json:"fingerprint"`
	Kind        string    `json:"kind"`
	SourceLabel string    `json:"source"`
	ImportedAt  time.Time `json:"imported_at"`
	RecordCount int       `json:"record_count,omitempty"`
}

func toEntryJSON(e model.LedgerEntry) entryJSON {
	return entryJSON{
		Fingerprint: e.Fingerprint,
		Kind:        string(e.Kind),
		SourceLabel: e.SourceLabel,
		ImportedAt:  e.ImportedAt,
		RecordCount: e.RecordCount,
	}
}

type recordJSON struct {
	ID              string          `json:"id"`
	Book            string          `json:"book"`
	Source          string          `json:"source"`
	Date            string          `json:"date"`
	Vendor          string          `json:"vendor,omitempty"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	AmountReporting decimal.Decimal `json:"amount_reporting"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	RateApproximate bool            `json:"rate_approximate"`
	Kind            string          `json:"kind"`
	Category        string          `json:"category,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	TaxTotal        decimal.Decimal `json:"tax_total"`
	LinkedToID      string          `json:"linked_to_id,omitempty"`
	HasReceiptImage bool            `json:"has_receipt_image"`
	HasBankLink     bool            `json:"has_bank_link"`
	Fingerprint     string          `json:"fingerprint"`
}

func toRecordJSON(r model.CommittedRecord) recordJSON {
	return recordJSON{
		ID:              r.ID,
		Book:            string(r.Book),
		Source:          string(r.Source),
		Date:            r.Date.Format(time.DateOnly),
		Vendor:          r.Vendor,
		Description:     r.Description,
		Amount:          r.Amount,
		Currency:        r.Currency,
		AmountReporting: r.AmountReporting,
		ExchangeRate:    r.ExchangeRate,
		RateApproximate: r.RateApproximate,
		Kind:            string(r.Kind),
		Category:        r.Category,
		Reference:       r.Reference,
		TaxTotal:        r.Tax.Total(),
		LinkedToID:      r.LinkedToID,
		HasReceiptImage: r.HasReceiptImage,
		HasBankLink:     r.HasBankLink,
		Fingerprint:     r.ImportFingerprint,
	}
}

type linkJSON struct {
	Status        string   `json:"status"`
	RecordID      string   `json:"record_id"`
	CounterpartID string   `json:"counterpart_id,omitempty"`
	CandidateIDs  []string `json:"candidate_ids,omitempty"`
}

type rateJSON struct {
	Currency    string          `json:"currency"`
	Date        string          `json:"date"`
	ObservedOn  string          `json:"observed_on,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	Source      string          `json:"source"`
	Approximate bool            `json:"approximate"`
}

func toRateJSON(r rates.Rate) rateJSON {
	out := rateJSON{
		Currency:    r.Currency,
		Date:        r.Date.Format(time.DateOnly),
		Rate:        r.Value,
		Source:      string(r.Source),
		Approximate: r.Approximate,
	}
	if !r.ObservedOn.IsZero() {
		out.ObservedOn = r.ObservedOn.Format(time.DateOnly)
	}
	return out
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
