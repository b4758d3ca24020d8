package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/ledger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/linker"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/rates"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store/memstore"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// staticFeed answers every query with one USD rate, or fails.
type staticFeed struct {
	rate string
	err  error
}

func (f staticFeed) Observations(_ context.Context, _ string, start, _ time.Time) ([]rates.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []rates.Observation{{Date: start, Rate: dec(f.rate)}}, nil
}

func (f staticFeed) Latest(_ context.Context, _ string) (rates.Observation, error) {
	if f.err != nil {
		return rates.Observation{}, f.err
	}
	return rates.Observation{Date: date(2025, 1, 1), Rate: dec(f.rate)}, nil
}

// flakyStore fails CreateRecord for records whose description contains fail.
type flakyStore struct {
	*memstore.Store
	fail    string
	creates atomic.Int32
}

func (s *flakyStore) CreateRecord(ctx context.Context, rec model.CommittedRecord) error {
	s.creates.Add(1)
	if s.fail != "" && strings.Contains(rec.Description, s.fail) {
		return errors.New("disk full")
	}
	return s.Store.CreateRecord(ctx, rec)
}

type harness struct {
	store  *flakyStore
	ledger *ledger.Service
	svc    *Service
}

func newHarness(t *testing.T, feed rates.Feed) *harness {
	t.Helper()
	if feed == nil {
		feed = staticFeed{rate: "1.37"}
	}
	st := &flakyStore{Store: memstore.New()}
	led := ledger.NewService(st, 0)
	norm := rates.NewNormalizer(rates.NewResolver(feed, rates.DefaultOptions()))
	svc := NewService(st, led, norm, Config{Linker: linker.New(st, linker.DefaultOptions())})
	var n atomic.Int32
	svc.newID = func(b model.Book, d time.Time) string {
		prefix := "exp"
		if b == model.BookRevenue {
			prefix = "rev"
		}
		return fmt.Sprintf("%s-%s-%08d", prefix, d.Format("200601"), n.Add(1))
	}
	return &harness{store: st, ledger: led, svc: svc}
}

func shellBatch() Batch {
	return Batch{
		SourceLabel:     "bank:chase.csv",
		FileFingerprint: fingerprint.File(fingerprint.FileBankCSV, []byte("shell statement")),
		Candidates: []model.Candidate{
			model.BankCandidate{Date: date(2025, 3, 3), Description: "SHELL C01234", Amount: dec("-50.00"), Currency: "CAD", Kind: model.KindExpense},
			model.BankCandidate{Date: date(2025, 3, 5), Description: "SHELL C09999", Amount: dec("-75.25"), Currency: "CAD", Kind: model.KindExpense},
		},
	}
}

func TestRunImport_ShellStatementThenIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	b := shellBatch()

	res, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExpensesCreated)
	assert.Equal(t, 0, res.RevenuesCreated)
	assert.Equal(t, 0, res.DuplicatesSkipped)
	assert.False(t, res.FileSeenBefore)
	assert.Equal(t, StateLedgerUpdated, res.State)
	assert.Len(t, res.CreatedIDs, 2)

	entry, err := h.ledger.HasFile(ctx, b.FileFingerprint)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.RecordCount)

	res, err = h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created())
	assert.Equal(t, 2, res.DuplicatesSkipped)
	assert.True(t, res.FileSeenBefore)
	assert.True(t, res.NeedsForceOffer())

	recs, err := h.store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRunImport_SameRecordsInDifferentFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	b := shellBatch()
	_, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)

	b.FileFingerprint = fingerprint.File(fingerprint.FileBankXLSX, []byte("same rows, other file"))
	res, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)
	assert.False(t, res.FileSeenBefore)
	assert.Equal(t, 0, res.Created())
	assert.Equal(t, 2, res.DuplicatesSkipped)
}

func TestRunImport_DuplicatesWithinBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := model.BankCandidate{Date: date(2025, 3, 3), Description: "TIM HORTONS", Amount: dec("-4.50"), Currency: "CAD", Kind: model.KindExpense}

	res, err := h.svc.RunImport(ctx, Batch{SourceLabel: "bank:x", Candidates: []model.Candidate{c, c, c}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpensesCreated)
	assert.Equal(t, 2, res.DuplicatesSkipped)
}

func TestRunImport_ForceReplacesChangedAmount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	b := shellBatch()
	_, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)

	corrected := shellBatch()
	first := corrected.Candidates[0].(model.BankCandidate)
	first.Amount = dec("-55.00")
	corrected.Candidates[0] = first

	res, err := h.svc.RunImport(ctx, corrected, Options{ForceReimport: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replaced)
	assert.Equal(t, 2, res.ExpensesCreated)
	assert.Equal(t, 0, res.DuplicatesSkipped)

	recs, err := h.store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	var amounts []string
	for _, r := range recs {
		amounts = append(amounts, r.Amount.StringFixed(2))
	}
	assert.ElementsMatch(t, []string{"-55.00", "-75.25"}, amounts)

	has, err := h.ledger.HasRecords(ctx, []string{fingerprint.Record(b.Candidates[0])})
	require.NoError(t, err)
	assert.Empty(t, has, "the old fingerprint is forgotten")
}

func TestRunImport_ForceWithSingleMutation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := model.BankCandidate{Date: date(2025, 3, 3), Description: "SHELL", Amount: dec("-50.00"), Currency: "CAD", Kind: model.KindExpense}
	_, err := h.svc.RunImport(ctx, Batch{SourceLabel: "bank:a", Candidates: []model.Candidate{c}}, Options{})
	require.NoError(t, err)

	c.Amount = dec("-51.00")
	res, err := h.svc.RunImport(ctx, Batch{SourceLabel: "bank:a", Candidates: []model.Candidate{c}}, Options{ForceReimport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replaced)
	assert.Equal(t, 1, res.ExpensesCreated)

	recs, err := h.store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "-51.00", recs[0].Amount.StringFixed(2))
}

func TestRunImport_ForceKeepsLookalikeFromOtherSource(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	coffee := model.ReceiptCandidate{Date: date(2025, 3, 3), Vendor: "Tim Hortons", Amount: dec("4.50"), Currency: "CAD", Kind: model.KindExpense}
	_, err := h.svc.RunImport(ctx, Batch{SourceLabel: "receipt:morning.jpg", Candidates: []model.Candidate{coffee}}, Options{})
	require.NoError(t, err)

	lunch := coffee
	lunch.Amount = dec("7.25")
	res, err := h.svc.RunImport(ctx, Batch{SourceLabel: "receipt:afternoon.jpg", Candidates: []model.Candidate{lunch}}, Options{ForceReimport: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Replaced)
	assert.Equal(t, 1, res.ExpensesCreated)

	var dup *PossibleDuplicate
	require.Len(t, res.Warnings, 1)
	require.ErrorAs(t, res.Warnings[0], &dup)
	assert.Equal(t, "receipt:morning.jpg", dup.SourceLabel)

	recs, err := h.store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	var amounts []string
	for _, r := range recs {
		amounts = append(amounts, r.Amount.StringFixed(2))
	}
	assert.ElementsMatch(t, []string{"4.50", "7.25"}, amounts)
}

func TestRunImport_ForceKeepsOldRecordWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := model.BankCandidate{Date: date(2025, 3, 3), Description: "SHELL", Amount: dec("-50.00"), Currency: "CAD", Kind: model.KindExpense}
	_, err := h.svc.RunImport(ctx, Batch{SourceLabel: "bank:a", Candidates: []model.Candidate{c}}, Options{})
	require.NoError(t, err)
	oldFP := fingerprint.Record(c)

	c.Amount = dec("-51.00")
	batch := Batch{SourceLabel: "bank:a", Candidates: []model.Candidate{c}}
	h.store.fail = "SHELL"
	res, err := h.svc.RunImport(ctx, batch, Options{ForceReimport: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Replaced)
	assert.Equal(t, 0, res.ExpensesCreated)
	require.Len(t, res.Failures, 1)

	recs, err := h.store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "-50.00", recs[0].Amount.StringFixed(2))
	has, err := h.ledger.HasRecords(ctx, []string{oldFP})
	require.NoError(t, err)
	assert.Contains(t, has, oldFP)

	h.store.fail = ""
	res, err = h.svc.RunImport(ctx, batch, Options{ForceReimport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replaced)
	recs, err = h.store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "-51.00", recs[0].Amount.StringFixed(2))
}

func TestRunImport_SkipsTransfersAndUnselectedFactoring(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	b := Batch{
		SourceLabel: "mixed",
		Candidates: []model.Candidate{
			model.BankCandidate{Date: date(2025, 3, 3), Description: "ONLINE TRANSFER", Amount: dec("-500.00"), Currency: "CAD", Kind: model.KindTransfer},
			model.BankCandidate{Date: date(2025, 3, 3), Description: "OWNER DRAW", Amount: dec("-1000.00"), Currency: "CAD", Kind: model.KindOwnerDraw},
			model.BankCandidate{Date: date(2025, 3, 4), Description: "ACME INVOICE", Amount: dec("3500.00"), Currency: "CAD", Kind: model.KindIncome},
			model.FactoringCandidate{Date: date(2025, 3, 5), Description: "Factoring fee", Amount: dec("-35.00"), Currency: "CAD", Kind: model.KindFee, Reference: "INV-1"},
			model.FactoringCandidate{Date: date(2025, 3, 5), Description: "Advance", Amount: dec("3000.00"), Currency: "CAD", Kind: model.KindPurchase, Reference: "INV-1"},
			model.FactoringCandidate{Date: date(2025, 3, 6), Description: "Collected", Amount: dec("500.00"), Currency: "CAD", Kind: model.KindCollection, Reference: "INV-1"},
		},
		Selection: []model.Kind{model.KindPurchase},
	}

	res, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, res.ExpensesCreated, "the fee")
	assert.Equal(t, 2, res.RevenuesCreated, "bank income and the selected purchase")

	recs, err := h.store.ListRecords(ctx)
	require.NoError(t, err)
	for _, r := range recs {
		assert.NotEqual(t, model.KindTransfer, r.Kind)
		assert.NotEqual(t, model.KindOwnerDraw, r.Kind)
		assert.NotEqual(t, model.KindCollection, r.Kind)
	}
}

func TestRunImport_PersistenceFailureContinues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.store.fail = "C09999"

	res, err := h.svc.RunImport(ctx, shellBatch(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpensesCreated)
	require.Len(t, res.Failures, 1)
	var pf *PersistenceFailure
	require.ErrorAs(t, res.Failures[0].Err, &pf)
	assert.Equal(t, 1, res.Failures[0].Index)

	// The failed record was never written to the ledger, so a retry picks it up.
	h.store.fail = ""
	res, err = h.svc.RunImport(ctx, shellBatch(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpensesCreated)
	assert.Equal(t, 1, res.DuplicatesSkipped)
}

func TestRunImport_InvalidBatchRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	b := shellBatch()
	b.Candidates = append(b.Candidates, model.BankCandidate{Description: "no date", Amount: dec("-1"), Currency: "CAD", Kind: model.KindExpense})

	res, err := h.svc.RunImport(ctx, b, Options{})
	var pf *ParseFailure
	require.ErrorAs(t, err, &pf)
	assert.Len(t, pf.Problems, 1)
	assert.Equal(t, StateAborted, res.State)
	assert.Zero(t, h.store.creates.Load())

	entries, err := h.ledger.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunImport_CancelledBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t, nil)

	res, err := h.svc.RunImport(ctx, shellBatch(), Options{})
	require.Error(t, err)
	assert.Equal(t, StateAborted, res.State)
	assert.Zero(t, h.store.creates.Load())

	entries, err := h.ledger.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunImport_NormalizesForeignCurrency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticFeed{rate: "1.37"})
	b := Batch{SourceLabel: "bank:usd", Candidates: []model.Candidate{
		model.BankCandidate{Date: date(2025, 1, 20), Description: "AWS", Amount: dec("-123.45"), Currency: "usd", Kind: model.KindExpense},
	}}

	res, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)
	require.Len(t, res.CreatedIDs, 1)

	rec, err := h.store.GetRecord(ctx, res.CreatedIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, "-123.45", rec.Amount.StringFixed(2))
	assert.Equal(t, "-169.13", rec.AmountReporting.StringFixed(2))
	assert.Equal(t, "1.37", rec.ExchangeRate.String())
	assert.False(t, rec.RateApproximate)
}

func TestRunImport_ApproximateRateIsAWarning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticFeed{err: errors.New("connection refused")})
	b := Batch{SourceLabel: "bank:usd", Candidates: []model.Candidate{
		model.BankCandidate{Date: date(2025, 1, 20), Description: "AWS", Amount: dec("-10.00"), Currency: "USD", Kind: model.KindExpense},
	}}

	res, err := h.svc.RunImport(ctx, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpensesCreated)
	assert.Equal(t, 1, res.ApproximateRates)
	require.Len(t, res.Warnings, 1)
	var ru *RateUnavailable
	require.ErrorAs(t, res.Warnings[0], &ru)
	assert.Equal(t, "USD", ru.Currency)

	rec, err := h.store.GetRecord(ctx, res.CreatedIDs[0])
	require.NoError(t, err)
	assert.True(t, rec.RateApproximate)
	assert.Equal(t, "-14.00", rec.AmountReporting.StringFixed(2))
}

func TestRunImport_LinksReceiptToBank(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	_, err := h.svc.RunImport(ctx, shellBatch(), Options{})
	require.NoError(t, err)

	receipts := Batch{SourceLabel: "receipt:shell.jpg", Candidates: []model.Candidate{
		model.ReceiptCandidate{
			Date: date(2025, 3, 4), Vendor: "Shell Canada", Amount: dec("50.00"), Currency: "CAD",
			Kind: model.KindExpense, Tax: model.TaxBreakdown{GST: dec("2.38")}, HasImage: true,
		},
	}}
	res, err := h.svc.RunImport(ctx, receipts, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Linked)

	rec, err := h.store.GetRecord(ctx, res.CreatedIDs[0])
	require.NoError(t, err)
	require.True(t, rec.IsLinked())
	bank, err := h.store.GetRecord(ctx, rec.LinkedToID)
	require.NoError(t, err)
	assert.Equal(t, "SHELL C01234", bank.Description)
	assert.Equal(t, "2.38", bank.Tax.GST.StringFixed(2))
	assert.True(t, bank.HasReceiptImage)
}

func TestBookFor(t *testing.T) {
	tests := []struct {
		name string
		c    model.Candidate
		sel  []model.Kind
		want model.Book
		ok   bool
	}{
		{"bank expense", model.BankCandidate{Kind: model.KindExpense}, nil, model.BookExpense, true},
		{"bank income", model.BankCandidate{Kind: model.KindIncome}, nil, model.BookRevenue, true},
		{"bank transfer", model.BankCandidate{Kind: model.KindTransfer}, nil, "", false},
		{"fee without selection", model.FactoringCandidate{Kind: model.KindFee}, nil, model.BookExpense, true},
		{"purchase without selection", model.FactoringCandidate{Kind: model.KindPurchase}, nil, "", false},
		{"recourse selected", model.FactoringCandidate{Kind: model.KindRecourse}, []model.Kind{model.KindRecourse}, model.BookExpense, true},
		{"collection selected", model.FactoringCandidate{Kind: model.KindCollection}, []model.Kind{model.KindCollection}, model.BookRevenue, true},
		{"receipt", model.ReceiptCandidate{Kind: model.KindExpense}, nil, model.BookExpense, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bookFor(tt.c, tt.sel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
