// Package reconcile turns batches of parsed candidates into committed
// records, skipping anything the duplicate ledger has already seen.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/id"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/ledger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/linker"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/logger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/rates"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

// DefaultWorkers is the number of records committed concurrently.
const DefaultWorkers = 4

// Normalizer converts an amount into the reporting currency.
type Normalizer interface {
	Normalize(ctx context.Context, amount decimal.Decimal, currency string, date time.Time) (rates.Normalized, error)
}

// Linker cross-references freshly committed records.
type Linker interface {
	Link(ctx context.Context, rec model.CommittedRecord) (linker.Outcome, error)
	Unlink(ctx context.Context, rec model.CommittedRecord) error
}

// Batch is one upload's worth of candidates.
type Batch struct {
	SourceLabel     string
	FileFingerprint string // empty when the candidates did not come from a file
	Candidates      []model.Candidate
	// Selection lists the non-fee factoring kinds the user chose to import.
	Selection []model.Kind
}

// Options controls a run.
type Options struct {
	// ForceReimport replaces records that were imported before instead of
	// skipping them.
	ForceReimport bool
}

// Config wires optional collaborators.
type Config struct {
	Workers int
	Linker  Linker // nil disables linking
}

// Service runs imports.
type Service struct {
	records    store.RecordStore
	ledger     *ledger.Service
	normalizer Normalizer
	linker     Linker
	workers    int

	now   func() time.Time
	newID func(model.Book, time.Time) string
}

// NewService creates the import service.
func NewService(records store.RecordStore, led *ledger.Service, norm Normalizer, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Service{
		records:    records,
		ledger:     led,
		normalizer: norm,
		linker:     cfg.Linker,
		workers:    cfg.Workers,
		now:        time.Now,
		newID:      id.NewRecordID,
	}
}

// item is a candidate on its way through a run.
type item struct {
	index      int
	candidate  model.Candidate
	fp         string
	book       model.Book
	normalized rates.Normalized
	// replaces is the record this item supersedes under ForceReimport.
	replaces *model.CommittedRecord
	// stored is set once the item's own record has been written.
	stored bool
}

// RunImport imports a batch. It returns an error only when the run was
// rejected or aborted before any commit; per-record problems are reported in
// the Result.
func (s *Service) RunImport(ctx context.Context, b Batch, opts Options) (*Result, error) {
	res := &Result{State: StateUploaded}
	log := logger.FromContext(ctx).With().
		Str("source", b.SourceLabel).
		Bool("force", opts.ForceReimport).
		Logger()
	ctx = logger.WithContext(ctx, log)

	abort := func(err error) (*Result, error) {
		res.State = StateAborted
		log.Warn().Err(err).Msg("import aborted")
		return res, err
	}
	advance := func(st State) {
		res.State = st
		log.Debug().Str("state", string(st)).Msg("import state")
	}

	if problems := model.Validate(b.Candidates); len(problems) > 0 {
		return abort(&ParseFailure{Source: b.SourceLabel, Problems: problems})
	}

	entry, err := s.ledger.HasFile(ctx, b.FileFingerprint)
	if err != nil {
		return abort(err)
	}
	if entry != nil {
		res.FileSeenBefore = true
		log.Warn().
			Str("first_imported", entry.ImportedAt.Format(time.RFC3339)).
			Str("first_source", entry.SourceLabel).
			Msg("file was imported before, checking records individually")
	}
	advance(StateFileChecked)

	items := s.classify(b, res)
	advance(StateRecordsClassified)

	fps := make([]string, len(items))
	for i, it := range items {
		fps[i] = it.fp
	}
	existing, err := s.ledger.HasRecords(ctx, fps)
	if err != nil {
		return abort(err)
	}

	var pending, already []*item
	for _, it := range items {
		if _, ok := existing[it.fp]; ok {
			already = append(already, it)
		} else {
			pending = append(pending, it)
		}
	}
	if !opts.ForceReimport {
		res.DuplicatesSkipped += len(already)
		already = nil
	}
	advance(StateRecordsFiltered)

	if opts.ForceReimport {
		if err := s.findReplacements(ctx, b.SourceLabel, already, pending, res); err != nil {
			return abort(err)
		}
		pending = append(already, pending...)
		slices.SortFunc(pending, func(a, b *item) int { return a.index - b.index })
	}

	for _, it := range pending {
		f := it.candidate.Fields()
		n, err := s.normalizer.Normalize(ctx, f.Amount, f.Currency, f.Date)
		if err != nil {
			return abort(fmt.Errorf("normalizing candidate %d: %w", it.index, err))
		}
		it.normalized = n
	}
	advance(StateNormalized)

	if err := ctx.Err(); err != nil {
		return abort(errors.Join(ErrAborted, err))
	}

	// Past this point the run finishes even if the caller goes away.
	commitCtx := context.WithoutCancel(ctx)

	created := s.commit(commitCtx, b, pending, res, log)
	for _, it := range pending {
		if it.replaces != nil && it.stored {
			s.replace(commitCtx, it, res, log)
		}
	}
	advance(StateCommitted)

	if b.FileFingerprint != "" {
		err := s.ledger.CommitFile(commitCtx, b.FileFingerprint, ledger.FileMeta{
			SourceLabel: b.SourceLabel,
			RecordCount: len(created),
		})
		if err != nil {
			res.fail(Failure{Index: -1, Fingerprint: b.FileFingerprint, Err: &LedgerInconsistency{Fingerprint: b.FileFingerprint, Err: err}})
			log.Error().Err(err).Msg("could not record file in ledger")
		}
	}
	advance(StateLedgerUpdated)

	s.link(commitCtx, created, res, log)

	log.Info().
		Int("expenses_created", res.ExpensesCreated).
		Int("revenues_created", res.RevenuesCreated).
		Int("skipped", res.Skipped).
		Int("replaced", res.Replaced).
		Int("duplicates_skipped", res.DuplicatesSkipped).
		Int("failures", len(res.Failures)).
		Msg("import finished")
	return res, nil
}

// classify fingerprints candidates, drops the ones that never become records
// and collapses repeats within the batch.
func (s *Service) classify(b Batch, res *Result) []*item {
	seen := make(map[string]struct{}, len(b.Candidates))
	var items []*item
	for i, c := range b.Candidates {
		book, ok := bookFor(c, b.Selection)
		if !ok {
			res.Skipped++
			continue
		}
		fp := fingerprint.Record(c)
		if _, dup := seen[fp]; dup {
			res.DuplicatesSkipped++
			continue
		}
		seen[fp] = struct{}{}
		items = append(items, &item{index: i, candidate: c, fp: fp, book: book})
	}
	return items
}

// bookFor decides which book a candidate lands in. ok is false for money
// movement that must never become a record.
func bookFor(c model.Candidate, selection []model.Kind) (model.Book, bool) {
	switch v := c.(type) {
	case model.BankCandidate:
		switch v.Kind {
		case model.KindIncome:
			return model.BookRevenue, true
		case model.KindExpense:
			return model.BookExpense, true
		default:
			return "", false
		}
	case model.FactoringCandidate:
		if v.Kind != model.KindFee && !slices.Contains(selection, v.Kind) {
			return "", false
		}
		switch v.Kind {
		case model.KindPurchase, model.KindCollection:
			return model.BookRevenue, true
		default:
			return model.BookExpense, true
		}
	case model.ReceiptCandidate:
		if v.Kind == model.KindIncome {
			return model.BookRevenue, true
		}
		return model.BookExpense, true
	default:
		return "", false
	}
}

// findReplacements locates the records that forced items supersede. Items
// already in the ledger are found by fingerprint. New items are matched on
// everything but the amount, so a corrected amount replaces the old record
// instead of sitting next to it. That match only holds within the same source
// label: a lookalike from another source is a separate purchase as far as the
// run can tell, so it is kept and reported.
func (s *Service) findReplacements(ctx context.Context, label string, already, pending []*item, res *Result) error {
	claimed := make(map[string]struct{})
	batchFPs := make(map[string]struct{}, len(already)+len(pending))
	for _, it := range already {
		batchFPs[it.fp] = struct{}{}
	}
	for _, it := range pending {
		batchFPs[it.fp] = struct{}{}
	}

	for _, it := range already {
		rec, err := s.records.FindByImportFingerprint(ctx, it.fp)
		if errors.Is(err, store.ErrNotFound) {
			// Ledger knows the fingerprint but the record is gone. The new
			// record will take its place; the stale entry is forgotten.
			it.replaces = &model.CommittedRecord{ImportFingerprint: it.fp}
			continue
		}
		if err != nil {
			return fmt.Errorf("finding record for %s: %w", it.fp, err)
		}
		claimed[rec.ID] = struct{}{}
		it.replaces = &rec
	}

	for _, it := range pending {
		f := it.candidate.Fields()
		from, to := store.SameDayRange(f.Date, 0)
		recs, err := s.records.ListByDateRange(ctx, from, to)
		if err != nil {
			return fmt.Errorf("finding records on %s: %w", f.Date.Format("2006-01-02"), err)
		}
		want := fingerprint.Identity(it.candidate)
		var matches, elsewhere []model.CommittedRecord
		for _, r := range recs {
			if _, ok := claimed[r.ID]; ok {
				continue
			}
			if _, ok := batchFPs[r.ImportFingerprint]; ok {
				continue
			}
			if fingerprint.RecordIdentity(r) != want {
				continue
			}
			if r.SourceLabel == label {
				matches = append(matches, r)
			} else {
				elsewhere = append(elsewhere, r)
			}
		}
		if len(matches) == 1 {
			claimed[matches[0].ID] = struct{}{}
			it.replaces = &matches[0]
			continue
		}
		for _, r := range append(matches, elsewhere...) {
			res.warn(&PossibleDuplicate{Index: it.index, RecordID: r.ID, SourceLabel: r.SourceLabel})
		}
	}
	return nil
}

// replace deletes the record an item supersedes and forgets its fingerprint
// unless the new record carries the same one. It runs once the new record is
// stored, so a failure here leaves both records rather than neither.
func (s *Service) replace(ctx context.Context, it *item, res *Result, log zerolog.Logger) {
	old := it.replaces
	if old.ID != "" {
		if s.linker != nil {
			if err := s.linker.Unlink(ctx, *old); err != nil {
				log.Warn().Err(err).Str("record", old.ID).Msg("could not clear counterpart link")
			}
		}
		if err := s.records.DeleteRecord(ctx, old.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			res.fail(Failure{Index: it.index, Fingerprint: old.ImportFingerprint, Err: &PersistenceFailure{Fingerprint: old.ImportFingerprint, Err: err}})
			log.Error().Err(err).Str("record", old.ID).Msg("could not delete record being replaced")
			return
		}
	}
	if old.ImportFingerprint != it.fp {
		if err := s.ledger.Forget(ctx, old.ImportFingerprint); err != nil {
			res.fail(Failure{Index: it.index, Fingerprint: old.ImportFingerprint, Err: &LedgerInconsistency{Fingerprint: old.ImportFingerprint, RecordID: old.ID, Err: err}})
			log.Error().Err(err).Str("fingerprint", old.ImportFingerprint).Msg("could not forget replaced fingerprint")
		}
	}
	if old.ID != "" {
		res.Replaced++
		log.Info().Str("record", old.ID).Str("fingerprint", old.ImportFingerprint).Msg("replaced record")
	}
}

// commit writes each record and then its fingerprint. A failure on one record
// never stops the others.
func (s *Service) commit(ctx context.Context, b Batch, items []*item, res *Result, log zerolog.Logger) []model.CommittedRecord {
	created := make([]*model.CommittedRecord, len(items))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			rec := s.buildRecord(b, it)
			if err := s.records.CreateRecord(ctx, rec); err != nil {
				res.fail(Failure{Index: it.index, Fingerprint: it.fp, Err: &PersistenceFailure{Fingerprint: it.fp, Err: err}})
				log.Error().Err(err).Int("index", it.index).Str("fingerprint", it.fp).Msg("could not save record")
				return nil
			}
			if err := s.ledger.CommitRecords(ctx, []string{it.fp}, b.SourceLabel); err != nil {
				res.fail(Failure{Index: it.index, Fingerprint: it.fp, Err: &LedgerInconsistency{Fingerprint: it.fp, RecordID: rec.ID, Err: err}})
				log.Error().Err(err).Str("record", rec.ID).Msg("record saved but fingerprint not recorded")
			}
			created[i] = &rec
			it.stored = true
			return nil
		})
	}
	_ = g.Wait()

	var out []model.CommittedRecord
	for i, rec := range created {
		if rec == nil {
			continue
		}
		out = append(out, *rec)
		res.CreatedIDs = append(res.CreatedIDs, rec.ID)
		switch rec.Book {
		case model.BookRevenue:
			res.RevenuesCreated++
		default:
			res.ExpensesCreated++
		}
		if rec.RateApproximate {
			res.ApproximateRates++
			n := items[i].normalized.Rate
			res.warn(&RateUnavailable{Currency: n.Currency, Date: n.Date, Err: n.Cause})
		}
	}
	return out
}

func (s *Service) buildRecord(b Batch, it *item) model.CommittedRecord {
	f := it.candidate.Fields()
	rec := model.CommittedRecord{
		ID:                s.newID(it.book, f.Date),
		Book:              it.book,
		Source:            f.Source,
		Date:              f.Date,
		Description:       f.Description,
		Amount:            f.Amount,
		Currency:          strings.ToUpper(f.Currency),
		Kind:              f.Kind,
		Category:          f.Category,
		Reference:         f.Reference,
		AmountReporting:   it.normalized.Amount,
		ExchangeRate:      it.normalized.Rate.Value,
		RateApproximate:   it.normalized.Rate.Approximate,
		ImportFingerprint: it.fp,
		SourceLabel:       b.SourceLabel,
		CreatedAt:         s.now().UTC(),
	}
	if r, ok := it.candidate.(model.ReceiptCandidate); ok {
		rec.Vendor = r.Vendor
		rec.Tax = r.Tax
		rec.HasReceiptImage = r.HasImage
	}
	return rec
}

// link hands new records to the linker. Linking is best effort.
func (s *Service) link(ctx context.Context, created []model.CommittedRecord, res *Result, log zerolog.Logger) {
	if s.linker == nil {
		return
	}
	for _, rec := range created {
		if rec.Source == model.SourceFactoring {
			continue
		}
		// Pick up link fields written by an earlier iteration.
		current, err := s.records.GetRecord(ctx, rec.ID)
		if err != nil {
			log.Warn().Err(err).Str("record", rec.ID).Msg("could not reload record for linking")
			continue
		}
		out, err := s.linker.Link(ctx, current)
		if err != nil {
			log.Warn().Err(err).Str("record", rec.ID).Msg("linking failed")
			continue
		}
		switch out.Status {
		case linker.StatusLinked:
			if !current.IsLinked() {
				res.Linked++
			}
		case linker.StatusAmbiguous:
			res.Ambiguous++
		}
	}
}
