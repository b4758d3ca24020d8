package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/config"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/gitops"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/importer"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/importlog"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/logger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/reconcile"
)

// ImportOptions controls a single file import.
type ImportOptions struct {
	// Format names the parser. Empty picks one by file extension.
	Format string
	// Label overrides the source label recorded on records and the ledger.
	Label string
	Force bool
	// Selection overrides the configured factoring selection when non-nil.
	Selection []model.Kind
}

// ImportReport is a finished file import.
type ImportReport struct {
	RunID      string
	Label      string
	Result     *reconcile.Result
	CommitHash string
}

// ImportFile parses data and runs it through reconciliation. The run is
// appended to the import log and, when configured, committed to git.
func (w *Workspace) ImportFile(ctx context.Context, name string, data []byte, opts ImportOptions) (*ImportReport, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With().Str("run", runID).Str("file", name).Logger()
	ctx = logger.WithContext(ctx, log)

	p := w.Parsers.ForFile(name)
	if opts.Format != "" {
		p = w.Parsers.Get(opts.Format)
	}
	if p == nil {
		return nil, fmt.Errorf("no parser for %s (formats: %v)", name, w.Parsers.Formats())
	}

	doc, err := p.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, reconcile.NewParseFailure(name, err)
	}

	label := opts.Label
	if label == "" {
		label = fmt.Sprintf("%s:%s", p.Format(), filepath.Base(name))
	}
	selection := opts.Selection
	if selection == nil {
		selection = w.factoringSelection()
	}

	fileFP := fingerprint.File(doc.FileSource, data)
	res, err := w.Imports.RunImport(ctx, reconcile.Batch{
		SourceLabel:     label,
		FileFingerprint: fileFP,
		Candidates:      doc.Candidates,
		Selection:       selection,
	}, reconcile.Options{ForceReimport: opts.Force})
	if err != nil {
		return nil, err
	}

	report := &ImportReport{RunID: runID, Label: label, Result: res}
	if res.Created() > 0 || res.Replaced > 0 {
		report.CommitHash = w.commit(ctx, "import: "+label)
	}

	entry := importlog.Entry{
		Timestamp:         time.Now(),
		RunID:             runID,
		Source:            label,
		FileFingerprint:   fileFP,
		ExpensesCreated:   res.ExpensesCreated,
		RevenuesCreated:   res.RevenuesCreated,
		Skipped:           res.Skipped,
		Replaced:          res.Replaced,
		DuplicatesSkipped: res.DuplicatesSkipped,
		Failures:          len(res.Failures),
		Forced:            opts.Force,
		CommitHash:        report.CommitHash,
	}
	if err := importlog.Append(w.Root, entry); err != nil {
		log.Warn().Err(err).Msg("could not write import log")
	}
	return report, nil
}

func (w *Workspace) factoringSelection() []model.Kind {
	out := make([]model.Kind, 0, len(w.Config.Import.FactoringSelection))
	for _, k := range w.Config.Import.FactoringSelection {
		out = append(out, model.Kind(k))
	}
	return out
}

// commit records file-store changes in git. Failures are logged, never
// returned: the import itself already succeeded.
func (w *Workspace) commit(ctx context.Context, message string) string {
	gc := w.Config.Git
	if !gc.AutoCommit || w.Config.Storage.Driver != config.DriverFile || !gitops.IsRepo(w.Root) {
		return ""
	}
	repo := gitops.Repo{Dir: w.Root, AuthorName: gc.AuthorName, AuthorEmail: gc.AuthorEmail}
	hash, err := repo.Commit(ctx, message, "records", "ledger")
	if err != nil {
		if !errors.Is(err, gitops.ErrNothingToCommit) {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("git commit failed")
		}
		return ""
	}
	return hash
}

// ImportPending imports every file waiting in <root>/import/ and moves the
// ones that were read successfully to import/processed/.
func (w *Workspace) ImportPending(ctx context.Context, opts ImportOptions) ([]*ImportReport, error) {
	files, err := importer.Scan(w.Root, w.Parsers)
	if err != nil {
		return nil, err
	}
	var (
		reports []*ImportReport
		errs    []error
	)
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", f.Name, err))
			continue
		}
		rep, err := w.ImportFile(ctx, f.Name, data, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		reports = append(reports, rep)
		if err := importer.MarkProcessed(w.Root, f.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}
