package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// ErrAborted is returned when a run is cancelled before anything was
// committed.
var ErrAborted = errors.New("import aborted before commit")

// ParseFailure means the upstream parser output could not be imported. The
// whole batch is rejected with no side effects.
type ParseFailure struct {
	Source   string
	Problems []model.ValidationError
	Err      error
}

// NewParseFailure wraps a parser error for source.
func NewParseFailure(source string, err error) *ParseFailure {
	return &ParseFailure{Source: source, Err: err}
}

func (e *ParseFailure) Error() string {
	if len(e.Problems) > 0 {
		msgs := make([]string, len(e.Problems))
		for i, p := range e.Problems {
			msgs[i] = p.Error()
		}
		return fmt.Sprintf("could not read %s: %s", e.Source, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("could not read %s: %v", e.Source, e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// RateUnavailable means no feed step produced a rate and the fixed fallback
// was used. It is a warning: the record is still committed, flagged as
// approximate.
type RateUnavailable struct {
	Currency string
	Date     time.Time
	Err      error
}

func (e *RateUnavailable) Error() string {
	return fmt.Sprintf("no %s rate for %s, used fallback: %v", e.Currency, e.Date.Format("2006-01-02"), e.Err)
}

func (e *RateUnavailable) Unwrap() error { return e.Err }

// PersistenceFailure means one record could not be stored. The rest of the
// batch carries on.
type PersistenceFailure struct {
	Fingerprint string
	Err         error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("saving record %s: %v", e.Fingerprint, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// LedgerInconsistency means a record and its ledger entry disagree: the
// record was stored but its fingerprint was not, or the ledger names a record
// that no longer exists. The record may be imported again by a later run.
type LedgerInconsistency struct {
	Fingerprint string
	RecordID    string
	Err         error
}

func (e *LedgerInconsistency) Error() string {
	return fmt.Sprintf("ledger out of step for %s (record %q): %v", e.Fingerprint, e.RecordID, e.Err)
}

func (e *LedgerInconsistency) Unwrap() error { return e.Err }

// PossibleDuplicate means a forced candidate looks like a record that was
// already committed but could not safely replace it: the record came from
// another source, or several records matched. Both are kept.
type PossibleDuplicate struct {
	Index       int
	RecordID    string
	SourceLabel string
}

func (e *PossibleDuplicate) Error() string {
	return fmt.Sprintf("candidate %d resembles record %s from %q, kept both", e.Index, e.RecordID, e.SourceLabel)
}
