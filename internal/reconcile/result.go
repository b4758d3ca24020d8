package reconcile

import "sync"

// State is the stage an import run has reached.
type State string

const (
	StateUploaded          State = "uploaded"
	StateFileChecked       State = "file_checked"
	StateRecordsClassified State = "records_classified"
	StateRecordsFiltered   State = "records_filtered"
	StateNormalized        State = "normalized"
	StateCommitted         State = "committed"
	StateLedgerUpdated     State = "ledger_updated"
	StateAborted           State = "aborted"
)

// Failure is a per-record problem that did not stop the batch.
type Failure struct {
	Index       int // position in the submitted batch, -1 for file-level
	Fingerprint string
	Err         error
}

// Result summarizes an import run.
type Result struct {
	ExpensesCreated   int
	RevenuesCreated   int
	Skipped           int
	Replaced          int
	DuplicatesSkipped int

	FileSeenBefore   bool
	ApproximateRates int
	Linked           int
	Ambiguous        int
	CreatedIDs       []string
	Failures         []Failure
	Warnings         []error

	State State

	mu sync.Mutex
}

// Created is the number of records written.
func (r *Result) Created() int {
	return r.ExpensesCreated + r.RevenuesCreated
}

// NeedsForceOffer reports whether everything was already imported, which is
// when a user should be offered a forced re-import.
func (r *Result) NeedsForceOffer() bool {
	return r.DuplicatesSkipped > 0 && r.Created() == 0
}

func (r *Result) fail(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, f)
}

func (r *Result) warn(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, err)
}
