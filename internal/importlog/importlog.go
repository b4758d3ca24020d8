// Package importlog keeps an append-only CSV audit trail of import runs.
package importlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Entry is one import run.
type Entry struct {
	Timestamp         time.Time
	RunID             string
	Source            string
	FileFingerprint   string
	ExpensesCreated   int
	RevenuesCreated   int
	Skipped           int
	Replaced          int
	DuplicatesSkipped int
	Failures          int
	Forced            bool
	CommitHash        string
}

// Header is the first row of import-log.csv.
var Header = []string{
	"timestamp", "run_id", "source", "file_fingerprint",
	"expenses_created", "revenues_created", "skipped", "replaced", "duplicates_skipped",
	"failures", "forced", "commit_hash",
}

const (
	logDir  = "logs"
	logFile = "logs/import-log.csv"
)

const (
	colTimestamp = iota
	colRunID
	colSource
	colFileFingerprint
	colExpenses
	colRevenues
	colSkipped
	colReplaced
	colDuplicates
	colFailures
	colForced
	colCommitHash
	numFields
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colRunID] = e.RunID
	row[colSource] = e.Source
	row[colFileFingerprint] = e.FileFingerprint
	row[colExpenses] = strconv.Itoa(e.ExpensesCreated)
	row[colRevenues] = strconv.Itoa(e.RevenuesCreated)
	row[colSkipped] = strconv.Itoa(e.Skipped)
	row[colReplaced] = strconv.Itoa(e.Replaced)
	row[colDuplicates] = strconv.Itoa(e.DuplicatesSkipped)
	row[colFailures] = strconv.Itoa(e.Failures)
	row[colForced] = strconv.FormatBool(e.Forced)
	row[colCommitHash] = e.CommitHash
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	e := Entry{
		Timestamp:       ts,
		RunID:           record[colRunID],
		Source:          record[colSource],
		FileFingerprint: record[colFileFingerprint],
		CommitHash:      record[colCommitHash],
	}
	counters := []struct {
		col int
		dst *int
	}{
		{colExpenses, &e.ExpensesCreated},
		{colRevenues, &e.RevenuesCreated},
		{colSkipped, &e.Skipped},
		{colReplaced, &e.Replaced},
		{colDuplicates, &e.DuplicatesSkipped},
		{colFailures, &e.Failures},
	}
	for _, c := range counters {
		n, err := strconv.Atoi(record[c.col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing %s %q: %w", Header[c.col], record[c.col], err)
		}
		*c.dst = n
	}
	if e.Forced, err = strconv.ParseBool(record[colForced]); err != nil {
		return Entry{}, fmt.Errorf("parsing forced %q: %w", record[colForced], err)
	}
	return e, nil
}

// Append writes entries to <repoRoot>/logs/import-log.csv, creating the file
// and header if needed.
func Append(repoRoot string, entries ...Entry) error {
	dir := filepath.Join(repoRoot, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(repoRoot, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Path returns the log file location under repoRoot.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, logFile)
}

// Read returns all entries from <repoRoot>/logs/import-log.csv. A missing
// file reads as no entries.
func Read(repoRoot string) ([]Entry, error) {
	f, err := os.Open(Path(repoRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
