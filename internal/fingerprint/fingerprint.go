// Package fingerprint derives stable content identifiers for candidate
// records and uploaded files. Equal content always yields an equal
// fingerprint, and fingerprints of different source types never collide.
package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

const (
	isoDate   = "2006-01-02"
	separator = "|"
)

// FileSource tags the kind of uploaded file.
type FileSource string

const (
	FileBankCSV      FileSource = "bank_csv"
	FileBankXLSX     FileSource = "bank_xlsx"
	FileFactoringPDF FileSource = "factoring_pdf"
	FileReceiptImage FileSource = "receipt_image"
)

// Record returns the fingerprint of a candidate. It never fails: missing
// fields canonicalize to empty strings.
func Record(c model.Candidate) string {
	switch v := c.(type) {
	case model.BankCandidate:
		return string(model.SourceBank) + "_" + hash(Canonical(v))
	case model.FactoringCandidate:
		return string(model.SourceFactoring) + "_" + hash(Canonical(v))
	case model.ReceiptCandidate:
		return string(model.SourceReceipt) + "_" + hash(Canonical(v))
	default:
		return "unknown_" + hash("")
	}
}

// Canonical returns the string a candidate's fingerprint is hashed from.
func Canonical(c model.Candidate) string {
	switch v := c.(type) {
	case model.BankCandidate:
		return join(text(v.Description), text(v.Description2), isoDay(v.Fields()), amount(v.Fields()))
	case model.FactoringCandidate:
		return join(text(v.Description), text(v.Reference), text(string(v.Kind)), isoDay(v.Fields()), amount(v.Fields()))
	case model.ReceiptCandidate:
		return join(text(v.Vendor), text(v.Description), isoDay(v.Fields()), amount(v.Fields()))
	default:
		return ""
	}
}

// Identity is a key for "the same transaction" that leaves the amount out,
// so a record can be recognized again after a parser corrects its amount.
func Identity(c model.Candidate) string {
	f := c.Fields()
	var vendor string
	if r, ok := c.(model.ReceiptCandidate); ok {
		vendor = r.Vendor
	}
	return identity(f.Source, f.Description, vendor, f.Reference, f.Kind, f.Date)
}

// RecordIdentity is Identity for an already committed record.
func RecordIdentity(r model.CommittedRecord) string {
	return identity(r.Source, r.Description, r.Vendor, r.Reference, r.Kind, r.Date)
}

func identity(source model.SourceType, desc, vendor, ref string, kind model.Kind, d time.Time) string {
	parts := []string{string(source), text(desc), text(vendor)}
	if source == model.SourceFactoring {
		parts = append(parts, text(ref), text(string(kind)))
	}
	if !d.IsZero() {
		parts = append(parts, d.Format(isoDate))
	}
	return join(parts...)
}

// File returns the fingerprint of an uploaded file's bytes. The file name
// plays no part.
func File(source FileSource, content []byte) string {
	return fmt.Sprintf("%s_file_%s", source, strconv.FormatUint(xxhash.Sum64(content), 36))
}

func hash(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 36)
}

func join(parts ...string) string {
	return strings.Join(parts, separator)
}

func text(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isoDay(f model.CandidateFields) string {
	if f.Date.IsZero() {
		return ""
	}
	return f.Date.Format(isoDate)
}

func amount(f model.CandidateFields) string {
	return f.Amount.Abs().StringFixed(2)
}
