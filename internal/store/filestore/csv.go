package filestore

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// RecordHeader is the CSV header for records.csv.
const RecordHeader = "id,book,source,date,vendor,description,amount,currency,kind,category,reference,gst,hst,pst,qst,amount_reporting,exchange_rate,rate_approximate,import_fingerprint,source_label,linked_to_id,has_receipt_image,has_bank_link,created_at"

// LedgerHeader is the CSV header for ledger.csv.
const LedgerHeader = "fingerprint,kind,source_label,imported_at,record_count"

const (
	dateFormat = "2006-01-02"

	numRecordFields = 24
	colID           = 0
	colBook         = 1
	colSource       = 2
	colDate         = 3
	colVendor       = 4
	colDesc         = 5
	colAmount       = 6
	colCurrency     = 7
	colKind         = 8
	colCategory     = 9
	colRef          = 10
	colGST          = 11
	colHST          = 12
	colPST          = 13
	colQST          = 14
	colReporting    = 15
	colRate         = 16
	colApprox       = 17
	colFingerprint  = 18
	colSourceLabel  = 19
	colLinkedTo     = 20
	colHasImage     = 21
	colHasBankLink  = 22
	colCreatedAt    = 23

	numLedgerFields = 5
	colLedgerFP     = 0
	colLedgerKind   = 1
	colLedgerSource = 2
	colLedgerAt     = 3
	colLedgerCount  = 4
)

// MarshalRecord converts a record to a CSV row.
func MarshalRecord(r model.CommittedRecord) []string {
	row := make([]string, numRecordFields)
	row[colID] = r.ID
	row[colBook] = string(r.Book)
	row[colSource] = string(r.Source)
	row[colDate] = r.Date.Format(dateFormat)
	row[colVendor] = r.Vendor
	row[colDesc] = r.Description
	row[colAmount] = r.Amount.StringFixed(2)
	row[colCurrency] = r.Currency
	row[colKind] = string(r.Kind)
	row[colCategory] = r.Category
	row[colRef] = r.Reference
	row[colGST] = optionalDecimal(r.Tax.GST)
	row[colHST] = optionalDecimal(r.Tax.HST)
	row[colPST] = optionalDecimal(r.Tax.PST)
	row[colQST] = optionalDecimal(r.Tax.QST)
	row[colReporting] = r.AmountReporting.StringFixed(2)
	row[colRate] = r.ExchangeRate.String()
	row[colApprox] = strconv.FormatBool(r.RateApproximate)
	row[colFingerprint] = r.ImportFingerprint
	row[colSourceLabel] = r.SourceLabel
	row[colLinkedTo] = r.LinkedToID
	row[colHasImage] = strconv.FormatBool(r.HasReceiptImage)
	row[colHasBankLink] = strconv.FormatBool(r.HasBankLink)
	if !r.CreatedAt.IsZero() {
		row[colCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return row
}

// UnmarshalRecord converts a CSV row to a record.
func UnmarshalRecord(row []string) (model.CommittedRecord, error) {
	if len(row) != numRecordFields {
		return model.CommittedRecord{}, fmt.Errorf("expected %d fields, got %d", numRecordFields, len(row))
	}

	date, err := time.Parse(dateFormat, row[colDate])
	if err != nil {
		return model.CommittedRecord{}, fmt.Errorf("parsing date %q: %w", row[colDate], err)
	}

	var decs [7]decimal.Decimal
	for i, col := range []int{colAmount, colGST, colHST, colPST, colQST, colReporting, colRate} {
		if row[col] == "" {
			continue
		}
		decs[i], err = decimal.NewFromString(row[col])
		if err != nil {
			return model.CommittedRecord{}, fmt.Errorf("parsing column %d %q: %w", col, row[col], err)
		}
	}

	var bools [3]bool
	for i, col := range []int{colApprox, colHasImage, colHasBankLink} {
		if row[col] == "" {
			continue
		}
		bools[i], err = strconv.ParseBool(row[col])
		if err != nil {
			return model.CommittedRecord{}, fmt.Errorf("parsing column %d %q: %w", col, row[col], err)
		}
	}

	var created time.Time
	if row[colCreatedAt] != "" {
		created, err = time.Parse(time.RFC3339, row[colCreatedAt])
		if err != nil {
			return model.CommittedRecord{}, fmt.Errorf("parsing created_at %q: %w", row[colCreatedAt], err)
		}
	}

	return model.CommittedRecord{
		ID:          row[colID],
		Book:        model.Book(row[colBook]),
		Source:      model.SourceType(row[colSource]),
		Date:        date,
		Vendor:      row[colVendor],
		Description: row[colDesc],
		Amount:      decs[0],
		Currency:    row[colCurrency],
		Kind:        model.Kind(row[colKind]),
		Category:    row[colCategory],
		Reference:   row[colRef],
		Tax: model.TaxBreakdown{
			GST: decs[1],
			HST: decs[2],
			PST: decs[3],
			QST: decs[4],
		},
		AmountReporting:   decs[5],
		ExchangeRate:      decs[6],
		RateApproximate:   bools[0],
		ImportFingerprint: row[colFingerprint],
		SourceLabel:       row[colSourceLabel],
		LinkedToID:        row[colLinkedTo],
		HasReceiptImage:   bools[1],
		HasBankLink:       bools[2],
		CreatedAt:         created,
	}, nil
}

// MarshalEntry converts a ledger entry to a CSV row.
func MarshalEntry(e model.LedgerEntry) []string {
	row := make([]string, numLedgerFields)
	row[colLedgerFP] = e.Fingerprint
	row[colLedgerKind] = string(e.Kind)
	row[colLedgerSource] = e.SourceLabel
	row[colLedgerAt] = e.ImportedAt.UTC().Format(time.RFC3339)
	if e.Kind == model.EntryFile {
		row[colLedgerCount] = strconv.Itoa(e.RecordCount)
	}
	return row
}

// UnmarshalEntry converts a CSV row to a ledger entry.
func UnmarshalEntry(row []string) (model.LedgerEntry, error) {
	if len(row) != numLedgerFields {
		return model.LedgerEntry{}, fmt.Errorf("expected %d fields, got %d", numLedgerFields, len(row))
	}

	at, err := time.Parse(time.RFC3339, row[colLedgerAt])
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("parsing imported_at %q: %w", row[colLedgerAt], err)
	}

	var count int
	if row[colLedgerCount] != "" {
		count, err = strconv.Atoi(row[colLedgerCount])
		if err != nil {
			return model.LedgerEntry{}, fmt.Errorf("parsing record_count %q: %w", row[colLedgerCount], err)
		}
	}

	return model.LedgerEntry{
		Fingerprint: row[colLedgerFP],
		Kind:        model.LedgerEntryKind(row[colLedgerKind]),
		SourceLabel: row[colLedgerSource],
		ImportedAt:  at,
		RecordCount: count,
	}, nil
}

// ReadRecords reads all records from a records.csv reader.
func ReadRecords(r io.Reader) ([]model.CommittedRecord, error) {
	rows, err := readRows(r, numRecordFields)
	if err != nil {
		return nil, err
	}
	var out []model.CommittedRecord
	for i, row := range rows {
		rec, err := UnmarshalRecord(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteRecords writes records (including header).
func WriteRecords(w io.Writer, recs []model.CommittedRecord) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = MarshalRecord(r)
	}
	return writeRows(w, RecordHeader, rows)
}

// ReadEntries reads all entries from a ledger.csv reader.
func ReadEntries(r io.Reader) ([]model.LedgerEntry, error) {
	rows, err := readRows(r, numLedgerFields)
	if err != nil {
		return nil, err
	}
	var out []model.LedgerEntry
	for i, row := range rows {
		e, err := UnmarshalEntry(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteEntries writes ledger entries (including header).
func WriteEntries(w io.Writer, entries []model.LedgerEntry) error {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = MarshalEntry(e)
	}
	return writeRows(w, LedgerHeader, rows)
}

func readRows(r io.Reader, fields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	// Skip header row.
	return rows[1:], nil
}

func writeRows(w io.Writer, header string, rows [][]string) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalDecimal(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
