package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRecord(id string, d time.Time) model.CommittedRecord {
	return model.CommittedRecord{
		ID:                id,
		Book:              model.BookExpense,
		Source:            model.SourceReceipt,
		Date:              d,
		Vendor:            "Staples",
		Description:       "Printer paper, toner",
		Amount:            dec("-100.00"),
		Currency:          "USD",
		Kind:              model.KindExpense,
		Category:          "office",
		Tax:               model.TaxBreakdown{GST: dec("5.00"), PST: dec("7.00")},
		AmountReporting:   dec("-137.00"),
		ExchangeRate:      dec("1.37"),
		RateApproximate:   true,
		ImportFingerprint: "receipt_abc",
		SourceLabel:       "staples.jpg",
		HasReceiptImage:   true,
		CreatedAt:         time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestMarshalUnmarshalRecord(t *testing.T) {
	rec := testRecord("exp-202503-aaaa0001", date(2025, 3, 3))
	row := MarshalRecord(rec)
	assert.Len(t, row, numRecordFields)
	assert.Equal(t, "2025-03-03", row[colDate])
	assert.Equal(t, "", row[colHST], "zero tax components are left blank")

	got, err := UnmarshalRecord(row)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Description, got.Description)
	assert.True(t, rec.Amount.Equal(got.Amount))
	assert.True(t, rec.Tax.GST.Equal(got.Tax.GST))
	assert.True(t, got.Tax.HST.IsZero())
	assert.True(t, rec.ExchangeRate.Equal(got.ExchangeRate))
	assert.True(t, got.RateApproximate)
	assert.True(t, got.HasReceiptImage)
	assert.False(t, got.HasBankLink)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestUnmarshalRecord_Errors(t *testing.T) {
	_, err := UnmarshalRecord([]string{"one"})
	assert.ErrorContains(t, err, "expected 24 fields")

	row := MarshalRecord(testRecord("exp-202503-aaaa0001", date(2025, 3, 3)))
	row[colDate] = "03/03/2025"
	_, err = UnmarshalRecord(row)
	assert.ErrorContains(t, err, "parsing date")

	row = MarshalRecord(testRecord("exp-202503-aaaa0001", date(2025, 3, 3)))
	row[colHasBankLink] = "maybe"
	_, err = UnmarshalRecord(row)
	assert.Error(t, err)
}

func TestRecords_CRUDOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	rec := testRecord("exp-202503-aaaa0001", date(2025, 3, 3))
	require.NoError(t, s.CreateRecord(ctx, rec))
	assert.Error(t, s.CreateRecord(ctx, rec))

	_, err = os.Stat(filepath.Join(dir, "records", "2025", "03", "records.csv"))
	require.NoError(t, err)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Staples", got.Vendor)

	got.LinkedToID = "exp-202503-bbbb0002"
	got.HasBankLink = true
	require.NoError(t, s.UpdateRecord(ctx, got))

	reopened, err := Open(dir)
	require.NoError(t, err)
	got, err = reopened.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "exp-202503-bbbb0002", got.LinkedToID)

	found, err := reopened.FindByImportFingerprint(ctx, "receipt_abc")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	require.NoError(t, reopened.DeleteRecord(ctx, rec.ID))
	_, err = reopened.GetRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, reopened.DeleteRecord(ctx, rec.ID), store.ErrNotFound)
	_, err = reopened.GetRecord(ctx, "not-an-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListByDateRange_SpansMonths(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.CreateRecord(ctx, testRecord("exp-202502-aaaa0001", date(2025, 2, 27))))
	require.NoError(t, s.CreateRecord(ctx, testRecord("exp-202503-aaaa0002", date(2025, 3, 2))))
	require.NoError(t, s.CreateRecord(ctx, testRecord("exp-202503-aaaa0003", date(2025, 3, 20))))

	got, err := s.ListByDateRange(ctx, date(2025, 2, 26), date(2025, 3, 4))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exp-202502-aaaa0001", got[0].ID)
	assert.Equal(t, "exp-202503-aaaa0002", got[1].ID)

	all, err := s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedger_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutEntry(ctx, model.LedgerEntry{Fingerprint: "bank_1", Kind: model.EntryRecord, SourceLabel: "march.csv", ImportedAt: at}))
	require.NoError(t, s.PutEntry(ctx, model.LedgerEntry{Fingerprint: "bank_2", Kind: model.EntryRecord, SourceLabel: "march.csv", ImportedAt: at}))
	require.NoError(t, s.PutEntry(ctx, model.LedgerEntry{Fingerprint: "bank_csv_file_x", Kind: model.EntryFile, SourceLabel: "march.csv", ImportedAt: at, RecordCount: 2}))
	require.NoError(t, s.PutEntry(ctx, model.LedgerEntry{Fingerprint: "bank_1", Kind: model.EntryRecord, SourceLabel: "again.csv", ImportedAt: at}))

	data, err := os.ReadFile(filepath.Join(dir, "ledger", "ledger.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4, "header plus three entries")
	assert.Equal(t, LedgerHeader, lines[0])

	reopened, err := Open(dir)
	require.NoError(t, err)
	entries, err := reopened.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "march.csv", entries[0].SourceLabel)
	assert.Equal(t, 2, entries[2].RecordCount)

	require.NoError(t, reopened.DeleteEntry(ctx, "bank_1"))
	assert.ErrorIs(t, reopened.DeleteEntry(ctx, "bank_1"), store.ErrNotFound)

	again, err := Open(dir)
	require.NoError(t, err)
	_, err = again.GetEntry(ctx, "bank_1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := again.GetEntries(ctx, []string{"bank_1", "bank_2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bank_2", got[0].Fingerprint)
}
