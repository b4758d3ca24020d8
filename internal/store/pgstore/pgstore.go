// Package pgstore is a Postgres store backend built on pgxpool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
)

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	fingerprint  TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	source_label TEXT NOT NULL DEFAULT '',
	imported_at  TIMESTAMPTZ NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS committed_records (
	id                 TEXT PRIMARY KEY,
	book               TEXT NOT NULL,
	source             TEXT NOT NULL,
	date               DATE NOT NULL,
	vendor             TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	amount             NUMERIC(14,2) NOT NULL,
	currency           TEXT NOT NULL,
	kind               TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT '',
	reference          TEXT NOT NULL DEFAULT '',
	gst                NUMERIC(14,2) NOT NULL DEFAULT 0,
	hst                NUMERIC(14,2) NOT NULL DEFAULT 0,
	pst                NUMERIC(14,2) NOT NULL DEFAULT 0,
	qst                NUMERIC(14,2) NOT NULL DEFAULT 0,
	amount_reporting   NUMERIC(14,2) NOT NULL,
	exchange_rate      NUMERIC(18,8) NOT NULL,
	rate_approximate   BOOLEAN NOT NULL DEFAULT FALSE,
	import_fingerprint TEXT NOT NULL DEFAULT '',
	source_label       TEXT NOT NULL DEFAULT '',
	linked_to_id       TEXT NOT NULL DEFAULT '',
	has_receipt_image  BOOLEAN NOT NULL DEFAULT FALSE,
	has_bank_link      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS committed_records_fingerprint_idx ON committed_records (import_fingerprint);
CREATE INDEX IF NOT EXISTS committed_records_date_idx ON committed_records (date);
`

// Numerics travel as text so decimals round-trip without float conversion.
const recordColumns = `id, book, source, date, vendor, description, amount::text, currency, kind,
	category, reference, gst::text, hst::text, pst::text, qst::text, amount_reporting::text,
	exchange_rate::text, rate_approximate, import_fingerprint, source_label, linked_to_id,
	has_receipt_image, has_bank_link, created_at`

const ledgerColumns = `fingerprint, kind, source_label, imported_at, record_count`

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateRecord(ctx context.Context, r model.CommittedRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO committed_records (id, book, source, date, vendor, description, amount, currency, kind,
			category, reference, gst, hst, pst, qst, amount_reporting, exchange_rate, rate_approximate,
			import_fingerprint, source_label, linked_to_id, has_receipt_image, has_bank_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12::numeric, $13::numeric,
			$14::numeric, $15::numeric, $16::numeric, $17::numeric, $18, $19, $20, $21, $22, $23, $24)`,
		recordArgs(r)...)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (model.CommittedRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM committed_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CommittedRecord{}, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return rec, err
}

func (s *Store) UpdateRecord(ctx context.Context, r model.CommittedRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE committed_records SET book = $2, source = $3, date = $4, vendor = $5, description = $6,
			amount = $7::numeric, currency = $8, kind = $9, category = $10, reference = $11,
			gst = $12::numeric, hst = $13::numeric, pst = $14::numeric, qst = $15::numeric,
			amount_reporting = $16::numeric, exchange_rate = $17::numeric, rate_approximate = $18,
			import_fingerprint = $19, source_label = $20, linked_to_id = $21,
			has_receipt_image = $22, has_bank_link = $23, created_at = $24
		WHERE id = $1`,
		recordArgs(r)...)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM committed_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context) ([]model.CommittedRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM committed_records ORDER BY date, id`)
}

func (s *Store) FindByImportFingerprint(ctx context.Context, fp string) (model.CommittedRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM committed_records
		WHERE import_fingerprint = $1 ORDER BY created_at LIMIT 1`, fp)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CommittedRecord{}, fmt.Errorf("record with fingerprint %s: %w", fp, store.ErrNotFound)
	}
	return rec, err
}

func (s *Store) ListByDateRange(ctx context.Context, from, to time.Time) ([]model.CommittedRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM committed_records
		WHERE date BETWEEN $1 AND $2 ORDER BY date, id`, from, to)
}

func (s *Store) queryRecords(ctx context.Context, sql string, args ...any) ([]model.CommittedRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []model.CommittedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, fp string) (model.LedgerEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE fingerprint = $1`, fp)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", fp, store.ErrNotFound)
	}
	return e, err
}

func (s *Store) GetEntries(ctx context.Context, fps []string) ([]model.LedgerEntry, error) {
	return s.queryEntries(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE fingerprint = ANY($1)`, fps)
}

func (s *Store) PutEntry(ctx context.Context, e model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO NOTHING`,
		e.Fingerprint, string(e.Kind), e.SourceLabel, e.ImportedAt, e.RecordCount)
	if err != nil {
		return fmt.Errorf("inserting ledger entry %s: %w", e.Fingerprint, err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, fp string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ledger_entries WHERE fingerprint = $1`, fp)
	if err != nil {
		return fmt.Errorf("deleting ledger entry %s: %w", fp, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger entry %s: %w", fp, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context) ([]model.LedgerEntry, error) {
	return s.queryEntries(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries ORDER BY imported_at, fingerprint`)
}

func (s *Store) queryEntries(ctx context.Context, sql string, args ...any) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return out, nil
}

func recordArgs(r model.CommittedRecord) []any {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return []any{
		r.ID, string(r.Book), string(r.Source), r.Date, r.Vendor, r.Description,
		r.Amount.String(), r.Currency, string(r.Kind), r.Category, r.Reference,
		r.Tax.GST.String(), r.Tax.HST.String(), r.Tax.PST.String(), r.Tax.QST.String(),
		r.AmountReporting.String(), r.ExchangeRate.String(), r.RateApproximate,
		r.ImportFingerprint, r.SourceLabel, r.LinkedToID, r.HasReceiptImage, r.HasBankLink, created,
	}
}

func scanRecord(row pgx.Row) (model.CommittedRecord, error) {
	var (
		r                                         model.CommittedRecord
		book, source, kind                        string
		amount, gst, hst, pst, qst, reporting, fx string
	)
	err := row.Scan(&r.ID, &book, &source, &r.Date, &r.Vendor, &r.Description, &amount, &r.Currency, &kind,
		&r.Category, &r.Reference, &gst, &hst, &pst, &qst, &reporting,
		&fx, &r.RateApproximate, &r.ImportFingerprint, &r.SourceLabel, &r.LinkedToID,
		&r.HasReceiptImage, &r.HasBankLink, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CommittedRecord{}, err
		}
		return model.CommittedRecord{}, fmt.Errorf("scanning record: %w", err)
	}
	r.Book = model.Book(book)
	r.Source = model.SourceType(source)
	r.Kind = model.Kind(kind)

	targets := []*decimal.Decimal{&r.Amount, &r.Tax.GST, &r.Tax.HST, &r.Tax.PST, &r.Tax.QST, &r.AmountReporting, &r.ExchangeRate}
	for i, raw := range []string{amount, gst, hst, pst, qst, reporting, fx} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.CommittedRecord{}, fmt.Errorf("record %s: parsing numeric %q: %w", r.ID, raw, err)
		}
		*targets[i] = d
	}
	return r, nil
}

func scanEntry(row pgx.Row) (model.LedgerEntry, error) {
	var (
		e    model.LedgerEntry
		kind string
	)
	if err := row.Scan(&e.Fingerprint, &kind, &e.SourceLabel, &e.ImportedAt, &e.RecordCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerEntry{}, err
		}
		return model.LedgerEntry{}, fmt.Errorf("scanning ledger entry: %w", err)
	}
	e.Kind = model.LedgerEntryKind(kind)
	return e, nil
}
