package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// headerScanRows is how far down the sheet the header row is searched for.
// Bank exports often put account details above the table.
const headerScanRows = 20

var (
	sheetDateHeaders   = []string{"date", "posting date", "transaction date", "posted"}
	sheetDescHeaders   = []string{"description", "details", "payee", "memo"}
	sheetDesc2Headers  = []string{"description 2", "memo 2", "additional info"}
	sheetAmountHeaders = []string{"amount", "cad$", "amount (cad)"}
	sheetDebitHeaders  = []string{"debit", "withdrawals", "withdrawal"}
	sheetCreditHeaders = []string{"credit", "deposits", "deposit"}
	sheetTypeHeaders   = []string{"type", "transaction type"}
	sheetCurHeaders    = []string{"currency"}

	sheetDateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "02-Jan-2006", "Jan 2, 2006", "2006/01/02"}
)

// SheetParser reads bank statements exported as XLSX. Columns are found by
// header name, so it copes with most Canadian bank layouts.
type SheetParser struct {
	// Sheet to read. Empty means the first sheet.
	Sheet string
	// Currency used when the sheet has no currency column. Empty means CAD.
	Currency string
}

// Format returns the parser name.
func (p *SheetParser) Format() string { return "sheet" }

type sheetColumns struct {
	date, desc, desc2, amount, debit, credit, typ, currency int
}

// Parse reads the first table found on the sheet.
func (p *SheetParser) Parse(r io.Reader) (*Document, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer xl.Close()

	sheet := p.Sheet
	if sheet == "" {
		sheet = xl.GetSheetName(0)
	}
	rows, err := xl.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	headerAt, cols, ok := findHeader(rows)
	if !ok {
		return nil, fmt.Errorf("sheet %q: no header row with date, description and amount columns", sheet)
	}

	currency := p.Currency
	if currency == "" {
		currency = "CAD"
	}
	doc := &Document{FileSource: fingerprint.FileBankXLSX}
	for i := headerAt + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		c, err := cols.candidate(row, currency)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		doc.Candidates = append(doc.Candidates, c)
	}
	return doc, nil
}

func findHeader(rows [][]string) (int, sheetColumns, bool) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		cols := sheetColumns{date: -1, desc: -1, desc2: -1, amount: -1, debit: -1, credit: -1, typ: -1, currency: -1}
		for j, cell := range rows[i] {
			name := strings.ToLower(strings.TrimSpace(cell))
			switch {
			case cols.date < 0 && oneOf(name, sheetDateHeaders):
				cols.date = j
			case cols.desc2 < 0 && oneOf(name, sheetDesc2Headers):
				cols.desc2 = j
			case cols.desc < 0 && oneOf(name, sheetDescHeaders):
				cols.desc = j
			case cols.amount < 0 && oneOf(name, sheetAmountHeaders):
				cols.amount = j
			case cols.debit < 0 && oneOf(name, sheetDebitHeaders):
				cols.debit = j
			case cols.credit < 0 && oneOf(name, sheetCreditHeaders):
				cols.credit = j
			case cols.typ < 0 && oneOf(name, sheetTypeHeaders):
				cols.typ = j
			case cols.currency < 0 && oneOf(name, sheetCurHeaders):
				cols.currency = j
			}
		}
		hasAmount := cols.amount >= 0 || (cols.debit >= 0 && cols.credit >= 0)
		if cols.date >= 0 && cols.desc >= 0 && hasAmount {
			return i, cols, true
		}
	}
	return 0, sheetColumns{}, false
}

func (c sheetColumns) candidate(row []string, currency string) (model.BankCandidate, error) {
	raw := cell(row, c.date)
	date, err := parseSheetDate(raw)
	if err != nil {
		return model.BankCandidate{}, err
	}

	var amount decimal.Decimal
	if c.amount >= 0 {
		amount, err = parseMoney(cell(row, c.amount))
		if err != nil {
			return model.BankCandidate{}, err
		}
	} else {
		debit, err := parseMoney(cell(row, c.debit))
		if err != nil {
			return model.BankCandidate{}, err
		}
		credit, err := parseMoney(cell(row, c.credit))
		if err != nil {
			return model.BankCandidate{}, err
		}
		amount = credit.Abs().Sub(debit.Abs())
	}

	if cur := strings.TrimSpace(cell(row, c.currency)); cur != "" {
		currency = strings.ToUpper(cur)
	}
	desc := strings.TrimSpace(cell(row, c.desc))
	return model.BankCandidate{
		Date:         date,
		Description:  desc,
		Description2: strings.TrimSpace(cell(row, c.desc2)),
		Amount:       amount,
		Currency:     currency,
		Kind:         bankKind(amount, cell(row, c.typ)),
		Reference:    makeBankRef("sheet", date, desc),
	}, nil
}

func parseSheetDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sheetDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// Unformatted date cells come through as the spreadsheet serial number.
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q", s)
}

func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
