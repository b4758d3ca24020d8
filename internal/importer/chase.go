package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// ChaseParser parses Chase checking CSV exports.
type ChaseParser struct {
	// Currency of the account. Empty means CAD.
	Currency string
}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColType    = 4
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV.
func (p *ChaseParser) Parse(r io.Reader) (*Document, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	doc := &Document{FileSource: fingerprint.FileBankCSV}
	if len(records) <= 1 {
		return doc, nil
	}

	currency := p.Currency
	if currency == "" {
		currency = "CAD"
	}
	for i, rec := range records[1:] {
		c, err := parseChaseRow(rec, currency)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		doc.Candidates = append(doc.Candidates, c)
	}
	return doc, nil
}

func parseChaseRow(rec []string, currency string) (model.BankCandidate, error) {
	date, err := time.Parse(chaseDateFormat, rec[chaseColDate])
	if err != nil {
		return model.BankCandidate{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.BankCandidate{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}

	desc := rec[chaseColDesc]
	return model.BankCandidate{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Currency:    currency,
		Kind:        bankKind(amount, rec[chaseColType]),
		Reference:   makeBankRef("chase", date, desc),
	}, nil
}

// makeBankRef creates a reference like chase_20250103_GITHUBPROS.
func makeBankRef(bank string, date time.Time, desc string) string {
	prefix := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, desc)
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return fmt.Sprintf("%s_%s_%s", bank, date.Format("20060102"), prefix)
}
