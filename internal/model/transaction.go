package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceType identifies where a candidate came from.
type SourceType string

const (
	SourceBank      SourceType = "bank"
	SourceFactoring SourceType = "factoring"
	SourceReceipt   SourceType = "receipt"
)

// Kind is the classification an upstream parser attached to a candidate.
type Kind string

const (
	KindExpense    Kind = "expense"
	KindIncome     Kind = "income"
	KindTransfer   Kind = "transfer"
	KindOwnerDraw  Kind = "ownerDraw"
	KindFee        Kind = "fee"
	KindPurchase   Kind = "purchase"
	KindCollection Kind = "collection"
	KindRecourse   Kind = "recourse"
)

// kindsBySource is the classification vocabulary accepted for each source.
var kindsBySource = map[SourceType][]Kind{
	SourceBank:      {KindExpense, KindIncome, KindTransfer, KindOwnerDraw},
	SourceFactoring: {KindPurchase, KindCollection, KindFee, KindRecourse},
	SourceReceipt:   {KindExpense, KindIncome},
}

// KindsFor returns the kinds a source type may carry.
func KindsFor(s SourceType) []Kind {
	return kindsBySource[s]
}

// TaxBreakdown holds sales tax components printed on a receipt.
type TaxBreakdown struct {
	GST decimal.Decimal
	HST decimal.Decimal
	PST decimal.Decimal
	QST decimal.Decimal
}

// IsZero reports whether no tax component is set.
func (t TaxBreakdown) IsZero() bool {
	return t.GST.IsZero() && t.HST.IsZero() && t.PST.IsZero() && t.QST.IsZero()
}

// Total sums all components.
func (t TaxBreakdown) Total() decimal.Decimal {
	return t.GST.Add(t.HST).Add(t.PST).Add(t.QST)
}

// Candidate is an unconfirmed transaction produced by an upstream parser.
// The concrete types are BankCandidate, FactoringCandidate and ReceiptCandidate.
type Candidate interface {
	Source() SourceType
	Fields() CandidateFields
	candidate()
}

// CandidateFields is the projection shared by every candidate type.
type CandidateFields struct {
	Source      SourceType
	Date        time.Time
	Description string
	Amount      decimal.Decimal // signed, original currency
	Currency    string
	Kind        Kind
	Category    string
	Reference   string
}

// BankCandidate is a parsed bank statement row.
type BankCandidate struct {
	Date         time.Time
	Description  string
	Description2 string // secondary memo line some banks export
	Amount       decimal.Decimal // negative = money out
	Currency     string
	Kind         Kind
	Category     string
	Reference    string
}

// FactoringCandidate is a line from a factoring company report.
type FactoringCandidate struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Currency    string
	Kind        Kind
	Category    string
	Reference   string // invoice or schedule number
}

// ReceiptCandidate is an OCR'd receipt.
type ReceiptCandidate struct {
	Date        time.Time
	Vendor      string
	Description string
	Amount      decimal.Decimal
	Currency    string
	Kind        Kind
	Category    string
	Reference   string
	Tax         TaxBreakdown
	HasImage    bool
}

func (BankCandidate) candidate()      {}
func (FactoringCandidate) candidate() {}
func (ReceiptCandidate) candidate()   {}

func (BankCandidate) Source() SourceType      { return SourceBank }
func (FactoringCandidate) Source() SourceType { return SourceFactoring }
func (ReceiptCandidate) Source() SourceType   { return SourceReceipt }

// Fields joins both description lines.
func (c BankCandidate) Fields() CandidateFields {
	desc := c.Description
	if c.Description2 != "" {
		desc += " " + c.Description2
	}
	return CandidateFields{
		Source:      SourceBank,
		Date:        c.Date,
		Description: desc,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Kind:        c.Kind,
		Category:    c.Category,
		Reference:   c.Reference,
	}
}

func (c FactoringCandidate) Fields() CandidateFields {
	return CandidateFields{
		Source:      SourceFactoring,
		Date:        c.Date,
		Description: c.Description,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Kind:        c.Kind,
		Category:    c.Category,
		Reference:   c.Reference,
	}
}

// Fields uses the vendor as the description when the receipt has none.
func (c ReceiptCandidate) Fields() CandidateFields {
	desc := c.Description
	if desc == "" {
		desc = c.Vendor
	}
	return CandidateFields{
		Source:      SourceReceipt,
		Date:        c.Date,
		Description: desc,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Kind:        c.Kind,
		Category:    c.Category,
		Reference:   c.Reference,
	}
}
