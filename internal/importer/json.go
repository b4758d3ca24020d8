package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/fingerprint"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// JSONParser reads candidates already extracted by an upstream tool, for
// example OCR'd receipts or lines pulled out of a factoring PDF.
//
//	{"source": "receipt", "candidates": [{"date": "2025-03-04", "vendor": "Shell", ...}]}
type JSONParser struct{}

// Format returns the parser name.
func (p *JSONParser) Format() string { return "json" }

type jsonDocument struct {
	Source     model.SourceType `json:"source"`
	FileSource string           `json:"file_source"`
	Candidates []jsonCandidate  `json:"candidates"`
}

type jsonCandidate struct {
	Date         string          `json:"date"`
	Vendor       string          `json:"vendor"`
	Description  string          `json:"description"`
	Description2 string          `json:"description2"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Kind         model.Kind      `json:"kind"`
	Category     string          `json:"category"`
	Reference    string          `json:"reference"`
	HasImage     bool            `json:"has_image"`
	Tax          *struct {
		GST decimal.Decimal `json:"gst"`
		HST decimal.Decimal `json:"hst"`
		PST decimal.Decimal `json:"pst"`
		QST decimal.Decimal `json:"qst"`
	} `json:"tax"`
}

// defaultFileSource is the upload type each source arrives as.
var defaultFileSource = map[model.SourceType]fingerprint.FileSource{
	model.SourceBank:      fingerprint.FileBankCSV,
	model.SourceFactoring: fingerprint.FileFactoringPDF,
	model.SourceReceipt:   fingerprint.FileReceiptImage,
}

// Parse reads a candidate document.
func (p *JSONParser) Parse(r io.Reader) (*Document, error) {
	var in jsonDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decoding candidates: %w", err)
	}

	fs, ok := defaultFileSource[in.Source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", in.Source)
	}
	if in.FileSource != "" {
		fs = fingerprint.FileSource(in.FileSource)
	}

	doc := &Document{FileSource: fs}
	for i, jc := range in.Candidates {
		c, err := jc.candidate(in.Source)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		doc.Candidates = append(doc.Candidates, c)
	}
	return doc, nil
}

func (jc jsonCandidate) candidate(source model.SourceType) (model.Candidate, error) {
	var date time.Time
	if s := strings.TrimSpace(jc.Date); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", s, err)
		}
		date = d
	}

	switch source {
	case model.SourceBank:
		return model.BankCandidate{
			Date: date, Description: jc.Description, Description2: jc.Description2,
			Amount: jc.Amount, Currency: jc.Currency, Kind: jc.Kind,
			Category: jc.Category, Reference: jc.Reference,
		}, nil
	case model.SourceFactoring:
		return model.FactoringCandidate{
			Date: date, Description: jc.Description,
			Amount: jc.Amount, Currency: jc.Currency, Kind: jc.Kind,
			Category: jc.Category, Reference: jc.Reference,
		}, nil
	default:
		rc := model.ReceiptCandidate{
			Date: date, Vendor: jc.Vendor, Description: jc.Description,
			Amount: jc.Amount, Currency: jc.Currency, Kind: jc.Kind,
			Category: jc.Category, Reference: jc.Reference, HasImage: jc.HasImage,
		}
		if rc.Kind == "" {
			rc.Kind = model.KindExpense
		}
		if jc.Tax != nil {
			rc.Tax = model.TaxBreakdown{GST: jc.Tax.GST, HST: jc.Tax.HST, PST: jc.Tax.PST, QST: jc.Tax.QST}
		}
		return rc, nil
	}
}
