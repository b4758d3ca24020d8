// Package search implements the free-text and amount matching used by the
// record search box and by vendor comparison when linking records.
package search

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

// FuzzyMatch reports whether query loosely matches text, ignoring case.
// A multi-word query matches when every word is contained in text or is a
// prefix of one of its tokens. A single word matches when some token starts
// with it.
func FuzzyMatch(query, text string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(text)
	if q == "" {
		return true
	}
	if strings.Contains(t, q) {
		return true
	}

	tokens := Tokenize(t)
	words := strings.Fields(q)
	if len(words) > 1 {
		for _, w := range words {
			if !strings.Contains(t, w) && !anyHasPrefix(tokens, w) {
				return false
			}
		}
		return true
	}
	return anyHasPrefix(tokens, q)
}

// Tokenize splits text on whitespace and common punctuation.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,;:!?/\\-_()[]{}'\"*#&", r)
	})
}

func anyHasPrefix(tokens []string, prefix string) bool {
	for _, tok := range tokens {
		if strings.HasPrefix(tok, prefix) {
			return true
		}
	}
	return false
}

// AmountKind is the shape of an amount query.
type AmountKind int

const (
	AmountExact AmountKind = iota
	AmountRange
	AmountAbove
	AmountBelow
)

// exactTolerance is how far an exact amount query reaches either side.
var exactTolerance = decimal.NewFromInt(1)

// AmountQuery matches absolute amounts.
type AmountQuery struct {
	Kind  AmountKind
	Value decimal.Decimal // exact, above, below
	Min   decimal.Decimal // range
	Max   decimal.Decimal // range
}

var (
	numberPattern = `\$?\s*(\d+(?:\.\d+)?)`
	exactRe       = regexp.MustCompile(`^` + numberPattern + `$`)
	rangeRe       = regexp.MustCompile(`^` + numberPattern + `\s*-\s*` + numberPattern + `$`)
	aboveRe       = regexp.MustCompile(`^>\s*` + numberPattern + `$`)
	belowRe       = regexp.MustCompile(`^<\s*` + numberPattern + `$`)
)

// ParseAmountQuery recognizes "42.50", "10-20", ">100" and "<25".
func ParseAmountQuery(s string) (AmountQuery, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")

	if m := rangeRe.FindStringSubmatch(s); m != nil {
		lo, hi := decimal.RequireFromString(m[1]), decimal.RequireFromString(m[2])
		if lo.GreaterThan(hi) {
			lo, hi = hi, lo
		}
		return AmountQuery{Kind: AmountRange, Min: lo, Max: hi}, true
	}
	if m := aboveRe.FindStringSubmatch(s); m != nil {
		return AmountQuery{Kind: AmountAbove, Value: decimal.RequireFromString(m[1])}, true
	}
	if m := belowRe.FindStringSubmatch(s); m != nil {
		return AmountQuery{Kind: AmountBelow, Value: decimal.RequireFromString(m[1])}, true
	}
	if m := exactRe.FindStringSubmatch(s); m != nil {
		return AmountQuery{Kind: AmountExact, Value: decimal.RequireFromString(m[1])}, true
	}
	return AmountQuery{}, false
}

// Matches compares the absolute value of amount against the query.
func (q AmountQuery) Matches(amount decimal.Decimal) bool {
	a := amount.Abs()
	switch q.Kind {
	case AmountExact:
		return a.Sub(q.Value).Abs().LessThanOrEqual(exactTolerance)
	case AmountRange:
		return !a.LessThan(q.Min) && !a.GreaterThan(q.Max)
	case AmountAbove:
		return a.GreaterThan(q.Value)
	case AmountBelow:
		return a.LessThan(q.Value)
	default:
		return false
	}
}

// Filter returns the records matching query. A query that parses as an
// amount filters on the reporting amount; anything else is free text over
// vendor, description, category and reference.
func Filter(recs []model.CommittedRecord, query string) []model.CommittedRecord {
	var out []model.CommittedRecord
	if aq, ok := ParseAmountQuery(query); ok {
		for _, r := range recs {
			if aq.Matches(r.AmountReporting) {
				out = append(out, r)
			}
		}
		return out
	}
	for _, r := range recs {
		text := strings.Join([]string{r.Vendor, r.Description, r.Category, r.Reference}, " ")
		if FuzzyMatch(query, text) {
			out = append(out, r)
		}
	}
	return out
}
