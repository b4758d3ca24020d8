package model

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ValidationError describes a candidate whose shape cannot be imported.
type ValidationError struct {
	Index       int
	Source      SourceType
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("candidate %d [%s]: %s", e.Index, e.Source, e.Description)
}

// Validate checks the shape of a batch of candidates. It never second-guesses
// the parser's classification beyond checking the kind belongs to the source.
func Validate(candidates []Candidate) []ValidationError {
	var errs []ValidationError
	hundred := decimal.NewFromInt(100)

	for i, c := range candidates {
		if c == nil {
			errs = append(errs, ValidationError{Index: i, Description: "nil candidate"})
			continue
		}
		f := c.Fields()

		if f.Date.IsZero() {
			errs = append(errs, ValidationError{Index: i, Source: f.Source, Description: "missing date"})
		}

		if len(f.Currency) != 3 {
			errs = append(errs, ValidationError{
				Index:       i,
				Source:      f.Source,
				Description: fmt.Sprintf("currency %q is not a 3-letter code", f.Currency),
			})
		}

		if !slices.Contains(KindsFor(f.Source), f.Kind) {
			errs = append(errs, ValidationError{
				Index:       i,
				Source:      f.Source,
				Description: fmt.Sprintf("kind %q not valid for %s", f.Kind, f.Source),
			})
		}

		if !f.Amount.Mul(hundred).Equal(f.Amount.Mul(hundred).Truncate(0)) {
			errs = append(errs, ValidationError{
				Index:       i,
				Source:      f.Source,
				Description: fmt.Sprintf("amount %s has more than 2 decimal places", f.Amount),
			})
		}
	}
	return errs
}
