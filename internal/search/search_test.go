package search

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		query string
		text  string
		want  bool
	}{
		{"shell", "SHELL C01234 CALGARY", true},
		{"ell", "SHELL C01234", true},       // substring
		{"calg", "Shell/Calgary-AB", true},  // token prefix
		{"shell calg", "SHELL C01234 CALGARY", true},
		{"calgary shell", "SHELL C01234 CALGARY", true}, // order does not matter
		{"shell edmonton", "SHELL C01234 CALGARY", false},
		{"home depot", "THE HOME DEPOT #7041", true},
		{"hom dep", "THE HOME DEPOT #7041", true},
		{"pot", "THE HOME DEPOT #7041", true}, // contained
		{"staples", "Shell", false},
		{"", "anything", true},
		{"  STAPLES ", "staples.ca", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FuzzyMatch(tt.query, tt.text), "FuzzyMatch(%q, %q)", tt.query, tt.text)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"amzn", "mktp", "ca", "ab12"}, Tokenize("amzn mktp.ca*ab12"))
	assert.Equal(t, []string{"tim", "hortons", "0457"}, Tokenize("tim hortons #0457"))
}

func TestParseAmountQuery(t *testing.T) {
	q, ok := ParseAmountQuery("42.50")
	require.True(t, ok)
	assert.Equal(t, AmountExact, q.Kind)
	assert.True(t, q.Matches(dec("-41.50")))
	assert.True(t, q.Matches(dec("43.50")))
	assert.False(t, q.Matches(dec("43.51")))

	q, ok = ParseAmountQuery("10-20")
	require.True(t, ok)
	assert.Equal(t, AmountRange, q.Kind)
	assert.True(t, q.Matches(dec("10")))
	assert.True(t, q.Matches(dec("-20.00")))
	assert.False(t, q.Matches(dec("20.01")))

	q, ok = ParseAmountQuery(" 20 - 10 ")
	require.True(t, ok)
	assert.True(t, q.Min.Equal(dec("10")), "bounds are ordered")

	q, ok = ParseAmountQuery(">1,000")
	require.True(t, ok)
	assert.Equal(t, AmountAbove, q.Kind)
	assert.True(t, q.Matches(dec("1000.01")))
	assert.False(t, q.Matches(dec("1000")))

	q, ok = ParseAmountQuery("<$25")
	require.True(t, ok)
	assert.Equal(t, AmountBelow, q.Kind)
	assert.True(t, q.Matches(dec("-24.99")))
	assert.False(t, q.Matches(dec("25")))
}

func TestParseAmountQuery_NotAnAmount(t *testing.T) {
	for _, s := range []string{"", "shell", "10-", ">", "1.2.3", "abc-def"} {
		_, ok := ParseAmountQuery(s)
		assert.False(t, ok, s)
	}
}

func TestFilter(t *testing.T) {
	recs := []model.CommittedRecord{
		{ID: "a", Vendor: "", Description: "SHELL C01234", AmountReporting: dec("-120.00"), Category: "fuel"},
		{ID: "b", Vendor: "Staples", Description: "Printer paper", AmountReporting: dec("-22.60"), Category: "office"},
		{ID: "c", Description: "ACME CONSULTING INVOICE 1042", AmountReporting: dec("3500.00")},
	}

	got := Filter(recs, "fuel")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got = Filter(recs, "acme inv")
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got = Filter(recs, "<100")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got = Filter(recs, "120")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	assert.Len(t, Filter(recs, ""), 3)
}
