// Package rates resolves date-anchored exchange rates into the reporting
// currency and converts amounts with them.
package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/logger"
)

// ErrNoObservation is returned by a Feed that has no rate for the query.
var ErrNoObservation = errors.New("no rate observation")

// Observation is one published daily rate.
type Observation struct {
	Date time.Time
	Rate decimal.Decimal
}

// Feed is an external daily-rate service quoting currency in the reporting
// currency.
type Feed interface {
	// Observations returns the rates published in [start, end].
	Observations(ctx context.Context, currency string, start, end time.Time) ([]Observation, error)
	// Latest returns the most recent published rate.
	Latest(ctx context.Context, currency string) (Observation, error)
}

// Source says which step of the fallback chain produced a rate.
type Source string

const (
	SourceIdentity Source = "identity"
	SourceExact    Source = "exact"
	SourceWindow   Source = "window"
	SourceLatest   Source = "latest"
	SourceFallback Source = "fallback"
)

// Rate is a resolved conversion rate.
type Rate struct {
	Currency   string
	Date       time.Time // the transaction date asked for
	ObservedOn time.Time // zero for identity and fallback
	Value      decimal.Decimal
	Source     Source
	// Approximate is set when no feed step answered and the fixed fallback
	// was used. Records converted with it need review.
	Approximate bool
	// Cause is the last feed error seen before falling back.
	Cause error
}

// Options configures a Resolver.
type Options struct {
	ReportingCurrency string
	WindowDays        int
	Fallback          decimal.Decimal
}

// DefaultOptions returns CAD reporting with a 7-day window and 1.40 fallback.
func DefaultOptions() Options {
	return Options{
		ReportingCurrency: "CAD",
		WindowDays:        7,
		Fallback:          decimal.RequireFromString("1.40"),
	}
}

type cacheKey struct {
	currency string
	date     string
}

// Resolver walks the fallback chain against a Feed.
type Resolver struct {
	feed Feed
	opts Options

	mu    sync.Mutex
	cache map[cacheKey]Rate
}

// NewResolver creates a Resolver. Zero-valued options fall back to the
// defaults.
func NewResolver(feed Feed, opts Options) *Resolver {
	def := DefaultOptions()
	if opts.ReportingCurrency == "" {
		opts.ReportingCurrency = def.ReportingCurrency
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.Fallback.IsZero() {
		opts.Fallback = def.Fallback
	}
	opts.ReportingCurrency = strings.ToUpper(opts.ReportingCurrency)
	return &Resolver{feed: feed, opts: opts, cache: make(map[cacheKey]Rate)}
}

// ReportingCurrency returns the currency amounts are normalized into.
func (r *Resolver) ReportingCurrency() string {
	return r.opts.ReportingCurrency
}

// Resolve returns the rate in force on or before date. It only fails when ctx
// is done; an unreachable feed resolves to the approximate fallback.
func (r *Resolver) Resolve(ctx context.Context, currency string, date time.Time) (Rate, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	day := truncate(date)

	if currency == r.opts.ReportingCurrency {
		return Rate{Currency: currency, Date: day, Value: decimal.NewFromInt(1), Source: SourceIdentity}, nil
	}

	key := cacheKey{currency: currency, date: day.Format(time.DateOnly)}
	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	log := logger.FromContext(ctx).With().Str("currency", currency).Str("date", key.date).Logger()
	var lastErr error

	obs, err := r.feed.Observations(ctx, currency, day, day)
	if err == nil {
		if o, found := latestOnOrBefore(obs, day); found && sameDay(o.Date, day) {
			return r.remember(key, Rate{Currency: currency, Date: day, ObservedOn: o.Date, Value: o.Rate, Source: SourceExact}), nil
		}
	} else {
		lastErr = err
	}
	if err := ctx.Err(); err != nil {
		return Rate{}, err
	}

	start := day.AddDate(0, 0, -(r.opts.WindowDays - 1))
	obs, err = r.feed.Observations(ctx, currency, start, day)
	if err == nil {
		if o, found := latestOnOrBefore(obs, day); found && !o.Date.Before(start) {
			log.Debug().Str("observed_on", o.Date.Format(time.DateOnly)).Msg("using trailing window rate")
			return r.remember(key, Rate{Currency: currency, Date: day, ObservedOn: o.Date, Value: o.Rate, Source: SourceWindow}), nil
		}
	} else {
		lastErr = err
	}
	if err := ctx.Err(); err != nil {
		return Rate{}, err
	}

	latest, err := r.feed.Latest(ctx, currency)
	if err == nil && latest.Rate.IsPositive() {
		log.Warn().Str("observed_on", latest.Date.Format(time.DateOnly)).Msg("no rate near transaction date, using latest")
		return Rate{Currency: currency, Date: day, ObservedOn: latest.Date, Value: latest.Rate, Source: SourceLatest}, nil
	}
	if err != nil {
		lastErr = err
	}
	if err := ctx.Err(); err != nil {
		return Rate{}, err
	}

	if lastErr == nil {
		lastErr = ErrNoObservation
	}
	log.Warn().Err(lastErr).Str("fallback", r.opts.Fallback.String()).Msg("rate feed unavailable, using fallback rate")
	return Rate{
		Currency:    currency,
		Date:        day,
		Value:       r.opts.Fallback,
		Source:      SourceFallback,
		Approximate: true,
		Cause:       fmt.Errorf("resolving %s on %s: %w", currency, key.date, lastErr),
	}, nil
}

func (r *Resolver) remember(key cacheKey, rate Rate) Rate {
	r.mu.Lock()
	r.cache[key] = rate
	r.mu.Unlock()
	return rate
}

func latestOnOrBefore(obs []Observation, day time.Time) (Observation, bool) {
	var best Observation
	found := false
	for _, o := range obs {
		if !o.Rate.IsPositive() || truncate(o.Date).After(day) {
			continue
		}
		if !found || o.Date.After(best.Date) {
			best = o
			found = true
		}
	}
	return best, found
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return truncate(a).Equal(truncate(b))
}
