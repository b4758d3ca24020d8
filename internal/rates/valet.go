package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultValetURL is the Bank of Canada Valet API root.
const DefaultValetURL = "https://www.bankofcanada.ca/valet"

// ValetFeed reads daily FX{CUR}CAD series from the Bank of Canada Valet API.
type ValetFeed struct {
	baseURL string
	client  *http.Client
}

var _ Feed = (*ValetFeed)(nil)

// NewValetFeed creates a feed. An empty baseURL uses DefaultValetURL.
func NewValetFeed(baseURL string, timeout time.Duration) *ValetFeed {
	if baseURL == "" {
		baseURL = DefaultValetURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ValetFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type valetResponse struct {
	Observations []map[string]json.RawMessage `json:"observations"`
}

type valetValue struct {
	V string `json:"v"`
}

// Observations queries the series for an inclusive date range.
func (f *ValetFeed) Observations(ctx context.Context, currency string, start, end time.Time) ([]Observation, error) {
	q := url.Values{}
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))
	return f.fetch(ctx, currency, q)
}

// Latest queries the single most recent observation.
func (f *ValetFeed) Latest(ctx context.Context, currency string) (Observation, error) {
	q := url.Values{}
	q.Set("recent", "1")
	obs, err := f.fetch(ctx, currency, q)
	if err != nil {
		return Observation{}, err
	}
	if len(obs) == 0 {
		return Observation{}, ErrNoObservation
	}
	return obs[len(obs)-1], nil
}

func (f *ValetFeed) fetch(ctx context.Context, currency string, q url.Values) ([]Observation, error) {
	series := SeriesName(currency)
	u := fmt.Sprintf("%s/observations/%s/json?%s", f.baseURL, series, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building valet request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", series, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("querying %s: status %d: %s", series, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var vr valetResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", series, err)
	}
	return parseObservations(series, vr)
}

func parseObservations(series string, vr valetResponse) ([]Observation, error) {
	var out []Observation
	for i, row := range vr.Observations {
		var d string
		if err := json.Unmarshal(row["d"], &d); err != nil {
			return nil, fmt.Errorf("observation %d: parsing date: %w", i, err)
		}
		raw, ok := row[series]
		if !ok {
			// Holidays come back without a value for the series.
			continue
		}
		var v valetValue
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("observation %d: parsing value: %w", i, err)
		}
		if v.V == "" {
			continue
		}
		date, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return nil, fmt.Errorf("observation %d: parsing date %q: %w", i, d, err)
		}
		rate, err := decimal.NewFromString(v.V)
		if err != nil {
			return nil, fmt.Errorf("observation %d: parsing rate %q: %w", i, v.V, err)
		}
		out = append(out, Observation{Date: date, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// SeriesName returns the Valet series quoting currency in CAD, e.g. FXUSDCAD.
func SeriesName(currency string) string {
	return "FX" + strings.ToUpper(strings.TrimSpace(currency)) + "CAD"
}
