package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/config"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/rates"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/workspace"
)

type usdFeed struct{}

func (usdFeed) Observations(_ context.Context, _ string, start, end time.Time) ([]rates.Observation, error) {
	// No weekend observations, like the real feed.
	var out []rates.Observation
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, rates.Observation{Date: d, Rate: decimal.RequireFromString("1.37")})
	}
	return out, nil
}

func (usdFeed) Latest(context.Context, string) (rates.Observation, error) {
	return rates.Observation{}, errors.New("not used")
}

func newTestServer(t *testing.T) (*httptest.Server, *workspace.Workspace) {
	t.Helper()
	cfg := config.Default("API Test")
	cfg.Storage.Driver = config.DriverMemory
	cfg.Git.AutoCommit = false
	ws, err := workspace.New(context.Background(), t.TempDir(), cfg, usdFeed{})
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(ws, zerolog.Nop()))
	t.Cleanup(func() {
		srv.Close()
		ws.Close()
	})
	return srv, ws
}

func upload(t *testing.T, srv *httptest.Server, query, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/imports"+query, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func chase(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("../../testdata/chase_checking.csv")
	require.NoError(t, err)
	return data
}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestImport_ThenDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "", "chase_checking.csv", chase(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[importJSON](t, resp)
	assert.Equal(t, 4, first.ExpensesCreated)
	assert.Equal(t, 1, first.RevenuesCreated)
	assert.Equal(t, 1, first.Skipped)
	assert.Len(t, first.CreatedIDs, 5)
	assert.False(t, first.OfferForce)

	resp = upload(t, srv, "", "chase_checking.csv", chase(t))
	second := decode[importJSON](t, resp)
	assert.True(t, second.FileSeenBefore)
	assert.Equal(t, 5, second.DuplicatesSkipped)
	assert.True(t, second.OfferForce)

	resp = upload(t, srv, "?force=true", "chase_checking.csv", chase(t))
	forced := decode[importJSON](t, resp)
	assert.Equal(t, 5, forced.Replaced)
	assert.Equal(t, 0, forced.DuplicatesSkipped)
}

func TestImport_BadUploads(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := upload(t, srv, "", "broken.csv", []byte("a,b\n1,2\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = upload(t, srv, "?force=maybe", "chase.csv", chase(t))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(srv.URL+"/imports", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestLedgerEndpoints(t *testing.T) {
	srv, ws := newTestServer(t)
	resp := upload(t, srv, "", "chase_checking.csv", chase(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list, err := http.Get(srv.URL + "/ledger")
	require.NoError(t, err)
	defer list.Body.Close()
	body := decode[struct {
		Entries []entryJSON `json:"entries"`
		Count   int         `json:"count"`
	}](t, list)
	assert.Equal(t, 6, body.Count, "five records and the file")

	recs, err := ws.Store.ListRecords(context.Background())
	require.NoError(t, err)
	fp := recs[0].ImportFingerprint

	got, err := http.Get(srv.URL + "/ledger/" + fp)
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "record", decode[entryJSON](t, got).Kind)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/ledger/"+fp, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing, err := http.Get(srv.URL + "/ledger/" + fp)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRecordSearch(t *testing.T) {
	srv, _ := newTestServer(t)
	upload(t, srv, "", "chase_checking.csv", chase(t))

	type page struct {
		Records []recordJSON `json:"records"`
		Count   int          `json:"count"`
	}

	resp, err := http.Get(srv.URL + "/records?q=shell")
	require.NoError(t, err)
	defer resp.Body.Close()
	p := decode[page](t, resp)
	require.Equal(t, 1, p.Count)
	assert.Equal(t, "SHELL C01234 TORONTO ON", p.Records[0].Description)

	resp2, err := http.Get(srv.URL + "/records?amount=%3E1000")
	require.NoError(t, err)
	defer resp2.Body.Close()
	p = decode[page](t, resp2)
	require.Equal(t, 1, p.Count)
	assert.Equal(t, "revenue", p.Records[0].Book)

	resp3, err := http.Get(srv.URL + "/records?amount=lots")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)

	resp4, err := http.Get(srv.URL + "/records/exp-202501-nothere")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}

func TestLinkEndpoint(t *testing.T) {
	srv, ws := newTestServer(t)
	upload(t, srv, "", "chase_checking.csv", chase(t))

	receipts := `{"source":"receipt","candidates":[
		{"date":"2025-01-15","vendor":"Staples","amount":"22.60","currency":"CAD","tax":{"hst":"2.60"}}
	]}`
	resp := upload(t, srv, "", "staples.json", []byte(receipts))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[importJSON](t, resp)
	assert.Equal(t, 1, res.Linked, "linked during import")
	receiptID := res.CreatedIDs[0]

	// Already linked: asking again reports the existing counterpart.
	link, err := http.Post(srv.URL+"/records/"+receiptID+"/link", "application/json", nil)
	require.NoError(t, err)
	defer link.Body.Close()
	out := decode[linkJSON](t, link)
	assert.Equal(t, "linked", out.Status)

	bank, err := ws.Store.GetRecord(context.Background(), out.CounterpartID)
	require.NoError(t, err)
	assert.Equal(t, "2.60", bank.Tax.HST.StringFixed(2))

	conflict, err := http.Post(srv.URL+"/records/"+receiptID+"/link", "application/json",
		strings.NewReader(`{"counterpart_id":"`+out.CounterpartID+`"}`))
	require.NoError(t, err)
	defer conflict.Body.Close()
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)
}

func TestRateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/rates/usd/2025-01-18")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	r := decode[rateJSON](t, resp)
	assert.Equal(t, "USD", r.Currency)
	assert.Equal(t, "2025-01-17", r.ObservedOn, "Saturday resolves to Friday")
	assert.Equal(t, "1.37", r.Rate.String())
	assert.False(t, r.Approximate)

	bad, err := http.Get(srv.URL + "/rates/usd/yesterday")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
