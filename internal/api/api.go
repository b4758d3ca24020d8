// Package api exposes imports, the duplicate ledger, records and rates over
// HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/api/middleware"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/linker"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/logger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/reconcile"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/search"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/workspace"
)

// maxUpload bounds an uploaded statement.
const maxUpload = 32 << 20

// Server handles HTTP requests against a workspace.
type Server struct {
	ws *workspace.Workspace
}

// NewRouter builds the routed, middleware-wrapped handler.
func NewRouter(ws *workspace.Workspace, log zerolog.Logger) http.Handler {
	s := &Server{ws: ws}
	r := mux.NewRouter()
	r.Use(middleware.RequestID(log), middleware.Recovery, middleware.Logger)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/imports", s.createImport).Methods(http.MethodPost)
	r.HandleFunc("/ledger", s.listLedger).Methods(http.MethodGet)
	r.HandleFunc("/ledger/{fingerprint}", s.getLedgerEntry).Methods(http.MethodGet)
	r.HandleFunc("/ledger/{fingerprint}", s.forgetLedgerEntry).Methods(http.MethodDelete)
	r.HandleFunc("/records", s.searchRecords).Methods(http.MethodGet)
	r.HandleFunc("/records/{id}", s.getRecord).Methods(http.MethodGet)
	r.HandleFunc("/records/{id}/link", s.linkRecord).Methods(http.MethodPost)
	r.HandleFunc("/rates/{currency}/{date}", s.getRate).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createImport handles POST /imports with a multipart "file" field.
// Query: force, format, label, select (comma-separated factoring kinds).
func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	q := r.URL.Query()
	opts := workspace.ImportOptions{
		Format: q.Get("format"),
		Label:  q.Get("label"),
	}
	if v := q.Get("force"); v != "" {
		if opts.Force, err = strconv.ParseBool(v); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "force must be true or false")
			return
		}
	}
	if v := q.Get("select"); v != "" {
		for _, k := range strings.Split(v, ",") {
			opts.Selection = append(opts.Selection, model.Kind(strings.TrimSpace(k)))
		}
	}

	rep, err := s.ws.ImportFile(ctx, header.Filename, data, opts)
	if err != nil {
		var pf *reconcile.ParseFailure
		switch {
		case errors.As(err, &pf):
			middleware.WriteError(w, http.StatusUnprocessableEntity, pf.Error())
		case errors.Is(err, reconcile.ErrAborted):
			middleware.WriteError(w, http.StatusServiceUnavailable, "import aborted, nothing was saved")
		default:
			log := logger.FromContext(ctx)
			log.Error().Err(err).Msg("import failed")
			middleware.WriteError(w, http.StatusInternalServerError, "import failed")
		}
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toImportJSON(rep))
}

func (s *Server) listLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ws.Ledger.Entries(r.Context())
	if err != nil {
		s.internal(w, r, err)
		return
	}
	out := make([]entryJSON, len(entries))
	for i, e := range entries {
		out[i] = toEntryJSON(e)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

func (s *Server) getLedgerEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.ws.Store.GetEntry(r.Context(), mux.Vars(r)["fingerprint"])
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "fingerprint not in ledger")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toEntryJSON(e))
}

func (s *Server) forgetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Ledger.Forget(r.Context(), mux.Vars(r)["fingerprint"]); err != nil {
		s.internal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchRecords handles GET /records?q=&amount=. q is free text or an amount
// query; amount is always read as an amount query.
func (s *Server) searchRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ws.Store.ListRecords(r.Context())
	if err != nil {
		s.internal(w, r, err)
		return
	}
	q := r.URL.Query()
	if v := q.Get("q"); v != "" {
		recs = search.Filter(recs, v)
	}
	if v := q.Get("amount"); v != "" {
		aq, ok := search.ParseAmountQuery(v)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "amount must look like 42, >100, <20 or 10-50")
			return
		}
		var kept []model.CommittedRecord
		for _, rec := range recs {
			if aq.Matches(rec.AmountReporting) {
				kept = append(kept, rec)
			}
		}
		recs = kept
	}
	out := make([]recordJSON, len(recs))
	for i, rec := range recs {
		out[i] = toRecordJSON(rec)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"records": out, "count": len(out)})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ws.Store.GetRecord(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRecordJSON(rec))
}

// linkRecord handles POST /records/{id}/link. With a counterpart_id in the
// body the pair is linked as given; without one a match is searched for.
func (s *Server) linkRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	var req struct {
		CounterpartID string `json:"counterpart_id"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	rec, err := s.ws.Store.GetRecord(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}

	if req.CounterpartID != "" {
		if err := s.ws.Linker.LinkPair(ctx, id, req.CounterpartID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, "counterpart not found")
				return
			}
			middleware.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		middleware.WriteJSON(w, http.StatusOK, linkJSON{Status: string(linker.StatusLinked), RecordID: id, CounterpartID: req.CounterpartID})
		return
	}

	out, err := s.ws.Linker.Link(ctx, rec)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, linkJSON{
		Status:        string(out.Status),
		RecordID:      out.RecordID,
		CounterpartID: out.CounterpartID,
		CandidateIDs:  out.CandidateIDs,
	})
}

func (s *Server) getRate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	day, err := time.Parse(time.DateOnly, vars["date"])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	cur := strings.ToUpper(vars["currency"])
	if len(cur) != 3 {
		middleware.WriteError(w, http.StatusBadRequest, "currency must be a 3-letter code")
		return
	}
	rate, err := s.ws.Resolver.Resolve(r.Context(), cur, day)
	if err != nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRateJSON(rate))
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	middleware.WriteError(w, http.StatusInternalServerError, "internal error")
}
