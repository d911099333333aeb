package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/persist"
	"github.com/ndrandal/simbroker/internal/simbroker"
	"github.com/ndrandal/simbroker/internal/symbol"
)

// --- stub AuditReader ---

type stubAuditReader struct {
	records []persist.AuditRecord
	err     error

	lastFilter persist.AuditFilter
}

func (s *stubAuditReader) QueryAudit(_ context.Context, f persist.AuditFilter) ([]persist.AuditRecord, error) {
	s.lastFilter = f
	return s.records, s.err
}

// --- test helpers ---

func newTestServer(t *testing.T, audit persist.AuditReader) (*Server, *http.ServeMux, ledger.AcctID) {
	t.Helper()

	c := simbroker.NewClient()
	settings := simbroker.DefaultSettings()
	if err := c.Init(settings, 7, zerolog.Nop(), func(simbroker.TickstreamSpec) (symbol.Source, error) {
		return nil, errors.New("no tickstreams configured")
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := c.OneshotPriceSet("EURUSD", 10_8500, 10_8502, true, 4); err != nil {
		t.Fatalf("oneshot price set: %v", err)
	}

	acct, err := c.CreateAccount(ledger.AcctID{1})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	srv := NewServer(c, audit)
	mux := http.NewServeMux()
	srv.Register(mux)
	return srv, mux, acct.ID
}

func mustDecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}

// --- tests ---

func TestHandleAccounts(t *testing.T) {
	_, mux, acctID := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/accounts", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out []map[string]any
	mustDecodeJSON(t, w.Result(), &out)

	if len(out) != 1 {
		t.Fatalf("expected 1 account, got %d", len(out))
	}
	if out[0]["acctId"] != acctID.String() {
		t.Errorf("expected acctId %s, got %v", acctID, out[0]["acctId"])
	}
}

func TestHandleLedger(t *testing.T) {
	_, mux, acctID := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/accounts/"+acctID.String()+"/ledger", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out map[string]any
	mustDecodeJSON(t, w.Result(), &out)

	for _, key := range []string{"acctId", "buyingPower", "pending", "open", "closed"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing key %q in ledger JSON", key)
		}
	}
}

func TestHandleLedgerNotFound(t *testing.T) {
	_, mux, _ := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/accounts/"+ledger.AcctID{2}.String()+"/ledger", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleLedgerBadID(t *testing.T) {
	_, mux, _ := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/accounts/not-a-uuid/ledger", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleSymbols(t *testing.T) {
	_, mux, _ := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/symbols", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out []map[string]any
	mustDecodeJSON(t, w.Result(), &out)

	if len(out) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(out))
	}
	if out[0]["name"] != "EURUSD" {
		t.Errorf("expected name EURUSD, got %v", out[0]["name"])
	}
}

func TestHandleAudit(t *testing.T) {
	stub := &stubAuditReader{
		records: []persist.AuditRecord{
			{AcctID: ledger.AcctID{1}, Seq: 0, Kind: "OrderPlaced"},
			{AcctID: ledger.AcctID{1}, Seq: 1, Kind: "PositionOpened"},
		},
	}
	_, mux, acctID := newTestServer(t, stub)
	req := httptest.NewRequest("GET", "/api/audit/"+acctID.String()+"?limit=5&offset=10", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out []persist.AuditRecord
	mustDecodeJSON(t, w.Result(), &out)
	if len(out) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(out))
	}
	if stub.lastFilter.Limit != 5 || stub.lastFilter.Offset != 10 {
		t.Errorf("filter not threaded through: %+v", stub.lastFilter)
	}
}

func TestHandleAuditBadID(t *testing.T) {
	_, mux, _ := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/audit/not-a-uuid", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleAuditDBError(t *testing.T) {
	stub := &stubAuditReader{err: errors.New("db connection lost")}
	_, mux, acctID := newTestServer(t, stub)
	req := httptest.NewRequest("GET", "/api/audit/"+acctID.String(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	_, mux, _ := newTestServer(t, &stubAuditReader{})
	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out map[string]any
	mustDecodeJSON(t, w.Result(), &out)

	for _, key := range []string{"uptime", "accounts", "symbols"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing key %q in stats response", key)
		}
	}
	if out["accounts"] != float64(1) {
		t.Errorf("expected accounts=1, got %v", out["accounts"])
	}
}

func TestContentTypeJSON(t *testing.T) {
	_, mux, acctID := newTestServer(t, &stubAuditReader{})

	endpoints := []string{
		"/api/accounts",
		"/api/accounts/" + acctID.String() + "/ledger",
		"/api/symbols",
		"/api/stats",
	}

	for _, ep := range endpoints {
		req := httptest.NewRequest("GET", ep, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		ct := w.Header().Get("Content-Type")
		if ct != "application/json" {
			t.Errorf("%s: expected Content-Type application/json, got %q", ep, ct)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		url  string
		key  string
		def  int
		want int
	}{
		{"/test", "limit", 100, 100},
		{"/test?limit=50", "limit", 100, 50},
		{"/test?limit=abc", "limit", 100, 100},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.url, nil)
		got := parseIntParam(req, tt.key, tt.def)
		if got != tt.want {
			t.Errorf("parseIntParam(%q, %q, %d) = %d, want %d", tt.url, tt.key, tt.def, got, tt.want)
		}
	}
}

func TestParseTimeParam(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	if got := parseTimeParam(req, "from"); got != nil {
		t.Errorf("expected nil for empty param, got %v", got)
	}

	req = httptest.NewRequest("GET", "/test?from=not-a-time", nil)
	if got := parseTimeParam(req, "from"); got != nil {
		t.Errorf("expected nil for bad format, got %v", got)
	}

	ts := "2025-01-15T10:30:00Z"
	req = httptest.NewRequest("GET", "/test?from="+ts, nil)
	got := parseTimeParam(req, "from")
	if got == nil {
		t.Fatal("expected non-nil time")
	}
}
