package query

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := NewService(newTestBuilder(t, true))
	handler := NewHandler(svc, zerolog.Nop(), testMetrics)
	mux := http.NewServeMux()
	handler.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("get %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	srv := newTestServer(t)

	var info StatusInfo
	getJSON(t, srv.URL+"/v1/status", http.StatusOK, &info)
	if info.ModuleID != "mod-1" || info.BestHeight != 12 {
		t.Errorf("status = %+v", info)
	}
}

func TestHTTPPoolErrors(t *testing.T) {
	srv := newTestServer(t)

	getJSON(t, srv.URL+"/v1/pool", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/v1/pool?tick0=aaaa&tick1=zzzz", http.StatusNotFound, nil)

	var pool PoolInfo
	getJSON(t, srv.URL+"/v1/pool?tick0=bbbb&tick1=aaaa", http.StatusOK, &pool)
	if pool.Reserve0 != "50" || pool.Reserve1 != "50" {
		t.Errorf("pool = %+v", pool)
	}
}

func TestHTTPQuoteDefaultsToExactIn(t *testing.T) {
	srv := newTestServer(t)

	var quote QuoteResult
	getJSON(t, srv.URL+"/v1/quote?tickIn=aaaa&tickOut=bbbb&amount=10", http.StatusOK, &quote)
	if quote.AmountOut != "8.333333333333333333" {
		t.Errorf("quote = %+v", quote)
	}

	getJSON(t, srv.URL+"/v1/quote?tickIn=aaaa", http.StatusBadRequest, nil)
}

func TestHTTPBalances(t *testing.T) {
	srv := newTestServer(t)

	var payload struct {
		Address  string        `json:"address"`
		Balances []BalanceInfo `json:"balances"`
	}
	getJSON(t, srv.URL+"/v1/balances?address=bc1qalice", http.StatusOK, &payload)
	if payload.Address != "bc1qalice" || len(payload.Balances) != 3 {
		t.Errorf("balances = %+v", payload)
	}

	getJSON(t, srv.URL+"/v1/balances", http.StatusBadRequest, nil)
}
