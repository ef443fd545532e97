package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/cache"
	"github.com/sheikh-saqib/account-ledger/internal/ledger"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/rpc"
	"github.com/sheikh-saqib/account-ledger/internal/statement"
	"github.com/sheikh-saqib/account-ledger/internal/taillog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logs := taillog.NewStore(t.TempDir(), zerolog.Nop())
	t.Cleanup(func() { logs.Close() })
	l := ledger.NewLedger(logs, zerolog.Nop())
	require.NoError(t, l.Create(context.Background(), models.Account{ID: 1, CreditLimit: 1000, LogRecordSize: 64}))

	svc := statement.NewService(l, cache.New(), 10, zerolog.Nop(), logs)
	srv := httptest.NewServer(NewHandler(l, svc, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func get(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestPostTransaction(t *testing.T) {
	srv := newServer(t)

	resp, body := post(t, srv, "/accounts/1/transactions", `{"amount":400,"kind":"d","description":"coffee"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(-400), body["balance"])
	assert.Equal(t, float64(1000), body["limit"])

	resp, body = post(t, srv, "/accounts/1/transactions", `{"amount":700,"kind":"d","description":"too much"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "credit limit")

	resp, body = post(t, srv, "/accounts/1/transactions", `{"amount":50,"kind":"c","description":"refund"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(-350), body["balance"])
}

func TestPostTransactionValidation(t *testing.T) {
	srv := newServer(t)

	cases := map[string]string{
		"zero amount":         `{"amount":0,"kind":"c","description":"x"}`,
		"fractional amount":   `{"amount":1.5,"kind":"c","description":"x"}`,
		"bad kind":            `{"amount":1,"kind":"x","description":"x"}`,
		"empty description":   `{"amount":1,"kind":"c","description":""}`,
		"blank description":   `{"amount":1,"kind":"c","description":"  "}`,
		"newline description": `{"amount":1,"kind":"c","description":"a\nb"}`,
		"nul description":     `{"amount":1,"kind":"c","description":"a\u0000"}`,
		"long description":    `{"amount":1,"kind":"c","description":"12345678901"}`,
		"missing description": `{"amount":1,"kind":"c"}`,
		"not json":            `amount=1`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _ := post(t, srv, "/accounts/1/transactions", body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})
	}
}

func TestDescriptionSurvivesIntoStatement(t *testing.T) {
	srv := newServer(t)

	resp, _ := post(t, srv, "/accounts/1/transactions", `{"amount":5,"kind":"c","description":"ab  "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st models.Statement
	require.Equal(t, http.StatusOK, get(t, srv, "/accounts/1/statement", &st).StatusCode)
	require.Len(t, st.RecentTransactions, 1)
	assert.Equal(t, "ab  ", st.RecentTransactions[0].Description)
}

func TestUnknownAccount(t *testing.T) {
	srv := newServer(t)

	for _, path := range []string{"/accounts/6/transactions", "/accounts/abc/transactions", "/accounts/-1/transactions"} {
		resp, _ := post(t, srv, path, `{"amount":1,"kind":"c","description":"x"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/accounts/6/statement", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/accounts/6/balance", nil).StatusCode)
}

func TestStatementAndBalance(t *testing.T) {
	srv := newServer(t)
	for i := 1; i <= 12; i++ {
		resp, _ := post(t, srv, "/accounts/1/transactions", fmt.Sprintf(`{"amount":%d,"kind":"c","description":"n%d"}`, i, i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var st models.Statement
	resp := get(t, srv, "/accounts/1/statement", &st)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(78), st.Balance.Total)
	assert.Equal(t, int64(1000), st.Balance.Limit)
	require.Len(t, st.RecentTransactions, 10)
	assert.Equal(t, "n12", st.RecentTransactions[0].Description)
	assert.Equal(t, "n3", st.RecentTransactions[9].Description)

	var bal balanceResponse
	resp = get(t, srv, "/accounts/1/balance", &bal)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, balanceResponse{AccountID: 1, Balance: 78, Limit: 1000, Version: 12}, bal)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, get(t, srv, "/health", &health).StatusCode)
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type failingLedger struct{ err error }

func (f failingLedger) Create(context.Context, models.Account) error { return f.err }

func (f failingLedger) Apply(context.Context, int, int64, string) (models.ApplyResult, error) {
	return models.ApplyResult{}, f.err
}

func (f failingLedger) Get(context.Context, int) (models.Balance, error) {
	return models.Balance{}, f.err
}

func TestUnavailableLedgerMapsTo503(t *testing.T) {
	for _, cause := range []error{
		fmt.Errorf("persist: %w", models.ErrStorageUnavailable),
		rpc.ErrUndeliverable,
		rpc.ErrClosed,
	} {
		l := failingLedger{err: cause}
		svc := statement.NewService(l, cache.New(), 10, zerolog.Nop())
		srv := httptest.NewServer(NewHandler(l, svc, zerolog.Nop()).Router())

		resp, _ := post(t, srv, "/accounts/1/transactions", `{"amount":1,"kind":"c","description":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, cause.Error())
		assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/accounts/1/balance", nil).StatusCode)
		srv.Close()
	}
}
