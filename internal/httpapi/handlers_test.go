package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"salesync/backend/internal/cache"
	"salesync/backend/internal/service"
	"salesync/backend/internal/source"
	"salesync/backend/internal/store/memory"
)

var sheetHeader = []string{"Product", "Revenue", "Cost", "Profit", "Date", "Condition"}

type stubRows struct {
	rows [][]string
	err  error
}

func (s stubRows) FetchRows(context.Context) ([][]string, error) {
	return s.rows, s.err
}

// newTestAPI builds a full API over an in-memory store so handler tests exercise
// the complete request path.
func newTestAPI(t *testing.T, rows source.RowSource, opts Options) *API {
	t.Helper()

	logger := zaptest.NewLogger(t)
	svc := service.New(memory.New(), rows, cache.NewLocalSummaryCache(time.Minute), logger, service.Options{
		ClearConfirmationToken: "wipe-staging-2024",
	})
	return New(svc, logger, opts)
}

func defaultRows() stubRows {
	return stubRows{rows: [][]string{
		sheetHeader,
		{"Jeans", "100,00", "50,00", "50,00", "15/01/2024", "cash"},
		{"Jeans", "120.00", "60.00", "60.00", "15/01/2024", "cash"},
		{"Hat", "40", "30", "10", "03/02/2024", ""},
		{"Belt", "10", "5", "5", "32/01/2024", "cash"},
	}}
}

func do(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t, nil, Options{}).Handler()

	rec := do(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleSyncReportsCounts(t *testing.T) {
	handler := newTestAPI(t, defaultRows(), Options{}).Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", got)
	}

	var body struct {
		RunID     string `json:"run_id"`
		Inserted  int    `json:"inserted"`
		Updated   int    `json:"updated"`
		Skipped   int    `json:"skipped"`
		TotalRows int    `json:"total_rows"`
		Message   string `json:"message"`
		Failures  []struct {
			Row    int    `json:"row"`
			Status string `json:"status"`
			Reason string `json:"reason"`
		} `json:"failures"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Inserted != 2 || body.Updated != 1 || body.Skipped != 1 || body.TotalRows != 4 {
		t.Fatalf("unexpected counts: %+v", body)
	}
	if body.RunID == "" || body.Message == "" {
		t.Fatalf("expected run id and message, got %+v", body)
	}
	if len(body.Failures) != 1 || body.Failures[0].Row != 5 || body.Failures[0].Reason != "invalid_date" {
		t.Fatalf("unexpected failures: %+v", body.Failures)
	}
}

func TestHandleSyncMapsFatalErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"placeholder key", &source.ConfigError{Field: "GOOGLE_SHEETS_API_KEY", Reason: "is missing"}, http.StatusBadRequest},
		{"expired", &source.FetchError{Kind: source.KindCredentialExpired}, http.StatusBadRequest},
		{"invalid", &source.FetchError{Kind: source.KindCredentialInvalid}, http.StatusBadRequest},
		{"permission", &source.FetchError{Kind: source.KindPermissionDenied}, http.StatusForbidden},
		{"empty", &source.FetchError{Kind: source.KindEmptyDataset}, http.StatusNotFound},
		{"unavailable", &source.FetchError{Kind: source.KindUnavailable}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestAPI(t, stubRows{err: tc.err}, Options{}).Handler()
			rec := do(t, handler, http.MethodPost, "/api/v1/sync", nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			body := decodeBody(t, rec)
			for _, key := range []string{"error", "details", "suggestion"} {
				if v, _ := body[key].(string); v == "" {
					t.Fatalf("expected %s in body, got %v", key, body)
				}
			}
		})
	}
}

func TestHandleSyncFetchTimeoutIsFatal(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	sheets := source.GoogleSheets{
		SpreadsheetID: "sheet-123",
		APIKey:        "AIza-test-key",
		Endpoint:      slow.URL + "/",
		Timeout:       50 * time.Millisecond,
	}
	handler := newTestAPI(t, sheets, Options{}).Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/sync", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	for _, key := range []string{"error", "details", "suggestion"} {
		if v, _ := body[key].(string); v == "" {
			t.Fatalf("expected %s in body, got %v", key, body)
		}
	}
}

func TestHandleSyncLogsInternalErrorsOnInjectedLogger(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	svc := service.New(memory.New(), stubRows{err: errors.New("disk on fire")}, nil, logger, service.Options{})
	handler := New(svc, logger, Options{}).Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/sync", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "internal server error" {
		t.Fatalf("expected generic error body, got %v", body)
	}

	entries := logs.FilterMessage("internal error").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 internal error log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["error"]; got != "disk on fire" {
		t.Fatalf("expected logged cause, got %v", got)
	}
}

func TestHandleSyncRateLimited(t *testing.T) {
	handler := newTestAPI(t, defaultRows(), Options{SyncInterval: time.Hour, SyncBurst: 1}).Handler()

	if rec := do(t, handler, http.MethodPost, "/api/v1/sync", nil); rec.Code != http.StatusOK {
		t.Fatalf("first sync expected 200, got %d", rec.Code)
	}
	rec := do(t, handler, http.MethodPost, "/api/v1/sync", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second sync expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestHandleSyncRejectsGet(t *testing.T) {
	handler := newTestAPI(t, defaultRows(), Options{}).Handler()
	if rec := do(t, handler, http.MethodGet, "/api/v1/sync", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleDashboard(t *testing.T) {
	handler := newTestAPI(t, defaultRows(), Options{}).Handler()
	do(t, handler, http.MethodPost, "/api/v1/sync", nil)

	rec := do(t, handler, http.MethodGet, "/api/v1/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Totals struct {
			TotalRevenue  string `json:"total_revenue"`
			AverageMargin string `json:"average_margin"`
			TotalCount    int    `json:"total_count"`
		} `json:"totals"`
		ByProduct []struct {
			Product string `json:"product"`
		} `json:"by_product"`
		ByCondition []struct {
			Condition string `json:"condition"`
		} `json:"by_condition"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Totals.TotalCount != 2 || body.Totals.TotalRevenue != "160" {
		t.Fatalf("unexpected totals: %+v", body.Totals)
	}
	if len(body.ByProduct) != 2 || body.ByProduct[0].Product != "Jeans" {
		t.Fatalf("expected Jeans first, got %+v", body.ByProduct)
	}
	if len(body.ByCondition) != 2 || body.ByCondition[1].Condition != "not informed" {
		t.Fatalf("unexpected conditions: %+v", body.ByCondition)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/dashboard?from=2024-02-01&to=2024-02-29", nil)
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Totals.TotalCount != 1 {
		t.Fatalf("expected 1 sale in February, got %d", body.Totals.TotalCount)
	}
}

func TestHandleDashboardRejectsBadDates(t *testing.T) {
	handler := newTestAPI(t, nil, Options{}).Handler()

	for _, target := range []string{
		"/api/v1/dashboard?from=15/01/2024",
		"/api/v1/dashboard?to=2024-13-01",
		"/api/v1/dashboard?from=2024-03-01&to=2024-02-01",
	} {
		if rec := do(t, handler, http.MethodGet, target, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s expected 400, got %d", target, rec.Code)
		}
	}
}

func TestHandleDashboardCSV(t *testing.T) {
	handler := newTestAPI(t, defaultRows(), Options{}).Handler()
	do(t, handler, http.MethodPost, "/api/v1/sync", nil)

	rec := do(t, handler, http.MethodGet, "/api/v1/dashboard?format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) < 6 || records[0][0] != "section" {
		t.Fatalf("unexpected csv: %v", records)
	}
}

func TestHandleSalesCreateListAndClear(t *testing.T) {
	handler := newTestAPI(t, nil, Options{}).Handler()

	payload := []byte(`{"product":"Jeans","revenue":"100.50","cost":"60","profit":"40.50","date":"2024-01-15","condition":"cash"}`)
	if rec := do(t, handler, http.MethodPost, "/api/v1/sales", payload); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, handler, http.MethodPost, "/api/v1/sales", payload); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate expected 409, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodPost, "/api/v1/sales", []byte(`{"product":"Hat","date":"15/01/2024"}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date expected 400, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodPost, "/api/v1/sales", []byte(`{"product":"Hat","date":"2024-01-15","qty":1}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field expected 400, got %d", rec.Code)
	}

	rec := do(t, handler, http.MethodGet, "/api/v1/sales", nil)
	var list struct {
		Sales []struct {
			Product string `json:"product"`
			Revenue string `json:"revenue"`
		} `json:"sales"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Sales) != 1 || list.Sales[0].Revenue != "100.5" {
		t.Fatalf("unexpected sales: %+v", list.Sales)
	}

	if rec := do(t, handler, http.MethodDelete, "/api/v1/sales", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("clear without confirmation expected 400, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodDelete, "/api/v1/sales?confirm=wipe-staging-2024", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["deleted"] != float64(1) {
		t.Fatalf("expected 1 deleted, got %v", body["deleted"])
	}
}

func TestHandleClearSalesDisabledWithoutToken(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := service.New(memory.New(), defaultRows(), nil, logger, service.Options{})
	handler := New(svc, logger, Options{}).Handler()

	for _, target := range []string{"/api/v1/sales", "/api/v1/sales?confirm=clear-all-sales"} {
		if rec := do(t, handler, http.MethodDelete, target, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", target, rec.Code)
		}
	}
}
