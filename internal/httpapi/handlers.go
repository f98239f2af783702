package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salesync/backend/internal/domain"
	"salesync/backend/internal/report"
	"salesync/backend/internal/service"
	"salesync/backend/internal/source"
	"salesync/backend/internal/store"
)

type syncResponse struct {
	domain.SyncResult
	Failures []domain.RowOutcome `json:"failures"`
}

type fatalErrorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details"`
	Suggestion string `json:"suggestion,omitempty"`
}

type saleRequest struct {
	Product   string          `json:"product"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
	Date      string          `json:"date"`
	Condition string          `json:"condition"`
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	reservation := a.syncLimiter.Reserve()
	if delay := reservation.Delay(); !reservation.OK() || delay > 0 {
		reservation.Cancel()
		w.Header().Set("Retry-After", retryAfterSeconds(delay))
		a.writeError(w, http.StatusTooManyRequests, errors.New("sync was triggered too recently, try again later"))
		return
	}

	result, err := a.service.Sync(r.Context())
	if err != nil {
		// a fetch timeout also unwraps to a context error but aborts the run like any fetch failure
		if !source.IsFatal(err) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			// rows processed before the interruption are already stored
			a.logger.Warn("sync interrupted", zap.String("run_id", result.RunID), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, syncResponse{SyncResult: result, Failures: result.Failures()})
			return
		}
		a.writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{SyncResult: result, Failures: result.Failures()})
}

func (a *API) writeSyncError(w http.ResponseWriter, err error) {
	var cfgErr *source.ConfigError
	if errors.As(err, &cfgErr) {
		writeJSON(w, http.StatusBadRequest, fatalErrorResponse{
			Error:      "spreadsheet credentials are not configured",
			Details:    err.Error(),
			Suggestion: cfgErr.Suggestion(),
		})
		return
	}

	var fetchErr *source.FetchError
	if !errors.As(err, &fetchErr) {
		if errors.Is(err, service.ErrNoSource) {
			a.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusBadGateway
	title := "spreadsheet service unavailable"
	switch fetchErr.Kind {
	case source.KindCredentialExpired:
		status, title = http.StatusBadRequest, "Google Sheets API key expired"
	case source.KindCredentialInvalid:
		status, title = http.StatusBadRequest, "Google Sheets API key is not valid"
	case source.KindPermissionDenied:
		status, title = http.StatusForbidden, "no permission to read the spreadsheet"
	case source.KindNotFound:
		status, title = http.StatusNotFound, "spreadsheet or range not found"
	case source.KindEmptyDataset:
		status, title = http.StatusNotFound, "no data found in the spreadsheet"
	}

	writeJSON(w, status, fatalErrorResponse{
		Error:      title,
		Details:    err.Error(),
		Suggestion: fetchErr.Suggestion(),
	})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDateFilter(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := a.service.Dashboard(r.Context(), filter)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "csv") {
		payload, err := report.WriteCSV(summary)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-summary-%s.csv\"", strings.ReplaceAll(filter.CacheKey(), "*", "all")))
		_, _ = w.Write(payload)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDateFilter(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	sales, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	date, err := time.Parse(domain.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
		return
	}

	sale, err := a.service.RecordSale(r.Context(), domain.Sale{
		Product:   req.Product,
		Revenue:   req.Revenue,
		Cost:      req.Cost,
		Profit:    req.Profit,
		Date:      date,
		Condition: req.Condition,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrInvalidSale):
			status = http.StatusBadRequest
		case errors.Is(err, store.ErrDuplicateSale):
			status = http.StatusConflict
		}
		a.writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleClearSales(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.service.ClearSales(r.Context(), r.URL.Query().Get("confirm"))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrConfirmationRequired):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrClearDisabled):
			status = http.StatusForbidden
		}
		a.writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"message": fmt.Sprintf("%d sales deleted", deleted),
	})
}

// parseDateFilter reads the optional from/to query parameters (YYYY-MM-DD, inclusive).
func parseDateFilter(r *http.Request) (domain.DateFilter, error) {
	var filter domain.DateFilter
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return domain.DateFilter{}, errors.New("from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return domain.DateFilter{}, errors.New("to must be YYYY-MM-DD")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return domain.DateFilter{}, errors.New("from must not be after to")
	}
	return filter, nil
}
