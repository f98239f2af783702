package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"salesync/backend/internal/domain"
	"salesync/backend/internal/ingest"
)

// Sync fetches the sheet and reconciles it into the store. Fetch and configuration
// errors are returned as is so callers can tell them apart by kind.
func (s *Service) Sync(ctx context.Context) (domain.SyncResult, error) {
	if s.rows == nil {
		return domain.SyncResult{}, ErrNoSource
	}

	rows, err := s.rows.FetchRows(ctx)
	if err != nil {
		s.logger.Error("sync fetch failed", zap.Error(err))
		return domain.SyncResult{}, err
	}
	return s.Reconcile(ctx, rows)
}

// Reconcile drops the header row and upserts every remaining row in order. Bad rows are
// recorded as skipped outcomes and never stop the batch. A cancelled ctx stops between
// rows; rows already written stay written and the partial result is returned with ctx.Err().
func (s *Service) Reconcile(ctx context.Context, rows [][]string) (domain.SyncResult, error) {
	result := domain.SyncResult{RunID: ulid.Make().String()}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	result.TotalRows = len(rows)
	result.Outcomes = make([]domain.RowOutcome, 0, len(rows))

	logger := s.logger.With(zap.String("run_id", result.RunID))

	var runErr error
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		// sheet row number, header is row 1
		outcome := s.reconcileRow(ctx, i+2, row)
		if outcome.Status.Skipped() {
			logger.Warn("sync row skipped",
				zap.Int("row", outcome.Row),
				zap.String("status", string(outcome.Status)),
				zap.String("reason", outcome.Reason),
			)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	result.Inserted = result.CountStatus(domain.RowInserted)
	result.Updated = result.CountStatus(domain.RowUpdated)
	result.Skipped = result.CountStatus(domain.RowParseFailed) + result.CountStatus(domain.RowStoreFailed)
	result.Message = syncMessage(result, runErr != nil)

	if result.Inserted+result.Updated > 0 {
		s.invalidate(context.WithoutCancel(ctx))
	}

	logger.Info("sync finished",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("total_rows", result.TotalRows),
		zap.Bool("interrupted", runErr != nil),
	)
	return result, runErr
}

func (s *Service) reconcileRow(ctx context.Context, rowNumber int, row []string) domain.RowOutcome {
	outcome := domain.RowOutcome{Row: rowNumber}

	sale, err := ingest.ParseRow(row)
	if err != nil {
		outcome.Status = domain.RowParseFailed
		var parseErr *ingest.ParseError
		if errors.As(err, &parseErr) {
			outcome.Reason = string(parseErr.Reason)
		} else {
			outcome.Reason = err.Error()
		}
		if len(row) > 0 {
			outcome.Product = row[0]
		}
		return outcome
	}

	outcome.Product = sale.Product
	outcome.Date = sale.Date.Format(domain.DateLayout)

	res, err := s.repo.UpsertSale(ctx, sale)
	if err != nil {
		outcome.Status = domain.RowStoreFailed
		outcome.Reason = err.Error()
		return outcome
	}

	if res.Inserted {
		outcome.Status = domain.RowInserted
	} else {
		outcome.Status = domain.RowUpdated
	}
	return outcome
}

func syncMessage(result domain.SyncResult, interrupted bool) string {
	msg := fmt.Sprintf("sync complete: %d inserted, %d updated, %d skipped of %d rows",
		result.Inserted, result.Updated, result.Skipped, result.TotalRows)
	if interrupted {
		processed := len(result.Outcomes)
		msg = fmt.Sprintf("sync interrupted after %d of %d rows: %d inserted, %d updated, %d skipped",
			processed, result.TotalRows, result.Inserted, result.Updated, result.Skipped)
	}
	return msg
}
