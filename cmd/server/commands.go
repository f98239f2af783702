package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"salesync/backend/internal/domain"
	"salesync/backend/internal/source"
)

func newSyncCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import the sales sheet once and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			rows := rt.sheetsSource()
			if csvPath != "" {
				rows = source.CSVFile{Path: csvPath}
			}

			result, err := rt.service(rows).Sync(cmd.Context())
			if err != nil {
				if suggester, ok := err.(interface{ Suggestion() string }); ok {
					return fmt.Errorf("%w (%s)", err, suggester.Suggestion())
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				domain.SyncResult
				Failures []domain.RowOutcome `json:"failures"`
			}{result, result.Failures()})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "read rows from a CSV export instead of Google Sheets")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the sales summary for an optional date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := dateFilter(from, to)
			if err != nil {
				return err
			}

			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			summary, err := rt.service(nil).Dashboard(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to include (YYYY-MM-DD)")
	return cmd
}

func dateFilter(from, to string) (domain.DateFilter, error) {
	var filter domain.DateFilter
	if from != "" {
		t, err := time.Parse(domain.DateLayout, from)
		if err != nil {
			return filter, fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
		}
		filter.From = &t
	}
	if to != "" {
		t, err := time.Parse(domain.DateLayout, to)
		if err != nil {
			return filter, fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
		}
		filter.To = &t
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return domain.DateFilter{}, fmt.Errorf("--from must not be after --to")
	}
	return filter, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
