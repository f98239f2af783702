package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

const DefaultRange = "A:F"

// GoogleSheets reads a spreadsheet range with an API key. The sheet must be readable
// by anyone with the link.
type GoogleSheets struct {
	SpreadsheetID string
	APIKey        string
	Range         string
	Timeout       time.Duration
	// RevokedKeys are rejected up front like placeholders.
	RevokedKeys []string
	// Endpoint overrides the Sheets API base URL.
	Endpoint string
}

// Validate checks credentials without touching the network.
func (g GoogleSheets) Validate() error {
	if isPlaceholder(g.APIKey, g.RevokedKeys) {
		return &ConfigError{Field: "GOOGLE_SHEETS_API_KEY", Reason: "is missing, a placeholder or revoked"}
	}
	if strings.TrimSpace(g.SpreadsheetID) == "" {
		return &ConfigError{Field: "GOOGLE_SHEETS_SPREADSHEET_ID", Reason: "is missing"}
	}
	return nil
}

func (g GoogleSheets) FetchRows(ctx context.Context) ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []option.ClientOption{option.WithAPIKey(g.APIKey)}
	if g.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.Endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &FetchError{Kind: KindUnavailable, Err: err}
	}

	readRange := g.Range
	if readRange == "" {
		readRange = DefaultRange
	}
	resp, err := svc.Spreadsheets.Values.Get(g.SpreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, values := range resp.Values {
		row := make([]string, len(values))
		for i, cell := range values {
			if cell != nil {
				row[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, row)
	}

	if err := checkDataset(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func classifyGoogleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FetchError{Kind: KindUnavailable, Err: err}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key expired"):
		return &FetchError{Kind: KindCredentialExpired, Err: err}
	case strings.Contains(msg, "API key not valid"):
		return &FetchError{Kind: KindCredentialInvalid, Err: err}
	case strings.Contains(msg, "does not have permission"):
		return &FetchError{Kind: KindPermissionDenied, Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return &FetchError{Kind: KindCredentialInvalid, Err: err}
		case http.StatusForbidden:
			return &FetchError{Kind: KindPermissionDenied, Err: err}
		case http.StatusNotFound:
			return &FetchError{Kind: KindNotFound, Err: err}
		}
	}
	return &FetchError{Kind: KindUnavailable, Err: err}
}
