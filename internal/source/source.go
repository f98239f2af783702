package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RowSource supplies the raw sales sheet: a header row followed by data rows.
type RowSource interface {
	FetchRows(ctx context.Context) ([][]string, error)
}

type Kind string

const (
	KindCredentialInvalid Kind = "credential_invalid"
	KindCredentialExpired Kind = "credential_expired"
	KindPermissionDenied  Kind = "permission_denied"
	KindNotFound          Kind = "not_found"
	KindEmptyDataset      Kind = "empty_dataset"
	KindUnavailable       Kind = "unavailable"
)

// FetchError aborts a whole sync run.
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch rows: %s", e.Kind)
	}
	return fmt.Sprintf("fetch rows: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Suggestion() string {
	switch e.Kind {
	case KindCredentialExpired:
		return "generate a new Google Sheets API key and update GOOGLE_SHEETS_API_KEY"
	case KindCredentialInvalid:
		return "check that GOOGLE_SHEETS_API_KEY is correct and the Sheets API is enabled for it"
	case KindPermissionDenied:
		return "share the spreadsheet so that anyone with the link can view it"
	case KindNotFound:
		return "check GOOGLE_SHEETS_SPREADSHEET_ID and the configured range"
	case KindEmptyDataset:
		return "make sure the sheet has a header row and data in columns A to F"
	default:
		return "the spreadsheet service could not be reached, try again later"
	}
}

// ConfigError reports a missing or placeholder setting detected before any network call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("source configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Suggestion() string {
	return fmt.Sprintf("set a valid %s in the environment or config file", e.Field)
}

// IsFatal reports whether err aborts a sync as opposed to a single row.
func IsFatal(err error) bool {
	var fetchErr *FetchError
	var cfgErr *ConfigError
	return errors.As(err, &fetchErr) || errors.As(err, &cfgErr)
}

// checkDataset requires a header plus at least one data row.
func checkDataset(rows [][]string) error {
	if len(rows) == 0 {
		return &FetchError{Kind: KindEmptyDataset, Err: errors.New("no rows returned")}
	}
	if len(rows) == 1 {
		return &FetchError{Kind: KindEmptyDataset, Err: errors.New("only a header row returned")}
	}
	return nil
}

var placeholderCredentials = map[string]bool{
	"your-api-key":      true,
	"your_api_key":      true,
	"your-api-key-here": true,
	"api-key":           true,
	"changeme":          true,
	"change-me":         true,
	"placeholder":       true,
	"insert-key-here":   true,
	"xxx":               true,
	"todo":              true,
}

func isPlaceholder(value string, revoked []string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	if placeholderCredentials[strings.ToLower(v)] {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	for _, key := range revoked {
		if v == strings.TrimSpace(key) {
			return true
		}
	}
	return false
}
