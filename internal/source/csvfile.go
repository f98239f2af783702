package source

import (
	"context"
	"encoding/csv"
	"os"
)

// CSVFile reads a sheet exported as CSV, header row included.
type CSVFile struct {
	Path string
}

func (c CSVFile) FetchRows(_ context.Context) ([][]string, error) {
	if c.Path == "" {
		return nil, &ConfigError{Field: "csv path", Reason: "is missing"}
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, &FetchError{Kind: KindUnavailable, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &FetchError{Kind: KindUnavailable, Err: err}
	}

	if err := checkDataset(rows); err != nil {
		return nil, err
	}
	return rows, nil
}
