package source

import (
	"context"
	"fmt"
	"os"

	"estatesync/internal/config"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsSource reads the listing sheet through the Google Sheets API with
// a read-only service account.
type SheetsSource struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
}

func NewSheetsSource(ctx context.Context, cfg config.GoogleConfig) (*SheetsSource, error) {
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsSource{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		readRange:     cfg.ReadRange,
	}, nil
}

// TestConnection reads the first cell of the configured range.
func (s *SheetsSource) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		MajorDimension("ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// Fetch returns the header row followed by every data row in the
// configured range. An empty sheet yields no headers and no rows.
func (s *SheetsSource) Fetch(ctx context.Context) ([]string, [][]any, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		MajorDimension("ROWS").Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read range %s: %w", s.readRange, err)
	}

	if len(resp.Values) == 0 {
		return nil, nil, nil
	}

	headers := make([]string, 0, len(resp.Values[0]))
	for _, cell := range resp.Values[0] {
		headers = append(headers, fmt.Sprint(cell))
	}

	rows := make([][]any, 0, len(resp.Values)-1)
	for _, row := range resp.Values[1:] {
		rows = append(rows, row)
	}
	return headers, rows, nil
}
