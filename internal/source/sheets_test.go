package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func newSheetsFixture(t *testing.T, handler http.HandlerFunc) *SheetsSource {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := sheets.NewService(context.Background(),
		option.WithEndpoint(ts.URL),
		option.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	return &SheetsSource{service: srv, spreadsheetID: "sheet-1", readRange: "A:Z"}
}

func valuesHandler(t *testing.T, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "sheet-1"), "unexpected path %s", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func TestSheetsFetch(t *testing.T) {
	src := newSheetsFixture(t, valuesHandler(t, `{
		"range": "A:Z",
		"majorDimension": "ROWS",
		"values": [
			["物件番号", "物件名"],
			["A-100", "グランメゾン青山"],
			["A-101", "パークハウス目黒"]
		]
	}`))

	headers, rows, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"物件番号", "物件名"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "A-100", rows[0][0])
}

func TestSheetsFetchEmptySheet(t *testing.T) {
	src := newSheetsFixture(t, valuesHandler(t, `{"range": "A:Z", "majorDimension": "ROWS"}`))

	headers, rows, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, headers)
	assert.Nil(t, rows)
}

func TestSheetsTestConnection(t *testing.T) {
	src := newSheetsFixture(t, valuesHandler(t, `{"range": "A:Z", "majorDimension": "ROWS"}`))
	assert.NoError(t, src.TestConnection(context.Background()))
}

func TestSheetsTestConnectionFailure(t *testing.T) {
	src := newSheetsFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "The caller does not have permission"}}`, http.StatusForbidden)
	})

	err := src.TestConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")
}
