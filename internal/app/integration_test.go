package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scaletrend/internal/config"
	"scaletrend/internal/shared/testutil"
	v1 "scaletrend/pkg/contracts/api/v1"
	"scaletrend/pkg/contracts/domain"
)

// TestApplication_AnalyzeFlow drives the full upload path through the real
// router: multipart POST, session lookup by id, and a window requery.
func TestApplication_AnalyzeFlow(t *testing.T) {
	cleanup := setupTestEnvironment(t)
	defer cleanup()

	app, err := NewApplication()
	require.NoError(t, err)
	defer func() {
		app.WebSocketHub.Stop()
		app.AnalysisService.Close()
	}()

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	t.Run("csv upload through window requery", func(t *testing.T) {
		rows := testutil.SteadyLossRows(4)
		body, contentType, err := testutil.MultipartUpload("file", "diary.csv", testutil.CSVDataset(rows), map[string]string{"unit": "kg"})
		require.NoError(t, err)

		resp, err := http.Post(srv.URL+config.AnalyzeEndpoint, contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Location"))

		var created v1.AnalyzeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		require.NotEmpty(t, created.AnalysisID)
		require.NotNil(t, created.Summary)

		require.Len(t, created.Summary.Buckets, 4)
		assert.Equal(t, domain.UnitKilograms, created.Summary.DetectedUnit)
		assert.True(t, created.Summary.UnitOverridden)
		assert.Equal(t, 28, created.Summary.Meta.RowsTotal)
		assert.Equal(t, 28, created.Summary.Meta.RowsValid)

		require.NotNil(t, created.Summary.Regression.SlopeKGPerWeek)
		assert.InDelta(t, -1.0, *created.Summary.Regression.SlopeKGPerWeek, 1e-9)
		require.NotNil(t, created.Summary.EstDailyChange)
		assert.InDelta(t, -1100.0, *created.Summary.EstDailyChange, 1e-9)
		require.NotNil(t, created.Summary.EstimatedMaintenance)
		assert.InDelta(t, 3100.0, *created.Summary.EstimatedMaintenance, 1e-9)

		got, err := http.Get(srv.URL + config.AnalyzeEndpoint + "/" + created.AnalysisID)
		require.NoError(t, err)
		defer got.Body.Close()
		require.Equal(t, http.StatusOK, got.StatusCode)

		var summary domain.Summary
		require.NoError(t, json.NewDecoder(got.Body).Decode(&summary))
		assert.Len(t, summary.Buckets, 4)

		windowed, err := http.Get(srv.URL + fmt.Sprintf(
			"%s/%s/window?start=2024-01-08&end=2024-01-21", config.AnalyzeEndpoint, created.AnalysisID))
		require.NoError(t, err)
		defer windowed.Body.Close()
		require.Equal(t, http.StatusOK, windowed.StatusCode)

		var narrowed domain.Summary
		require.NoError(t, json.NewDecoder(windowed.Body).Decode(&narrowed))
		require.Len(t, narrowed.Buckets, 2)
		assert.Equal(t, "2024-W02", narrowed.Buckets[0].Week)
		assert.Equal(t, "2024-W03", narrowed.Buckets[1].Week)
		require.NotNil(t, narrowed.Regression.SlopeKGPerWeek)
		assert.InDelta(t, -1.0, *narrowed.Regression.SlopeKGPerWeek, 1e-9)
	})

	t.Run("xlsx upload", func(t *testing.T) {
		content, err := testutil.XLSXDataset(testutil.SteadyLossRows(2))
		require.NoError(t, err)

		body, contentType, err := testutil.MultipartUpload("file", "diary.xlsx", content, nil)
		require.NoError(t, err)

		resp, err := http.Post(srv.URL+config.AnalyzeEndpoint, contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created v1.AnalyzeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		require.NotNil(t, created.Summary)
		assert.Len(t, created.Summary.Buckets, 2)
		assert.Equal(t, domain.EnergySourceColumn, created.Summary.Meta.EnergySource)
	})
}
