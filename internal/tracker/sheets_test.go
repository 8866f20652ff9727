package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
)

func TestRow(t *testing.T) {
	at := time.Date(2030, 1, 2, 9, 30, 0, 0, time.UTC)
	rec := models.PublishRecord{
		RunID:       "run-1",
		ItemKind:    models.ItemKindUpload,
		ItemLabel:   "beach.jpg",
		SourceID:    "beach.jpg",
		PageID:      "123",
		PostID:      "123_456",
		Caption:     strings.Repeat("a", 250),
		ScheduledAt: &at,
		RecordedAt:  at.Add(-time.Hour),
	}

	row := Row(rec)
	require.Len(t, row, len(SheetColumns))
	assert.Equal(t, "123", row[4], "page name falls back to id")
	assert.Equal(t, StatusScheduled, row[6])
	assert.Equal(t, "2030-01-02T09:30:00Z", row[7])
	assert.Len(t, row[8], captionPreviewLen+3)

	rec.ScheduledAt = nil
	rec.PageName = "Beach Club"
	row = Row(rec)
	assert.Equal(t, "Beach Club", row[4])
	assert.Equal(t, StatusPublished, row[6])
	assert.Equal(t, "", row[7])
}

func TestRecordAppendsRow(t *testing.T) {
	var gotPath string
	var body sheets.ValueRange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	tr := NewWithService(svc, "sheet-1", "", logger.Nop())
	err = tr.Record(context.Background(), models.PublishRecord{
		RunID:      "run-1",
		ItemKind:   models.ItemKindNews,
		ItemLabel:  "Octopuses",
		PostID:     "p1",
		RecordedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/v4/spreadsheets/sheet-1/values/"), gotPath)
	assert.True(t, strings.HasSuffix(gotPath, ":append"), gotPath)
	require.Len(t, body.Values, 1)
	assert.Equal(t, "run-1", body.Values[0][0])
	assert.Equal(t, "news", body.Values[0][1])
	assert.Equal(t, "p1", body.Values[0][5])
}

func TestNewSheetsTrackerDisabled(t *testing.T) {
	tr, err := NewSheetsTracker(context.Background(), config.TrackerConfig{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, tr)
}
