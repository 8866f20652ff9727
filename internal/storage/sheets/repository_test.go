package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/pkg/logger"
)

const bookID = "book"

// fakeSheets keeps tab contents in memory and serves the subset of the
// Sheets v4 REST API the repository uses
type fakeSheets struct {
	mu   sync.Mutex
	tabs map[string][][]interface{}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/"+bookID)
	switch {
	case path == "" && r.Method == http.MethodGet:
		var list []*sheets.Sheet
		for name := range f.tabs {
			list = append(list, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: name}})
		}
		writeJSON(w, sheets.Spreadsheet{Sheets: list})

	case path == ":batchUpdate":
		var req sheets.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.tabs[rq.AddSheet.Properties.Title] = nil
			}
		}
		writeJSON(w, map[string]interface{}{})

	case strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		switch {
		case strings.HasSuffix(rng, ":append"):
			tab, _, _ := parseRange(strings.TrimSuffix(rng, ":append"))
			var vr sheets.ValueRange
			json.NewDecoder(r.Body).Decode(&vr)
			f.tabs[tab] = append(f.tabs[tab], vr.Values...)
		case strings.HasSuffix(rng, ":clear"):
			tab, start, _ := parseRange(strings.TrimSuffix(rng, ":clear"))
			f.set(tab, start, []interface{}{})
		case r.Method == http.MethodPut:
			tab, start, _ := parseRange(rng)
			var vr sheets.ValueRange
			json.NewDecoder(r.Body).Decode(&vr)
			f.set(tab, start, vr.Values[0])
		default:
			tab, start, end := parseRange(rng)
			rows := f.tabs[tab]
			if end == 0 || end > len(rows) {
				end = len(rows)
			}
			var out [][]interface{}
			if start-1 < end {
				out = rows[start-1 : end]
			}
			writeJSON(w, sheets.ValueRange{Range: rng, Values: out})
			return
		}
		writeJSON(w, map[string]interface{}{})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSheets) set(tab string, rowNum int, row []interface{}) {
	for len(f.tabs[tab]) < rowNum {
		f.tabs[tab] = append(f.tabs[tab], []interface{}{})
	}
	f.tabs[tab][rowNum-1] = row
}

// parseRange splits "Tab!A2:Z5" into the tab and 1-based start and end rows; 0 means open
func parseRange(rng string) (string, int, int) {
	tab, cells, _ := strings.Cut(rng, "!")
	from, to, _ := strings.Cut(cells, ":")
	return tab, rowOf(from, 1), rowOf(to, 0)
}

func rowOf(cell string, fallback int) int {
	digits := strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestRepo(t *testing.T) (*Repository, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{tabs: map[string][][]interface{}{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	repo := NewWithService(svc, bookID, logger.Nop())
	require.NoError(t, repo.Migrate())
	return repo, fake
}

func TestMigrateCreatesTabsWithHeaders(t *testing.T) {
	repo, fake := newTestRepo(t)

	for _, tab := range []string{settingsSheetName, tokensSheetName, insightsSheetName, runsSheetName} {
		rows, ok := fake.tabs[tab]
		require.True(t, ok, tab)
		require.Len(t, rows, 1, tab)
	}
	assert.Equal(t, "Run ID", fake.tabs[runsSheetName][0][0])

	// a second migration leaves existing headers alone
	require.NoError(t, repo.Migrate())
	assert.Len(t, fake.tabs[settingsSheetName], 1)
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t)

	_, err := repo.GetSetting(ctx, "publish_history")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.SaveSetting(ctx, "publish_history", `["a|1"]`))
	require.NoError(t, repo.SaveSetting(ctx, "publish_history", `["a|1","b|1"]`))

	got, err := repo.GetSetting(ctx, "publish_history")
	require.NoError(t, err)
	assert.Equal(t, `["a|1","b|1"]`, got)
	assert.Len(t, fake.tabs[settingsSheetName], 2, "header plus one row")
}

func TestTokenRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	expires := time.Date(2030, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveToken(ctx, &models.OAuthToken{
		Provider:    models.ProviderFacebook,
		AccessToken: "long-lived",
		TokenType:   "Bearer",
		ExpiresAt:   expires,
	}))

	token, err := repo.GetToken(ctx, models.ProviderFacebook)
	require.NoError(t, err)
	assert.Equal(t, "long-lived", token.AccessToken)
	assert.True(t, token.ExpiresAt.Equal(expires))

	require.NoError(t, repo.DeleteToken(ctx, models.ProviderFacebook))
	_, err = repo.GetToken(ctx, models.ProviderFacebook)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, repo.DeleteToken(ctx, models.ProviderFacebook))
}

func TestLatestInsights(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	base := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	for i, src := range []string{"simulated", "graph"} {
		require.NoError(t, repo.SaveInsights(ctx, &models.InsightsSnapshot{
			PageID:    "page-1",
			Hourly:    models.JSON{"scores": []float64{float64(i)}},
			Source:    src,
			FetchedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	snap, err := repo.LatestInsights(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "graph", snap.Source)
	assert.Equal(t, []interface{}{float64(1)}, snap.Hourly["scores"])

	_, err = repo.LatestInsights(ctx, "page-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunsUpsertAndList(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, repo.SaveRun(ctx, &models.RunRecord{
			RunID:     id,
			PageID:    "page-1",
			State:     models.RunStateRunning,
			Total:     4,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	finished := base.Add(4 * time.Hour)
	require.NoError(t, repo.SaveRun(ctx, &models.RunRecord{
		RunID:      "r2",
		PageID:     "page-1",
		State:      models.RunStateCompleted,
		Total:      4,
		Succeeded:  3,
		Skipped:    1,
		StartedAt:  base.Add(time.Hour),
		FinishedAt: &finished,
	}))

	runs, err := repo.ListRuns(ctx, storage.DefaultRunFilter())
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r3", runs[0].RunID)
	assert.Equal(t, "r2", runs[1].RunID)
	assert.Equal(t, 3, runs[1].Succeeded)
	require.NotNil(t, runs[1].FinishedAt)
	assert.True(t, runs[1].FinishedAt.Equal(finished))

	completed := models.RunStateCompleted
	runs, err = repo.ListRuns(ctx, storage.RunFilter{State: &completed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].RunID)

	runs, err = repo.ListRuns(ctx, storage.RunFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)
}
