package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/pkg/logger"
)

const (
	settingsSheetName = "Settings"
	tokensSheetName   = "Tokens"
	insightsSheetName = "Insights"
	runsSheetName     = "Runs"
)

// Config holds configuration for Sheets repository
type Config struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	CredentialsFile    string
}

// Repository implements storage.Repository using Google Sheets.
// Each record kind lives on its own tab, keyed by the first column.
type Repository struct {
	service       *sheets.Service
	spreadsheetID string
	log           *logger.Logger
	mu            sync.Mutex // serializes read-modify-write upserts
}

var _ storage.Repository = (*Repository)(nil)

// New creates a new Sheets repository
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Repository, error) {
	var srv *sheets.Service
	var err error

	if cfg.ServiceAccountJSON != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	} else if cfg.CredentialsFile != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		return nil, fmt.Errorf("no Google credentials provided")
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWithService(srv, cfg.SpreadsheetID, log), nil
}

// NewWithService wraps an already configured sheets service
func NewWithService(srv *sheets.Service, spreadsheetID string, log *logger.Logger) *Repository {
	return &Repository{
		service:       srv,
		spreadsheetID: spreadsheetID,
		log:           log.WithComponent("sheets-repo"),
	}
}

// Migrate creates sheets and headers if they don't exist
func (r *Repository) Migrate() error {
	ctx := context.Background()

	tabs := []struct {
		name    string
		headers []string
	}{
		{settingsSheetName, settingHeaders()},
		{tokensSheetName, tokenHeaders()},
		{insightsSheetName, insightsHeaders()},
		{runsSheetName, runHeaders()},
	}
	for _, tab := range tabs {
		if err := r.ensureSheetExists(ctx, tab.name, tab.headers); err != nil {
			return fmt.Errorf("failed to create %s sheet: %w", tab.name, err)
		}
	}

	r.log.Info().Msg("Sheets repository migrated successfully")
	return nil
}

// Close is a no-op for Sheets
func (r *Repository) Close() error {
	return nil
}

// ============ SETTINGS ============

// GetSetting returns the value stored under key
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	row, _, err := r.findRow(ctx, settingsSheetName, key)
	if err != nil {
		return "", err
	}
	return parseString(row, 1), nil
}

// SaveSetting creates or replaces the value stored under key
func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	return r.upsert(ctx, settingsSheetName, key, []interface{}{
		key,
		value,
		formatTime(time.Now()),
	})
}

// ============ OAUTH TOKENS ============

func (r *Repository) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	now := time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	return r.upsert(ctx, tokensSheetName, token.Provider, tokenToRow(token))
}

func (r *Repository) GetToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	row, _, err := r.findRow(ctx, tokensSheetName, provider)
	if err != nil {
		return nil, err
	}
	return rowToToken(row), nil
}

func (r *Repository) DeleteToken(ctx context.Context, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, rowNum, err := r.findRow(ctx, tokensSheetName, provider)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}
	return r.clearRow(ctx, tokensSheetName, rowNum)
}

// ============ INSIGHTS ============

func (r *Repository) SaveInsights(ctx context.Context, snapshot *models.InsightsSnapshot) error {
	row, err := insightsToRow(snapshot)
	if err != nil {
		return err
	}
	return r.appendRow(ctx, insightsSheetName, row)
}

func (r *Repository) LatestInsights(ctx context.Context, pageID string) (*models.InsightsSnapshot, error) {
	rows, err := r.readRows(ctx, insightsSheetName)
	if err != nil {
		return nil, err
	}

	var latest *models.InsightsSnapshot
	for _, row := range rows {
		if parseString(row, 0) != pageID {
			continue
		}
		snap := rowToInsights(row)
		if latest == nil || snap.FetchedAt.After(latest.FetchedAt) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

// ============ RUN RECORDS ============

func (r *Repository) SaveRun(ctx context.Context, run *models.RunRecord) error {
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	return r.upsert(ctx, runsSheetName, run.RunID, runToRow(run))
}

func (r *Repository) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.RunRecord, error) {
	rows, err := r.readRows(ctx, runsSheetName)
	if err != nil {
		return nil, err
	}

	var runs []*models.RunRecord
	for _, row := range rows {
		if parseString(row, 0) == "" {
			continue
		}
		run := rowToRun(row)
		if filter.PageID != nil && run.PageID != *filter.PageID {
			continue
		}
		if filter.State != nil && run.State != *filter.State {
			continue
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return []*models.RunRecord{}, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(runs) {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// ============ HELPER METHODS ============

func (r *Repository) ensureSheetExists(ctx context.Context, sheetName string, headers []string) error {
	spreadsheet, err := r.service.Spreadsheets.Get(r.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	sheetExists := false
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			sheetExists = true
			break
		}
	}

	if !sheetExists {
		r.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{
					AddSheet: &sheets.AddSheetRequest{
						Properties: &sheets.SheetProperties{
							Title: sheetName,
						},
					},
				},
			},
		}
		_, err = r.service.Spreadsheets.BatchUpdate(r.spreadsheetID, req).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
	}

	readRange := fmt.Sprintf("%s!A1:%s1", sheetName, columnLetter(len(headers)))
	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		headerRow := make([]interface{}, 0, len(headers))
		for _, h := range headers {
			headerRow = append(headerRow, h)
		}
		if err := r.updateRow(ctx, sheetName, 1, headerRow); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
		r.log.Info().Str("sheet", sheetName).Msg("Headers initialized")
	}

	return nil
}

// upsert replaces the row whose first cell is key, or appends a new one
func (r *Repository) upsert(ctx context.Context, sheetName, key string, row []interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, rowNum, err := r.findRow(ctx, sheetName, key)
	switch {
	case err == nil:
		return r.updateRow(ctx, sheetName, rowNum, row)
	case err == storage.ErrNotFound:
		return r.appendRow(ctx, sheetName, row)
	default:
		return err
	}
}

// findRow returns the first data row whose first cell is key and its 1-based sheet row number
func (r *Repository) findRow(ctx context.Context, sheetName, key string) ([]interface{}, int, error) {
	rows, err := r.readRows(ctx, sheetName)
	if err != nil {
		return nil, 0, err
	}
	for i, row := range rows {
		if parseString(row, 0) == key {
			return row, i + 2, nil // data starts below the header row
		}
	}
	return nil, 0, storage.ErrNotFound
}

// readRows returns every row below the header
func (r *Repository) readRows(ctx context.Context, sheetName string) ([][]interface{}, error) {
	readRange := fmt.Sprintf("%s!A2:Z", sheetName)
	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheetName, err)
	}
	return resp.Values, nil
}

func (r *Repository) appendRow(ctx context.Context, sheetName string, row []interface{}) error {
	appendRange := fmt.Sprintf("%s!A:Z", sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{row},
	}

	_, err := r.service.Spreadsheets.Values.Append(r.spreadsheetID, appendRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	return nil
}

func (r *Repository) updateRow(ctx context.Context, sheetName string, rowNum int, row []interface{}) error {
	updateRange := fmt.Sprintf("%s!A%d:%s%d", sheetName, rowNum, columnLetter(len(row)), rowNum)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{row},
	}

	_, err := r.service.Spreadsheets.Values.Update(r.spreadsheetID, updateRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}

	return nil
}

func (r *Repository) clearRow(ctx context.Context, sheetName string, rowNum int) error {
	clearRange := fmt.Sprintf("%s!A%d:Z%d", sheetName, rowNum, rowNum)
	_, err := r.service.Spreadsheets.Values.Clear(r.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear row: %w", err)
	}
	return nil
}

func columnLetter(n int) string {
	result := ""
	for n > 0 {
		n-- // Adjust for 0-based indexing
		result = string(rune('A'+n%26)) + result
		n /= 26
	}
	return result
}

// ============ SERIALIZATION ============

func settingHeaders() []string {
	return []string{"Name", "Value", "Updated At"}
}

func tokenHeaders() []string {
	return []string{"Provider", "Access Token", "Token Type", "Scope", "Expires At", "Created At", "Updated At"}
}

func tokenToRow(t *models.OAuthToken) []interface{} {
	return []interface{}{
		t.Provider,
		t.AccessToken,
		t.TokenType,
		t.Scope,
		formatTime(t.ExpiresAt),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	}
}

func rowToToken(row []interface{}) *models.OAuthToken {
	return &models.OAuthToken{
		Provider:    parseString(row, 0),
		AccessToken: parseString(row, 1),
		TokenType:   parseString(row, 2),
		Scope:       parseString(row, 3),
		ExpiresAt:   parseTime(row, 4),
		CreatedAt:   parseTime(row, 5),
		UpdatedAt:   parseTime(row, 6),
	}
}

func insightsHeaders() []string {
	return []string{"Page ID", "Hourly", "Source", "Fetched At"}
}

func insightsToRow(s *models.InsightsSnapshot) ([]interface{}, error) {
	hourly, err := json.Marshal(s.Hourly)
	if err != nil {
		return nil, fmt.Errorf("failed to encode insights: %w", err)
	}
	return []interface{}{
		s.PageID,
		string(hourly),
		s.Source,
		formatTime(s.FetchedAt),
	}, nil
}

func rowToInsights(row []interface{}) *models.InsightsSnapshot {
	snap := &models.InsightsSnapshot{
		PageID:    parseString(row, 0),
		Source:    parseString(row, 2),
		FetchedAt: parseTime(row, 3),
	}
	if raw := parseString(row, 1); raw != "" {
		var hourly models.JSON
		if err := json.Unmarshal([]byte(raw), &hourly); err == nil {
			snap.Hourly = hourly
		}
	}
	return snap
}

func runHeaders() []string {
	return []string{
		"Run ID", "Page ID", "Item Kind", "State", "Total", "Succeeded", "Failed",
		"Skipped", "Last Error", "Started At", "Finished At", "Created At", "Updated At",
	}
}

func runToRow(run *models.RunRecord) []interface{} {
	finished := ""
	if run.FinishedAt != nil {
		finished = formatTime(*run.FinishedAt)
	}
	return []interface{}{
		run.RunID,
		run.PageID,
		run.ItemKind,
		string(run.State),
		strconv.Itoa(run.Total),
		strconv.Itoa(run.Succeeded),
		strconv.Itoa(run.Failed),
		strconv.Itoa(run.Skipped),
		run.LastError,
		formatTime(run.StartedAt),
		finished,
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	}
}

func rowToRun(row []interface{}) *models.RunRecord {
	run := &models.RunRecord{
		RunID:     parseString(row, 0),
		PageID:    parseString(row, 1),
		ItemKind:  parseString(row, 2),
		State:     models.RunState(parseString(row, 3)),
		Total:     parseInt(row, 4),
		Succeeded: parseInt(row, 5),
		Failed:    parseInt(row, 6),
		Skipped:   parseInt(row, 7),
		LastError: parseString(row, 8),
		StartedAt: parseTime(row, 9),
		CreatedAt: parseTime(row, 11),
		UpdatedAt: parseTime(row, 12),
	}
	if finished := parseTime(row, 10); !finished.IsZero() {
		run.FinishedAt = &finished
	}
	return run
}

// ============ PARSING HELPERS ============

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseString(row []interface{}, idx int) string {
	if idx < len(row) {
		return fmt.Sprintf("%v", row[idx])
	}
	return ""
}

func parseInt(row []interface{}, idx int) int {
	if idx < len(row) {
		val, _ := strconv.Atoi(fmt.Sprintf("%v", row[idx]))
		return val
	}
	return 0
}

func parseTime(row []interface{}, idx int) time.Time {
	if idx < len(row) {
		t, _ := time.Parse(time.RFC3339Nano, fmt.Sprintf("%v", row[idx]))
		return t
	}
	return time.Time{}
}
