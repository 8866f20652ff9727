package tracker

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
)

// SheetColumns defines the column headers for the published items sheet
var SheetColumns = []string{
	"Run ID",
	"Kind",
	"Item",
	"Source ID",
	"Page",
	"Post ID",
	"Status",
	"Scheduled For",
	"Caption Preview",
	"Recorded At",
}

// Status values written to the Status column
const (
	StatusPublished = "Published"
	StatusScheduled = "Scheduled"
)

const captionPreviewLen = 200

// SheetsTracker appends a row to a Google Sheet for every published item
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *logger.Logger
}

// NewSheetsTracker creates a tracker. It returns nil, nil when tracking is disabled.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger) (*SheetsTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var srv *sheets.Service
	var err error

	// Service account JSON first (env var injection)
	if cfg.ServiceAccountJSON != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	} else if cfg.CredentialsFile != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWithService(srv, cfg.SpreadsheetID, cfg.SheetName, log), nil
}

// NewWithService wraps an already configured sheets service
func NewWithService(srv *sheets.Service, spreadsheetID, sheetName string, log *logger.Logger) *SheetsTracker {
	if sheetName == "" {
		sheetName = "Published"
	}
	return &SheetsTracker{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		log:           log.WithComponent("sheets-tracker"),
	}
}

// InitializeSheet creates the sheet and its header row if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:J1", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(resp.Values) > 0 {
		t.log.Debug().Msg("Sheet already has headers")
		return nil
	}

	t.log.Info().Msg("Initializing sheet with headers")
	header := make([]interface{}, 0, len(SheetColumns))
	for _, col := range SheetColumns {
		header = append(header, col)
	}

	_, err = t.service.Spreadsheets.Values.Update(t.spreadsheetID, fmt.Sprintf("%s!A1", t.sheetName),
		&sheets.ValueRange{Values: [][]interface{}{header}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}

func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: t.sheetName},
				},
			},
		},
	}
	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// Record appends one published item to the sheet
func (t *SheetsTracker) Record(ctx context.Context, rec models.PublishRecord) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{Row(rec)},
	}

	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, fmt.Sprintf("%s!A:J", t.sheetName), valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	t.log.Debug().
		Str("run_id", rec.RunID).
		Str("post_id", rec.PostID).
		Msg("Tracked published item")
	return nil
}

// Row renders a record in SheetColumns order
func Row(rec models.PublishRecord) []interface{} {
	status := StatusPublished
	scheduled := ""
	if rec.ScheduledAt != nil {
		status = StatusScheduled
		scheduled = rec.ScheduledAt.Format(time.RFC3339)
	}

	page := rec.PageName
	if page == "" {
		page = rec.PageID
	}

	preview := rec.Caption
	if r := []rune(preview); len(r) > captionPreviewLen {
		preview = string(r[:captionPreviewLen]) + "..."
	}

	return []interface{}{
		rec.RunID,
		string(rec.ItemKind),
		rec.ItemLabel,
		rec.SourceID,
		page,
		rec.PostID,
		status,
		scheduled,
		preview,
		rec.RecordedAt.Format(time.RFC3339),
	}
}
