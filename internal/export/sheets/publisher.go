// Package sheets publishes baseline rundown profiles to a Google Sheets
// spreadsheet, one tab per project.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"rundown/internal/core"
	"rundown/internal/export"
	"rundown/internal/ports"
)

// maxTitle is the Sheets limit on tab titles.
const maxTitle = 100

var _ ports.ProfilePublisher = (*Publisher)(nil)

type Publisher struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Credentials selects the service account used to reach the Sheets API.
type Credentials struct {
	JSON string
	File string
}

// New creates a publisher writing to spreadsheetID. Tabs are named "<sheetName> <project id>".
func New(ctx context.Context, spreadsheetID, sheetName string, creds Credentials) (*Publisher, error) {
	credentialsJSON, err := creds.load()
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, spreadsheetID, sheetName,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates a publisher with explicit client options.
func NewWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Publisher, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Rundown"
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets publisher ready", "spreadsheet_id", spreadsheetID, "sheet", sheetName)

	return &Publisher{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// PublishProfiles implements ports.ProfilePublisher. The project's tab is
// created when missing, cleared, then rewritten in one update.
func (p *Publisher) PublishProfiles(ctx context.Context, project core.Project, points []core.ProfilePoint) error {
	tab := p.tabTitle(project.ID)
	if err := p.ensureTab(ctx, tab); err != nil {
		return err
	}

	_, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, quoteRange(tab, "A:F"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: export.Rows(points)}
	_, err = p.svc.Spreadsheets.Values.Update(p.spreadsheetID, quoteRange(tab, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Published profiles to Google Sheets",
		"project_id", project.ID,
		"sheet", tab,
		"rows", len(points))
	return nil
}

func (p *Publisher) ensureTab(ctx context.Context, tab string) error {
	ss, err := p.svc.Spreadsheets.Get(p.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := p.svc.Spreadsheets.BatchUpdate(p.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created sheet", "sheet", tab)
	return nil
}

func (p *Publisher) tabTitle(projectID string) string {
	title := p.sheetName + " " + projectID
	if len(title) > maxTitle {
		title = title[:maxTitle]
	}
	return title
}

// quoteRange builds an A1 range, quoting the tab title as Sheets requires.
func quoteRange(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}
