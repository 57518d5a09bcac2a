package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"locagest/internal/migration"
	ports "locagest/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the credentials used to write to it.
type Config struct {
	SpreadsheetID string
	// ReportSheet is the base tab name; the current year is prefixed.
	ReportSheet        string
	ServiceAccountFile string
	ServiceAccountJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	reportSheet   string
	now           func() time.Time
}

// Ensure interface conformance
var _ ports.ReportPublisher = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
// Migration runs go to "<year> <ReportSheet>", receivables to
// "<year> <ReportSheet> Encours", the year being read at each append.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.ReportSheet)
	if base == "" {
		base = "Rapport"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		reportSheet:   base,
		now:           time.Now,
	}, nil
}

func (c *Client) year() int {
	if c.now == nil {
		return time.Now().Year()
	}
	return c.now().Year()
}

func (c *Client) migrationSheet() string {
	return yearPrefixedName(c.reportSheet, c.year())
}

func (c *Client) outstandingSheet() string {
	return yearPrefixedName(c.reportSheet+" Encours", c.year())
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials: inline JSON first, then a file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// PublishMigrationReport appends one summary row for the run followed by
// one row per failed contract.
func (c *Client) PublishMigrationReport(ctx context.Context, r *migration.Report) (string, error) {
	if r == nil {
		return "", errors.New("nil migration report")
	}
	return c.appendRows(ctx, c.migrationSheet(), migrationRows(r))
}

// PublishOutstandingReport appends one row per contract that still owes
// money.
func (c *Client) PublishOutstandingReport(ctx context.Context, r ports.OutstandingReport) (string, error) {
	rows := outstandingRows(r)
	if len(rows) == 0 {
		return "", nil
	}
	return c.appendRows(ctx, c.outstandingSheet(), rows)
}

func (c *Client) appendRows(ctx context.Context, sheet string, rows [][]any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:J", sheet)
	vr := &gsheet.ValueRange{Values: rows}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Report appended to sheet", "sheet", sheet, "rows", len(rows), "range", ref)
	return ref, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
