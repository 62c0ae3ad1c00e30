// Package google mirrors transactions into a Google Sheets tab.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendly/internal/googleauth"
	"spendly/internal/log"
	"spendly/internal/sheets"
)

// DefaultSheetName is used when no tab name is configured.
const DefaultSheetName = "Movimientos"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger

	// serializes lookups with the writes that depend on them
	mu sync.Mutex
}

var _ sheets.TransactionMirror = (*Client)(nil)

// New creates a client from resolved credentials.
func New(ctx context.Context, creds googleauth.Credentials, spreadsheetID, sheetName string, logger *log.Logger) (*Client, error) {
	opts, err := creds.ClientOptions(ctx, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets credentials: %w", err)
	}
	return NewWithOptions(ctx, spreadsheetID, sheetName, logger, opts...)
}

// NewWithOptions creates a client from raw API options.
func NewWithOptions(ctx context.Context, spreadsheetID, sheetName string, logger *log.Logger, opts ...option.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(c.sheetName), row, lastColumn(len(sheets.Header)), row)
}

func (c *Client) tableRange() string {
	return fmt.Sprintf("%s!A:%s", quoteSheet(c.sheetName), lastColumn(len(sheets.Header)))
}

// EnsureHeader writes the header row when the first row is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rowRange(1)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	return c.write(ctx, 1, sheets.Header)
}

func (c *Client) Upsert(ctx context.Context, row sheets.Row) (string, error) {
	if row.ID == "" {
		return "", errors.New("row without id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(ctx, row.ID)
	if err != nil {
		return "", err
	}
	if n > 0 {
		if err := c.write(ctx, n, row.Values()); err != nil {
			return "", err
		}
		return c.rowRange(n), nil
	}

	vr := &gsheet.ValueRange{Values: [][]interface{}{toInterfaces(row.Values())}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.tableRange(), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append row: %w", err)
	}
	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Row appended", log.FieldDocumentID, row.ID, log.FieldSheetsRef, ref)
	return ref, nil
}

func (c *Client) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		c.logger.WarnContext(ctx, "No mirrored row to mark deleted", log.FieldDocumentID, id)
		return nil
	}
	statusCol := lastColumn(len(sheets.Header) - 1)
	rng := fmt.Sprintf("%s!%s%d:%s%d", quoteSheet(c.sheetName), statusCol, n, lastColumn(len(sheets.Header)), n)
	vr := &gsheet.ValueRange{Values: [][]interface{}{{sheets.StatusDeleted, at.UTC().Format(time.RFC3339)}}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("mark row deleted: %w", err)
	}
	return nil
}

// lookup returns the sheet row holding id, or 0. Callers hold c.mu.
func (c *Client) lookup(ctx context.Context, id string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", quoteSheet(c.sheetName))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read ids: %w", err)
	}
	return findRow(resp.Values, id), nil
}

func (c *Client) write(ctx context.Context, row int, values []string) error {
	vr := &gsheet.ValueRange{Values: [][]interface{}{toInterfaces(values)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rowRange(row), vr).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	return nil
}
