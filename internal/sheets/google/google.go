package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"pricememory/internal/config"
	"pricememory/internal/core"
	"pricememory/internal/log"
	ports "pricememory/internal/sheets"
)

const defaultCacheValidDuration = 2 * time.Minute

// Client mirrors purchases into one sheet of a Google spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	logger        *log.Logger

	// mu guards the cached copy of the ID column.
	mu                 sync.Mutex
	cachedIDs          []string
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
	sheetID            *int64
}

// Ensure interface conformance
var _ ports.Mirror = (*Client)(nil)

// Options configures New. ClientOptions carry credentials or, in tests,
// a custom endpoint.
type Options struct {
	SpreadsheetID string
	SheetName     string
	Location      *time.Location
	Logger        *log.Logger
	ClientOptions []goption.ClientOption
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Purchases"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	svc, err := gsheet.NewService(ctx, opts.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      opts.SpreadsheetID,
		sheetName:          sheetName,
		loc:                loc,
		logger:             logger.WithComponent(log.ComponentSheets),
		cacheValidDuration: defaultCacheValidDuration,
	}, nil
}

// NewFromConfig builds a client from the worker configuration, preferring
// an OAuth user token over a service account.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	opt, err := credentialOption(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, Options{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetName:     cfg.GoogleSheetName,
		Logger:        logger,
		ClientOptions: []goption.ClientOption{opt},
	})
}

func credentialOption(ctx context.Context, cfg *config.Config) (goption.ClientOption, error) {
	clientJSON, err := jsonOrFile(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	tokenJSON, err := jsonOrFile(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}

	if len(clientJSON) > 0 && len(tokenJSON) > 0 {
		oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("oauth config: %w", err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(tokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("parse oauth token: %w", err)
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
		return goption.WithHTTPClient(oauthCfg.Client(ctx, &tok)), nil
	}

	saJSON, err := jsonOrFile(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	if len(saJSON) == 0 {
		return nil, errors.New("missing Google credentials (OAuth client and token, or service account)")
	}
	creds, err := goauth.CredentialsFromJSON(ctx, saJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("service account credentials: %w", err)
	}
	return goption.WithCredentials(creds), nil
}

func jsonOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// InvalidateIDCache forces the next call to re-read the ID column.
func (c *Client) InvalidateIDCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedIDs = nil
	c.cacheExpiresAt = time.Time{}
}

// ids returns the ID column including the header row.
func (c *Client) ids(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		ids := append([]string(nil), c.cachedIDs...)
		c.mu.Unlock()
		return ids, nil
	}
	c.mu.Unlock()

	rng := a1Range(c.sheetName, "A:A")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := idColumn(resp.Values)

	c.mu.Lock()
	c.cachedIDs = append([]string(nil), ids...)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return ids, nil
}

func (c *Client) ensureHeader(ctx context.Context, ids []string) error {
	if len(ids) > 0 {
		return nil
	}
	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	rng := a1Range(c.sheetName, "A1:E1")
	vr := &gsheet.ValueRange{Values: [][]any{header}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header to %s: %w", c.sheetName, err)
	}
	c.mu.Lock()
	c.cachedIDs = []string{"ID"}
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return nil
}

// AppendPurchase writes p below the last row. A row already carrying
// p.ID is left as is, so redelivered events do not duplicate rows.
func (c *Client) AppendPurchase(ctx context.Context, p core.Purchase) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	ids, err := c.ids(ctx)
	if err != nil {
		return "", err
	}
	if row := findRowByID(ids, p.ID); row >= 0 {
		return a1Range(c.sheetName, fmt.Sprintf("A%d:E%d", row+1, row+1)), nil
	}
	if err := c.ensureHeader(ctx, ids); err != nil {
		return "", err
	}

	cells := ports.Row(p, c.loc)
	row := []any{cells[0], cells[1], cells[2], p.Amount.InexactFloat64(), cells[4]}
	rng := a1Range(c.sheetName, "A:E")
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		c.InvalidateIDCache()
		return "", fmt.Errorf("append to %s: %w", c.sheetName, err)
	}

	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		c.cachedIDs = append(c.cachedIDs, p.ID)
	}
	c.mu.Unlock()

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended purchase row",
		log.FieldPurchaseID, p.ID,
		log.FieldSheetsRef, ref)
	return ref, nil
}

// DeletePurchase removes the row carrying id. A missing row is not an
// error.
func (c *Client) DeletePurchase(ctx context.Context, id string) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}

	// Row positions shift on every delete; never trust the cache here.
	c.InvalidateIDCache()
	ids, err := c.ids(ctx)
	if err != nil {
		return false, err
	}
	row := findRowByID(ids, id)
	if row < 0 {
		return false, nil
	}

	sheetID, err := c.numericSheetID(ctx)
	if err != nil {
		return false, err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row),
					EndIndex:        int64(row + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("delete row %d from %s: %w", row+1, c.sheetName, err)
	}
	c.InvalidateIDCache()

	c.logger.DebugContext(ctx, "Deleted purchase row",
		log.FieldPurchaseID, id,
		"row", row+1)
	return true, nil
}

// ListPurchaseIDs returns the ids present in the sheet, top to bottom.
func (c *Client) ListPurchaseIDs(ctx context.Context) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	ids, err := c.ids(ctx)
	if err != nil {
		return nil, err
	}
	return purchaseIDs(ids), nil
}

// numericSheetID resolves the sheet title to the id batch updates need.
func (c *Client) numericSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.sheetID != nil {
		id := *c.sheetID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(sh.Properties.Title), c.sheetName) {
			id := sh.Properties.SheetId
			c.mu.Lock()
			c.sheetID = &id
			c.mu.Unlock()
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}
