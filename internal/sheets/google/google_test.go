package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"pricememory/internal/config"
	"pricememory/internal/core"
	"pricememory/internal/log"
)

// fakeSheets serves the handful of Sheets API calls the client makes,
// keeping column A as the sheet state.
type fakeSheets struct {
	mu       sync.Mutex
	rows     [][]any
	deletes  []map[string]any
	appends  int
	getCalls int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && strings.Contains(path, "/values/") && strings.HasSuffix(path, "!A:A"):
		f.getCalls++
		values := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			values = append(values, []any{row[0]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Purchases!A1:A", "majorDimension": "ROWS", "values": values})

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.rows = append(f.rows, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": "Purchases!A1:E1"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.rows = append(f.rows, body.Values...)
		f.appends++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Purchases!A2:E2"},
		})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Requests []struct {
				DeleteDimension struct {
					Range map[string]any `json:"range"`
				} `json:"deleteDimension"`
			} `json:"requests"`
		}
		_ = json.Unmarshal(raw, &body)
		rng := body.Requests[0].DeleteDimension.Range
		f.deletes = append(f.deletes, rng)
		start := int(rng["startIndex"].(float64))
		f.rows = append(f.rows[:start], f.rows[start+1:]...)
		_, _ = w.Write([]byte(`{}`))

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Purchases"}}]}`))

	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-1",
		SheetName:     "Purchases",
		Location:      time.UTC,
		Logger:        log.Discard(),
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func testPurchase(id string) core.Purchase {
	return core.Purchase{
		ID:          id,
		ItemName:    "Cement",
		Amount:      decimal.RequireFromString("2500.50"),
		PurchasedAt: time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC),
		Note:        "Grade A",
	}
}

func TestClient_AppendWritesHeaderOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if _, err := c.AppendPurchase(ctx, testPurchase("a")); err != nil {
		t.Fatalf("AppendPurchase() error = %v", err)
	}
	if _, err := c.AppendPurchase(ctx, testPurchase("b")); err != nil {
		t.Fatalf("AppendPurchase() error = %v", err)
	}

	if len(fake.rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %v", len(fake.rows), fake.rows)
	}
	if fake.rows[0][0] != "ID" || fake.rows[0][2] != "Item" {
		t.Errorf("unexpected header %v", fake.rows[0])
	}
	row := fake.rows[1]
	if row[0] != "a" || row[1] != "2024-03-10 14:30" || row[2] != "Cement" || row[3] != 2500.5 || row[4] != "Grade A" {
		t.Errorf("unexpected row %v", row)
	}
	if fake.getCalls != 1 {
		t.Errorf("expected the id column to be read once, got %d", fake.getCalls)
	}
}

func TestClient_AppendSkipsExistingID(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{{"ID"}, {"a"}}}
	c := newTestClient(t, fake)

	ref, err := c.AppendPurchase(context.Background(), testPurchase("a"))
	if err != nil {
		t.Fatalf("AppendPurchase() error = %v", err)
	}
	if fake.appends != 0 {
		t.Fatalf("expected no append for an existing id, got %d", fake.appends)
	}
	if ref != "'Purchases'!A2:E2" {
		t.Errorf("ref = %q", ref)
	}
}

func TestClient_AppendValidates(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.AppendPurchase(context.Background(), core.Purchase{ID: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestClient_DeletePurchase(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{{"ID"}, {"a"}, {"b"}}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ok, err := c.DeletePurchase(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("DeletePurchase(b) ok=%v err=%v", ok, err)
	}
	if len(fake.deletes) != 1 {
		t.Fatalf("expected one delete request, got %d", len(fake.deletes))
	}
	rng := fake.deletes[0]
	if rng["sheetId"] != float64(0) {
		t.Errorf("sheetId must be sent even when zero, got %v", rng["sheetId"])
	}
	if rng["startIndex"] != float64(2) || rng["endIndex"] != float64(3) || rng["dimension"] != "ROWS" {
		t.Errorf("unexpected range %v", rng)
	}

	ok, err = c.DeletePurchase(ctx, "zzz")
	if err != nil || ok {
		t.Fatalf("DeletePurchase(missing) ok=%v err=%v", ok, err)
	}

	ids, err := c.ListPurchaseIDs(ctx)
	if err != nil {
		t.Fatalf("ListPurchaseIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("ids = %v, want [a]", ids)
	}
}

func TestClient_InvalidateIDCache(t *testing.T) {
	c := &Client{cacheValidDuration: 10 * time.Minute}

	c.mu.Lock()
	c.cachedIDs = []string{"ID", "a"}
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	c.InvalidateIDCache()

	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.cacheExpiresAt) || c.cachedIDs != nil {
		t.Error("cache should be expired after invalidation")
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestCredentialOption(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token.json")
	if err := os.WriteFile(tokenFile, []byte(`{"access_token":"test"}`), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr string
	}{
		{
			name:    "no credentials",
			cfg:     config.Config{},
			wantErr: "missing Google credentials",
		},
		{
			name:    "invalid oauth client",
			cfg:     config.Config{GoogleOAuthClientJSON: "invalid-json", GoogleOAuthTokenFile: tokenFile},
			wantErr: "oauth config",
		},
		{
			name: "invalid oauth token",
			cfg: config.Config{
				GoogleOAuthClientJSON: `{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://a","token_uri":"https://t","redirect_uris":["http://localhost"]}}`,
				GoogleOAuthTokenJSON:  "not json",
			},
			wantErr: "parse oauth token",
		},
		{
			name:    "missing token file",
			cfg:     config.Config{GoogleOAuthClientJSON: "{}", GoogleOAuthTokenFile: filepath.Join(dir, "absent.json")},
			wantErr: "read oauth token",
		},
		{
			name: "valid oauth",
			cfg: config.Config{
				GoogleOAuthClientJSON: `{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://a","token_uri":"https://t","redirect_uris":["http://localhost"]}}`,
				GoogleOAuthTokenFile:  tokenFile,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			opt, err := credentialOption(context.Background(), &cfg)
			if tt.wantErr == "" {
				if err != nil || opt == nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
