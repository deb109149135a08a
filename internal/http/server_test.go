package http

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricememory/internal/core"
	"pricememory/internal/log"
	"pricememory/internal/middleware/ratelimit"
	"pricememory/internal/services"
	"pricememory/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

// 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func purchase(id, name, amount string, at time.Time) core.Purchase {
	return core.Purchase{
		ID:          id,
		ItemName:    name,
		Amount:      decimal.RequireFromString(amount),
		PurchasedAt: at,
		CreatedAt:   at,
	}
}

func newTestServer(t *testing.T, rl ratelimit.Config, seed ...core.Purchase) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New(seed...)
	svc := services.NewPurchaseService(store, nil, nil, log.Discard())
	entry := services.NewEntry(svc, 1<<20, log.Discard()).WithClock(func() time.Time { return testNow })
	srv := NewServer(Options{
		Purchases:      svc,
		Entry:          entry,
		Logger:         log.Discard(),
		CurrencySymbol: "₦",
		MaxPhotoBytes:  1 << 20,
		PhotoCacheSize: 8,
		PhotoCacheTTL:  time.Minute,
		RateLimit:      rl,
		Now:            func() time.Time { return testNow },
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, values url.Values, htmx bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return req
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{},
		purchase("a", "Cement", "1234.5", testNow.Add(-time.Hour)),
		purchase("b", "Sand", "80", testNow.AddDate(0, 0, -1)),
	)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Price Memory", "Track your trading expenses", "Today", "Yesterday", "Cement", "₦1,234.50", "1:30 PM", "Install App", "Are you sure you want to delete this purchase?"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id not set")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "purchases_stored 2") {
		t.Errorf("metrics missing store gauge:\n%s", rr.Body.String())
	}
}

func TestIndex_EmptyStates(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{})

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rr.Body.String(), "No purchases recorded yet.") {
		t.Fatalf("expected empty store message, got:\n%s", rr.Body.String())
	}

	if err := store.Add(context.Background(), purchase("a", "Cement", "10", testNow)); err != nil {
		t.Fatal(err)
	}
	rr = do(srv, httptest.NewRequest(http.MethodGet, "/purchases?q=zzz", nil))
	if !strings.Contains(rr.Body.String(), "No results found.") {
		t.Fatalf("expected no results message, got:\n%s", rr.Body.String())
	}
}

func TestIndex_ReadFailureShowsEmptyList(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{}, purchase("a", "Cement", "10", testNow))
	store.FailWith = errors.New("disk gone")

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No purchases recorded yet.") {
		t.Fatal("a failed read should render as an empty list")
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestListPartial_FiltersAndGroups(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{},
		purchase("a", "Cement", "10", testNow),
		purchase("b", "White cement", "20", testNow.AddDate(0, 0, -10)),
		purchase("c", "Sand", "30", testNow.AddDate(0, 0, -1)),
	)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/purchases?q=CEMENT", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "Sand") {
		t.Error("filter kept a non-matching record")
	}
	today := strings.Index(body, "Today")
	older := strings.Index(body, "Older")
	if today < 0 || older < 0 || today > older {
		t.Errorf("expected Today before Older, got Today=%d Older=%d", today, older)
	}
	if strings.Contains(body, "Yesterday") {
		t.Error("empty bucket rendered")
	}
	if strings.Contains(body, "<html") {
		t.Error("partial rendered the full page")
	}
}

func TestCreatePurchase_Validation(t *testing.T) {
	tests := []struct {
		name    string
		values  url.Values
		wantMsg string
	}{
		{"missing name", url.Values{"itemName": {"  "}, "amount": {"12"}}, "Item name is required"},
		{"negative amount", url.Values{"itemName": {"Cement"}, "amount": {"-5"}}, "Please enter a valid amount greater than 0"},
		{"non-numeric amount", url.Values{"itemName": {"Cement"}, "amount": {"abc"}}, "Please enter a valid amount greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t, ratelimit.Config{})

			rr := do(srv, postForm("/purchases", tt.values, true))
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body missing %q:\n%s", tt.wantMsg, rr.Body.String())
			}
			if amount := tt.values.Get("amount"); !strings.Contains(rr.Body.String(), `value="`+amount+`"`) {
				t.Errorf("amount input %q not preserved", amount)
			}
			if n, _ := store.Count(context.Background()); n != 0 {
				t.Fatalf("store has %d records after rejected entry", n)
			}
		})
	}
}

func TestCreatePurchase_Success(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{})

	values := url.Values{"itemName": {"Cement"}, "amount": {"12.50"}, "date": {"2024-03-14"}, "time": {"09:15"}, "note": {"bag"}}
	rr := do(srv, postForm("/purchases", values, true))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, want := range []string{`"purchase:created"`, `"form:reset"`, `"modal:close"`} {
		if !strings.Contains(trigger, want) {
			t.Errorf("HX-Trigger missing %s: %s", want, trigger)
		}
	}

	list, err := store.List(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one stored purchase, got %d (%v)", len(list), err)
	}
	got := list[0]
	if got.ItemName != "Cement" || !got.Amount.Equal(decimal.RequireFromString("12.5")) || got.Note != "bag" {
		t.Errorf("unexpected purchase %+v", got)
	}
	if want := time.Date(2024, 3, 14, 9, 15, 0, 0, time.UTC); !got.PurchasedAt.Equal(want) {
		t.Errorf("PurchasedAt = %v, want %v", got.PurchasedAt, want)
	}

	// Without htmx the browser is sent back to the list.
	rr = do(srv, postForm("/purchases", url.Values{"itemName": {"Sand"}, "amount": {"3"}}, false))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestCreatePurchase_SaveFailure(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{})
	store.FailWith = errors.New("disk full")

	rr := do(srv, postForm("/purchases", url.Values{"itemName": {"Cement"}, "amount": {"12"}}, true))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Failed to save. Please try again.") {
		t.Errorf("body missing save failure message:\n%s", body)
	}
	if !strings.Contains(body, `value="Cement"`) {
		t.Error("form input not preserved after save failure")
	}
}

func TestCreatePurchase_PhotoTooLargeKeepsInput(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("itemName", "Cement 50kg")
	_ = mw.WriteField("amount", "4500")
	_ = mw.WriteField("date", "2024-03-14")
	_ = mw.WriteField("time", "09:15")
	_ = mw.WriteField("note", "two bags")
	part, err := mw.CreateFormFile("invoicePhoto", "huge.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(bytes.Repeat([]byte{0xff}, 1<<20+10))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/purchases", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("HX-Request", "true")
	rr := do(srv, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d, want 413", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{
		services.MsgPhotoTooLarge,
		`value="Cement 50kg"`,
		`value="4500"`,
		`value="2024-03-14"`,
		`value="09:15"`,
		">two bags</textarea>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("form missing %q:\n%s", want, body)
		}
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("store has %d records after oversized photo", n)
	}
}

func TestCreatePurchase_WithPhoto(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("itemName", "Cement")
	_ = mw.WriteField("amount", "50")
	part, err := mw.CreateFormFile("invoicePhoto", "receipt.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(tinyPNG)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/purchases", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("HX-Request", "true")
	rr := do(srv, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	list, _ := store.List(context.Background())
	if len(list) != 1 || list[0].InvoicePhoto == nil {
		t.Fatalf("expected a stored purchase with photo, got %+v", list)
	}
	if !strings.HasPrefix(list[0].InvoicePhoto.DataURL, "data:image/png;base64,") {
		t.Errorf("DataURL = %.40s", list[0].InvoicePhoto.DataURL)
	}

	id := list[0].ID
	rr = do(srv, httptest.NewRequest(http.MethodGet, "/purchases/"+id+"/photo", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("photo status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(rr.Body.Bytes(), tinyPNG) {
		t.Error("photo bytes differ from upload")
	}

	req = httptest.NewRequest(http.MethodGet, "/purchases/"+id+"/photo", nil)
	req.Header.Set("If-None-Match", rr.Header().Get("ETag"))
	if rr := do(srv, req); rr.Code != http.StatusNotModified {
		t.Errorf("revalidation status=%d, want 304", rr.Code)
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/purchases/"+id, nil))
	if !strings.Contains(rr.Body.String(), "receipt.png") {
		t.Errorf("detail missing photo caption:\n%s", rr.Body.String())
	}
}

func TestPhoto_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{}, purchase("a", "Cement", "10", testNow))

	if rr := do(srv, httptest.NewRequest(http.MethodGet, "/purchases/a/photo", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("purchase without photo: status=%d", rr.Code)
	}
	if rr := do(srv, httptest.NewRequest(http.MethodGet, "/purchases/zzz/photo", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("unknown purchase: status=%d", rr.Code)
	}
}

func TestDetail(t *testing.T) {
	p := purchase("a", "Cement", "10", testNow)
	p.Note = "Grade A"
	srv, _ := newTestServer(t, ratelimit.Config{}, p)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/purchases/a", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	for _, want := range []string{"Cement", "₦10.00", "Friday, March 15, 2024 at 2:30 PM", "Grade A", "Are you sure you want to delete this purchase?"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("detail missing %q", want)
		}
	}

	if rr := do(srv, httptest.NewRequest(http.MethodGet, "/purchases/missing", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("missing purchase status=%d", rr.Code)
	}
}

func TestDeletePurchase(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{},
		purchase("a", "Cement", "10", testNow),
		purchase("b", "Sand", "5", testNow),
	)

	req := httptest.NewRequest(http.MethodDelete, "/purchases/a", nil)
	req.Header.Set("HX-Request", "true")
	rr := do(srv, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"purchase:deleted":{"id":"a"}`) {
		t.Errorf("HX-Trigger = %s", rr.Header().Get("HX-Trigger"))
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Fatalf("count=%d after delete", n)
	}

	// Absent ids are a no-op.
	req = httptest.NewRequest(http.MethodDelete, "/purchases/a", nil)
	req.Header.Set("HX-Request", "true")
	if rr := do(srv, req); rr.Code != http.StatusOK {
		t.Errorf("second delete status=%d", rr.Code)
	}

	rr = do(srv, httptest.NewRequest(http.MethodPost, "/purchases/b/delete", nil))
	if rr.Code != http.StatusSeeOther {
		t.Errorf("form delete status=%d, want 303", rr.Code)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("count=%d after form delete", n)
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/purchases/b/delete", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET delete status=%d, want 405", rr.Code)
	}
}

func TestDeletePurchase_StorageFailure(t *testing.T) {
	srv, store := newTestServer(t, ratelimit.Config{}, purchase("a", "Cement", "10", testNow))
	store.FailWith = errors.New("locked")

	rr := do(srv, httptest.NewRequest(http.MethodDelete, "/purchases/a", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `class="error"`) {
		t.Error("expected an error fragment")
	}
}

func TestExport(t *testing.T) {
	p := purchase("a", `Cement, 50kg "Grade A"`, "12.5", testNow)
	srv, store := newTestServer(t, ratelimit.Config{}, p)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/export.csv", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "price_memory_backup_2024-03-15.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	want := "Date,Item,Amount,Note\n2024-03-15 14:30,\"Cement, 50kg \"\"Grade A\"\"\",12.5,\"\"\n"
	if rr.Body.String() != want {
		t.Errorf("csv =\n%q\nwant\n%q", rr.Body.String(), want)
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/export.xlsx", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("xlsx status=%d", rr.Code)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Error("xlsx body is not a zip archive")
	}

	store.FailWith = errors.New("disk gone")
	rr = do(srv, httptest.NewRequest(http.MethodGet, "/export.csv", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("export with broken store status=%d, want 500", rr.Code)
	}
}

func TestPWAAssets(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/manifest.webmanifest", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/manifest+json" {
		t.Fatalf("manifest status=%d type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), `"Price Memory"`) {
		t.Error("manifest missing app name")
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/sw.js", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Service-Worker-Allowed") != "/" {
		t.Fatalf("sw.js status=%d scope=%q", rr.Code, rr.Header().Get("Service-Worker-Allowed"))
	}

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Cache-Control"), "max-age") {
		t.Fatalf("static status=%d cache=%q", rr.Code, rr.Header().Get("Cache-Control"))
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := do(srv, httptest.NewRequest(http.MethodDelete, "/purchases/x", nil)); rr.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}
	if rr := do(srv, httptest.NewRequest(http.MethodDelete, "/purchases/x", nil)); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr := do(srv, httptest.NewRequest(http.MethodGet, "/purchases", nil)); rr.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, status=%d", rr.Code)
	}
}

func TestEventsStream(t *testing.T) {
	srv, _ := newTestServer(t, ratelimit.Config{})
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "retry:") {
		t.Fatalf("first line = %q (%v)", line, err)
	}

	if err := srv.purchases.Add(ctx, purchase("new", "Cement", "10", testNow)); err != nil {
		t.Fatal(err)
	}

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if event != "purchase" {
		t.Errorf("event = %q, want purchase", event)
	}
	if data != `{"type":"purchase:created","id":"new"}` {
		t.Errorf("data = %s", data)
	}
}
