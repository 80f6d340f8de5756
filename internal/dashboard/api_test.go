package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gomarketplace/cartd/internal/app"
	"github.com/gomarketplace/cartd/internal/domain"
	"github.com/gomarketplace/cartd/internal/policy"
	"github.com/gomarketplace/cartd/internal/repository/memory"
)

func newTestStore(t *testing.T) (*app.CartStore, *memory.Store) {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.Storage.Driver = policy.DriverMemory
	cfg.SignalFile = filepath.Join(t.TempDir(), ".cartd-notify")
	storage := memory.New()
	store := app.NewCartStore(storage, policy.New(cfg), log.New(io.Discard, "", 0))
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store, storage
}

func newTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *app.CartStore) {
	t.Helper()
	store, _ := newTestStore(t)
	r := chi.NewRouter()
	NewHandler(store, policy.DefaultNamespace, opts...).RegisterRoutes(r)
	return r, store
}

func decodeSnapshot(t *testing.T, body io.Reader) CartSnapshot {
	t.Helper()
	var snap CartSnapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	return snap
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type stubPinger bool

func (p stubPinger) Ping(context.Context) bool { return bool(p) }

func TestAPICart_Empty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/cart", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"products": []`) {
		t.Errorf("empty cart should encode products as []: %s", w.Body.String())
	}
	snap := decodeSnapshot(t, w.Body)
	if snap.Namespace != "GoMarketplace" {
		t.Errorf("Namespace = %q", snap.Namespace)
	}
	if snap.Timestamp == "" {
		t.Error("expected timestamp")
	}
	if snap.Revision != 0 || snap.TotalQuantity != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestAPIAddItem(t *testing.T) {
	r, store := newTestRouter(t)

	body := `{"id":"1","title":"Shoe","image_url":"u","price":10}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON(body))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w.Body)
	if len(snap.Products) != 1 || snap.Products[0].Quantity != 1 || snap.Revision != 1 {
		t.Errorf("snapshot = %+v, want one item at quantity 1, revision 1", snap)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, postJSON(body))
	snap = decodeSnapshot(t, w.Body)
	if snap.Products[0].Quantity != 2 || snap.Subtotal != 20 {
		t.Errorf("second add: %+v, want quantity 2 subtotal 20", snap)
	}
	if got := store.Products(); len(got) != 1 || got[0].Quantity != 2 {
		t.Errorf("store products = %+v", got)
	}
}

func TestAPIAddItem_BadInput(t *testing.T) {
	r, store := newTestRouter(t)

	for _, body := range []string{`{not json`, `{"title":"no id"}`, `{"id":"1","price":-1}`} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postJSON(body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
		var resp map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["error"] == "" {
			t.Errorf("body %s: expected error message", body)
		}
	}
	if n := len(store.Products()); n != 0 {
		t.Errorf("rejected input should not change the cart, got %d items", n)
	}
}

func TestAPIIncrementDecrement(t *testing.T) {
	r, store := newTestRouter(t)
	store.AddToCart(domain.ProductInput{ID: "sku 1", Title: "A", Price: 5})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/cart/items/sku%201/increment", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("increment: expected 202, got %d", w.Code)
	}
	if snap := decodeSnapshot(t, w.Body); snap.Products[0].Quantity != 2 {
		t.Errorf("after increment quantity = %d, want 2", snap.Products[0].Quantity)
	}

	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/api/cart/items/sku%201/decrement", nil))
	}
	snap := decodeSnapshot(t, w.Body)
	if snap.Products[0].Quantity != -1 {
		t.Errorf("after decrements quantity = %d, want -1 (keep policy)", snap.Products[0].Quantity)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/cart/items/missing/increment", nil))
	if w.Code != http.StatusAccepted {
		t.Errorf("unknown id: expected 202, got %d", w.Code)
	}
}

func TestAPIAddItem_RequiresJSONContentType(t *testing.T) {
	r, store := newTestRouter(t)

	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded"} {
		req := httptest.NewRequest("POST", "/api/cart/items", strings.NewReader(`{"id":"1"}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnsupportedMediaType {
			t.Errorf("Content-Type %q: expected 415, got %d", ct, w.Code)
		}
	}

	req := postJSON(`{"id":"1"}`)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("JSON with charset: expected 202, got %d", w.Code)
	}
	if n := len(store.Products()); n != 1 {
		t.Errorf("only the JSON request should reach the cart, got %d items", n)
	}
}

func TestAPICrossOriginWritesRefused(t *testing.T) {
	r, store := newTestRouter(t)
	store.AddToCart(domain.ProductInput{ID: "1"})

	for _, req := range []*http.Request{
		postJSON(`{"id":"x'-alert(document.cookie)-'"}`),
		httptest.NewRequest("POST", "/api/cart/items/1/increment", nil),
	} {
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s from another origin: expected 403, got %d", req.URL.Path, w.Code)
		}
		if acao := w.Header().Get("Access-Control-Allow-Origin"); acao != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want none", acao)
		}
	}
	if got := store.Products(); len(got) != 1 || got[0].Quantity != 1 {
		t.Errorf("cart changed by cross-origin requests: %+v", got)
	}

	req := httptest.NewRequest("POST", "/api/cart/items/1/increment", nil)
	req.Header.Set("Origin", "http://"+req.Host)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("same-origin increment: expected 202, got %d", w.Code)
	}
}

func TestAPIQuantity_EscapedIDs(t *testing.T) {
	r, store := newTestRouter(t)
	for _, id := range []string{"sku/1", "50%off", "x'-alert(1)-'"} {
		store.AddToCart(domain.ProductInput{ID: id})
	}

	for _, path := range []string{
		"/api/cart/items/sku%2F1/increment",
		"/api/cart/items/50%25off/increment",
		"/api/cart/items/x%27-alert%281%29-%27/increment",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", path, nil))
		if w.Code != http.StatusAccepted {
			t.Errorf("%s: expected 202, got %d", path, w.Code)
		}
	}
	for _, p := range store.Products() {
		if p.Quantity != 2 {
			t.Errorf("%q quantity = %d, want 2", p.ID, p.Quantity)
		}
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/cart/items", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestAPIOutsideProvider(t *testing.T) {
	store, _ := newTestStore(t)
	h := NewHandler(store, policy.DefaultNamespace)

	w := httptest.NewRecorder()
	h.handleGetCart(w, httptest.NewRequest("GET", "/api/cart", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != app.ErrNoProvider.Error() {
		t.Errorf("error = %q, want %q", resp["error"], app.ErrNoProvider.Error())
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["loaded"] != false || body["subscribers"] != float64(0) {
		t.Errorf("health before load = %v", body)
	}
	if _, ok := body["persist"]; !ok {
		t.Errorf("health should report persist stats: %v", body)
	}
	if _, ok := body["sessions"]; ok {
		t.Errorf("sessions reported without a counter: %v", body)
	}

	r, _ = newTestRouter(t, WithPinger(stubPinger(false)))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "unreachable") {
		t.Errorf("health with down storage = %d %s", w.Code, w.Body.String())
	}
}

type stubSessions int

func (s stubSessions) SessionCount() int { return int(s) }

func TestHealth_AfterLoad(t *testing.T) {
	r, store := newTestRouter(t, WithSessions(stubSessions(2)))
	store.Start(context.Background())
	<-store.Loaded()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["loaded"] != true || body["sessions"] != float64(2) {
		t.Errorf("health = %v, want loaded and 2 sessions", body)
	}
}

func TestDashboardPage_NoInlineHandlers(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/dashboard", nil))
	page := w.Body.String()
	for _, bad := range []string{"onclick=", "innerHTML"} {
		if strings.Contains(page, bad) {
			t.Errorf("page should not build markup from cart data (%s found)", bad)
		}
	}
	if !strings.Contains(page, "dataset.id") {
		t.Error("buttons should carry the item id in dataset")
	}
}

func TestDashboardPage(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/dashboard", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "/api/cart") {
		t.Error("page should fetch /api/cart")
	}
}

func TestAPIEvents(t *testing.T) {
	r, store := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/cart/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := make(chan CartSnapshot, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap CartSnapshot
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap) == nil {
				events <- snap
			}
		}
	}()

	next := func() CartSnapshot {
		select {
		case snap := <-events:
			return snap
		case <-ctx.Done():
			t.Fatal("timed out waiting for cart event")
			return CartSnapshot{}
		}
	}

	if first := next(); first.Revision != 0 {
		t.Errorf("initial event revision = %d, want 0", first.Revision)
	}
	store.AddToCart(domain.ProductInput{ID: "1", Price: 3})
	if snap := next(); snap.Revision != 1 || snap.TotalQuantity != 1 {
		t.Errorf("event after add = %+v", snap)
	}
}
