// Package dashboard provides a web dashboard and JSON API for viewing and
// changing the cart over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gomarketplace/cartd/internal/app"
	"github.com/gomarketplace/cartd/internal/domain"
)

const maxBodyBytes = 1 << 16

// CartSnapshot is the JSON response from /api/cart and the mutation endpoints.
type CartSnapshot struct {
	Timestamp     string            `json:"timestamp"`
	Namespace     string            `json:"namespace"`
	Revision      uint64            `json:"revision"`
	Products      []domain.LineItem `json:"products"`
	TotalQuantity int               `json:"total_quantity"`
	Subtotal      float64           `json:"subtotal"`
}

// Subscriber is implemented by CartStore and backs the event stream.
type Subscriber interface {
	Subscribe() *app.Subscription
}

// Pinger reports backend reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// SessionCounter reports connected MCP sessions for /health.
type SessionCounter interface {
	SessionCount() int
}

// Optional CartStore extras reported by /health.
type (
	loadReporter    interface{ Loaded() <-chan struct{} }
	subscriberCount interface{ Subscribers() int }
	persistReporter interface{ PersistStats() app.PersistStats }
)

// Handler holds dependencies for dashboard HTTP handlers.
type Handler struct {
	cart      app.Cart
	namespace string
	pinger    Pinger         // optional; nil when the backend has no health check
	sessions  SessionCounter // optional
	heartbeat time.Duration
}

// HandlerOption configures optional dependencies for the dashboard handler.
type HandlerOption func(*Handler)

// WithPinger adds a storage reachability check to /health.
func WithPinger(p Pinger) HandlerOption {
	return func(h *Handler) { h.pinger = p }
}

// WithSessions adds the connected MCP session count to /health.
func WithSessions(c SessionCounter) HandlerOption {
	return func(h *Handler) { h.sessions = c }
}

// WithHeartbeat sets how often the event stream sends a keep-alive comment (default 15s).
func WithHeartbeat(d time.Duration) HandlerOption {
	return func(h *Handler) { h.heartbeat = d }
}

// NewHandler creates a dashboard handler. cart is installed as the provider for every
// /api/cart route.
func NewHandler(cart app.Cart, namespace string, opts ...HandlerOption) *Handler {
	h := &Handler{cart: cart, namespace: namespace, heartbeat: 15 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes adds dashboard routes to the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/dashboard/", h.handleDashboard)

	// Browsers may only change the cart from the dashboard's own origin.
	xorigin := http.NewCrossOriginProtection()
	xorigin.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, errors.New("cross-origin request refused"))
	}))

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(xorigin.Handler)
		r.Use(app.Provider(h.cart))
		r.Get("/", h.handleGetCart)
		r.Get("/events", h.handleEvents)
		r.With(middleware.AllowContentType("application/json")).Post("/items", h.handleAddItem)
		r.Post("/items/{id}/increment", h.handleIncrement)
		r.Post("/items/{id}/decrement", h.handleDecrement)
	})
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := app.UseCart(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, h.snapshot(cart))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	cart, err := app.UseCart(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var in domain.ProductInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cart.AddToCart(in)
	writeJSON(w, http.StatusAccepted, h.snapshot(cart))
}

func (h *Handler) handleIncrement(w http.ResponseWriter, r *http.Request) {
	h.handleQuantity(w, r, app.Cart.Increment)
}

func (h *Handler) handleDecrement(w http.ResponseWriter, r *http.Request) {
	h.handleQuantity(w, r, app.Cart.Decrement)
}

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request, op func(app.Cart, string) bool) {
	cart, err := app.UseCart(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	id, err := itemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	op(cart, id)
	writeJSON(w, http.StatusAccepted, h.snapshot(cart))
}

// itemID returns the decoded {id} route parameter. chi routes on the escaped path
// when the request has one, so ids containing "/" or "%" arrive still escaped.
func itemID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	decoded, err := url.PathUnescape(id)
	if err != nil {
		return "", fmt.Errorf("invalid item id %q: %w", id, err)
	}
	return decoded, nil
}

// handleEvents streams one "cart" event per published snapshot until the client goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	cart, err := app.UseCart(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sub, ok := cart.(Subscriber)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("cart does not publish updates"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	s := sub.Subscribe()
	defer s.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-s.C:
			if !ok {
				return
			}
			data, err := json.Marshal(h.fromSnapshot(snap))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: cart\ndata: %s\n\n", snap.Revision, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	status := http.StatusOK
	if l, ok := h.cart.(loadReporter); ok {
		select {
		case <-l.Loaded():
			resp["loaded"] = true
		default:
			resp["loaded"] = false
		}
	}
	if s, ok := h.cart.(subscriberCount); ok {
		resp["subscribers"] = s.Subscribers()
	}
	if p, ok := h.cart.(persistReporter); ok {
		resp["persist"] = p.PersistStats()
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.SessionCount()
	}
	if h.pinger != nil {
		if h.pinger.Ping(r.Context()) {
			resp["storage"] = "ok"
		} else {
			resp["status"] = "degraded"
			resp["storage"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (h *Handler) snapshot(cart app.Cart) CartSnapshot {
	return h.fromSnapshot(app.SnapshotOf(cart))
}

func (h *Handler) fromSnapshot(s app.Snapshot) CartSnapshot {
	products := s.Products
	if products == nil {
		products = []domain.LineItem{}
	}
	return CartSnapshot{
		Timestamp:     time.Now().Format(time.RFC3339),
		Namespace:     h.namespace,
		Revision:      s.Revision,
		Products:      products,
		TotalQuantity: s.TotalQuantity,
		Subtotal:      s.Subtotal,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
