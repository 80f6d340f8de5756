package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gomarketplace/cartd/internal/domain"
)

func TestUseCart_OutsideProvider(t *testing.T) {
	_, err := UseCart(context.Background())
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
	if err.Error() != "useCart must be used within a CartProvider" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestUseCart_InsideProvider(t *testing.T) {
	store, _ := newTestStore(t, newMemStorage())
	ctx := WithCart(context.Background(), store)
	got, err := UseCart(ctx)
	if err != nil {
		t.Fatalf("UseCart: %v", err)
	}
	if got != Cart(store) {
		t.Error("UseCart returned a different cart")
	}
}

func TestMustUseCart_Panics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoProvider) {
			t.Errorf("recovered %v, want ErrNoProvider", r)
		}
	}()
	MustUseCart(context.Background())
	t.Error("MustUseCart should panic outside a provider")
}

func TestProviderMiddleware(t *testing.T) {
	store, _ := newTestStore(t, newMemStorage())

	var gotErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotErr = UseCart(r.Context())
	})

	Provider(store)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if gotErr != nil {
		t.Errorf("inside provider: %v", gotErr)
	}

	inner.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !errors.Is(gotErr, ErrNoProvider) {
		t.Errorf("outside provider: err = %v, want ErrNoProvider", gotErr)
	}
}

// plainCart has no revision tracking.
type plainCart struct{ items []domain.LineItem }

func (p *plainCart) Products() []domain.LineItem        { return p.items }
func (p *plainCart) AddToCart(item domain.ProductInput) {}
func (p *plainCart) Increment(id string) bool           { return false }
func (p *plainCart) Decrement(id string) bool           { return false }

func TestSnapshotOf(t *testing.T) {
	store, _ := newTestStore(t, newMemStorage())
	store.AddToCart(itemA)
	if snap := SnapshotOf(store); snap.Revision != 1 || snap.TotalQuantity != 1 {
		t.Errorf("store snapshot = %+v, want revision 1 with 1 unit", snap)
	}

	plain := &plainCart{items: []domain.LineItem{{ID: "x", Price: 4, Quantity: 3}}}
	snap := SnapshotOf(plain)
	if snap.Revision != 0 {
		t.Errorf("Revision = %d, want 0", snap.Revision)
	}
	if snap.TotalQuantity != 3 || snap.Subtotal != 12 {
		t.Errorf("snapshot = %+v, want 3 units / 12", snap)
	}
}
