package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gomarketplace/cartd/internal/domain"
)

// ErrNoProvider is returned when the cart is requested outside a provider scope.
// It signals a wiring mistake, not a runtime condition worth retrying.
var ErrNoProvider = errors.New("useCart must be used within a CartProvider")

// Cart is what consumers get from the provider scope.
type Cart interface {
	Products() []domain.LineItem
	AddToCart(item domain.ProductInput)
	// Increment and Decrement report whether id was in the cart.
	Increment(id string) bool
	Decrement(id string) bool
}

var _ Cart = (*CartStore)(nil)

type cartKey struct{}

// WithCart returns a context in which UseCart resolves to cart.
func WithCart(ctx context.Context, cart Cart) context.Context {
	return context.WithValue(ctx, cartKey{}, cart)
}

// UseCart returns the cart installed by the nearest WithCart, or ErrNoProvider.
func UseCart(ctx context.Context) (Cart, error) {
	if ctx == nil {
		return nil, ErrNoProvider
	}
	cart, ok := ctx.Value(cartKey{}).(Cart)
	if !ok || cart == nil {
		return nil, ErrNoProvider
	}
	return cart, nil
}

// MustUseCart is UseCart for code paths where a missing provider is a programming error.
func MustUseCart(ctx context.Context) Cart {
	cart, err := UseCart(ctx)
	if err != nil {
		panic(err)
	}
	return cart
}

// Provider returns HTTP middleware that opens the cart scope for every request.
func Provider(cart Cart) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithCart(r.Context(), cart)))
		})
	}
}

// SnapshotOf returns cart's snapshot. Carts that do not track revisions report revision 0.
func SnapshotOf(cart Cart) Snapshot {
	if s, ok := cart.(interface{ Snapshot() Snapshot }); ok {
		return s.Snapshot()
	}
	return newSnapshot(0, domain.CartState{Products: cart.Products()})
}
