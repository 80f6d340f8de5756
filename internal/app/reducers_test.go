package app

import (
	"reflect"
	"testing"

	"github.com/gomarketplace/cartd/internal/domain"
	"github.com/gomarketplace/cartd/internal/policy"
)

func stateOf(items ...domain.LineItem) domain.CartState {
	return domain.CartState{Products: items}
}

func TestAddToCart_New(t *testing.T) {
	got := AddToCart(domain.ProductInput{ID: "1", Title: "A", ImageURL: "u", Price: 10})(domain.NewCartState())
	want := stateOf(domain.LineItem{ID: "1", Title: "A", ImageURL: "u", Price: 10, Quantity: 1})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAddToCart_ExistingIncrementsAndOverwrites(t *testing.T) {
	start := stateOf(domain.LineItem{ID: "1", Title: "A", ImageURL: "u", Price: 10, Quantity: 1})
	got := AddToCart(domain.ProductInput{ID: "1", Title: "A2", ImageURL: "u2", Price: 12})(start)
	want := stateOf(domain.LineItem{ID: "1", Title: "A2", ImageURL: "u2", Price: 12, Quantity: 2})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if start.Products[0].Title != "A" || start.Products[0].Quantity != 1 {
		t.Error("reducer modified its input")
	}
}

func TestAddToCart_PreservesOrder(t *testing.T) {
	s := domain.NewCartState()
	for _, id := range []string{"a", "b", "c", "b"} {
		s = AddToCart(domain.ProductInput{ID: id})(s)
	}
	ids := make([]string, 0, len(s.Products))
	for _, p := range s.Products {
		ids = append(ids, p.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("order = %v, want [a b c]", ids)
	}
	if s.Products[1].Quantity != 2 {
		t.Errorf("b quantity = %d, want 2", s.Products[1].Quantity)
	}
}

func TestIncrement(t *testing.T) {
	start := stateOf(domain.LineItem{ID: "1", Quantity: 1}, domain.LineItem{ID: "2", Quantity: 5})
	got := Increment("1")(start)
	if got.Products[0].Quantity != 2 || got.Products[1].Quantity != 5 {
		t.Errorf("got %+v", got.Products)
	}
	if start.Products[0].Quantity != 1 {
		t.Error("reducer modified its input")
	}
}

func TestIncrement_UnknownIDNoOp(t *testing.T) {
	start := stateOf(domain.LineItem{ID: "1", Title: "A", Quantity: 1})
	got := Increment("missing")(start)
	if !reflect.DeepEqual(got, start) {
		t.Errorf("got %+v, want unchanged %+v", got, start)
	}
}

func TestDecrement_KeepAllowsNegative(t *testing.T) {
	start := stateOf(domain.LineItem{ID: "1", Quantity: 0})
	got := Decrement("1", policy.ZeroKeep)(start)
	if len(got.Products) != 1 {
		t.Fatalf("item removed, products = %+v", got.Products)
	}
	if got.Products[0].Quantity != -1 {
		t.Errorf("quantity = %d, want -1", got.Products[0].Quantity)
	}
}

func TestDecrement_Floor(t *testing.T) {
	got := Decrement("1", policy.ZeroFloor)(stateOf(domain.LineItem{ID: "1", Quantity: 0}))
	if len(got.Products) != 1 || got.Products[0].Quantity != 0 {
		t.Errorf("got %+v, want quantity 0 kept", got.Products)
	}
	got = Decrement("1", policy.ZeroFloor)(stateOf(domain.LineItem{ID: "1", Quantity: 3}))
	if got.Products[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", got.Products[0].Quantity)
	}
}

func TestDecrement_FloorKeepsNegativeQuantity(t *testing.T) {
	got := Decrement("1", policy.ZeroFloor)(stateOf(domain.LineItem{ID: "1", Quantity: -3}))
	if got.Products[0].Quantity != -3 {
		t.Errorf("quantity = %d, want -3 (decrement must not raise a quantity)", got.Products[0].Quantity)
	}
	got = Decrement("1", policy.ZeroFloor)(stateOf(domain.LineItem{ID: "1", Quantity: 1}))
	if got.Products[0].Quantity != 0 {
		t.Errorf("quantity = %d, want 0", got.Products[0].Quantity)
	}
}

func TestDecrement_Remove(t *testing.T) {
	start := stateOf(domain.LineItem{ID: "1", Quantity: 1}, domain.LineItem{ID: "2", Quantity: 2})
	got := Decrement("1", policy.ZeroRemove)(start)
	if len(got.Products) != 1 || got.Products[0].ID != "2" {
		t.Errorf("got %+v, want only item 2", got.Products)
	}
	if len(start.Products) != 2 || start.Products[0].ID != "1" {
		t.Error("reducer modified its input")
	}
}

func TestDecrement_UnknownIDNoOp(t *testing.T) {
	start := stateOf(domain.LineItem{ID: "1", Quantity: 1})
	got := Decrement("nope", policy.ZeroRemove)(start)
	if !reflect.DeepEqual(got, start) {
		t.Errorf("got %+v, want unchanged", got)
	}
}

func TestReplace(t *testing.T) {
	items := []domain.LineItem{{ID: "x", Quantity: 3}}
	got := Replace(items)(stateOf(domain.LineItem{ID: "old"}))
	if !reflect.DeepEqual(got.Products, items) {
		t.Errorf("got %+v", got.Products)
	}
	got.Products[0].Quantity = 9
	if items[0].Quantity != 3 {
		t.Error("Replace should copy its input")
	}
}

func TestStorageKey(t *testing.T) {
	if got := StorageKey("GoMarketplace", KeyCart); got != "@GoMarketplace:cart" {
		t.Errorf("StorageKey = %q", got)
	}
	if got := StorageKey("GoMarketplace", KeyProducts); got != "@GoMarketplace:products" {
		t.Errorf("StorageKey = %q", got)
	}
}
