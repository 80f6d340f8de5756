package app

import (
	"github.com/gomarketplace/cartd/internal/domain"
	"github.com/gomarketplace/cartd/internal/policy"
)

// Reducer computes the next cart state from the current one. Reducers must not
// modify their argument.
type Reducer func(domain.CartState) domain.CartState

// AddToCart returns a reducer that adds one unit of item. An existing line item
// keeps its position, gains one unit and takes every other field from item.
func AddToCart(item domain.ProductInput) Reducer {
	return func(s domain.CartState) domain.CartState {
		next := s.Clone()
		if i := next.IndexOf(item.ID); i >= 0 {
			next.Products[i] = item.LineItem(next.Products[i].Quantity + 1)
			return next
		}
		next.Products = append(next.Products, item.LineItem(1))
		return next
	}
}

// Increment returns a reducer that adds one unit to the item with id.
// Unknown ids leave the state unchanged.
func Increment(id string) Reducer {
	return func(s domain.CartState) domain.CartState {
		next := s.Clone()
		if i := next.IndexOf(id); i >= 0 {
			next.Products[i].Quantity++
		}
		return next
	}
}

// Decrement returns a reducer that removes one unit from the item with id.
// What happens at zero depends on zero: keep lets the quantity go negative,
// floor stops at zero, remove drops the line item. Under floor a quantity that is
// already negative is left as it is.
func Decrement(id string, zero policy.ZeroPolicy) Reducer {
	return func(s domain.CartState) domain.CartState {
		next := s.Clone()
		i := next.IndexOf(id)
		if i < 0 {
			return next
		}
		q := next.Products[i].Quantity - 1
		switch zero {
		case policy.ZeroFloor:
			q = max(q, min(next.Products[i].Quantity, 0))
		case policy.ZeroRemove:
			if q <= 0 {
				next.Products = append(next.Products[:i], next.Products[i+1:]...)
				return next
			}
		}
		next.Products[i].Quantity = q
		return next
	}
}

// Replace returns a reducer that swaps in products wholesale (used by Load).
func Replace(products []domain.LineItem) Reducer {
	return func(domain.CartState) domain.CartState {
		return domain.CartState{Products: products}.Clone()
	}
}
