// Package domain holds cart entities and the aggregate cart state.
// It has no dependencies on other packages.
package domain

import (
	"encoding/json"
	"fmt"
)

// LineItem is one product in the cart.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ProductInput describes a product being added to the cart. It carries every
// LineItem field except the quantity, which the cart owns.
type ProductInput struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

// Validate reports whether the input can be added to a cart.
func (p ProductInput) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("price must not be negative, got %v", p.Price)
	}
	return nil
}

// LineItem returns the input as a line item with the given quantity.
func (p ProductInput) LineItem(quantity int) LineItem {
	return LineItem{
		ID:       p.ID,
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Quantity: quantity,
	}
}

// CartState is the ordered set of line items, unique by ID.
type CartState struct {
	Products []LineItem `json:"products"`
}

// NewCartState returns an empty cart.
func NewCartState() CartState {
	return CartState{Products: []LineItem{}}
}

// Clone returns a deep copy; the returned state shares no memory with s.
func (s CartState) Clone() CartState {
	out := make([]LineItem, len(s.Products))
	copy(out, s.Products)
	return CartState{Products: out}
}

// IndexOf returns the position of the item with id, or -1.
func (s CartState) IndexOf(id string) int {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return i
		}
	}
	return -1
}

// TotalQuantity sums the quantity of every line item.
func (s CartState) TotalQuantity() int {
	total := 0
	for _, p := range s.Products {
		total += p.Quantity
	}
	return total
}

// Subtotal sums price times quantity over every line item.
func (s CartState) Subtotal() float64 {
	var total float64
	for _, p := range s.Products {
		total += p.Price * float64(p.Quantity)
	}
	return total
}

// EncodeProducts serializes products as a JSON array. A nil slice encodes as "[]".
func EncodeProducts(products []LineItem) (string, error) {
	if products == nil {
		products = []LineItem{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return "", fmt.Errorf("encode products: %w", err)
	}
	return string(data), nil
}

// DecodeProducts parses a JSON array of line items. A JSON null decodes to an empty slice.
func DecodeProducts(raw string) ([]LineItem, error) {
	var products []LineItem
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	if products == nil {
		products = []LineItem{}
	}
	return products, nil
}
