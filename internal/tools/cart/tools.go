package cart

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gomarketplace/cartd/internal/app"
	"github.com/gomarketplace/cartd/internal/domain"
)

// registerGetCart registers the get_cart tool.
func registerGetCart(s *server.MCPServer, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_cart",
			mcp.WithDescription("Show the current cart: every line item with price and quantity, plus totals."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cart, err := app.UseCart(ctx)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(formatCart(app.SnapshotOf(cart))), nil
		},
	)
}

// registerAddToCart registers the add_to_cart tool.
func registerAddToCart(s *server.MCPServer, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("add_to_cart",
			mcp.WithDescription("Add one unit of a product to the cart. If the product is already in the cart its quantity goes up by one and its title, image and price are replaced."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
			mcp.WithString("title", mcp.Description("Product title")),
			mcp.WithString("image_url", mcp.Description("Product image URL")),
			mcp.WithNumber("price", mcp.Description("Unit price (default: 0)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cart, err := app.UseCart(ctx)
			if err != nil {
				return nil, err
			}
			args := req.GetArguments()
			id, err := requireString(args, "id")
			if err != nil {
				return nil, err
			}
			price, err := optionalFloat64(args, "price", 0)
			if err != nil {
				return nil, err
			}
			in := domain.ProductInput{
				ID:       id,
				Title:    optionalString(args, "title"),
				ImageURL: optionalString(args, "image_url"),
				Price:    price,
			}
			if err := in.Validate(); err != nil {
				return nil, err
			}

			cart.AddToCart(in)
			logger.Printf("Added %s to cart", id)
			return mcp.NewToolResultText(fmt.Sprintf("Added %s.\n%s", id, formatCart(app.SnapshotOf(cart)))), nil
		},
	)
}

// registerIncrementItem registers the increment_item tool.
func registerIncrementItem(s *server.MCPServer, logger *log.Logger) {
	registerQuantityTool(s, logger, "increment_item",
		"Increase the quantity of a cart item by one. Unknown ids leave the cart unchanged.",
		"Incremented", app.Cart.Increment)
}

// registerDecrementItem registers the decrement_item tool.
func registerDecrementItem(s *server.MCPServer, logger *log.Logger) {
	registerQuantityTool(s, logger, "decrement_item",
		"Decrease the quantity of a cart item by one. What happens at zero depends on the server's zero_quantity setting.",
		"Decremented", app.Cart.Decrement)
}

func registerQuantityTool(s *server.MCPServer, logger *log.Logger, name, description, verb string, op func(app.Cart, string) bool) {
	s.AddTool(
		mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cart, err := app.UseCart(ctx)
			if err != nil {
				return nil, err
			}
			id, err := requireString(req.GetArguments(), "id")
			if err != nil {
				return nil, err
			}

			if !op(cart, id) {
				text := fmt.Sprintf("%s is not in the cart; nothing changed.\n%s", id, formatCart(app.SnapshotOf(cart)))
				return mcp.NewToolResultText(text), nil
			}
			logger.Printf("%s %s", verb, id)
			return mcp.NewToolResultText(fmt.Sprintf("%s %s.\n%s", verb, id, formatCart(app.SnapshotOf(cart)))), nil
		},
	)
}

// formatCart renders a snapshot as a short human-readable listing.
func formatCart(snap app.Snapshot) string {
	if len(snap.Products) == 0 {
		return "Cart is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cart (revision %d): %d item(s), %d unit(s), subtotal %.2f\n",
		snap.Revision, len(snap.Products), snap.TotalQuantity, snap.Subtotal)
	for _, p := range snap.Products {
		title := p.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "- [%s] %s x%d @ %.2f\n", p.ID, title, p.Quantity, p.Price)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
