// Package cart exposes the cart as MCP tools and a resource.
package cart

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gomarketplace/cartd/internal/app"
)

// Register registers the cart tools and the cart://current resource with the mcp-go server.
// Tools resolve the cart from the call context, so the server must be created with
// server.WithToolHandlerMiddleware(Provider(cart)). The resource reads cart directly.
func Register(s *server.MCPServer, cart app.Cart, logger *log.Logger) {
	registerGetCart(s, logger)
	registerAddToCart(s, logger)
	registerIncrementItem(s, logger)
	registerDecrementItem(s, logger)

	registerResources(s, cart, logger)
}

// Provider returns a mcp-go ToolHandlerMiddleware that opens the cart scope for every tool call.
func Provider(cart app.Cart) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return next(app.WithCart(ctx, cart), req)
		}
	}
}
