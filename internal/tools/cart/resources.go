package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gomarketplace/cartd/internal/app"
)

// CurrentCartURI is the resource holding the live cart as JSON.
const CurrentCartURI = "cart://current"

func registerResources(s *server.MCPServer, cart app.Cart, logger *log.Logger) {
	s.AddResource(
		mcp.NewResource(
			CurrentCartURI,
			"Current cart",
			mcp.WithResourceDescription("The cart as JSON: revision, products, total_quantity and subtotal."),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			logger.Printf("Resource read: %s", CurrentCartURI)
			data, err := json.MarshalIndent(app.SnapshotOf(cart), "", "  ")
			if err != nil {
				return nil, fmt.Errorf("encode cart: %w", err)
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "application/json",
					Text:     string(data),
				},
			}, nil
		},
	)
}
