// MCP transport handler for the storefront using the official MCP Go SDK.
// Exposes catalog browsing and cart operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/storefront"
)

// === MCP Tool Input Types ===
// Every tool takes an optional session_id. Calls without one start a new
// session; its id is returned in the output for reuse.

// SessionInput is the input schema for list_products and get_cart.
type SessionInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"storefront session id from a previous call"`
}

// SearchInput is the input schema for search_products.
type SearchInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"storefront session id from a previous call"`
	Query     string `json:"query" jsonschema:"search text; empty restores the full catalog"`
}

// AdjustCartItemInput is the input schema for adjust_cart_item.
type AdjustCartItemInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"storefront session id from a previous call"`
	ProductID string `json:"product_id" jsonschema:"catalog product id"`
	Delta     int    `json:"delta" jsonschema:"quantity change; negative removes, quantity never drops below zero"`
}

// SetCartItemInput is the input schema for set_cart_item.
type SetCartItemInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"storefront session id from a previous call"`
	ProductID string `json:"product_id" jsonschema:"catalog product id"`
	Quantity  int    `json:"quantity" jsonschema:"new quantity, zero or more"`
}

// NewMCPServer creates an MCP server with storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront - browse the product catalog and manage a shopping cart. " +
				"Pass the returned session_id to later calls to keep the same cart.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List the currently displayed products (the full catalog, or the last search result).",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_products",
		Description: "Search the catalog by name or category. Searches are debounced: " +
			"the filtered list appears in list_products after a short quiet period.",
	}, h.mcpSearchProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the cart reconciled against the current catalog, with its total.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "adjust_cart_item",
		Description: "Change a product's cart quantity by delta. Adding a product not yet in the cart creates the line.",
	}, h.mcpAdjustCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_cart_item",
		Description: "Set a product's cart quantity.",
	}, h.mcpSetCartItem)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *ProductsResponse, error) {
	id, v, err := h.mcpView(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	resp := h.productsResponse(v.Snapshot())
	resp.SessionID = id
	return nil, resp, nil
}

func (h *Handler) mcpSearchProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, *ProductsResponse, error) {
	id, v, err := h.mcpView(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	v.Query(input.Query)

	resp := h.productsResponse(v.Snapshot())
	resp.SessionID = id
	return nil, resp, nil
}

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *CartResponse, error) {
	id, v, err := h.mcpView(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	resp := cartResponse(v.Cart())
	resp.SessionID = id
	return nil, resp, nil
}

func (h *Handler) mcpAdjustCartItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AdjustCartItemInput,
) (*mcp.CallToolResult, *CartResponse, error) {
	id, v, err := h.mcpView(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := v.AdjustQuantity(input.ProductID, input.Delta); err != nil {
		return nil, nil, h.mcpError(err)
	}

	resp := cartResponse(v.Cart())
	resp.SessionID = id
	return nil, resp, nil
}

func (h *Handler) mcpSetCartItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetCartItemInput,
) (*mcp.CallToolResult, *CartResponse, error) {
	id, v, err := h.mcpView(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := v.SetQuantity(input.ProductID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}

	resp := cartResponse(v.Cart())
	resp.SessionID = id
	return nil, resp, nil
}

// mcpView resolves the session's view, starting a new session when id is empty.
func (h *Handler) mcpView(ctx context.Context, id string) (string, *storefront.View, error) {
	if id == "" {
		id = session.NewID()
	} else if !session.Valid(id) {
		return "", nil, h.mcpError(model.NewValidationError("session_id", "must be a UUID"))
	}
	return id, h.registry.Get(ctx, id), nil
}

// mcpError converts view errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
