package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cinnamona/bakery/internal/catalog"
	"github.com/cinnamona/bakery/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Logger  *slog.Logger
	Version string
}

// NewMCPServer creates a read-only MCP server over the catalog: products,
// FAQs, shops and site settings.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := server.NewMCPServer(
		"bakery",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bakery: the shop's menu, FAQs, locations and contact settings."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_products",
			mcp.WithDescription("List the products on the menu, optionally narrowed to one category."),
			mcp.WithString("category", mcp.Description("Only products in this category, e.g. gluten-free")),
			mcp.WithBoolean("featured_only", mcp.Description("Only featured products")),
		),
		mcpListProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("get_product",
			mcp.WithDescription("Get one product by id."),
			mcp.WithString("id", mcp.Description("Product id"), mcp.Required()),
		),
		mcpGetProduct(deps),
	)

	s.AddTool(
		mcp.NewTool("list_faqs",
			mcp.WithDescription("List frequently asked questions and their answers."),
			mcp.WithString("category", mcp.Description("Only FAQs in this category")),
		),
		mcpListFAQs(deps),
	)

	s.AddTool(
		mcp.NewTool("list_shops",
			mcp.WithDescription("List shop locations with address, phone and opening hours."),
		),
		mcpListShops(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"bakery://settings",
			"Site Settings",
			mcp.WithResourceDescription("Site name, contact details and delivery pricing as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	return s
}

func mcpListProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := map[string]any{}
		if c := strings.TrimSpace(req.GetString("category", "")); c != "" {
			filter["category"] = c
		}
		if req.GetBool("featured_only", false) {
			filter["featured"] = true
		}

		records, err := deps.Store.Query(catalog.ProductsCollection, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list products: %v", err)), nil
		}
		return mcpJSON(decodeAll[catalog.Product](deps.Logger, records))
	}
}

func mcpGetProduct(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Store.GetByID(catalog.ProductsCollection, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("product %q not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get product: %v", err)), nil
		}
		p, err := catalog.Decode[catalog.Product](rec)
		if err != nil {
			return mcpError(fmt.Sprintf("product %q is malformed: %v", id, err)), nil
		}
		return mcpJSON(p)
	}
}

func mcpListFAQs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := map[string]any{}
		if c := strings.TrimSpace(req.GetString("category", "")); c != "" {
			filter["category"] = c
		}
		records, err := deps.Store.Query(catalog.FAQsCollection, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list faqs: %v", err)), nil
		}
		return mcpJSON(decodeAll[catalog.FAQ](deps.Logger, records))
	}
}

func mcpListShops(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records, err := deps.Store.GetAll(catalog.ShopsCollection)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list shops: %v", err)), nil
		}
		return mcpJSON(decodeAll[catalog.Shop](deps.Logger, records))
	}
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		doc, err := deps.Store.GetDocument(catalog.SettingsCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to get settings: %w", err)
		}
		settings, err := catalog.Decode[catalog.SiteSettings](doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
		b, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// decodeAll converts records to T, skipping and logging records that do not
// fit.
func decodeAll[T any](logger *slog.Logger, records []storage.Record) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		v, err := catalog.Decode[T](rec)
		if err != nil {
			logger.Warn("skipping malformed record", "id", rec.ID(), "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
