package mcp

import (
	"fmt"
	"strings"
)

const (
	toolListStocks = "list_stocks"
	toolGetStock   = "get_stock"
	toolCreate     = "create_stock"
	toolUpdate     = "update_stock"
	toolDelete     = "delete_stock"
	toolStats      = "get_stock_stats"
)

const (
	resourceAll      = "stock://all"
	resourceStats    = "stock://stats"
	resourceConfig   = "stock://config"
	resourceTemplate = "stock://{symbol}/info"
)

func defaultServerInstructions(cfg Config) string {
	return strings.TrimSpace(fmt.Sprintf(`
%s operating manual:
- Records carry id, symbol, name, price, change, volume, market_cap, created_at and updated_at.
- Identifiers are assigned by the server; use list_stocks or get_stock with by_symbol=true to discover them.
- Symbols are upper-cased on write and matched case-insensitively. Several records may share a symbol; lookups return the first stored one.
- update_stock is a partial update: omitted fields keep their value.
- price, volume and market_cap must be non-negative; change may be negative.
- Errors come back as {"error":{"error_code":...}} with invalid_argument or not_found.
- Read-only views: %s, %s, %s and %s.
`, cfg.ServerName, resourceAll, resourceStats, resourceConfig, resourceTemplate))
}

func buildToolDescriptions() map[string]string {
	return map[string]string{
		toolListStocks: "List every stock record in insertion order together with the record count.",
		toolGetStock:   "Fetch one stock record by identifier, or by ticker symbol when by_symbol is true.",
		toolCreate:     "Create a stock record. symbol, name and price are required; change, volume and market_cap default to 0.",
		toolUpdate:     "Partially update the stock record identified by stock_id. Only the supplied fields change; updated_at is always refreshed.",
		toolDelete:     "Delete the stock record identified by stock_id and return it as it was before removal.",
		toolStats:      "Aggregate statistics: count, total and average price, total and average market cap, highest and lowest priced records.",
	}
}
