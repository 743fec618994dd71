// Package mcp provides the stockd MCP server.
//
// The server exposes the shared stock record store to MCP clients over
// streamable HTTP (default path /mcp). It registers one tool per store
// operation and a small set of read-only resources.
//
// # Tools
//
//   - list_stocks: every record plus a count
//   - get_stock: lookup by identifier, or by symbol when by_symbol is true
//   - create_stock, update_stock, delete_stock: mutations
//   - get_stock_stats: aggregate statistics
//
// Tool failures are returned as tool results with isError set and a JSON
// envelope of the form {"error":{"error_code":"...","detail":"..."}}.
// Validation failures carry error_code invalid_argument and lookups that
// miss carry not_found.
//
// # Resources
//
//   - stock://all, stock://stats, stock://config
//   - stock://{symbol}/info (resource template)
//
// # Security
//
// The MCP endpoint requires an Authorization: Bearer header accepted by the
// configured auth.Verifier. GET /health and GET /auth-info are served
// without credentials. /auth-info only echoes example credentials when the
// operator configured them.
package mcp
