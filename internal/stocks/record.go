package stocks

import (
	"strings"
	"time"
)

// Record is one stock entry. Records handed out by the Store are copies;
// mutating them has no effect on the collection.
type Record struct {
	ID        string    `json:"id" jsonschema:"server generated identifier (UUIDv7)"`
	Symbol    string    `json:"symbol" jsonschema:"ticker symbol, upper case"`
	Name      string    `json:"name" jsonschema:"company display name"`
	Price     float64   `json:"price" jsonschema:"last price, non-negative"`
	Change    float64   `json:"change" jsonschema:"signed price delta"`
	Volume    int64     `json:"volume" jsonschema:"traded volume, non-negative"`
	MarketCap float64   `json:"market_cap" jsonschema:"market capitalization, non-negative"`
	CreatedAt time.Time `json:"created_at" jsonschema:"creation timestamp (RFC 3339, UTC)"`
	UpdatedAt time.Time `json:"updated_at" jsonschema:"last modification timestamp (RFC 3339, UTC)"`
}

// CreateInput carries the fields accepted by Store.Create. Symbol, Name and
// Price are required; the optional numeric fields default to zero.
type CreateInput struct {
	Symbol    string
	Name      string
	Price     *float64
	Change    *float64
	Volume    *int64
	MarketCap *float64
}

// UpdateInput carries a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Symbol    *string
	Name      *string
	Price     *float64
	Change    *float64
	Volume    *int64
	MarketCap *float64
}

// Empty reports whether the update carries no fields.
func (u UpdateInput) Empty() bool {
	return u.Symbol == nil && u.Name == nil && u.Price == nil &&
		u.Change == nil && u.Volume == nil && u.MarketCap == nil
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
