// Package api holds the JSON wire types of the stockd HTTP API.
package api

import "time"

// Stock is the wire representation of one stock record.
type Stock struct {
	// ID is the server-generated record identifier (UUIDv7).
	ID string `json:"id"`
	// Symbol is the ticker symbol, always upper case.
	Symbol string `json:"symbol"`
	// Name is the company display name.
	Name string `json:"name"`
	// Price is the last traded price.
	Price float64 `json:"price"`
	// Change is the signed price delta.
	Change float64 `json:"change"`
	// Volume is the traded volume.
	Volume int64 `json:"volume"`
	// MarketCap is the market capitalization.
	MarketCap float64 `json:"market_cap"`
	// CreatedAt is set once when the record is created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is refreshed on every mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// StockCreateRequest is the body of POST /stocks.
type StockCreateRequest struct {
	// Symbol is required; it is trimmed and upper-cased.
	Symbol string `json:"symbol"`
	// Name is required.
	Name string `json:"name"`
	// Price is required and must be non-negative.
	Price *float64 `json:"price"`
	// Change defaults to 0.
	Change *float64 `json:"change,omitempty"`
	// Volume defaults to 0 and must be non-negative.
	Volume *int64 `json:"volume,omitempty"`
	// MarketCap defaults to 0 and must be non-negative.
	MarketCap *float64 `json:"market_cap,omitempty"`
}

// StockUpdateRequest is the body of PUT /stocks/{id}. Omitted fields keep
// their current value.
type StockUpdateRequest struct {
	Symbol    *string  `json:"symbol,omitempty"`
	Name      *string  `json:"name,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	Change    *float64 `json:"change,omitempty"`
	Volume    *int64   `json:"volume,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"`
}

// DeleteResponse confirms DELETE /stocks/{id}.
type DeleteResponse struct {
	// Message is a human readable confirmation.
	Message string `json:"message"`
	// Deleted is the record as it was before removal.
	Deleted Stock `json:"deleted_stock"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	// Count is the number of records.
	Count int `json:"count"`
	// TotalPrice is the sum of all prices.
	TotalPrice float64 `json:"total_price"`
	// AveragePrice is the mean price rounded to two decimals.
	AveragePrice float64 `json:"average_price"`
	// TotalMarketCap is the sum of all market capitalizations.
	TotalMarketCap float64 `json:"total_market_cap"`
	// AverageMarketCap is the mean market capitalization rounded to two decimals.
	AverageMarketCap float64 `json:"average_market_cap"`
	// HighestPrice is the symbol of the highest priced record. Omitted when empty.
	HighestPrice string `json:"highest_price,omitempty"`
	// LowestPrice is the symbol of the lowest priced record. Omitted when empty.
	LowestPrice string `json:"lowest_price,omitempty"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// MessageResponse carries a single human readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the unauthenticated health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// ErrorCode is the stable error identifier (invalid_argument, not_found,
	// unauthorized, invalid_body, payload_too_large, internal_error).
	ErrorCode string `json:"error"`
	// Detail provides human-readable diagnostic context for the error.
	Detail string `json:"detail,omitempty"`
	// Field names the offending input field for validation failures.
	Field string `json:"field,omitempty"`
}
