package stocks

import "github.com/shopspring/decimal"

// Stats summarises the collection at one point in time.
type Stats struct {
	Count            int     `json:"count" jsonschema:"number of records"`
	TotalPrice       float64 `json:"total_price" jsonschema:"sum of all prices"`
	AveragePrice     float64 `json:"average_price" jsonschema:"mean price rounded to 2 decimals"`
	TotalMarketCap   float64 `json:"total_market_cap" jsonschema:"sum of all market capitalizations"`
	AverageMarketCap float64 `json:"average_market_cap" jsonschema:"mean market capitalization rounded to 2 decimals"`
	Highest          *Record `json:"highest_price_stock,omitempty" jsonschema:"record with the highest price"`
	Lowest           *Record `json:"lowest_price_stock,omitempty" jsonschema:"record with the lowest price"`
}

// HighestSymbol returns the symbol of the highest priced record or "".
func (s Stats) HighestSymbol() string {
	if s.Highest == nil {
		return ""
	}
	return s.Highest.Symbol
}

// LowestSymbol returns the symbol of the lowest priced record or "".
func (s Stats) LowestSymbol() string {
	if s.Lowest == nil {
		return ""
	}
	return s.Lowest.Symbol
}

// computeStats sums in decimal so totals do not accumulate binary float
// error. Ties on price keep the earliest record.
func computeStats(records []Record) Stats {
	stats := Stats{Count: len(records)}
	if len(records) == 0 {
		return stats
	}
	totalPrice := decimal.Zero
	totalCap := decimal.Zero
	hi, lo := 0, 0
	for i, rec := range records {
		totalPrice = totalPrice.Add(decimal.NewFromFloat(rec.Price))
		totalCap = totalCap.Add(decimal.NewFromFloat(rec.MarketCap))
		if rec.Price > records[hi].Price {
			hi = i
		}
		if rec.Price < records[lo].Price {
			lo = i
		}
	}
	n := decimal.NewFromInt(int64(len(records)))
	stats.TotalPrice = totalPrice.InexactFloat64()
	stats.TotalMarketCap = totalCap.InexactFloat64()
	stats.AveragePrice = totalPrice.DivRound(n, 8).Round(2).InexactFloat64()
	stats.AverageMarketCap = totalCap.DivRound(n, 8).Round(2).InexactFloat64()
	highest := records[hi]
	lowest := records[lo]
	stats.Highest = &highest
	stats.Lowest = &lowest
	return stats
}
