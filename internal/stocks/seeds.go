package stocks

import "time"

// seedRow is the static part of a seed record.
type seedRow struct {
	symbol    string
	name      string
	price     float64
	change    float64
	volume    int64
	marketCap float64
}

var seedRows = []seedRow{
	{symbol: "AAPL", name: "Apple Inc.", price: 175.43, change: 2.14, volume: 52000000, marketCap: 2800000000000},
	{symbol: "GOOGL", name: "Alphabet Inc.", price: 138.21, change: -1.23, volume: 28000000, marketCap: 1700000000000},
	{symbol: "MSFT", name: "Microsoft Corp.", price: 378.85, change: 5.67, volume: 31000000, marketCap: 2900000000000},
	{symbol: "TSLA", name: "Tesla Inc.", price: 248.42, change: -8.91, volume: 89000000, marketCap: 790000000000},
	{symbol: "NVDA", name: "NVIDIA Corp.", price: 875.28, change: 15.73, volume: 45000000, marketCap: 2100000000000},
}

// Seeds returns the default collection installed when no snapshot exists.
// Identifiers come from newID and both timestamps are set to now.
func Seeds(now time.Time, newID func() string) []Record {
	out := make([]Record, 0, len(seedRows))
	for _, row := range seedRows {
		out = append(out, Record{
			ID:        newID(),
			Symbol:    row.symbol,
			Name:      row.name,
			Price:     row.price,
			Change:    row.change,
			Volume:    row.volume,
			MarketCap: row.marketCap,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}
