package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/stocks"
	"pkt.systems/stockd/internal/svcfields"
)

func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions()
	desc := func(name string) string {
		description, ok := descriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolListStocks,
		Description: desc(toolListStocks),
	}, instrumentTool(s.toolLog, toolListStocks, s.handleListStocksTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetStock,
		Description: desc(toolGetStock),
	}, instrumentTool(s.toolLog, toolGetStock, s.handleGetStockTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolCreate,
		Description: desc(toolCreate),
	}, instrumentTool(s.toolLog, toolCreate, s.handleCreateStockTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolUpdate,
		Description: desc(toolUpdate),
	}, instrumentTool(s.toolLog, toolUpdate, s.handleUpdateStockTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolDelete,
		Description: desc(toolDelete),
	}, instrumentTool(s.toolLog, toolDelete, s.handleDeleteStockTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolStats,
		Description: desc(toolStats),
	}, instrumentTool(s.toolLog, toolStats, s.handleStatsTool))
}

// instrumentTool logs each call with the caller's subject and converts
// handler errors into structured tool errors.
func instrumentTool[In, Out any](base pslog.Logger, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	wrapped := withStructuredToolErrors(h)
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		start := time.Now()
		logger := svcfields.WithSubsystem(base, "mcp.tools."+name)
		if req != nil && req.Extra != nil && req.Extra.TokenInfo != nil {
			if subject, ok := req.Extra.TokenInfo.Extra["subject"].(string); ok {
				logger = logger.With("principal", subject)
			}
		}
		ctx = pslog.ContextWithLogger(ctx, logger)
		res, out, err := wrapped(ctx, req, input)
		if err != nil {
			logger.Debug("mcp.tool.error", "elapsed", time.Since(start), "error", err)
			return res, out, err
		}
		logger.Trace("mcp.tool.complete", "elapsed", time.Since(start))
		return res, out, nil
	}
}

type listStocksToolInput struct{}

type listStocksToolOutput struct {
	Count  int             `json:"count"`
	Stocks []stocks.Record `json:"stocks"`
}

func (s *server) handleListStocksTool(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listStocksToolInput) (*mcpsdk.CallToolResult, listStocksToolOutput, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, listStocksToolOutput{}, err
	}
	return nil, listStocksToolOutput{Count: len(records), Stocks: records}, nil
}

type getStockToolInput struct {
	Identifier string `json:"identifier" jsonschema:"record identifier, or ticker symbol when by_symbol is true"`
	BySymbol   bool   `json:"by_symbol,omitempty" jsonschema:"look the record up by ticker symbol instead of identifier"`
}

type stockToolOutput struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Stock   stocks.Record `json:"stock"`
}

func (s *server) handleGetStockTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input getStockToolInput) (*mcpsdk.CallToolResult, stockToolOutput, error) {
	var (
		rec stocks.Record
		err error
	)
	if input.BySymbol {
		rec, err = s.store.GetBySymbol(ctx, input.Identifier)
	} else {
		rec, err = s.store.Get(ctx, input.Identifier)
	}
	if err != nil {
		return nil, stockToolOutput{}, err
	}
	return nil, stockToolOutput{Success: true, Stock: rec}, nil
}

type createStockToolInput struct {
	Symbol    string   `json:"symbol,omitempty" jsonschema:"ticker symbol (required), upper-cased on write"`
	Name      string   `json:"name,omitempty" jsonschema:"company display name (required)"`
	Price     *float64 `json:"price,omitempty" jsonschema:"last price (required), non-negative"`
	Change    *float64 `json:"change,omitempty" jsonschema:"signed price delta, defaults to 0"`
	Volume    *int64   `json:"volume,omitempty" jsonschema:"traded volume, defaults to 0"`
	MarketCap *float64 `json:"market_cap,omitempty" jsonschema:"market capitalization, defaults to 0"`
}

func (s *server) handleCreateStockTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input createStockToolInput) (*mcpsdk.CallToolResult, stockToolOutput, error) {
	rec, err := s.store.Create(ctx, stocks.CreateInput{
		Symbol:    input.Symbol,
		Name:      input.Name,
		Price:     input.Price,
		Change:    input.Change,
		Volume:    input.Volume,
		MarketCap: input.MarketCap,
	})
	if err != nil {
		return nil, stockToolOutput{}, err
	}
	pslog.LoggerFromContext(ctx).Info("stocks.create.success", "id", rec.ID, "symbol", rec.Symbol)
	return nil, stockToolOutput{
		Success: true,
		Message: fmt.Sprintf("Stock %s created successfully", rec.Symbol),
		Stock:   rec,
	}, nil
}

type updateStockToolInput struct {
	StockID   string   `json:"stock_id" jsonschema:"identifier of the record to update"`
	Symbol    *string  `json:"symbol,omitempty" jsonschema:"new ticker symbol"`
	Name      *string  `json:"name,omitempty" jsonschema:"new company display name"`
	Price     *float64 `json:"price,omitempty" jsonschema:"new price, non-negative"`
	Change    *float64 `json:"change,omitempty" jsonschema:"new signed price delta"`
	Volume    *int64   `json:"volume,omitempty" jsonschema:"new traded volume, non-negative"`
	MarketCap *float64 `json:"market_cap,omitempty" jsonschema:"new market capitalization, non-negative"`
}

func (s *server) handleUpdateStockTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input updateStockToolInput) (*mcpsdk.CallToolResult, stockToolOutput, error) {
	rec, err := s.store.Update(ctx, input.StockID, stocks.UpdateInput{
		Symbol:    input.Symbol,
		Name:      input.Name,
		Price:     input.Price,
		Change:    input.Change,
		Volume:    input.Volume,
		MarketCap: input.MarketCap,
	})
	if err != nil {
		return nil, stockToolOutput{}, err
	}
	pslog.LoggerFromContext(ctx).Info("stocks.update.success", "id", rec.ID, "symbol", rec.Symbol)
	return nil, stockToolOutput{
		Success: true,
		Message: fmt.Sprintf("Stock %s updated successfully", rec.Symbol),
		Stock:   rec,
	}, nil
}

type deleteStockToolInput struct {
	StockID string `json:"stock_id" jsonschema:"identifier of the record to delete"`
}

type deleteStockToolOutput struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	DeletedStock stocks.Record `json:"deleted_stock"`
}

func (s *server) handleDeleteStockTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input deleteStockToolInput) (*mcpsdk.CallToolResult, deleteStockToolOutput, error) {
	rec, err := s.store.Delete(ctx, input.StockID)
	if err != nil {
		return nil, deleteStockToolOutput{}, err
	}
	pslog.LoggerFromContext(ctx).Info("stocks.delete.success", "id", rec.ID, "symbol", rec.Symbol)
	return nil, deleteStockToolOutput{
		Success:      true,
		Message:      fmt.Sprintf("Stock %s deleted successfully", rec.Symbol),
		DeletedStock: rec,
	}, nil
}

type statsToolInput struct{}

type statsToolOutput struct {
	Success bool         `json:"success"`
	Stats   stocks.Stats `json:"stats"`
}

func (s *server) handleStatsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, _ statsToolInput) (*mcpsdk.CallToolResult, statsToolOutput, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, statsToolOutput{}, err
	}
	return nil, statsToolOutput{Success: true, Stats: stats}, nil
}
