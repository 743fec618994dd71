package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/stockd/internal/diagnostics"
	"pkt.systems/stockd/internal/stocks"
)

const jsonMIME = "application/json"

func (s *server) registerResources(srv *mcpsdk.Server) {
	srv.AddResource(&mcpsdk.Resource{
		Name:        "all_stocks",
		Title:       "All stock records",
		Description: "Every stock record as a JSON array in insertion order.",
		MIMEType:    jsonMIME,
		URI:         resourceAll,
	}, s.handleAllResource)
	srv.AddResource(&mcpsdk.Resource{
		Name:        "stock_stats",
		Title:       "Stock statistics",
		Description: "Aggregate statistics over the stock collection.",
		MIMEType:    jsonMIME,
		URI:         resourceStats,
	}, s.handleStatsResource)
	srv.AddResource(&mcpsdk.Resource{
		Name:        "server_config",
		Title:       "Server configuration",
		Description: "Server identity, supported operations, snapshot location and host diagnostics.",
		MIMEType:    jsonMIME,
		URI:         resourceConfig,
	}, s.handleConfigResource)
	srv.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		Name:        "stock_info",
		Title:       "Stock by symbol",
		Description: "The first stock record whose symbol matches, case-insensitively.",
		MIMEType:    jsonMIME,
		URITemplate: resourceTemplate,
	}, s.handleSymbolResource)
}

func (s *server) handleAllResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, records)
}

func (s *server) handleStatsResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, stats)
}

type configResource struct {
	ServerName          string           `json:"server_name"`
	Version             string           `json:"version"`
	SupportedOperations []string         `json:"supported_operations"`
	Store               string           `json:"store"`
	Records             int              `json:"records"`
	Host                diagnostics.Host `json:"host"`
	LastUpdated         time.Time        `json:"last_updated"`
}

func (s *server) handleConfigResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	store := s.cfg.StoreURL
	if store == "" {
		store = s.store.Backend().Describe()
	}
	return jsonResource(req.Params.URI, configResource{
		ServerName:          s.cfg.ServerName,
		Version:             s.cfg.Version,
		SupportedOperations: []string{"create", "read", "update", "delete"},
		Store:               store,
		Records:             s.store.Len(),
		Host:                diagnostics.CollectHost(ctx),
		LastUpdated:         s.now(),
	})
}

func (s *server) handleSymbolResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	uri := req.Params.URI
	symbol, ok := symbolFromURI(uri)
	if !ok {
		return nil, mcpsdk.ResourceNotFoundError(uri)
	}
	rec, err := s.store.GetBySymbol(ctx, symbol)
	if err != nil {
		if stocksNotFoundOrInvalid(err) {
			s.resourceLog.Debug("mcp.resource.symbol.miss", "symbol", symbol)
			return nil, mcpsdk.ResourceNotFoundError(uri)
		}
		return nil, err
	}
	return jsonResource(uri, rec)
}

// symbolFromURI extracts {symbol} from stock://{symbol}/info.
func symbolFromURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "stock://")
	if !ok {
		return "", false
	}
	symbol, ok := strings.CutSuffix(rest, "/info")
	if !ok || symbol == "" || strings.Contains(symbol, "/") {
		return "", false
	}
	return symbol, true
}

func stocksNotFoundOrInvalid(err error) bool {
	return errors.Is(err, stocks.ErrNotFound) || errors.Is(err, stocks.ErrValidation)
}

func jsonResource(uri string, v any) (*mcpsdk.ReadResourceResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIME,
			Text:     string(body),
		}},
	}, nil
}
