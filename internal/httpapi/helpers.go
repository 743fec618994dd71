package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pkt.systems/stockd/api"
	"pkt.systems/stockd/internal/stocks"
)

type jsonDecodeOptions struct {
	disallowUnknowns bool
}

// decodeJSONBody decodes exactly one JSON value from body.
func decodeJSONBody(body io.Reader, dst any, opts jsonDecodeOptions) error {
	dec := json.NewDecoder(body)
	if opts.disallowUnknowns {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return err
	}
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unexpected trailing JSON value")
}

// readJSON decodes a size-limited, strict JSON request body into dst.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, h.jsonMaxBytes)
	defer body.Close()
	if err := decodeJSONBody(body, dst, jsonDecodeOptions{disallowUnknowns: true}); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return httpError{
				Status: http.StatusRequestEntityTooLarge,
				Code:   "payload_too_large",
				Detail: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
			}
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		return httpError{
			Status: http.StatusBadRequest,
			Code:   "invalid_body",
			Detail: fmt.Sprintf("failed to parse request: %v", err),
		}
	}
	return nil
}

// convertStoreError maps store failures onto HTTP errors. Anything that is
// not a validation or lookup failure stays internal.
func convertStoreError(err error) error {
	var serr *stocks.Error
	if !errors.As(err, &serr) {
		return err
	}
	detail := serr.Message
	if serr.Field != "" {
		detail = serr.Field + ": " + serr.Message
	}
	switch serr.Kind {
	case stocks.KindValidation:
		return httpError{Status: http.StatusBadRequest, Code: "invalid_argument", Detail: detail, Field: serr.Field}
	case stocks.KindNotFound:
		return httpError{Status: http.StatusNotFound, Code: "not_found", Detail: detail}
	}
	return err
}

func toAPIStock(rec stocks.Record) api.Stock {
	return api.Stock{
		ID:        rec.ID,
		Symbol:    rec.Symbol,
		Name:      rec.Name,
		Price:     rec.Price,
		Change:    rec.Change,
		Volume:    rec.Volume,
		MarketCap: rec.MarketCap,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toAPIStats(s stocks.Stats) api.StatsResponse {
	return api.StatsResponse{
		Count:            s.Count,
		TotalPrice:       s.TotalPrice,
		AveragePrice:     s.AveragePrice,
		TotalMarketCap:   s.TotalMarketCap,
		AverageMarketCap: s.AverageMarketCap,
		HighestPrice:     s.HighestSymbol(),
		LowestPrice:      s.LowestSymbol(),
	}
}

func routerSys(operation string) string {
	parts := strings.FieldsFunc(operation, func(r rune) bool {
		switch r {
		case '.', '/', '-', '_':
			return true
		}
		return false
	})
	if len(parts) == 0 {
		return "api.http.router"
	}
	return "api.http.router." + strings.Join(parts, ".")
}
