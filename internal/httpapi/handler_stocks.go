package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pkt.systems/pslog"

	"pkt.systems/stockd/api"
	"pkt.systems/stockd/internal/stocks"
)

// handleList godoc
// @Summary      List stock records
// @Description  Returns every stored record in insertion order.
// @Tags         stocks
// @Produce      json
// @Success      200  {array}   api.Stock
// @Failure      401  {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stocks [get]
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) error {
	records, err := h.store.List(r.Context())
	if err != nil {
		return convertStoreError(err)
	}
	out := make([]api.Stock, 0, len(records))
	for _, rec := range records {
		out = append(out, toAPIStock(rec))
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

// handleGet godoc
// @Summary      Fetch a stock record
// @Description  Returns the record with the given identifier.
// @Tags         stocks
// @Produce      json
// @Param        id   path      string  true  "Record identifier"
// @Success      200  {object}  api.Stock
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stocks/{id} [get]
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return convertStoreError(err)
	}
	h.writeJSON(w, http.StatusOK, toAPIStock(rec))
	return nil
}

// handleGetBySymbol godoc
// @Summary      Fetch a stock record by symbol
// @Description  Symbol lookup is case-insensitive. When several records share a symbol the first stored one is returned.
// @Tags         stocks
// @Produce      json
// @Param        symbol  path      string  true  "Ticker symbol"
// @Success      200     {object}  api.Stock
// @Failure      401     {object}  api.ErrorResponse
// @Failure      404     {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stocks/symbol/{symbol} [get]
func (h *Handler) handleGetBySymbol(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.store.GetBySymbol(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		return convertStoreError(err)
	}
	h.writeJSON(w, http.StatusOK, toAPIStock(rec))
	return nil
}

// handleCreate godoc
// @Summary      Create a stock record
// @Description  Symbol, name and price are required. The symbol is upper-cased and the identifier and timestamps are assigned by the server.
// @Tags         stocks
// @Accept       json
// @Produce      json
// @Param        request  body      api.StockCreateRequest  true  "New record"
// @Success      201      {object}  api.Stock
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      413      {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stocks [post]
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var req api.StockCreateRequest
	if err := h.readJSON(w, r, &req); err != nil {
		return err
	}
	rec, err := h.store.Create(r.Context(), stocks.CreateInput{
		Symbol:    req.Symbol,
		Name:      req.Name,
		Price:     req.Price,
		Change:    req.Change,
		Volume:    req.Volume,
		MarketCap: req.MarketCap,
	})
	if err != nil {
		return convertStoreError(err)
	}
	pslog.LoggerFromContext(r.Context()).Info("stocks.create.success", "id", rec.ID, "symbol", rec.Symbol)
	w.Header().Set("Location", "/stocks/"+rec.ID)
	h.writeJSON(w, http.StatusCreated, toAPIStock(rec))
	return nil
}

// handleUpdate godoc
// @Summary      Update a stock record
// @Description  Applies a partial update. Omitted fields keep their value; updated_at is always refreshed.
// @Tags         stocks
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Record identifier"
// @Param        request  body      api.StockUpdateRequest  true  "Fields to change"
// @Success      200      {object}  api.Stock
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      404      {object}  api.ErrorResponse
// @Failure      413      {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stocks/{id} [put]
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	var req api.StockUpdateRequest
	if err := h.readJSON(w, r, &req); err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	rec, err := h.store.Update(r.Context(), id, stocks.UpdateInput{
		Symbol:    req.Symbol,
		Name:      req.Name,
		Price:     req.Price,
		Change:    req.Change,
		Volume:    req.Volume,
		MarketCap: req.MarketCap,
	})
	if err != nil {
		return convertStoreError(err)
	}
	pslog.LoggerFromContext(r.Context()).Info("stocks.update.success", "id", rec.ID, "symbol", rec.Symbol)
	h.writeJSON(w, http.StatusOK, toAPIStock(rec))
	return nil
}

// handleDelete godoc
// @Summary      Delete a stock record
// @Description  Removes the record and returns it as it was before removal.
// @Tags         stocks
// @Produce      json
// @Param        id   path      string  true  "Record identifier"
// @Success      200  {object}  api.DeleteResponse
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stocks/{id} [delete]
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.store.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return convertStoreError(err)
	}
	pslog.LoggerFromContext(r.Context()).Info("stocks.delete.success", "id", rec.ID, "symbol", rec.Symbol)
	h.writeJSON(w, http.StatusOK, api.DeleteResponse{
		Message: fmt.Sprintf("Stock %s deleted successfully", rec.Symbol),
		Deleted: toAPIStock(rec),
	})
	return nil
}

// handleStats godoc
// @Summary      Aggregate statistics
// @Description  Count, totals, averages and the symbols of the highest and lowest priced records.
// @Tags         stocks
// @Produce      json
// @Success      200  {object}  api.StatsResponse
// @Failure      401  {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /stats [get]
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		return convertStoreError(err)
	}
	h.writeJSON(w, http.StatusOK, toAPIStats(stats))
	return nil
}
