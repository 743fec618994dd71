package httpapi

import (
	"fmt"
	"net/http"

	"github.com/swaggo/swag"

	"pkt.systems/stockd/api"
	"pkt.systems/stockd/internal/auth"
	"pkt.systems/stockd/swagger"
	"pkt.systems/stockd/swagger/docs"
)

// handleInfo godoc
// @Summary      Service information
// @Tags         system
// @Produce      json
// @Success      200  {object}  api.InfoResponse
// @Router       / [get]
func (h *Handler) handleInfo(w http.ResponseWriter, _ *http.Request) error {
	h.writeJSON(w, http.StatusOK, api.InfoResponse{
		Message: h.service + " stock API",
		Version: h.version,
	})
	return nil
}

// handleHealth godoc
// @Summary      Liveness probe
// @Tags         system
// @Produce      json
// @Success      200  {object}  api.HealthResponse
// @Router       /healthz [get]
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	h.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy", Service: h.service})
	return nil
}

// handleReady godoc
// @Summary      Readiness probe
// @Tags         system
// @Produce      json
// @Success      200  {object}  api.HealthResponse
// @Failure      503  {object}  api.ErrorResponse
// @Router       /readyz [get]
func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) error {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			return httpError{Status: http.StatusServiceUnavailable, Code: "not_ready", Detail: err.Error()}
		}
	}
	h.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ready", Service: h.service})
	return nil
}

// handleProtected godoc
// @Summary      Credential check
// @Description  Greets the authenticated user.
// @Tags         system
// @Produce      json
// @Success      200  {object}  api.MessageResponse
// @Failure      401  {object}  api.ErrorResponse
// @Security     basicAuth
// @Router       /protected [get]
func (h *Handler) handleProtected(w http.ResponseWriter, r *http.Request) error {
	subject := "anonymous"
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		subject = p.Subject
	}
	h.writeJSON(w, http.StatusOK, api.MessageResponse{
		Message: fmt.Sprintf("Welcome, %s! You have access to the protected stock API.", subject),
	})
	return nil
}

func (h *Handler) handleSwaggerDoc(w http.ResponseWriter, _ *http.Request) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return fmt.Errorf("read swagger doc: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
	return nil
}

func (h *Handler) handleSwaggerUI(w http.ResponseWriter, _ *http.Request) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return fmt.Errorf("read swagger doc: %w", err)
	}
	page, err := swagger.UIPage([]byte(doc))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
	return nil
}
