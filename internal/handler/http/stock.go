package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/FulfillmentGo/internal/service"
	"github.com/utafrali/FulfillmentGo/pkg/httputil"
)

// StockHandler handles HTTP requests for stock endpoints.
type StockHandler struct {
	service *service.StockService
	logger  *slog.Logger
}

// NewStockHandler creates a new stock HTTP handler.
func NewStockHandler(svc *service.StockService, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  logger,
	}
}

// GetAvailability handles GET /api/v1/stock/availability
func (h *StockHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.service.Availability(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: availability})
}
