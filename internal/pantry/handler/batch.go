package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/internal/pantry/service"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// BatchHandler handles stock movements on an item's batches
type BatchHandler struct {
	service *service.PantryService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.PantryService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// RestockRequest is the body of POST /items/{id}/restock. Without a
// quantity one pack is added.
type RestockRequest struct {
	Quantity   *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0"`
	ExpiryDate *ledger.Date     `json:"expiryDate"`
}

// ConsumeRequest is the body of POST /items/{id}/consume. Without a
// quantity one pack is consumed.
type ConsumeRequest struct {
	Quantity *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0"`
}

// BatchRequest is one row of a batch edit
type BatchRequest struct {
	ID         string          `json:"id" validate:"max=64"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate *ledger.Date    `json:"expiryDate"`
	AddedDate  *time.Time      `json:"addedDate"`
}

// ReplaceBatchesRequest is the body of PUT /items/{id}/batches
type ReplaceBatchesRequest struct {
	Batches []BatchRequest `json:"batches" validate:"required,dive"`
}

// Restock adds a batch to an item
func (h *BatchHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RestockRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.Restock(r.Context(), id, service.RestockRequest{
		Quantity:   req.Quantity,
		ExpiryDate: dateOrNil(req.ExpiryDate),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Consume removes stock, soonest-expiring batches first
func (h *BatchHandler) Consume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ConsumeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.Consume(r.Context(), id, service.ConsumeRequest{Quantity: req.Quantity})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// ConsumeBatch takes one pack out of a specific batch
func (h *BatchHandler) ConsumeBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batchID := chi.URLParam(r, "batchID")

	item, err := h.service.ConsumeBatch(r.Context(), id, batchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// ReplaceBatches installs a manually edited batch list
func (h *BatchHandler) ReplaceBatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReplaceBatchesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	inputs := make([]service.BatchInput, 0, len(req.Batches))
	for _, b := range req.Batches {
		inputs = append(inputs, service.BatchInput{
			ID:         b.ID,
			Quantity:   b.Quantity,
			ExpiryDate: dateOrNil(b.ExpiryDate),
			AddedDate:  b.AddedDate,
		})
	}

	item, err := h.service.ReplaceBatches(r.Context(), id, inputs)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// decodeOptionalJSON decodes the body when there is one. Restock and
// consume accept an empty body meaning "one pack".
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return httputil.DecodeJSON(r, v)
}
