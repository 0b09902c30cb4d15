package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/internal/pantry/service"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

func init() {
	// Whitespace-only names and units would be trimmed to nothing by the ledger
	if err := httputil.RegisterCustomValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}
}

// ItemHandler handles item endpoints
type ItemHandler struct {
	service *service.PantryService
	logger  *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(svc *service.PantryService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  log,
	}
}

// CreateItemRequest is the body of POST /items
type CreateItemRequest struct {
	Name            string           `json:"name" validate:"required,notblank,max=200"`
	Category        string           `json:"category" validate:"max=100"`
	Unit            string           `json:"unit" validate:"required,notblank,max=32"`
	QuantityPerPack *decimal.Decimal `json:"quantityPerPack" validate:"omitempty,gt=0"`
	TotalQuantity   *decimal.Decimal `json:"totalQuantity" validate:"omitempty,gt=0"`
	Quantity        decimal.Decimal  `json:"quantity" validate:"gte=0"`
	ExpiryDate      *ledger.Date     `json:"expiryDate"`
	Notes           string           `json:"notes" validate:"max=1000"`
	Barcode         string           `json:"barcode" validate:"max=64"`
}

// UpdateItemRequest is the body of PUT /items/{id}. Omitted fields are left as is.
type UpdateItemRequest struct {
	Name            *string          `json:"name" validate:"omitempty,notblank,max=200"`
	Category        *string          `json:"category" validate:"omitempty,max=100"`
	Unit            *string          `json:"unit" validate:"omitempty,max=32"`
	QuantityPerPack *decimal.Decimal `json:"quantityPerPack" validate:"omitempty,gte=0"`
	TotalQuantity   *decimal.Decimal `json:"totalQuantity" validate:"omitempty,gte=0"`
	Notes           *string          `json:"notes" validate:"omitempty,max=1000"`
	Barcode         *string          `json:"barcode" validate:"omitempty,max=64"`
}

// List lists pantry items, optionally filtered by category and a search term
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := service.ListFilter{
		Category: r.URL.Query().Get("category"),
		Query:    r.URL.Query().Get("q"),
	}

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{Total: len(items)})
}

// Expiring lists items expiring within within_days (default: the configured window)
func (h *ItemHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	withinDays := -1
	if raw := r.URL.Query().Get("within_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.Error(w, errors.BadRequest("within_days must be a non-negative integer"))
			return
		}
		withinDays = n
	}

	items, err := h.service.ExpiringItems(r.Context(), withinDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{Total: len(items)})
}

// Get gets an item by ID
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Create creates a new item with its initial quantity as the first batch
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), ledger.NewItem{
		Name:            req.Name,
		Category:        req.Category,
		Unit:            req.Unit,
		QuantityPerPack: req.QuantityPerPack,
		TotalQuantity:   req.TotalQuantity,
		Notes:           req.Notes,
		Barcode:         req.Barcode,
		Quantity:        req.Quantity,
		ExpiryDate:      dateOrNil(req.ExpiryDate),
	}, service.SourceManual)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Update updates an item's descriptive fields
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.UpdateDetails(r.Context(), id, service.Details{
		Name:            req.Name,
		Category:        req.Category,
		Unit:            req.Unit,
		QuantityPerPack: req.QuantityPerPack,
		TotalQuantity:   req.TotalQuantity,
		Notes:           req.Notes,
		Barcode:         req.Barcode,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Delete deletes an item and all of its batches
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// dateOrNil treats an empty date as absent
func dateOrNil(d *ledger.Date) *ledger.Date {
	if d == nil || d.IsZero() {
		return nil
	}
	return d
}
