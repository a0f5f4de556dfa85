package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime/types"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// CartHandler implements the health cart endpoints
type CartHandler struct {
	cart     *service.CartService
	analysis *service.AnalysisService
	logger   *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cart *service.CartService, analysis *service.AnalysisService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cart:     cart,
		analysis: analysis,
		logger:   logger,
	}
}

// GetCart returns all lines with the count and total
func (h *CartHandler) GetCart(c *gin.Context) {
	snapshot := h.cart.Snapshot()

	response := api.CartResponse{
		Lines: make([]api.CartLine, 0, len(snapshot.Lines)),
		Count: snapshot.Count,
		Total: snapshot.Total,
	}
	for _, line := range snapshot.Lines {
		response.Lines = append(response.Lines, toAPICartLine(line))
	}

	c.JSON(http.StatusOK, response)
}

// AddCartItem adds a medication, either a row of an analyzed prescription
// or one given inline
func (h *CartHandler) AddCartItem(c *gin.Context) {
	var req api.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}

	var med model.MedicationEntry
	switch {
	case req.PrescriptionId != nil && req.MedicationIndex != nil:
		itemID := uuidToString(*req.PrescriptionId)
		found, err := h.analysis.Medication(itemID, *req.MedicationIndex)
		switch {
		case errors.Is(err, service.ErrNotAnalyzed):
			respondError(c, http.StatusConflict, "NOT_ANALYZED", "Prescription has not been analyzed", err)
			return
		case err != nil:
			respondNotFound(c, "Medication not found", err)
			return
		}
		med = found
	case req.Medication != nil:
		med = fromAPIMedication(*req.Medication)
	default:
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR",
			"Either prescription_id with medication_index or medication is required", nil)
		return
	}

	result := h.cart.AddItem(med)

	c.JSON(http.StatusOK, api.AddCartItemResponse{
		Line:    toAPICartLine(result.Line),
		Merged:  result.Merged,
		Message: result.Message,
	})
}

// UpdateCartItem changes a line's quantity by delta, never below one
func (h *CartHandler) UpdateCartItem(c *gin.Context, id types.UUID) {
	var req api.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}

	line, err := h.cart.UpdateQuantity(uuidToString(id), req.Delta)
	if err != nil {
		respondNotFound(c, "Cart line not found", err)
		return
	}

	c.JSON(http.StatusOK, toAPICartLine(line))
}

// RemoveCartItem deletes a line
func (h *CartHandler) RemoveCartItem(c *gin.Context, id types.UUID) {
	if err := h.cart.RemoveLine(uuidToString(id)); err != nil {
		respondNotFound(c, "Cart line not found", err)
		return
	}
	c.Status(http.StatusNoContent)
}
