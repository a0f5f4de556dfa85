package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime/types"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/pdf"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// uploadField is the multipart field carrying prescription images
const uploadField = "files"

// PrescriptionHandler implements the upload, analysis and purchase endpoints
type PrescriptionHandler struct {
	analysis *service.AnalysisService
	resolver *service.PurchaseResolver
	reports  *pdf.PDFGenerator
	clock    clock.Clock
	logger   *zap.Logger
}

// NewPrescriptionHandler creates a new PrescriptionHandler
func NewPrescriptionHandler(
	analysis *service.AnalysisService,
	resolver *service.PurchaseResolver,
	reports *pdf.PDFGenerator,
	clk clock.Clock,
	logger *zap.Logger,
) *PrescriptionHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &PrescriptionHandler{
		analysis: analysis,
		resolver: resolver,
		reports:  reports,
		clock:    clk,
		logger:   logger,
	}
}

// UploadPrescriptions ingests every image of the multipart "files" field
func (h *PrescriptionHandler) UploadPrescriptions(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Expected a multipart form", err)
		return
	}

	files := form.File[uploadField]
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("No files in field %q", uploadField), nil)
		return
	}

	response := api.UploadResponse{Items: []api.UploadedItem{}}
	var rejected []api.RejectedUpload

	for _, fh := range files {
		item, err := h.ingest(c, fh)
		if err != nil {
			reason := err.Error()
			if errors.Is(err, service.ErrUnsupportedMedia) {
				reason = "not an image"
			}
			h.logger.Warn("upload rejected",
				zap.String("filename", fh.Filename),
				zap.Error(err),
			)
			rejected = append(rejected, api.RejectedUpload{Name: fh.Filename, Reason: reason})
			continue
		}
		response.Items = append(response.Items, toAPIItem(item))
	}

	if len(rejected) > 0 {
		response.Rejected = &rejected
	}

	if len(response.Items) == 0 {
		c.JSON(http.StatusUnsupportedMediaType, api.ErrorResponse{
			Code:    "UNSUPPORTED_MEDIA",
			Message: "None of the uploaded files could be ingested",
			Details: stringPtr(fmt.Sprintf("%d file(s) rejected", len(rejected))),
		})
		return
	}

	h.logger.Info("prescriptions uploaded",
		zap.Int("accepted", len(response.Items)),
		zap.Int("rejected", len(rejected)),
	)

	c.JSON(http.StatusAccepted, response)
}

func (h *PrescriptionHandler) ingest(c *gin.Context, fh *multipart.FileHeader) (item model.UploadedItem, err error) {
	f, err := fh.Open()
	if err != nil {
		return item, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return h.analysis.Ingest(c.Request.Context(), fh.Filename, f)
}

// ListPrescriptions returns the uploaded items in upload order
func (h *PrescriptionHandler) ListPrescriptions(c *gin.Context, params api.ListPrescriptionsParams) {
	items := h.analysis.List()

	response := make([]api.UploadedItem, 0, len(items))
	for _, item := range items {
		if params.Status != nil && api.ItemStatus(item.Status) != *params.Status {
			continue
		}
		response = append(response, toAPIItem(item))
	}

	c.JSON(http.StatusOK, response)
}

// GetPrescription returns one item with its result, notes and preview links
func (h *PrescriptionHandler) GetPrescription(c *gin.Context, id types.UUID) {
	itemID := uuidToString(id)

	snapshot, err := h.analysis.Get(itemID)
	if err != nil {
		respondNotFound(c, "Prescription not found", err)
		return
	}

	response := api.PrescriptionDetail{
		Item:   toAPIItem(snapshot.Item),
		Result: toAPIResult(snapshot.Result),
	}

	if snapshot.Result != nil {
		previews := make([]*string, len(snapshot.Result.Medications))
		for i, med := range snapshot.Result.Medications {
			if url, ok := h.resolver.PreviewURL(med); ok {
				previews[i] = stringPtr(url)
			}
		}
		response.PreviewUrls = &previews
	}

	notes := h.resolver.Notes().ForItem(itemID)
	if len(notes) > 0 {
		apiNotes := make([]api.PurchaseNote, 0, len(notes))
		for _, note := range notes {
			apiNotes = append(apiNotes, toAPINote(note))
		}
		response.Notes = &apiNotes
	}

	c.JSON(http.StatusOK, response)
}

// RemovePrescription deletes an item, its result and its notes
func (h *PrescriptionHandler) RemovePrescription(c *gin.Context, id types.UUID) {
	if err := h.analysis.Remove(uuidToString(id)); err != nil {
		respondNotFound(c, "Prescription not found", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPrescriptionImage serves the uploaded bytes for preview
func (h *PrescriptionHandler) GetPrescriptionImage(c *gin.Context, id types.UUID) {
	data, contentType, err := h.analysis.Payload(c.Request.Context(), uuidToString(id))
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		respondNotFound(c, "Prescription not found", err)
		return
	case err != nil:
		h.logger.Error("failed to load prescription image",
			zap.String("prescription_id", uuidToString(id)),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load prescription image", err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// GetPrescriptionReport renders the printable summary of an analyzed item
func (h *PrescriptionHandler) GetPrescriptionReport(c *gin.Context, id types.UUID) {
	itemID := uuidToString(id)

	snapshot, err := h.analysis.Get(itemID)
	if err != nil {
		respondNotFound(c, "Prescription not found", err)
		return
	}
	if snapshot.Result == nil {
		respondError(c, http.StatusConflict, "NOT_ANALYZED", "Prescription has not been analyzed", nil)
		return
	}

	pdfBytes, err := h.reports.Generate(&pdf.ReportData{
		Item:        snapshot.Item,
		Result:      snapshot.Result,
		GeneratedAt: h.clock.Now(),
	})
	if err != nil {
		h.logger.Error("failed to generate report",
			zap.Error(err),
			zap.String("item_id", itemID),
		)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate report", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=prescription_%s.pdf", itemID))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)

	h.logger.Info("report generated",
		zap.String("item_id", itemID),
		zap.Int("size_bytes", len(pdfBytes)),
	)
}

// ResolvePurchase finds where to buy one medication row and leaves a note
func (h *PrescriptionHandler) ResolvePurchase(c *gin.Context, id types.UUID, index int) {
	itemID := uuidToString(id)

	med, err := h.analysis.Medication(itemID, index)
	switch {
	case errors.Is(err, service.ErrNotAnalyzed):
		respondError(c, http.StatusConflict, "NOT_ANALYZED", "Prescription has not been analyzed", err)
		return
	case err != nil:
		respondNotFound(c, "Medication not found", err)
		return
	}

	res := h.resolver.Resolve(c.Request.Context(), itemID, med, index)

	c.JSON(http.StatusOK, api.PurchaseResponse{
		Note:    res.Note,
		OpenUrl: optionalString(res.OpenURL),
		Outcome: string(res.Outcome),
		Query:   optionalString(res.Query),
	})
}
