package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime/types"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
)

// Helper functions for type conversions between API types and internal models

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// optionalString returns nil for an empty string
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// intPtr creates a pointer to an int
func intPtr(i int) *int {
	return &i
}

// timePtr creates a pointer to a time.Time
func timePtr(t time.Time) *time.Time {
	return &t
}

// uuidToString converts types.UUID to string
func uuidToString(u types.UUID) string {
	return uuid.UUID(u).String()
}

// stringToUUID converts an id issued by the engines to types.UUID
func stringToUUID(s string) types.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return types.UUID(uuid.Nil)
	}
	return types.UUID(u)
}

func toAPIItem(item model.UploadedItem) api.UploadedItem {
	return api.UploadedItem{
		Id:          stringToUUID(item.ID),
		Name:        item.Filename,
		Size:        item.Size,
		SizeBytes:   &item.SizeBytes,
		ContentType: optionalString(item.ContentType),
		UploadedAt:  item.UploadedAt,
		Status:      api.ItemStatus(item.Status),
	}
}

func toAPIMedication(med model.MedicationEntry) api.MedicationEntry {
	return api.MedicationEntry{
		Name:             med.Name,
		Dosage:           optionalString(med.Dosage),
		Frequency:        optionalString(med.Frequency),
		Duration:         optionalString(med.Duration),
		Purpose:          optionalString(med.Purpose),
		UsageInstruction: optionalString(med.UsageInstruction),
		SafetyWarning:    optionalString(med.SafetyWarning),
		DosageSuggestion: optionalString(med.DosageSuggestion),
	}
}

func fromAPIMedication(med api.MedicationEntry) model.MedicationEntry {
	return model.MedicationEntry{
		Name:             med.Name,
		Dosage:           derefString(med.Dosage),
		Frequency:        derefString(med.Frequency),
		Duration:         derefString(med.Duration),
		Purpose:          derefString(med.Purpose),
		UsageInstruction: derefString(med.UsageInstruction),
		SafetyWarning:    derefString(med.SafetyWarning),
		DosageSuggestion: derefString(med.DosageSuggestion),
	}
}

func toAPIResult(result *model.AnalysisResult) *api.AnalysisResult {
	if result == nil {
		return nil
	}
	medications := make([]api.MedicationEntry, 0, len(result.Medications))
	for _, med := range result.Medications {
		medications = append(medications, toAPIMedication(med))
	}
	return &api.AnalysisResult{
		PatientName:      optionalString(result.PatientName),
		PatientAge:       optionalString(result.PatientAge),
		PatientGender:    optionalString(result.PatientGender),
		DoctorName:       optionalString(result.DoctorName),
		DoctorLicense:    optionalString(result.DoctorLicense),
		PrescriptionDate: optionalString(result.PrescriptionDate),
		AdditionalNotes:  optionalString(result.AdditionalNotes),
		Medications:      &medications,
	}
}

func toAPICartLine(line model.CartLine) api.CartLine {
	return api.CartLine{
		Id:        stringToUUID(line.ID),
		Name:      line.Name,
		Dosage:    optionalString(line.Dosage),
		Frequency: optionalString(line.Frequency),
		Duration:  optionalString(line.Duration),
		Quantity:  line.Quantity,
		Price:     line.Price,
		LineTotal: line.LineTotal(),
		AddedAt:   timePtr(line.AddedAt),
	}
}

func toAPINote(note model.PurchaseNote) api.PurchaseNote {
	return api.PurchaseNote{
		MedicationIndex: note.Index,
		Message:         note.Message,
		WrittenAt:       timePtr(note.WrittenAt),
	}
}

// respondError writes the standard error body
func respondError(c *gin.Context, status int, code, message string, err error) {
	body := api.ErrorResponse{
		Code:    code,
		Message: message,
	}
	if err != nil {
		body.Details = stringPtr(err.Error())
	}
	c.JSON(status, body)
}

func respondNotFound(c *gin.Context, message string, err error) {
	respondError(c, http.StatusNotFound, "NOT_FOUND", message, err)
}
