// Package api holds the HTTP contract of the prescription companion: the
// request and response payloads, the server interface, and the OpenAPI
// document they are validated against.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Defines values for ItemStatus.
const (
	Analyzed  ItemStatus = "analyzed"
	Analyzing ItemStatus = "analyzing"
	Failed    ItemStatus = "failed"
	Pending   ItemStatus = "pending"
)

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Code    string  `json:"code"`
	Details *string `json:"details,omitempty"`
	Message string  `json:"message"`
}

// ItemStatus defines model for ItemStatus.
type ItemStatus string

// UploadedItem defines model for UploadedItem.
type UploadedItem struct {
	ContentType *string            `json:"content_type,omitempty"`
	Id          openapi_types.UUID `json:"id"`
	Name        string             `json:"name"`
	Size        string             `json:"size"`
	SizeBytes   *int64             `json:"size_bytes,omitempty"`
	Status      ItemStatus         `json:"status"`
	UploadedAt  time.Time          `json:"uploaded_at"`
}

// RejectedUpload defines model for RejectedUpload.
type RejectedUpload struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadResponse defines model for UploadResponse.
type UploadResponse struct {
	Items    []UploadedItem    `json:"items"`
	Rejected *[]RejectedUpload `json:"rejected,omitempty"`
}

// MedicationEntry defines model for MedicationEntry.
type MedicationEntry struct {
	Dosage           *string `json:"dosage,omitempty"`
	DosageSuggestion *string `json:"dosage_suggestion,omitempty"`
	Duration         *string `json:"duration,omitempty"`
	Frequency        *string `json:"frequency,omitempty"`
	Name             string  `json:"name"`
	Purpose          *string `json:"purpose,omitempty"`
	SafetyWarning    *string `json:"safety_warning,omitempty"`
	UsageInstruction *string `json:"usage_instruction,omitempty"`
}

// AnalysisResult defines model for AnalysisResult.
type AnalysisResult struct {
	AdditionalNotes  *string            `json:"additional_notes,omitempty"`
	DoctorLicense    *string            `json:"doctor_license,omitempty"`
	DoctorName       *string            `json:"doctor_name,omitempty"`
	Medications      *[]MedicationEntry `json:"medications,omitempty"`
	PatientAge       *string            `json:"patient_age,omitempty"`
	PatientGender    *string            `json:"patient_gender,omitempty"`
	PatientName      *string            `json:"patient_name,omitempty"`
	PrescriptionDate *string            `json:"prescription_date,omitempty"`
}

// PurchaseNote defines model for PurchaseNote.
type PurchaseNote struct {
	MedicationIndex int        `json:"medication_index"`
	Message         string     `json:"message"`
	WrittenAt       *time.Time `json:"written_at,omitempty"`
}

// PrescriptionDetail defines model for PrescriptionDetail.
type PrescriptionDetail struct {
	Item        UploadedItem    `json:"item"`
	Notes       *[]PurchaseNote `json:"notes,omitempty"`
	PreviewUrls *[]*string      `json:"preview_urls,omitempty"`
	Result      *AnalysisResult `json:"result,omitempty"`
}

// PurchaseResponse defines model for PurchaseResponse.
type PurchaseResponse struct {
	Note    string  `json:"note"`
	OpenUrl *string `json:"open_url,omitempty"`
	Outcome string  `json:"outcome"`
	Query   *string `json:"query,omitempty"`
}

// CartLine defines model for CartLine.
type CartLine struct {
	AddedAt   *time.Time         `json:"added_at,omitempty"`
	Dosage    *string            `json:"dosage,omitempty"`
	Duration  *string            `json:"duration,omitempty"`
	Frequency *string            `json:"frequency,omitempty"`
	Id        openapi_types.UUID `json:"id"`
	LineTotal int                `json:"line_total"`
	Name      string             `json:"name"`
	Price     int                `json:"price"`
	Quantity  int                `json:"quantity"`
}

// CartResponse defines model for CartResponse.
type CartResponse struct {
	Count int        `json:"count"`
	Lines []CartLine `json:"lines"`
	Total int        `json:"total"`
}

// AddCartItemRequest defines model for AddCartItemRequest. Either
// PrescriptionId with MedicationIndex, or Medication, must be set.
type AddCartItemRequest struct {
	Medication      *MedicationEntry    `json:"medication,omitempty"`
	MedicationIndex *int                `json:"medication_index,omitempty"`
	PrescriptionId  *openapi_types.UUID `json:"prescription_id,omitempty"`
}

// AddCartItemResponse defines model for AddCartItemResponse.
type AddCartItemResponse struct {
	Line    CartLine `json:"line"`
	Merged  bool     `json:"merged"`
	Message string   `json:"message"`
}

// UpdateCartItemRequest defines model for UpdateCartItemRequest.
type UpdateCartItemRequest struct {
	Delta int `json:"delta"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Backends  *map[string]string `json:"backends,omitempty"`
	CartLines *int               `json:"cart_lines,omitempty"`
	Items     *int               `json:"items,omitempty"`
	Service   *string            `json:"service,omitempty"`
	Status    string             `json:"status"`
}

// ListPrescriptionsParams defines parameters for ListPrescriptions.
type ListPrescriptionsParams struct {
	Status *ItemStatus `form:"status,omitempty" json:"status,omitempty"`
}
