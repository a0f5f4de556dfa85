package model

import "time"

// NotAvailable is the placeholder the analysis endpoint uses for a field it
// could not read. It means "absent" and is distinct from an empty string.
const NotAvailable = "Not available"

// ItemStatus represents the lifecycle status of an uploaded prescription image
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusAnalyzing ItemStatus = "analyzing"
	ItemStatusAnalyzed  ItemStatus = "analyzed"
	ItemStatusFailed    ItemStatus = "failed"
)

// Terminal reports whether no further transition is possible from s
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusAnalyzed || s == ItemStatusFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
// The only legal path is pending -> analyzing -> {analyzed | failed}.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	switch s {
	case ItemStatusPending:
		return next == ItemStatusAnalyzing
	case ItemStatusAnalyzing:
		return next == ItemStatusAnalyzed || next == ItemStatusFailed
	default:
		return false
	}
}

// UploadedItem represents one uploaded prescription image
type UploadedItem struct {
	ID          string     `json:"id"`
	Filename    string     `json:"name"`
	Size        string     `json:"size"`
	SizeBytes   int64      `json:"size_bytes"`
	ContentType string     `json:"content_type"`
	PayloadRef  string     `json:"payload_ref"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	Status      ItemStatus `json:"status"`
}

// MedicationEntry represents one row of the medication table of a prescription.
// Every field may independently carry NotAvailable.
type MedicationEntry struct {
	Name             string `json:"name"`
	Dosage           string `json:"dosage"`
	Frequency        string `json:"frequency"`
	Duration         string `json:"duration"`
	Purpose          string `json:"purpose,omitempty"`
	UsageInstruction string `json:"usage_instruction,omitempty"`
	SafetyWarning    string `json:"safety_warning,omitempty"`
	DosageSuggestion string `json:"dosage_suggestion,omitempty"`
}

// AnalysisResult represents the structured content extracted from a prescription image
type AnalysisResult struct {
	PatientName      string            `json:"patient_name"`
	PatientAge       string            `json:"patient_age"`
	PatientGender    string            `json:"patient_gender"`
	DoctorName       string            `json:"doctor_name"`
	DoctorLicense    string            `json:"doctor_license"`
	PrescriptionDate string            `json:"prescription_date"`
	Medications      []MedicationEntry `json:"medications"`
	AdditionalNotes  string            `json:"additional_notes"`
}

// Clone returns a deep copy of the result
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Medications != nil {
		out.Medications = make([]MedicationEntry, len(r.Medications))
		copy(out.Medications, r.Medications)
	}
	return &out
}

// NoteKey identifies a purchase note: the item and the positional index of
// the medication row inside that item's result.
type NoteKey struct {
	ItemID string
	Index  int
}

// PurchaseNote is short-lived feedback for one purchase attempt
type PurchaseNote struct {
	ItemID    string    `json:"item_id"`
	Index     int       `json:"medication_index"`
	Message   string    `json:"message"`
	WrittenAt time.Time `json:"written_at"`
}

// SearchResult is the product-search endpoint's answer for one query
type SearchResult struct {
	Found    bool   `json:"found"`
	URL      string `json:"url,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

// CartLine represents one medication in the cart
type CartLine struct {
	ID string `json:"id"`
	MedicationEntry
	Quantity int       `json:"quantity"`
	Price    int       `json:"price"`
	AddedAt  time.Time `json:"added_at"`
}

// LineTotal returns price multiplied by quantity
func (l CartLine) LineTotal() int {
	return l.Price * l.Quantity
}
