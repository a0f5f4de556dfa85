package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/textutil"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// PDFGenerator renders printable prescription summaries
type PDFGenerator struct {
	logger *zap.Logger
}

// NewPDFGenerator creates a new PDFGenerator
func NewPDFGenerator(logger *zap.Logger) *PDFGenerator {
	return &PDFGenerator{
		logger: logger,
	}
}

// ReportData contains all data needed for a prescription summary
type ReportData struct {
	Item        model.UploadedItem
	Result      *model.AnalysisResult
	GeneratedAt time.Time
}

var tableColumns = []struct {
	title string
	width float64
}{
	{"Medicine", 45},
	{"Dosage", 28},
	{"Frequency", 32},
	{"Duration", 25},
	{"Purpose", 40},
}

// Generate creates a PDF summary of one analyzed prescription
func (g *PDFGenerator) Generate(data *ReportData) ([]byte, error) {
	if data == nil || data.Result == nil {
		return nil, errors.New("report requires an analysis result")
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}

	g.logger.Info("generating prescription summary",
		zap.String("item_id", data.Item.ID),
		zap.Int("medication_count", len(data.Result.Medications)),
	)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	g.addTitle(pdf, tr, data)
	g.addParties(pdf, tr, data.Result)
	g.addMedicationTable(pdf, tr, data.Result.Medications)
	g.addGuidance(pdf, tr, data.Result.Medications)
	g.addAdditionalNotes(pdf, tr, data.Result.AdditionalNotes)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		g.logger.Error("failed to generate PDF", zap.Error(err))
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	g.logger.Info("prescription summary generated",
		zap.String("item_id", data.Item.ID),
		zap.Int("size_bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

func (g *PDFGenerator) addTitle(pdf *gofpdf.Fpdf, tr func(string) string, data *ReportData) {
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 10, "Prescription Summary", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Source image: %s (%s)", data.Item.Filename, data.Item.Size)), "", 1, "L", false, 0, "")
	if !data.Item.UploadedAt.IsZero() {
		pdf.CellFormat(0, 6, fmt.Sprintf("Uploaded: %s", data.Item.UploadedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", data.GeneratedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func (g *PDFGenerator) addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(0, 10, title, "", 1, "L", true, 0, "")
	pdf.Ln(3)
	pdf.SetFont("Arial", "", 10)
}

func (g *PDFGenerator) addParties(pdf *gofpdf.Fpdf, tr func(string) string, result *model.AnalysisResult) {
	g.addSectionHeader(pdf, "Patient & Doctor")

	rows := [][2]string{
		{"Patient", result.PatientName},
		{"Age", result.PatientAge},
		{"Gender", result.PatientGender},
		{"Doctor", result.DoctorName},
		{"License", result.DoctorLicense},
		{"Date", result.PrescriptionDate},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(display(row[1])), "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)
}

func (g *PDFGenerator) addMedicationTable(pdf *gofpdf.Fpdf, tr func(string) string, medications []model.MedicationEntry) {
	g.addSectionHeader(pdf, "Medications")

	if len(medications) == 0 {
		pdf.CellFormat(0, 8, "No medications were found on this prescription.", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	for _, col := range tableColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, med := range medications {
		values := []string{med.Name, med.Dosage, med.Frequency, med.Duration, med.Purpose}
		for i, col := range tableColumns {
			pdf.CellFormat(col.width, 6, tr(truncate(display(values[i]), int(col.width/2))), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(5)
}

func (g *PDFGenerator) addGuidance(pdf *gofpdf.Fpdf, tr func(string) string, medications []model.MedicationEntry) {
	var written bool
	for _, med := range medications {
		if textutil.IsAbsent(med.UsageInstruction) && textutil.IsAbsent(med.SafetyWarning) && textutil.IsAbsent(med.DosageSuggestion) {
			continue
		}
		if !written {
			g.addSectionHeader(pdf, "Usage & Safety")
			written = true
		}

		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, tr(display(med.Name)), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, line := range [][2]string{
			{"How to take", med.UsageInstruction},
			{"Safety", med.SafetyWarning},
			{"Dosage note", med.DosageSuggestion},
		} {
			if textutil.IsAbsent(line[1]) {
				continue
			}
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("  %s: %s", line[0], strings.TrimSpace(line[1]))), "", "L", false)
		}
		pdf.Ln(2)
	}
	if written {
		pdf.Ln(3)
	}
}

func (g *PDFGenerator) addAdditionalNotes(pdf *gofpdf.Fpdf, tr func(string) string, notes string) {
	if textutil.IsAbsent(notes) {
		return
	}
	g.addSectionHeader(pdf, "Additional Notes")
	pdf.MultiCell(0, 5, tr(strings.TrimSpace(notes)), "", "L", false)
}

func display(value string) string {
	if textutil.IsAbsent(value) {
		return "-"
	}
	return strings.TrimSpace(value)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "..."
}
