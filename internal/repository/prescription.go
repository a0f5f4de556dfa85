package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// ErrPrescriptionNotFound is returned when no stored prescription matches an id
var ErrPrescriptionNotFound = errors.New("prescription not found")

const schema = `
CREATE TABLE IF NOT EXISTS prescriptions (
	id UUID PRIMARY KEY,
	patient_name TEXT NOT NULL DEFAULT '',
	patient_age TEXT NOT NULL DEFAULT '',
	patient_gender TEXT NOT NULL DEFAULT '',
	doctor_name TEXT NOT NULL DEFAULT '',
	doctor_license TEXT NOT NULL DEFAULT '',
	prescription_date TEXT NOT NULL DEFAULT '',
	medications JSONB NOT NULL DEFAULT '[]'::jsonb,
	additional_notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// FieldCipher encrypts identifying fields before they are stored
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// StoredPrescription is a persisted analysis result
type StoredPrescription struct {
	ID        string
	Result    model.AnalysisResult
	CreatedAt time.Time
}

// PrescriptionRepository stores analysis results in Postgres
type PrescriptionRepository struct {
	db     *pgxpool.Pool
	cipher FieldCipher
	logger *zap.Logger
}

// NewPrescriptionRepository creates a new PrescriptionRepository. cipher may
// be nil, in which case patient names are stored in clear text.
func NewPrescriptionRepository(db *pgxpool.Pool, cipher FieldCipher, logger *zap.Logger) *PrescriptionRepository {
	return &PrescriptionRepository{
		db:     db,
		cipher: cipher,
		logger: logger,
	}
}

// EnsureSchema creates the prescriptions table when it does not exist
func (r *PrescriptionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create prescriptions table: %w", err)
	}
	return nil
}

// SavePrescription inserts a new row for result and returns nothing but the
// error; it satisfies the analysis engine's persister contract.
func (r *PrescriptionRepository) SavePrescription(ctx context.Context, result *model.AnalysisResult) error {
	_, err := r.Insert(ctx, result)
	return err
}

// Insert stores result and returns the generated row id
func (r *PrescriptionRepository) Insert(ctx context.Context, result *model.AnalysisResult) (string, error) {
	if result == nil {
		return "", errors.New("result is nil")
	}

	medications := result.Medications
	if medications == nil {
		medications = []model.MedicationEntry{}
	}
	medicationsJSON, err := json.Marshal(medications)
	if err != nil {
		return "", fmt.Errorf("failed to encode medications: %w", err)
	}

	patientName, err := r.seal(result.PatientName)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	query := `
		INSERT INTO prescriptions (
			id, patient_name, patient_age, patient_gender,
			doctor_name, doctor_license, prescription_date,
			medications, additional_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`

	_, err = r.db.Exec(ctx, query,
		id,
		patientName,
		result.PatientAge,
		result.PatientGender,
		result.DoctorName,
		result.DoctorLicense,
		result.PrescriptionDate,
		string(medicationsJSON),
		result.AdditionalNotes,
	)
	if err != nil {
		r.logger.Error("failed to insert prescription",
			zap.Error(err),
			zap.Int("medication_count", len(medications)),
		)
		return "", fmt.Errorf("failed to insert prescription: %w", err)
	}

	r.logger.Info("prescription stored",
		zap.String("prescription_id", id),
		zap.Int("medication_count", len(medications)),
	)

	return id, nil
}

// FindByID retrieves a stored prescription
func (r *PrescriptionRepository) FindByID(ctx context.Context, id string) (*StoredPrescription, error) {
	query := `
		SELECT
			id, patient_name, patient_age, patient_gender,
			doctor_name, doctor_license, prescription_date,
			medications::text, additional_notes, created_at
		FROM prescriptions
		WHERE id = $1
	`

	stored, err := r.scan(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPrescriptionNotFound
	}
	if err != nil {
		r.logger.Error("failed to find prescription", zap.Error(err), zap.String("prescription_id", id))
		return nil, fmt.Errorf("failed to find prescription: %w", err)
	}

	return stored, nil
}

// FindRecent lists the newest stored prescriptions first
func (r *PrescriptionRepository) FindRecent(ctx context.Context, limit int) ([]StoredPrescription, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			id, patient_name, patient_age, patient_gender,
			doctor_name, doctor_license, prescription_date,
			medications::text, additional_notes, created_at
		FROM prescriptions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error("failed to list prescriptions", zap.Error(err))
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	defer rows.Close()

	var prescriptions []StoredPrescription
	for rows.Next() {
		stored, err := r.scan(rows)
		if err != nil {
			r.logger.Error("failed to scan prescription", zap.Error(err))
			continue
		}
		prescriptions = append(prescriptions, *stored)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prescriptions: %w", err)
	}

	return prescriptions, nil
}

// Ping checks connectivity to the database
func (r *PrescriptionRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PrescriptionRepository) scan(row pgx.Row) (*StoredPrescription, error) {
	var (
		stored          StoredPrescription
		medicationsJSON string
	)

	err := row.Scan(
		&stored.ID,
		&stored.Result.PatientName,
		&stored.Result.PatientAge,
		&stored.Result.PatientGender,
		&stored.Result.DoctorName,
		&stored.Result.DoctorLicense,
		&stored.Result.PrescriptionDate,
		&medicationsJSON,
		&stored.Result.AdditionalNotes,
		&stored.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(medicationsJSON), &stored.Result.Medications); err != nil {
		return nil, fmt.Errorf("failed to decode medications: %w", err)
	}

	stored.Result.PatientName, err = r.open(stored.Result.PatientName)
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

func (r *PrescriptionRepository) seal(value string) (string, error) {
	if r.cipher == nil {
		return value, nil
	}
	sealed, err := r.cipher.Encrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt patient name: %w", err)
	}
	return sealed, nil
}

func (r *PrescriptionRepository) open(value string) (string, error) {
	if r.cipher == nil {
		return value, nil
	}
	opened, err := r.cipher.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt patient name: %w", err)
	}
	return opened, nil
}
