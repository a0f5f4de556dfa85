package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/config"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/repository"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/security"
)

type checkDBOptions struct {
	limit   int
	migrate bool
}

// StoredSummary is one stored prescription as listed by check-db
type StoredSummary struct {
	ID          string    `json:"id"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	Medications int       `json:"medications"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCheckDBCommand creates the check-db command.
func NewCheckDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &checkDBOptions{}

	cmd := &cobra.Command{
		Use:          "check-db",
		Short:        "Check the prescription store and list recent entries",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckDB(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "number of recent prescriptions to list")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "create the prescriptions table if it is missing")

	return cmd
}

func runCheckDB(rootOpts *RootOptions, opts *checkDBOptions, cmd *cobra.Command) error {
	logger := rootOpts.logger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Persistence.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Persistence.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	var cipher repository.FieldCipher
	if cfg.Persistence.EncryptionKey != "" {
		encryptor, err := security.NewEncryptorFromPassphrase(cfg.Persistence.EncryptionKey)
		if err != nil {
			return err
		}
		cipher = encryptor
	}

	repo := repository.NewPrescriptionRepository(pool, cipher, logger)
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if opts.migrate {
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	stored, err := repo.FindRecent(ctx, opts.limit)
	if err != nil {
		return err
	}

	summaries := make([]StoredSummary, 0, len(stored))
	for _, p := range stored {
		summaries = append(summaries, StoredSummary{
			ID:          p.ID,
			PatientName: p.Result.PatientName,
			DoctorName:  p.Result.DoctorName,
			Medications: len(p.Result.Medications),
			CreatedAt:   p.CreatedAt,
		})
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if out.IsJSON() {
		return out.JSON(summaries)
	}

	out.Printf("database reachable, %d recent prescription(s)\n", len(summaries))
	for _, s := range summaries {
		out.Printf("%s  %s  %-24s %d medication(s)\n", s.CreatedAt.Format(time.RFC3339), s.ID, s.PatientName, s.Medications)
	}
	return nil
}
