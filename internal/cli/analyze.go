package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/azure"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/config"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

type analyzeOptions struct {
	save bool
}

// AnalyzedFile is the outcome for one local file
type AnalyzedFile struct {
	File   string                `json:"file"`
	Status model.ItemStatus      `json:"status"`
	Error  string                `json:"error,omitempty"`
	Result *model.AnalysisResult `json:"result,omitempty"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Analyze local prescription images",
		Long: `Analyze local prescription images with the configured analyzer.

Each file goes through the same pipeline as an upload: non-images are
rejected, images are analyzed concurrently and reported once all are done.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.save, "save", false, "persist results with the configured persistence backend")

	return cmd
}

func runAnalyze(rootOpts *RootOptions, opts *analyzeOptions, cmd *cobra.Command, files []string) error {
	logger := rootOpts.logger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	analyzer, persister, err := analysisBackends(cfg, opts.save, logger)
	if err != nil {
		return err
	}

	svc := service.NewAnalysisService(analyzer, persister, nil, nil, logger)

	outcomes := make([]AnalyzedFile, len(files))
	ids := make([]string, len(files))
	for i, path := range files {
		outcomes[i].File = path
		f, err := os.Open(path)
		if err != nil {
			outcomes[i].Error = err.Error()
			continue
		}
		item, err := svc.Ingest(cmd.Context(), filepath.Base(path), f)
		f.Close()
		if err != nil {
			outcomes[i].Error = err.Error()
			continue
		}
		ids[i] = item.ID
	}

	svc.Wait()

	failed := 0
	for i, id := range ids {
		if id == "" {
			failed++
			continue
		}
		snapshot, err := svc.Get(id)
		if err != nil {
			outcomes[i].Error = err.Error()
			failed++
			continue
		}
		outcomes[i].Status = snapshot.Item.Status
		outcomes[i].Result = snapshot.Result
		if snapshot.Item.Status == model.ItemStatusFailed {
			outcomes[i].Error = "analysis failed"
			failed++
		}
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if out.IsJSON() {
		if err := out.JSON(outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			printAnalyzed(out, o)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be analyzed", failed, len(files))
	}
	return nil
}

func printAnalyzed(out *OutputFormatter, o AnalyzedFile) {
	if o.Result == nil {
		out.Printf("%s: %s\n", o.File, o.Error)
		return
	}
	out.Printf("%s: %s\n", o.File, o.Status)
	out.Printf("  patient: %s\n", o.Result.PatientName)
	out.Printf("  doctor:  %s\n", o.Result.DoctorName)
	for i, med := range o.Result.Medications {
		out.Printf("  %d. %s %s %s %s\n", i+1, med.Name, med.Dosage, med.Frequency, med.Duration)
	}
}

// analysisBackends builds the analyzer and, when save is set, the persister
// selected by cfg
func analysisBackends(cfg *config.Config, save bool, logger *zap.Logger) (service.Analyzer, service.Persister, error) {
	gw, err := gateway.NewClient(gateway.Endpoints{
		Analysis:      cfg.Endpoints.Analysis,
		Persistence:   cfg.Endpoints.Persistence,
		ProductSearch: cfg.Endpoints.ProductSearch,
	}, cfg.Endpoints.Timeout, logger)
	if err != nil {
		return nil, nil, err
	}

	var analyzer service.Analyzer = gw
	if cfg.Analysis.Backend == config.AnalysisOpenAI {
		client, err := azure.NewOpenAIClient(cfg.OpenAI.Endpoint, cfg.OpenAI.APIKey, cfg.OpenAI.Deployment, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Azure OpenAI client: %w", err)
		}
		analyzer = client
	}

	if !save {
		return analyzer, nil, nil
	}
	if cfg.Persistence.Backend != config.PersistenceHTTP {
		return nil, nil, fmt.Errorf("--save supports the http persistence backend only, got %q", cfg.Persistence.Backend)
	}
	return analyzer, gw, nil
}
