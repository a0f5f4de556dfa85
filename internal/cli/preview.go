package cli

import (
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/config"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/textutil"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
)

type previewOptions struct {
	search bool
}

// PreviewResult describes the links built for one medication
type PreviewResult struct {
	Query       string              `json:"query,omitempty"`
	PreviewURL  string              `json:"preview_url,omitempty"`
	FallbackURL string              `json:"fallback_url,omitempty"`
	Resolution  *service.Resolution `json:"resolution,omitempty"`
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview <name> [dosage]",
		Short: "Show the purchase links for a medication",
		Long: `Show the retailer search link and the web search fallback for a
medication. With --search the product-search endpoint is asked as well and
the link that a purchase click would open is reported.`,
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			med := model.MedicationEntry{Name: args[0]}
			if len(args) > 1 {
				med.Dosage = args[1]
			}
			return runPreview(rootOpts, opts, cmd, med)
		},
	}

	cmd.Flags().BoolVar(&opts.search, "search", false, "ask the product-search endpoint")

	return cmd
}

func runPreview(rootOpts *RootOptions, opts *previewOptions, cmd *cobra.Command, med model.MedicationEntry) error {
	logger := rootOpts.logger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	gw, err := gateway.NewClient(gateway.Endpoints{ProductSearch: cfg.Endpoints.ProductSearch}, cfg.Endpoints.Timeout, logger)
	if err != nil {
		return err
	}

	clk := clock.New()
	resolver := service.NewPurchaseResolver(gw, service.RetailerConfig{
		Name:           cfg.Retailer.Name,
		Domain:         cfg.Retailer.Domain,
		SearchPageBase: cfg.Retailer.SearchPageBase,
		WebSearchBase:  cfg.Retailer.WebSearchBase,
	}, service.NewNoteBoard(clk, cfg.Notes.TTL), logger)

	var result PreviewResult
	if query, ok := textutil.SearchQuery(med.Name, med.Dosage); ok {
		result.Query = query
		result.PreviewURL, _ = resolver.PreviewURL(med)
		result.FallbackURL = resolver.FallbackURL(query)
	}
	if opts.search {
		res := resolver.Resolve(cmd.Context(), "cli", med, 0)
		result.Resolution = &res
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if out.IsJSON() {
		return out.JSON(result)
	}

	if result.Query == "" {
		out.Printf("no product name available\n")
	} else {
		out.Printf("query:    %s\n", result.Query)
		out.Printf("preview:  %s\n", result.PreviewURL)
		out.Printf("fallback: %s\n", result.FallbackURL)
	}
	if result.Resolution != nil {
		out.Printf("note:     %s\n", result.Resolution.Note)
		if result.Resolution.OpenURL != "" {
			out.Printf("open:     %s\n", result.Resolution.OpenURL)
		}
	}
	return nil
}
