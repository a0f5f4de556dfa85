package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/textutil"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// ProductSearcher asks the retailer whether it carries a product
type ProductSearcher interface {
	CheckProductSearch(ctx context.Context, query string) (*model.SearchResult, error)
}

// RetailerConfig describes the retailer purchase links point at
type RetailerConfig struct {
	// Name is shown in notes, e.g. "Opened Apollo Pharmacy"
	Name string
	// Domain scopes the general web search fallback
	Domain string
	// SearchPageBase is the retailer's search page; the query slug is appended
	SearchPageBase string
	// WebSearchBase is the general web search used for fallbacks
	WebSearchBase string
}

// DefaultRetailer returns the retailer used when none is configured
func DefaultRetailer() RetailerConfig {
	return RetailerConfig{
		Name:           "Apollo Pharmacy",
		Domain:         "apollopharmacy.in",
		SearchPageBase: "https://www.apollopharmacy.in/search-medicines/",
		WebSearchBase:  "https://www.google.com/search",
	}
}

// Outcome names which branch of the resolution protocol was taken
type Outcome string

const (
	OutcomeNoName              Outcome = "no_name"
	OutcomeDirect              Outcome = "direct"
	OutcomeEndpointFallback    Outcome = "endpoint_fallback"
	OutcomeSynthesizedFallback Outcome = "synthesized_fallback"
	OutcomeSearchError         Outcome = "search_error"
)

// Resolution is the result of one purchase attempt. OpenURL is empty when
// nothing should be opened.
type Resolution struct {
	Query   string  `json:"query,omitempty"`
	OpenURL string  `json:"open_url,omitempty"`
	Note    string  `json:"note"`
	Outcome Outcome `json:"outcome"`
}

// Note texts
const (
	noteNoName = "No product name available"
	noteNoHits = "No results — opened fallback"
)

// PurchaseResolver turns medication rows into purchase links with a tiered
// fallback and leaves a transient note per (item, medication index).
type PurchaseResolver struct {
	searcher ProductSearcher
	retailer RetailerConfig
	notes    *NoteBoard
	logger   *zap.Logger

	hooksMu   sync.RWMutex
	onOutcome []func(Outcome)
}

// NewPurchaseResolver creates a new PurchaseResolver
func NewPurchaseResolver(searcher ProductSearcher, retailer RetailerConfig, notes *NoteBoard, logger *zap.Logger) *PurchaseResolver {
	defaults := DefaultRetailer()
	if retailer.Name == "" {
		retailer.Name = defaults.Name
	}
	if retailer.Domain == "" {
		retailer.Domain = defaults.Domain
	}
	if retailer.SearchPageBase == "" {
		retailer.SearchPageBase = defaults.SearchPageBase
	}
	if retailer.WebSearchBase == "" {
		retailer.WebSearchBase = defaults.WebSearchBase
	}
	if notes == nil {
		notes = NewNoteBoard(nil, DefaultNoteTTL)
	}

	return &PurchaseResolver{
		searcher: searcher,
		retailer: retailer,
		notes:    notes,
		logger:   logger,
	}
}

// OnOutcome registers fn to be called after every resolution
func (r *PurchaseResolver) OnOutcome(fn func(Outcome)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onOutcome = append(r.onOutcome, fn)
}

// Notes returns the board holding the resolver's transient notes
func (r *PurchaseResolver) Notes() *NoteBoard {
	return r.notes
}

// ForgetItem drops every note of a removed item. Resolutions still in
// flight for it complete without leaving a note.
func (r *PurchaseResolver) ForgetItem(itemID string) {
	r.notes.Forget(itemID)
}

// Resolve runs one purchase attempt for the medication at index of itemID.
// A new attempt on the same key supersedes the previous note.
func (r *PurchaseResolver) Resolve(ctx context.Context, itemID string, med model.MedicationEntry, index int) Resolution {
	key := model.NoteKey{ItemID: itemID, Index: index}

	query, ok := textutil.SearchQuery(med.Name, med.Dosage)
	if !ok {
		return r.finish(key, Resolution{Note: noteNoName, Outcome: OutcomeNoName})
	}

	r.notes.Set(key, fmt.Sprintf("Checking %s search…", r.retailer.Name))

	found, err := r.searcher.CheckProductSearch(ctx, query)
	switch {
	case err != nil && gateway.IsTransport(err):
		r.logger.Warn("product search unreachable",
			zap.String("item_id", itemID),
			zap.Int("medication_index", index),
			zap.String("query", query),
			zap.Error(err),
		)
		return r.finish(key, Resolution{
			Query:   query,
			OpenURL: r.FallbackURL(query),
			Note:    fmt.Sprintf("Error checking %s — opened fallback", r.retailer.Name),
			Outcome: OutcomeSearchError,
		})
	case err != nil:
		// The endpoint answered but not usefully; same as a miss without fallback
		r.logger.Warn("product search returned unusable response",
			zap.String("item_id", itemID),
			zap.Int("medication_index", index),
			zap.String("query", query),
			zap.String("failure_kind", gateway.Classify(err)),
			zap.Error(err),
		)
		found = &model.SearchResult{}
	case found == nil:
		found = &model.SearchResult{}
	}

	switch {
	case found.Found && found.URL != "":
		return r.finish(key, Resolution{
			Query:   query,
			OpenURL: found.URL,
			Note:    fmt.Sprintf("Opened %s", r.retailer.Name),
			Outcome: OutcomeDirect,
		})
	case found.Fallback != "":
		return r.finish(key, Resolution{
			Query:   query,
			OpenURL: found.Fallback,
			Note:    fmt.Sprintf("No results on %s — opened fallback", r.retailer.Name),
			Outcome: OutcomeEndpointFallback,
		})
	default:
		return r.finish(key, Resolution{
			Query:   query,
			OpenURL: r.FallbackURL(query),
			Note:    noteNoHits,
			Outcome: OutcomeSynthesizedFallback,
		})
	}
}

func (r *PurchaseResolver) finish(key model.NoteKey, res Resolution) Resolution {
	if !r.notes.Set(key, res.Note) {
		r.logger.Debug("discarding purchase note for removed item",
			zap.String("item_id", key.ItemID),
			zap.Int("medication_index", key.Index),
		)
	}

	r.logger.Info("purchase link resolved",
		zap.String("item_id", key.ItemID),
		zap.Int("medication_index", key.Index),
		zap.String("outcome", string(res.Outcome)),
		zap.String("query", res.Query),
	)

	r.hooksMu.RLock()
	hooks := r.onOutcome
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(res.Outcome)
	}
	return res
}

// FallbackURL builds the general web search scoped to the retailer's domain
func (r *PurchaseResolver) FallbackURL(query string) string {
	return fmt.Sprintf("%s?q=site:%s+%s", r.retailer.WebSearchBase, r.retailer.Domain, textutil.EncodeURIComponent(query))
}

// PreviewURL builds the retailer search page link shown before any click.
// It returns false when the medication has no usable name.
func (r *PurchaseResolver) PreviewURL(med model.MedicationEntry) (string, bool) {
	query, ok := textutil.SearchQuery(med.Name, med.Dosage)
	if !ok {
		return "", false
	}
	encoded := textutil.EncodeURIComponent(query)
	base := r.retailer.SearchPageBase
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%s%s?q=%s&name=%s&source=/", base, textutil.Slugify(query), encoded, encoded), true
}
