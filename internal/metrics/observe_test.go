package metrics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzePrescription(context.Context, []string) (*model.AnalysisResult, error) {
	return &model.AnalysisResult{Medications: []model.MedicationEntry{{Name: "Ibuprofen", Dosage: "200mg"}}}, nil
}

type failingPersister struct{}

func (failingPersister) SavePrescription(context.Context, *model.AnalysisResult) error {
	return errors.New("store down")
}

type stubSearcher struct{}

func (stubSearcher) CheckProductSearch(context.Context, string) (*model.SearchResult, error) {
	return &model.SearchResult{Fallback: "https://shop.example/search?q=ibuprofen"}, nil
}

func TestObserve(t *testing.T) {
	logger := zap.NewNop()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	analysis := service.NewAnalysisService(stubAnalyzer{}, failingPersister{}, nil, clk, logger)
	resolver := service.NewPurchaseResolver(stubSearcher{}, service.DefaultRetailer(), service.NewNoteBoard(clk, time.Second), logger)
	cart := service.NewCartService(service.PriceFunc(func(model.MedicationEntry) int { return 99 }), clk, logger)

	m := New("rx")
	m.Observe(analysis, resolver, cart)

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 'x'}
	item, err := analysis.Ingest(context.Background(), "rx.png", bytes.NewReader(png))
	require.NoError(t, err)
	analysis.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsTracked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemTransitions.WithLabelValues("pending", "analyzing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemTransitions.WithLabelValues("analyzing", "analyzed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceErrors))

	med, err := analysis.Medication(item.ID, 0)
	require.NoError(t, err)
	resolver.Resolve(context.Background(), item.ID, med, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(string(service.OutcomeEndpointFallback))))

	cart.AddItem(med)
	cart.AddItem(med)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartAdds.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartAdds.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartLines))

	require.NoError(t, analysis.Remove(item.ID))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ItemsTracked))
}
