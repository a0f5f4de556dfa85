package metrics

import (
	"strconv"

	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
)

// Observe subscribes the engine instruments to the engines' hooks
func (m *Metrics) Observe(analysis *service.AnalysisService, resolver *service.PurchaseResolver, cart *service.CartService) {
	analysis.OnIngest(func(string) {
		m.ItemsTracked.Inc()
	})
	analysis.OnRemove(func(string) {
		m.ItemsTracked.Dec()
	})
	analysis.OnTransition(func(_ string, from, to model.ItemStatus) {
		m.ItemTransitions.WithLabelValues(string(from), string(to)).Inc()
	})
	analysis.OnPersistenceFailure(func(string) {
		m.PersistenceErrors.Inc()
	})

	resolver.OnOutcome(func(outcome service.Outcome) {
		m.Resolutions.WithLabelValues(string(outcome)).Inc()
	})

	cart.OnAdd(func(merged bool) {
		m.CartAdds.WithLabelValues(strconv.FormatBool(merged)).Inc()
	})
	cart.OnChange(func(lines int) {
		m.CartLines.Set(float64(lines))
	})
}
