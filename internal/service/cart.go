package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// ErrLineNotFound is returned for cart line ids that do not exist
var ErrLineNotFound = errors.New("cart line not found")

// PriceSource assigns the unit price of a medication when it first enters
// the cart.
type PriceSource interface {
	Price(med model.MedicationEntry) int
}

// PriceFunc adapts a function to PriceSource
type PriceFunc func(med model.MedicationEntry) int

// Price calls f(med)
func (f PriceFunc) Price(med model.MedicationEntry) int {
	return f(med)
}

// RandomPriceSource draws placeholder prices uniformly from [Min, Max).
// It has no relation to the retailer's real price.
type RandomPriceSource struct {
	Min int
	Max int
}

// Price returns a pseudo-random price in [Min, Max)
func (p RandomPriceSource) Price(model.MedicationEntry) int {
	if p.Max <= p.Min {
		return max(p.Min, 0)
	}
	return max(p.Min+rand.IntN(p.Max-p.Min), 0)
}

// AddResult describes the effect of AddItem
type AddResult struct {
	Line    model.CartLine `json:"line"`
	Merged  bool           `json:"merged"`
	Message string         `json:"message"`
}

// CartService holds the cart lines in insertion order. Lines are merged by
// exact medication name.
type CartService struct {
	prices PriceSource
	clock  clock.Clock
	logger *zap.Logger

	mu    sync.RWMutex
	lines []*model.CartLine

	hooksMu  sync.RWMutex
	onAdd    []func(merged bool)
	onChange []func(lines int)
}

// NewCartService creates a new CartService
func NewCartService(prices PriceSource, clk clock.Clock, logger *zap.Logger) *CartService {
	if prices == nil {
		prices = RandomPriceSource{Min: 50, Max: 500}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &CartService{
		prices: prices,
		clock:  clk,
		logger: logger,
	}
}

// OnAdd registers fn to be called after every AddItem
func (s *CartService) OnAdd(fn func(merged bool)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onAdd = append(s.onAdd, fn)
}

// OnChange registers fn to be called with the line count after the set of
// lines changes
func (s *CartService) OnChange(fn func(lines int)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// AddItem adds one unit of med. An existing line with the same name is
// incremented and keeps its price; otherwise a new line is priced once.
func (s *CartService) AddItem(med model.MedicationEntry) AddResult {
	s.mu.Lock()
	var (
		line   *model.CartLine
		merged bool
	)
	for _, existing := range s.lines {
		if existing.Name == med.Name {
			line = existing
			break
		}
	}
	if line != nil {
		line.Quantity++
		merged = true
	} else {
		line = &model.CartLine{
			ID:              uuid.New().String(),
			MedicationEntry: med,
			Quantity:        1,
			Price:           max(s.prices.Price(med), 0),
			AddedAt:         s.clock.Now(),
		}
		s.lines = append(s.lines, line)
	}
	snapshot := *line
	count := len(s.lines)
	s.mu.Unlock()

	s.logger.Info("medication added to cart",
		zap.String("line_id", snapshot.ID),
		zap.String("name", snapshot.Name),
		zap.Int("quantity", snapshot.Quantity),
		zap.Bool("merged", merged),
	)

	s.hooksMu.RLock()
	onAdd, onChange := s.onAdd, s.onChange
	s.hooksMu.RUnlock()
	for _, fn := range onAdd {
		fn(merged)
	}
	if !merged {
		for _, fn := range onChange {
			fn(count)
		}
	}

	return AddResult{
		Line:    snapshot,
		Merged:  merged,
		Message: fmt.Sprintf("%s added to your health cart!", med.Name),
	}
}

// UpdateQuantity adds delta to a line's quantity, never going below 1
func (s *CartService) UpdateQuantity(lineID string, delta int) (model.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range s.lines {
		if line.ID == lineID {
			line.Quantity = max(1, line.Quantity+delta)
			return *line, nil
		}
	}
	return model.CartLine{}, ErrLineNotFound
}

// RemoveLine deletes a line
func (s *CartService) RemoveLine(lineID string) error {
	s.mu.Lock()
	idx := -1
	for i, line := range s.lines {
		if line.ID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	count := len(s.lines)
	s.mu.Unlock()

	s.logger.Info("cart line removed", zap.String("line_id", lineID))

	s.hooksMu.RLock()
	onChange := s.onChange
	s.hooksMu.RUnlock()
	for _, fn := range onChange {
		fn(count)
	}
	return nil
}

// Lines returns a copy of the cart lines in insertion order
func (s *CartService) Lines() []model.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]model.CartLine, 0, len(s.lines))
	for _, line := range s.lines {
		lines = append(lines, *line)
	}
	return lines
}

// Count returns the number of cart lines
func (s *CartService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Total returns the sum of price times quantity over all lines
func (s *CartService) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total()
}

// CartSnapshot is a consistent view of the cart at one instant
type CartSnapshot struct {
	Lines []model.CartLine `json:"lines"`
	Count int              `json:"count"`
	Total int              `json:"total"`
}

// Snapshot returns the lines, count and total read under a single lock
func (s *CartService) Snapshot() CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]model.CartLine, 0, len(s.lines))
	for _, line := range s.lines {
		lines = append(lines, *line)
	}
	return CartSnapshot{Lines: lines, Count: len(lines), Total: s.total()}
}

func (s *CartService) total() int {
	total := 0
	for _, line := range s.lines {
		total += line.LineTotal()
	}
	return total
}
