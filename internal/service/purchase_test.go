package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

// MockProductSearcher is a mock implementation of ProductSearcher
type MockProductSearcher struct {
	mock.Mock
}

func (m *MockProductSearcher) CheckProductSearch(ctx context.Context, query string) (*model.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchResult), args.Error(1)
}

func newTestResolver(searcher ProductSearcher) (*PurchaseResolver, *clock.Mock) {
	clk := newMockClock()
	return NewPurchaseResolver(searcher, RetailerConfig{}, NewNoteBoard(clk, DefaultNoteTTL), zap.NewNop()), clk
}

func TestPurchaseResolver_AbsentNameShortCircuits(t *testing.T) {
	names := []string{"", "   ", "Not available", "NOT AVAILABLE", " not available "}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			searcher := new(MockProductSearcher)
			resolver, _ := newTestResolver(searcher)

			res := resolver.Resolve(context.Background(), "item-1", model.MedicationEntry{Name: name, Dosage: "500mg"}, 0)

			assert.Equal(t, OutcomeNoName, res.Outcome)
			assert.Equal(t, "No product name available", res.Note)
			assert.Empty(t, res.OpenURL)
			searcher.AssertNotCalled(t, "CheckProductSearch", mock.Anything, mock.Anything)

			note, ok := resolver.Notes().Get(model.NoteKey{ItemID: "item-1", Index: 0})
			require.True(t, ok)
			assert.Equal(t, "No product name available", note.Message)

			_, ok = resolver.PreviewURL(model.MedicationEntry{Name: name})
			assert.False(t, ok)
		})
	}
}

func TestPurchaseResolver_Protocol(t *testing.T) {
	med := model.MedicationEntry{Name: " Paracetamol ", Dosage: "500  mg"}
	synthesized := "https://www.google.com/search?q=site:apollopharmacy.in+Paracetamol%20500%20mg"

	tests := []struct {
		name        string
		result      *model.SearchResult
		err         error
		wantURL     string
		wantNote    string
		wantOutcome Outcome
	}{
		{
			name:        "direct match",
			result:      &model.SearchResult{Found: true, URL: "https://www.apollopharmacy.in/otc/paracetamol"},
			wantURL:     "https://www.apollopharmacy.in/otc/paracetamol",
			wantNote:    "Opened Apollo Pharmacy",
			wantOutcome: OutcomeDirect,
		},
		{
			name:        "endpoint fallback",
			result:      &model.SearchResult{Fallback: "https://example.com/x"},
			wantURL:     "https://example.com/x",
			wantNote:    "No results on Apollo Pharmacy — opened fallback",
			wantOutcome: OutcomeEndpointFallback,
		},
		{
			name:        "no match no fallback",
			result:      &model.SearchResult{},
			wantURL:     synthesized,
			wantNote:    "No results — opened fallback",
			wantOutcome: OutcomeSynthesizedFallback,
		},
		{
			name:        "found without url uses endpoint fallback",
			result:      &model.SearchResult{Found: true, Fallback: "https://example.com/y"},
			wantURL:     "https://example.com/y",
			wantNote:    "No results on Apollo Pharmacy — opened fallback",
			wantOutcome: OutcomeEndpointFallback,
		},
		{
			name:        "found without url or fallback",
			result:      &model.SearchResult{Found: true},
			wantURL:     synthesized,
			wantNote:    "No results — opened fallback",
			wantOutcome: OutcomeSynthesizedFallback,
		},
		{
			name:        "transport failure",
			err:         &gateway.TransportError{Endpoint: "search", Err: errors.New("dial tcp: connection refused")},
			wantURL:     synthesized,
			wantNote:    "Error checking Apollo Pharmacy — opened fallback",
			wantOutcome: OutcomeSearchError,
		},
		{
			name:        "non-success status",
			err:         &gateway.StatusError{Endpoint: "search", StatusCode: 503},
			wantURL:     synthesized,
			wantNote:    "No results — opened fallback",
			wantOutcome: OutcomeSynthesizedFallback,
		},
		{
			name:        "shape mismatch",
			err:         &gateway.ShapeError{Endpoint: "search", Reason: "bad json"},
			wantURL:     synthesized,
			wantNote:    "No results — opened fallback",
			wantOutcome: OutcomeSynthesizedFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := new(MockProductSearcher)
			if tt.err != nil {
				searcher.On("CheckProductSearch", mock.Anything, "Paracetamol 500 mg").Return(nil, tt.err).Once()
			} else {
				searcher.On("CheckProductSearch", mock.Anything, "Paracetamol 500 mg").Return(tt.result, nil).Once()
			}
			resolver, _ := newTestResolver(searcher)

			var outcomes []Outcome
			resolver.OnOutcome(func(o Outcome) { outcomes = append(outcomes, o) })

			res := resolver.Resolve(context.Background(), "item-1", med, 3)

			assert.Equal(t, tt.wantURL, res.OpenURL)
			assert.Equal(t, tt.wantNote, res.Note)
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, "Paracetamol 500 mg", res.Query)
			assert.Equal(t, []Outcome{tt.wantOutcome}, outcomes)

			note, ok := resolver.Notes().Get(model.NoteKey{ItemID: "item-1", Index: 3})
			require.True(t, ok)
			assert.Equal(t, tt.wantNote, note.Message)
			searcher.AssertExpectations(t)
		})
	}
}

func TestPurchaseResolver_InterimNoteIsVisibleDuringSearch(t *testing.T) {
	var resolver *PurchaseResolver
	var interim string
	searcher := new(MockProductSearcher)
	searcher.On("CheckProductSearch", mock.Anything, "Ibuprofen").
		Run(func(mock.Arguments) {
			note, _ := resolver.Notes().Get(model.NoteKey{ItemID: "item-1", Index: 0})
			interim = note.Message
		}).
		Return(&model.SearchResult{Found: true, URL: "https://x"}, nil)

	resolver, _ = newTestResolver(searcher)
	resolver.Resolve(context.Background(), "item-1", model.MedicationEntry{Name: "Ibuprofen", Dosage: model.NotAvailable}, 0)

	assert.Equal(t, "Checking Apollo Pharmacy search…", interim)
}

func TestPurchaseResolver_NoteExpiresAndReattemptSupersedes(t *testing.T) {
	searcher := new(MockProductSearcher)
	searcher.On("CheckProductSearch", mock.Anything, mock.Anything).Return(&model.SearchResult{}, nil)
	resolver, clk := newTestResolver(searcher)
	key := model.NoteKey{ItemID: "item-1", Index: 0}
	med := model.MedicationEntry{Name: "Cetirizine"}

	resolver.Resolve(context.Background(), "item-1", med, 0)
	clk.Add(3 * time.Second)
	resolver.Resolve(context.Background(), "item-1", med, 0)
	clk.Add(3 * time.Second)

	_, ok := resolver.Notes().Get(key)
	assert.True(t, ok)

	clk.Add(3 * time.Second)
	assert.Eventually(t, noteGone(resolver.Notes(), key), time.Second, time.Millisecond)
}

func TestPurchaseResolver_ForgetItem(t *testing.T) {
	resolver, _ := newTestResolver(new(MockProductSearcher))
	resolver.Resolve(context.Background(), "item-1", model.MedicationEntry{}, 0)
	resolver.Resolve(context.Background(), "item-2", model.MedicationEntry{}, 0)

	resolver.ForgetItem("item-1")

	assert.Empty(t, resolver.Notes().ForItem("item-1"))
	assert.Len(t, resolver.Notes().ForItem("item-2"), 1)
}

func TestPurchaseResolver_ItemForgottenDuringSearchKeepsNoNote(t *testing.T) {
	var resolver *PurchaseResolver
	searcher := new(MockProductSearcher)
	searcher.On("CheckProductSearch", mock.Anything, "Dolo 650").
		Run(func(mock.Arguments) {
			resolver.ForgetItem("item-1")
		}).
		Return(&model.SearchResult{Found: true, URL: "https://www.apollopharmacy.in/otc/dolo-650"}, nil).Once()

	resolver, _ = newTestResolver(searcher)
	res := resolver.Resolve(context.Background(), "item-1", model.MedicationEntry{Name: "Dolo", Dosage: "650"}, 0)

	assert.Equal(t, OutcomeDirect, res.Outcome)
	assert.Empty(t, resolver.Notes().ForItem("item-1"))
	assert.Equal(t, 0, resolver.Notes().Len())
	searcher.AssertExpectations(t)
}

func TestPurchaseResolver_PreviewURL(t *testing.T) {
	resolver, _ := newTestResolver(nil)

	tests := []struct {
		name string
		med  model.MedicationEntry
		want string
	}{
		{
			name: "name and dosage",
			med:  model.MedicationEntry{Name: "Paracetamol", Dosage: "500mg"},
			want: "https://www.apollopharmacy.in/search-medicines/paracetamol-500mg?q=Paracetamol%20500mg&name=Paracetamol%20500mg&source=/",
		},
		{
			name: "sentinel dosage is dropped",
			med:  model.MedicationEntry{Name: "Folic Acid", Dosage: "not available"},
			want: "https://www.apollopharmacy.in/search-medicines/folic-acid?q=Folic%20Acid&name=Folic%20Acid&source=/",
		},
		{
			name: "punctuation is stripped from slug only",
			med:  model.MedicationEntry{Name: "Amoxicillin + Clavulanate", Dosage: "625 mg"},
			want: "https://www.apollopharmacy.in/search-medicines/amoxicillin-clavulanate-625-mg?q=Amoxicillin%20%2B%20Clavulanate%20625%20mg&name=Amoxicillin%20%2B%20Clavulanate%20625%20mg&source=/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolver.PreviewURL(tt.med)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPurchaseResolver_CustomRetailer(t *testing.T) {
	resolver := NewPurchaseResolver(nil, RetailerConfig{
		Name:           "MedPlus",
		Domain:         "medplusmart.com",
		SearchPageBase: "https://www.medplusmart.com/search",
	}, nil, zap.NewNop())

	assert.Equal(t, "https://www.google.com/search?q=site:medplusmart.com+Dolo%20650", resolver.FallbackURL("Dolo 650"))

	got, ok := resolver.PreviewURL(model.MedicationEntry{Name: "Dolo", Dosage: "650"})
	require.True(t, ok)
	assert.Equal(t, "https://www.medplusmart.com/search/dolo-650?q=Dolo%20650&name=Dolo%20650&source=/", got)
}
