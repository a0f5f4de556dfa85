package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Endpoints{
		Analysis:      srv.URL + "/api/analyze-prescription",
		Persistence:   srv.URL + "/api/save-prescription",
		ProductSearch: srv.URL + "/api/check-apollo-search",
	}, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	return client, srv
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Endpoints{}, time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestAnalyzePrescription_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze-prescription", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req analyzeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"aGVsbG8="}, req.Images)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"patient_name": "Jane Doe",
			"doctor_name": "Not available",
			"medications": [{"name": "Paracetamol", "dosage": "500mg", "frequency": "TDS", "duration": "5 days"}]
		}`))
	})

	result, err := client.AnalyzePrescription(context.Background(), []string{"aGVsbG8="})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.PatientName)
	assert.Equal(t, model.NotAvailable, result.DoctorName)
	require.Len(t, result.Medications, 1)
	assert.Equal(t, "Paracetamol", result.Medications[0].Name)
}

func TestAnalyzePrescription_FailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
	}{
		{"non-success status", http.StatusInternalServerError, `{"error":"model down"}`, KindStatus},
		{"not json", http.StatusOK, `<html>oops</html>`, KindShape},
		{"json array", http.StatusOK, `[1,2,3]`, KindShape},
		{"missing medications", http.StatusOK, `{"patient_name":"x"}`, KindShape},
		{"wrong medications type", http.StatusOK, `{"medications":"none"}`, KindShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			result, err := client.AnalyzePrescription(context.Background(), []string{"x"})
			assert.Nil(t, result)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, Classify(err))
		})
	}
}

func TestAnalyzePrescription_TransportFailure(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.AnalyzePrescription(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, KindTransport, Classify(err))
}

func TestCheckProductSearch(t *testing.T) {
	tests := []struct {
		name string
		body string
		want model.SearchResult
	}{
		{"direct match", `{"found":true,"url":"https://shop/p/1"}`, model.SearchResult{Found: true, URL: "https://shop/p/1"}},
		{"endpoint fallback", `{"found":false,"fallback":"https://x"}`, model.SearchResult{Fallback: "https://x"}},
		{"nothing", `{"found":false}`, model.SearchResult{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var req searchRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Paracetamol 500mg", req.Query)
				w.Write([]byte(tt.body))
			})

			got, err := client.CheckProductSearch(context.Background(), "Paracetamol 500mg")
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestSavePrescription_SendsResultVerbatim(t *testing.T) {
	received := make(chan model.AnalysisResult, 1)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var got model.AnalysisResult
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		received <- got
		w.WriteHeader(http.StatusCreated)
	})

	result := &model.AnalysisResult{
		PatientName: "Jane Doe",
		Medications: []model.MedicationEntry{{Name: "Ibuprofen", Dosage: "200mg"}},
	}
	require.NoError(t, client.SavePrescription(context.Background(), result))
	assert.Equal(t, *result, <-received)
}

func TestPostJSON_UnsetEndpoint(t *testing.T) {
	client, err := NewClient(Endpoints{Analysis: "http://127.0.0.1:1"}, time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = client.CheckProductSearch(context.Background(), "x")
	assert.True(t, IsTransport(err))
}
