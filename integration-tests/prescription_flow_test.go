package integration_tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/azure"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/handler"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/metrics"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/middleware"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/pdf"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/repository"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/security"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/service"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const analysisResponse = `{
	"patient_name": "Jane Doe",
	"patient_age": "42y",
	"patient_gender": "F",
	"doctor_name": "Dr. Rao",
	"doctor_license": "Not available",
	"prescription_date": "2024-03-01",
	"medications": [
		{"name": "Paracetamol", "dosage": "500mg", "frequency": "TDS", "duration": "5 days"},
		{"name": "Cetirizine", "dosage": "10mg", "frequency": "OD", "duration": "7 days"},
		{"name": "Ibuprofen", "dosage": "400mg", "frequency": "BD", "duration": "3 days"}
	],
	"additional_notes": "Take after food"
}`

// endpointStubs stands in for the analysis, persistence and product-search
// endpoints
type endpointStubs struct {
	server *httptest.Server

	mu       sync.Mutex
	saved    []model.AnalysisResult
	analyzed int
}

func newEndpointStubs(t *testing.T) *endpointStubs {
	t.Helper()
	stubs := &endpointStubs{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze-prescription", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Images []string `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Images) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		stubs.mu.Lock()
		stubs.analyzed++
		stubs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(analysisResponse))
	})
	mux.HandleFunc("/api/save-prescription", func(w http.ResponseWriter, r *http.Request) {
		var result model.AnalysisResult
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		stubs.mu.Lock()
		stubs.saved = append(stubs.saved, result)
		stubs.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/check-apollo-search", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.HasPrefix(req.Query, "Paracetamol"):
			w.Write([]byte(`{"found":true,"url":"https://www.apollopharmacy.in/otc/paracetamol-500mg"}`))
		case strings.HasPrefix(req.Query, "Cetirizine"):
			w.Write([]byte(`{"found":false,"fallback":"https://www.apollopharmacy.in/search-medicines/cetirizine"}`))
		default:
			http.Error(w, `{"error":"search backend down"}`, http.StatusBadGateway)
		}
	})

	stubs.server = httptest.NewServer(mux)
	t.Cleanup(stubs.server.Close)
	return stubs
}

type app struct {
	router   *gin.Engine
	analysis *service.AnalysisService
	archive  *azure.MockBlobStorageClient
	metrics  *metrics.Metrics
}

// newApp assembles the service the way main does, against the stubs
func newApp(t *testing.T, stubs *endpointStubs, persister service.Persister) *app {
	t.Helper()
	logger := zap.NewNop()
	clk := clock.New()

	gw, err := gateway.NewClient(gateway.Endpoints{
		Analysis:      stubs.server.URL + "/api/analyze-prescription",
		Persistence:   stubs.server.URL + "/api/save-prescription",
		ProductSearch: stubs.server.URL + "/api/check-apollo-search",
	}, 5*time.Second, logger)
	require.NoError(t, err)
	if persister == nil {
		persister = gw
	}

	archive := azure.NewMockBlobStorageClient(logger)
	analysisService := service.NewAnalysisService(gw, persister, archive, clk, logger)
	resolver := service.NewPurchaseResolver(gw, service.DefaultRetailer(), service.NewNoteBoard(clk, service.DefaultNoteTTL), logger)
	cartService := service.NewCartService(service.RandomPriceSource{Min: 50, Max: 500}, clk, logger)
	analysisService.OnRemove(resolver.ForgetItem)

	m := metrics.New("rx")
	m.Observe(analysisService, resolver, cartService)

	server := handler.NewServer(
		handler.NewPrescriptionHandler(analysisService, resolver, pdf.NewPDFGenerator(logger), clk, logger),
		handler.NewCartHandler(cartService, analysisService, logger),
		handler.NewHealthHandler(analysisService, cartService, map[string]string{"analysis": "http"}, logger),
	)

	swagger, err := api.GetSwagger()
	require.NoError(t, err)
	validator, err := middleware.OpenAPIValidationMiddleware(swagger, logger)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: rate.Inf, Burst: 1}).RateLimit())
	router.Use(validator)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	api.RegisterHandlers(router, server)

	return &app{router: router, analysis: analysisService, archive: archive, metrics: m}
}

func (a *app) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *app) upload(t *testing.T, names []string, payloads [][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, name := range names {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(payloads[i])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func pngImage(tag string) []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, []byte(tag)...)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// TestPrescriptionFlowIntegration drives upload, analysis, purchase
// resolution, the cart and removal through the HTTP API
func TestPrescriptionFlowIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	stubs := newEndpointStubs(t)
	a := newApp(t, stubs, nil)

	// Step 1: upload two images and one text file
	w := a.upload(t,
		[]string{"front.png", "back.png", "readme.txt"},
		[][]byte{pngImage("front"), pngImage("back"), []byte("not an image")},
	)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	uploaded := decodeBody[api.UploadResponse](t, w)
	require.Len(t, uploaded.Items, 2)
	require.NotNil(t, uploaded.Rejected)
	assert.Equal(t, "readme.txt", (*uploaded.Rejected)[0].Name)

	a.analysis.Wait()

	// Step 2: both items analyzed, persisted and archived
	items := decodeBody[[]api.UploadedItem](t, a.request(t, http.MethodGet, "/api/v1/prescriptions?status=analyzed", nil))
	require.Len(t, items, 2)
	assert.Equal(t, "front.png", items[0].Name)
	assert.Equal(t, "back.png", items[1].Name)

	stubs.mu.Lock()
	assert.Equal(t, 2, stubs.analyzed)
	require.Len(t, stubs.saved, 2)
	assert.Equal(t, "Jane Doe", stubs.saved[0].PatientName)
	assert.Len(t, stubs.saved[0].Medications, 3)
	stubs.mu.Unlock()
	assert.Len(t, a.archive.ListBlobs(), 2)

	id := items[0].Id.String()

	// archived images are served back from the archive
	w = a.request(t, http.MethodGet, "/api/v1/prescriptions/"+id+"/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngImage("front"), w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	// Step 3: detail with preview links
	detail := decodeBody[api.PrescriptionDetail](t, a.request(t, http.MethodGet, "/api/v1/prescriptions/"+id, nil))
	require.NotNil(t, detail.Result)
	assert.Equal(t, "Not available", *detail.Result.DoctorLicense)
	require.NotNil(t, detail.PreviewUrls)
	require.Len(t, *detail.PreviewUrls, 3)
	assert.Equal(t,
		"https://www.apollopharmacy.in/search-medicines/cetirizine-10mg?q=Cetirizine%2010mg&name=Cetirizine%2010mg&source=/",
		*(*detail.PreviewUrls)[1])

	// Step 4: purchase resolution for every branch the stubs produce
	purchases := []struct {
		index   int
		outcome service.Outcome
		note    string
		openURL string
	}{
		{0, service.OutcomeDirect, "Opened Apollo Pharmacy", "https://www.apollopharmacy.in/otc/paracetamol-500mg"},
		{1, service.OutcomeEndpointFallback, "No results on Apollo Pharmacy — opened fallback", "https://www.apollopharmacy.in/search-medicines/cetirizine"},
		{2, service.OutcomeSynthesizedFallback, "No results — opened fallback", "https://www.google.com/search?q=site:apollopharmacy.in+Ibuprofen%20400mg"},
	}
	for _, p := range purchases {
		w := a.request(t, http.MethodPost, "/api/v1/prescriptions/"+id+"/medications/"+strconv.Itoa(p.index)+"/purchase", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[api.PurchaseResponse](t, w)
		assert.Equal(t, string(p.outcome), resp.Outcome)
		assert.Equal(t, p.note, resp.Note)
		require.NotNil(t, resp.OpenUrl)
		assert.Equal(t, p.openURL, *resp.OpenUrl)
	}

	detail = decodeBody[api.PrescriptionDetail](t, a.request(t, http.MethodGet, "/api/v1/prescriptions/"+id, nil))
	require.NotNil(t, detail.Notes)
	assert.Len(t, *detail.Notes, 3)

	// Step 5: the printable summary
	w = a.request(t, http.MethodGet, "/api/v1/prescriptions/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	// Step 6: cart
	add := map[string]any{"prescription_id": id, "medication_index": 0}
	first := decodeBody[api.AddCartItemResponse](t, a.request(t, http.MethodPost, "/api/v1/cart/items", add))
	second := decodeBody[api.AddCartItemResponse](t, a.request(t, http.MethodPost, "/api/v1/cart/items", add))
	assert.False(t, first.Merged)
	assert.True(t, second.Merged)
	assert.Equal(t, first.Line.Price, second.Line.Price)
	assert.GreaterOrEqual(t, first.Line.Price, 50)
	assert.Less(t, first.Line.Price, 500)

	cart := decodeBody[api.CartResponse](t, a.request(t, http.MethodGet, "/api/v1/cart", nil))
	assert.Equal(t, 1, cart.Count)
	assert.Equal(t, 2*first.Line.Price, cart.Total)

	// Step 7: removal drops the item and its notes
	require.Equal(t, http.StatusNoContent, a.request(t, http.MethodDelete, "/api/v1/prescriptions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.request(t, http.MethodGet, "/api/v1/prescriptions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.request(t, http.MethodPost, "/api/v1/prescriptions/"+id+"/medications/0/purchase", nil).Code)

	// the cart keeps its lines after the prescription is gone
	cart = decodeBody[api.CartResponse](t, a.request(t, http.MethodGet, "/api/v1/cart", nil))
	assert.Equal(t, 1, cart.Count)

	// Step 8: contract violations are rejected before reaching the handlers
	w = a.request(t, http.MethodGet, "/api/v1/prescriptions?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Step 9: metrics reflect the flow
	w = a.request(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rx_purchase_resolutions_total{outcome="direct"} 1`)
	assert.Contains(t, w.Body.String(), `rx_analysis_items_tracked 1`)
}

// TestAnalysisFailureIntegration checks that an unreachable analysis
// endpoint leaves items failed without affecting the API
func TestAnalysisFailureIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	stubs := newEndpointStubs(t)
	a := newApp(t, stubs, nil)
	stubs.server.Close()

	w := a.upload(t, []string{"rx.png"}, [][]byte{pngImage("rx")})
	require.Equal(t, http.StatusAccepted, w.Code)
	a.analysis.Wait()

	items := decodeBody[[]api.UploadedItem](t, a.request(t, http.MethodGet, "/api/v1/prescriptions", nil))
	require.Len(t, items, 1)
	assert.Equal(t, api.Failed, items[0].Status)

	w = a.request(t, http.MethodGet, "/api/v1/prescriptions/"+items[0].Id.String()+"/report", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// the payload is still served for preview
	w = a.request(t, http.MethodGet, "/api/v1/prescriptions/"+items[0].Id.String()+"/image", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPostgresPersistenceIntegration stores analysis results in Postgres
// with encrypted patient names
func TestPostgresPersistenceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	encryptor, err := security.NewEncryptorFromPassphrase("integration-test-key")
	require.NoError(t, err)
	repo := repository.NewPrescriptionRepository(pool, encryptor, zap.NewNop())
	require.NoError(t, repo.EnsureSchema(ctx))

	stubs := newEndpointStubs(t)
	a := newApp(t, stubs, repo)

	w := a.upload(t, []string{"rx.png"}, [][]byte{pngImage("pg")})
	require.Equal(t, http.StatusAccepted, w.Code)
	a.analysis.Wait()

	recent, err := repo.FindRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Jane Doe", recent[0].Result.PatientName)
	assert.Len(t, recent[0].Result.Medications, 3)

	var stored string
	require.NoError(t, pool.QueryRow(ctx, "SELECT patient_name FROM prescriptions WHERE id = $1", recent[0].ID).Scan(&stored))
	assert.NotEqual(t, "Jane Doe", stored)
}
