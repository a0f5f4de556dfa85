// Package gateway talks to the external analysis, persistence and
// product-search endpoints over JSON/HTTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

// Endpoints holds the addresses of the external collaborators
type Endpoints struct {
	Analysis      string
	Persistence   string
	ProductSearch string
}

// Client calls the analysis, persistence and product-search endpoints
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new endpoint client. Empty endpoints are allowed;
// calling an operation whose endpoint is empty yields a TransportError.
func NewClient(endpoints Endpoints, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if endpoints.Analysis == "" && endpoints.Persistence == "" && endpoints.ProductSearch == "" {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

type analyzeRequest struct {
	Images []string `json:"images"`
}

// AnalyzePrescription sends base64 images (no data-URI prefix) for analysis
func (c *Client) AnalyzePrescription(ctx context.Context, images []string) (*model.AnalysisResult, error) {
	endpoint := c.endpoints.Analysis
	startTime := time.Now()

	body, err := c.postJSON(ctx, endpoint, analyzeRequest{Images: images})
	if err != nil {
		return nil, err
	}

	// Decode once loosely so a missing medications key is caught as a shape problem
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ShapeError{Endpoint: endpoint, Reason: "response is not a JSON object", Err: err}
	}
	if _, ok := fields["medications"]; !ok {
		return nil, &ShapeError{Endpoint: endpoint, Reason: "medications field missing"}
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ShapeError{Endpoint: endpoint, Reason: "response does not match analysis result", Err: err}
	}

	c.logger.Info("prescription analysis completed",
		zap.Int("image_count", len(images)),
		zap.Int("medication_count", len(result.Medications)),
		zap.Duration("processing_time", time.Since(startTime)),
	)

	return &result, nil
}

// SavePrescription sends an analysis result verbatim to the persistence endpoint
func (c *Client) SavePrescription(ctx context.Context, result *model.AnalysisResult) error {
	_, err := c.postJSON(ctx, c.endpoints.Persistence, result)
	return err
}

type searchRequest struct {
	Query string `json:"query"`
}

// CheckProductSearch asks the product-search endpoint whether the retailer
// carries a product matching query.
func (c *Client) CheckProductSearch(ctx context.Context, query string) (*model.SearchResult, error) {
	endpoint := c.endpoints.ProductSearch

	body, err := c.postJSON(ctx, endpoint, searchRequest{Query: query})
	if err != nil {
		return nil, err
	}

	var result model.SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ShapeError{Endpoint: endpoint, Reason: "response does not match search result", Err: err}
	}

	c.logger.Debug("product search completed",
		zap.String("query", query),
		zap.Bool("found", result.Found),
		zap.Bool("has_fallback", result.Fallback != ""),
	)

	return &result, nil
}

// postJSON posts payload and returns the body of a 2xx response
func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if endpoint == "" {
		return nil, &TransportError{Endpoint: "<unset>", Err: fmt.Errorf("endpoint not configured")}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("endpoint unreachable",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		c.logger.Warn("endpoint returned non-success status",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", snippet),
		)
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: snippet}
	}

	return body, nil
}
