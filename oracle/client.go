package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"droughtcover/observability"
)

// Default client tuning. The double fetch below makes every extraction two
// upstream round-trips, so the limiter bounds the aggregate rate.
const (
	defaultTimeout        = 30 * time.Second
	defaultRequestsPerSec = 2
	maxResponseBytes      = 1 << 20
)

// Client talks to the external extraction/agreement service that turns a
// weather-data URL into an agreed rainfall reading. The service guarantees
// that independent evaluations of the same inputs converge on one value; the
// client enforces that guarantee end-to-end by requesting the extraction
// twice and requiring byte-identical canonical responses.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient installs a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger installs a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit overrides the upstream request rate limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewClient constructs a client for the given agreement-service endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("oracle: endpoint required")
	}
	client := &Client{
		endpoint:   trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSec), defaultRequestsPerSec),
		logger:     log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type extractRequest struct {
	SourceURL string `json:"sourceUrl"`
	Region    string `json:"region"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type extractResponse struct {
	RainfallMM int64 `json:"rainfallMm"`
}

// ExtractRainfall implements the rainfall-source collaborator contract. The
// returned audit payload binds the inputs to the canonical agreed response so
// the settlement proof can be re-derived later.
func (c *Client) ExtractRainfall(ctx context.Context, sourceURL, region, startDate, endDate string) (int64, string, error) {
	if c == nil {
		return 0, "", fmt.Errorf("oracle: client not configured")
	}
	req := extractRequest{
		SourceURL: sourceURL,
		Region:    region,
		StartDate: startDate,
		EndDate:   endDate,
	}

	started := time.Now()
	first, err := c.fetchCanonical(ctx, req)
	if err != nil {
		observability.Metrics().ObserveOracleCall("error", time.Since(started))
		return 0, "", err
	}
	second, err := c.fetchCanonical(ctx, req)
	if err != nil {
		observability.Metrics().ObserveOracleCall("error", time.Since(started))
		return 0, "", err
	}
	if !bytes.Equal(first, second) {
		c.logger.Printf("oracle: non-deterministic extraction for %s", sourceURL)
		observability.Metrics().ObserveOracleCall("disagreement", time.Since(started))
		return 0, "", fmt.Errorf("oracle: extraction did not agree across evaluations")
	}
	observability.Metrics().ObserveOracleCall("ok", time.Since(started))

	var resp extractResponse
	if err := json.Unmarshal(first, &resp); err != nil {
		return 0, "", fmt.Errorf("oracle: decode extraction: %w", err)
	}
	payload := fmt.Sprintf("url=%s|region=%s|start=%s|end=%s|result=%s",
		sourceURL, region, startDate, endDate, string(first))
	return resp.RainfallMM, payload, nil
}

// fetchCanonical performs one extraction round-trip and returns the response
// body in canonical JSON form (keys sorted, no insignificant whitespace).
func (c *Client) fetchCanonical(ctx context.Context, req extractRequest) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle: request failed: %w", err)
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("oracle: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: unexpected status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return canonicalJSON(raw)
}

// canonicalJSON re-encodes a JSON document deterministically. encoding/json
// marshals map keys in sorted order, which is the strict-equality form the
// agreement check compares.
func canonicalJSON(raw []byte) ([]byte, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("oracle: response is not valid JSON: %w", err)
	}
	return json.Marshal(decoded)
}
