// Package genova is the HTTP client for the Genova insurance provider API.
package genova

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/vault"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	readTimeout  = 12 * time.Second
	writeTimeout = 20 * time.Second

	// maxErrorBody bounds how much of a failure body ends up in messages.
	maxErrorBody = 500
	// maxResponseBody bounds how much of any response we read at all.
	maxResponseBody = 1 << 20
)

// Client calls the Genova API. Settings are re-read from the source on every
// call so credential or base-URL changes apply without a restart. Outbound
// requests go through a circuit breaker; a tripped breaker surfaces as a
// transport failure and follows the normal retry path.
type Client struct {
	httpClient *http.Client
	settings   settings.Source
	vault      *vault.Vault
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a Client. httpClient may be nil, in which case a traced
// default client is used.
func NewClient(src settings.Source, v *vault.Vault, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "genova-api",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})

	return &Client{
		httpClient: httpClient,
		settings:   src,
		vault:      v,
		breaker:    breaker,
	}
}

// ListPlans fetches the available insurance plans via GET /plans.
func (c *Client) ListPlans(ctx context.Context) ([]Plan, Result) {
	body, res := c.do(ctx, http.MethodGet, "/plans", nil, "", readTimeout)
	if !res.Success {
		return nil, res
	}

	var plans []Plan
	if err := json.Unmarshal(body, &plans); err != nil {
		return nil, failure(FailMalformed, "invalid response")
	}
	return plans, success()
}

// Purchase buys a policy for an order via POST /purchase. Success requires a
// 2xx response whose body is an object with a non-empty policy_id.
func (c *Client) Purchase(ctx context.Context, req PurchaseRequest) Result {
	body, res := c.do(ctx, http.MethodPost, "/purchase", req, req.IdempotencyKey, writeTimeout)
	if !res.Success {
		return res
	}

	var pr purchaseResponse
	if err := json.Unmarshal(body, &pr); err != nil || pr.PolicyID == "" {
		return failure(FailMalformed, "invalid response")
	}

	res.PolicyID = pr.PolicyID
	res.Raw = body
	return res
}

// SubmitClaim files a claim via POST /claim. Any 2xx is a success; claim_id
// in the response is optional.
func (c *Client) SubmitClaim(ctx context.Context, req ClaimRequest) Result {
	body, res := c.do(ctx, http.MethodPost, "/claim", req, "", writeTimeout)
	if !res.Success {
		return res
	}

	var cr claimResponse
	if err := json.Unmarshal(body, &cr); err == nil {
		res.ClaimID = cr.ClaimID
	}
	return res
}

// do builds, sends and classifies one API request, returning the raw body on
// success. Classification never produces a Go error: every failure mode maps
// onto a Result the engine can act on.
func (c *Client) do(ctx context.Context, method, path string, payload any, idempotencyKey string, timeout time.Duration) ([]byte, Result) {
	cfg, err := c.settings.Load(ctx)
	if err != nil {
		return nil, failure(FailInternal, "load settings: "+err.Error())
	}
	cfg = cfg.Normalize()

	if cfg.APIBase == "" {
		return nil, failure(FailConfiguration, "API base not configured")
	}

	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, failure(FailInternal, "encode request: "+err.Error())
		}
		bodyReader = bytes.NewReader(raw)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, cfg.APIBase+path, bodyReader)
	if err != nil {
		return nil, failure(FailInternal, "build request: "+err.Error())
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if key := c.vault.Decrypt(cfg.APIKeyEncrypted); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, failure(FailTransport, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, failure(FailTransport, "read response: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, failure(FailRemote, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(body, maxErrorBody)))
	}

	return body, success()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
