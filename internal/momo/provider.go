package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider is the adapter boundary to a mobile-money network aggregator. The
// core is agnostic to which network sits behind it. Provider calls are network
// I/O and must never run inside a database transaction.
type Provider interface {
	InitiateCollection(ctx context.Context, req ProviderRequest) (Result, error)
	CheckStatus(ctx context.Context, providerRequestID string) (Result, error)
}

// ProviderRequest is the outbound collection request.
type ProviderRequest struct {
	ReferenceID  string `json:"reference_id"`
	Msisdn       string `json:"msisdn"`
	Network      string `json:"network"`
	AmountPence  int64  `json:"amount_minor"`
	CurrencyCode string `json:"currency"`
}

type providerResponse struct {
	Status        string `json:"status"`
	RequestID     string `json:"request_id"`
	TransactionID string `json:"transaction_id"`
	FailureReason string `json:"failure_reason"`
}

// HTTPProvider talks to the aggregator's REST API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider constructs HTTPProvider.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// InitiateCollection asks the aggregator to pull funds from the customer.
func (p *HTTPProvider) InitiateCollection(ctx context.Context, req ProviderRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	return p.do(ctx, http.MethodPost, "/v1/collections", bytes.NewReader(body))
}

// CheckStatus polls the aggregator for the current state of a request.
func (p *HTTPProvider) CheckStatus(ctx context.Context, providerRequestID string) (Result, error) {
	return p.do(ctx, http.MethodGet, "/v1/collections/"+providerRequestID, nil)
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body io.Reader) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("momo: provider returned %d", resp.StatusCode)
	}
	var pr providerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return Result{}, fmt.Errorf("momo: decode provider response: %w", err)
	}
	return normaliseResult(pr, raw), nil
}

// normaliseResult maps the aggregator's status vocabulary onto the local state
// machine. Anything unrecognised stays PENDING and is resolved by polling or
// the reconcile job.
func normaliseResult(pr providerResponse, raw json.RawMessage) Result {
	res := Result{
		ProviderStatus:        pr.Status,
		ProviderRequestID:     pr.RequestID,
		ProviderTransactionID: pr.TransactionID,
		FailureReason:         pr.FailureReason,
		Raw:                   raw,
	}
	switch pr.Status {
	case "SUCCESSFUL", "SUCCESS", "CONFIRMED":
		res.Status = StatusConfirmed
	case "FAILED", "REJECTED", "CANCELLED":
		res.Status = StatusFailed
	case "EXPIRED":
		res.Status = StatusTimeout
	default:
		res.Status = StatusPending
	}
	return res
}

// WebhookPayload is the aggregator's callback body.
type WebhookPayload struct {
	DeliveryID    string `json:"delivery_id"`
	RequestID     string `json:"request_id"`
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

// VerifySignature checks the hex HMAC-SHA256 the aggregator sends with each
// webhook delivery against the raw body.
func VerifySignature(secret, signature string, body []byte) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
