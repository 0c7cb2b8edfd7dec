// Package verifier drives items through the external verification lifecycle.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/truthscan/feedd/internal/ingest"
)

// ClientConfig configures the external verification service client.
type ClientConfig struct {
	Endpoint string
	Mode     string
	Timeout  time.Duration
}

// Client talks to the external verification service over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	mode       string
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = "standard"
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		mode:       cfg.Mode,
	}
}

type submitRequest struct {
	ItemID       string `json:"item_id"`
	CanonicalURL string `json:"canonical_url"`
	Title        string `json:"title,omitempty"`
	Payload      string `json:"payload"`
	Mode         string `json:"mode"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status  string  `json:"status"`
	Verdict string  `json:"verdict,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Submit sends the item payload for verification and returns the external job id.
func (c *Client) Submit(ctx context.Context, item ingest.Item) (string, error) {
	body, err := json.Marshal(submitRequest{
		ItemID:       item.ID,
		CanonicalURL: item.CanonicalURL,
		Title:        item.Title,
		Payload:      item.Payload,
		Mode:         c.mode,
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/verifications", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ingest.Transient(fmt.Errorf("submit verification: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", &ingest.ValidationError{Field: "payload", Reason: fmt.Sprintf("verification service rejected item %s (status %d)", item.ID, resp.StatusCode)}
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return "", ingest.Transient(fmt.Errorf("verification service unavailable: status %d", resp.StatusCode))
	default:
		return "", fmt.Errorf("unexpected submit status %d", resp.StatusCode)
	}

	var parsed submitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", ingest.Transient(fmt.Errorf("decode submit response: %w", err))
	}
	if parsed.JobID == "" {
		return "", fmt.Errorf("submit response missing job_id")
	}
	return parsed.JobID, nil
}

// Status polls the external job. A not-found response maps to ErrNotFound so
// the orchestrator can distinguish expiry from failure.
func (c *Client) Status(ctx context.Context, externalJobID string) (ingest.VerificationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/verifications/"+externalJobID, nil)
	if err != nil {
		return ingest.VerificationStatus{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ingest.VerificationStatus{}, ingest.Transient(fmt.Errorf("poll verification: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ingest.VerificationStatus{}, fmt.Errorf("external job %s: %w", externalJobID, ingest.ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return ingest.VerificationStatus{}, ingest.Transient(fmt.Errorf("verification service unavailable: status %d", resp.StatusCode))
	default:
		return ingest.VerificationStatus{}, fmt.Errorf("unexpected status poll response %d", resp.StatusCode)
	}

	var parsed statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return ingest.VerificationStatus{}, ingest.Transient(fmt.Errorf("decode status response: %w", err))
	}

	switch parsed.Status {
	case "completed":
		return ingest.VerificationStatus{Done: true, Verdict: parsed.Verdict, Score: parsed.Score}, nil
	case "running", "pending", "queued":
		return ingest.VerificationStatus{}, nil
	case "failed":
		return ingest.VerificationStatus{}, fmt.Errorf("external job %s reported failure", externalJobID)
	default:
		return ingest.VerificationStatus{}, fmt.Errorf("unknown external job status %q", parsed.Status)
	}
}
