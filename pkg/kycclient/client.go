/**
 * @description
 * This package provides a client for the external identity verification
 * provider. It submits verification jobs over HTTP and implements the
 * provider's shared-secret signature scheme, which is used both to sign
 * outgoing job submissions and to authenticate incoming webhook callbacks.
 *
 * The signature is an HMAC-SHA256 over the request timestamp concatenated
 * with the partner ID, keyed with the API secret and base64 encoded.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/base64: Signature scheme.
 * - net/http, encoding/json: Provider HTTP API.
 * - github.com/google/uuid: Partner parameter identifiers.
 */
package kycclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/azeezabass2005/soolution-be/internal/domain"
)

// Client is an HTTP client for the identity verification provider's API.
type Client struct {
	BaseURL     string
	PartnerID   string
	APISecret   string
	CallbackURL string
	HTTPClient  *http.Client
}

// NewClient creates a new verification provider API client.
func NewClient(baseURL, partnerID, apiSecret, callbackURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		PartnerID:   partnerID,
		APISecret:   apiSecret,
		CallbackURL: callbackURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type submitJobRequest struct {
	PartnerID     string            `json:"partner_id"`
	PartnerParams map[string]string `json:"partner_params"`
	IDInfo        idInfo            `json:"id_info"`
	CallbackURL   string            `json:"callback_url"`
	Signature     string            `json:"signature"`
	Timestamp     string            `json:"timestamp"`
}

type idInfo struct {
	IDType   string `json:"id_type"`
	IDNumber string `json:"id_number"`
	Country  string `json:"country"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SubmitJob submits an asynchronous verification job. The provider reports
// its verdict later via the webhook callback; the partner params carry the
// identifiers needed to correlate that callback back to our records.
func (c *Client) SubmitJob(ctx context.Context, userID uuid.UUID, jobID string, req domain.SubmitVerificationRequest) error {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	payload := submitJobRequest{
		PartnerID: c.PartnerID,
		PartnerParams: map[string]string{
			"user_id": userID.String(),
			"job_id":  jobID,
		},
		IDInfo: idInfo{
			IDType:   req.IDType,
			IDNumber: req.IDNumber,
			Country:  req.Country,
		},
		CallbackURL: c.CallbackURL,
		Signature:   c.GenerateSignature(timestamp),
		Timestamp:   timestamp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/verification-jobs", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create job submission request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("verification provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Error != "" {
			return fmt.Errorf("verification provider returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("verification provider returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// GenerateSignature computes the shared-secret signature for a timestamp.
func (c *Client) GenerateSignature(timestamp string) string {
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(c.PartnerID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback signature in constant time.
func (c *Client) VerifySignature(timestamp, signature string) bool {
	expected := c.GenerateSignature(timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
