/**
 * @description
 * This package provides a client for the transactional email API used to
 * deliver payment and verification notifications. Attachments are inlined
 * base64 per the API's JSON schema.
 *
 * @dependencies
 * - net/http, encoding/json, encoding/base64: Email HTTP API.
 * - internal/domain: Attachment payloads.
 */
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/azeezabass2005/soolution-be/internal/domain"
)

// Client is an HTTP client for the transactional email API.
type Client struct {
	BaseURL    string
	APIKey     string
	FromAddr   string
	HTTPClient *http.Client
}

// NewClient creates a new email API client sending from fromAddr.
func NewClient(baseURL, apiKey, fromAddr string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		FromAddr: fromAddr,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendEmailRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	Attachments []emailAttachment `json:"attachments,omitempty"`
}

type emailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// SendEmail delivers a plain-text email with optional attachments.
func (c *Client) SendEmail(ctx context.Context, to, subject, body string, attachments []domain.UploadedFile) error {
	payload := sendEmailRequest{
		From:    c.FromAddr,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}
	for _, a := range attachments {
		payload.Attachments = append(payload.Attachments, emailAttachment{
			Filename:    a.Name,
			ContentType: a.ContentType,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
		})
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/emails", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("email API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
