/**
 * @description
 * This package provides a client for the chat messaging gateway used to reach
 * operators and users on their messaging app. Messages with attachments are
 * sent as one media message per attachment followed by the text body, since
 * the gateway carries media and text in separate payloads.
 *
 * @dependencies
 * - net/http, encoding/json, encoding/base64: Gateway HTTP API.
 * - internal/domain: Attachment payloads.
 */
package chatclient

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

// Client is an HTTP client for the chat gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new chat gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	To    string     `json:"to"`
	Text  string     `json:"text,omitempty"`
	Media *mediaItem `json:"media,omitempty"`
}

type mediaItem struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// SendChatMessage delivers the attachments then the text body to a chat
// address. The first failed send aborts the rest; the caller treats the whole
// delivery as failed.
func (c *Client) SendChatMessage(ctx context.Context, to, body string, attachments []domain.UploadedFile) error {
	for _, a := range attachments {
		msg := sendMessageRequest{
			To: to,
			Media: &mediaItem{
				Filename:    a.Name,
				ContentType: a.ContentType,
				Content:     base64.StdEncoding.EncodeToString(a.Data),
			},
		}
		if err := c.send(ctx, msg); err != nil {
			return err
		}
	}
	return c.send(ctx, sendMessageRequest{To: to, Text: body})
}

func (c *Client) send(ctx context.Context, msg sendMessageRequest) error {
	jsonBody, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
