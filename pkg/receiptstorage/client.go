/**
 * @description
 * This package provides a client for the object storage service holding
 * payment proofs and QR code images. Objects are uploaded to a bucket under a
 * caller-chosen path and addressed afterwards by their public URL.
 *
 * @dependencies
 * - net/http, io: Storage HTTP API.
 */
package receiptstorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an HTTP client for the object storage API.
type Client struct {
	BaseURL    string
	Bucket     string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new object storage client for the given bucket.
func NewClient(baseURL, bucket, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		Bucket:  bucket,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Upload stores the object at path and returns its public URL. Uploads use
// upsert semantics so retrying a failed request cannot conflict with itself.
func (c *Client) Upload(ctx context.Context, data []byte, contentType, path string) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.BaseURL, c.Bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("storage upload returned status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.BaseURL, c.Bucket, path), nil
}

// Download fetches an object by its URL, returning the bytes and the content
// type reported by the storage service.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("storage download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
