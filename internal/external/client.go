// Package external holds clients for the remote services that hold
// account-adjacent data: encrypted contact storage and encrypted backups.
// The account core only ever asks them to delete an account's data.
package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client calls one remote data service over HTTP.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewSecureStorageClient creates a client for the contact storage service.
func NewSecureStorageClient(baseURL string) *Client {
	return newClient("secure-storage", baseURL)
}

// NewSecureBackupClient creates a client for the backup service.
func NewSecureBackupClient(baseURL string) *Client {
	return newClient("secure-backup", baseURL)
}

func newClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// DeleteData asks the remote service to delete everything it holds for the
// account. Deleting an unknown account is a success; the call is safe to
// repeat.
func (c *Client) DeleteData(ctx context.Context, accountID uuid.UUID) error {
	if c.baseURL == "" {
		// service not configured (e.g. self-hosted deployments without
		// backups); nothing to delete
		return nil
	}

	url := fmt.Sprintf("%s/v1/data/%s", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("%s delete request: %w", c.name, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s delete: %w", c.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%s delete: unexpected status %d", c.name, resp.StatusCode)
	}
}
