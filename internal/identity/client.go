// Package identity resolves bearer tokens against the users service.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cardvault/internal/platform/middleware"
	id "cardvault/pkg/domain"
)

// ErrRejected is returned when the users service does not answer 200.
var ErrRejected = errors.New("token rejected by users service")

type meResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// Client calls GET {base}/users/me once per protected request.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Resolve(ctx context.Context, token string) (*middleware.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("build users request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status=%d", ErrRejected, resp.StatusCode)
	}

	var me meResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&me); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	userID, err := id.ParseUserID(me.ID)
	if err != nil {
		return nil, fmt.Errorf("users service returned bad id: %w", err)
	}
	return &middleware.Identity{
		UserID:   userID,
		Email:    strings.TrimSpace(me.Email),
		FullName: strings.TrimSpace(me.FullName),
	}, nil
}
