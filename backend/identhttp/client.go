// Package identhttp implements backend.IdentityStore against the admin
// users endpoint of an HTTP identity provider. Transient transport errors
// are retried; business failures (duplicate email, unknown id) are
// classified into the unwind taxonomy and never retried by the saga layer.
package identhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/voltfin/unwind"
	"github.com/voltfin/unwind/backend"
)

// Client talks to an identity provider's admin API.
type Client struct {
	baseURL    string
	adminToken string
	http       *retryablehttp.Client
}

// New creates a Client for the provider at baseURL, authenticating admin
// calls with token.
func New(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: token,
		http:       rc,
	}
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

// Create registers a principal and returns the provider-assigned id.
func (c *Client) Create(ctx context.Context, email, credential string) (backend.PrincipalID, error) {
	body, err := json.Marshal(createUserRequest{Email: email, Password: credential})
	if err != nil {
		return "", unwind.AdapterFailed("encode create user", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/users", bytes.NewReader(body))
	if err != nil {
		return "", unwind.AdapterFailed("create user request", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", unwind.AdapterFailed("create user", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return "", fmt.Errorf("principal %q: %w", email, unwind.ErrConflict)
	default:
		return "", unwind.AdapterFailed("create user", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out createUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", unwind.AdapterFailed("decode create user response", err)
	}
	if out.ID == "" {
		return "", unwind.AdapterFailed("create user", fmt.Errorf("provider returned no id"))
	}
	return backend.PrincipalID(out.ID), nil
}

// Delete removes the principal by id.
func (c *Client) Delete(ctx context.Context, id backend.PrincipalID) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/admin/users/"+string(id), nil)
	if err != nil {
		return unwind.AdapterFailed("delete user request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return unwind.AdapterFailed("delete user", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("principal %q: %w", id, unwind.ErrNotFound)
	default:
		return unwind.AdapterFailed("delete user", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func (c *Client) authorize(req *retryablehttp.Request) {
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
