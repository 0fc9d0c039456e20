// Package client talks to a running phonebook server over its HTTP API.
// The CLI uses it so writes land in the server's store and reach its
// watchers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foxzi/phonebook/internal/api"
	"github.com/foxzi/phonebook/internal/models"
)

// ErrNotFound is returned when the server answers 404
var ErrNotFound = errors.New("not found")

// Error is a non-2xx API response
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a 404
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is a phonebook API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the server at baseURL using the given bearer
// token (may be empty for login and public reads)
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// request performs an HTTP request to the phonebook API
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "phonebook-cli/"+api.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.request(ctx, http.MethodPost, "/api/v1/auth/login", api.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the user the token belongs to
func (c *Client) Me(ctx context.Context) (*models.AdminUser, error) {
	var u models.AdminUser
	if err := c.request(ctx, http.MethodGet, "/api/v1/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Queues lists queues in display order
func (c *Client) Queues(ctx context.Context) ([]models.Queue, error) {
	var list []models.Queue
	if err := c.request(ctx, http.MethodGet, "/api/v1/queues", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Extensions lists extensions, optionally of one department
func (c *Client) Extensions(ctx context.Context, department string) ([]models.Extension, error) {
	path := "/api/v1/extensions"
	if department != "" {
		path += "?department=" + url.QueryEscape(department)
	}
	var list []models.Extension
	if err := c.request(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddExtension creates an extension
func (c *Client) AddExtension(ctx context.Context, in models.ExtensionInput) (*models.Extension, error) {
	var e models.Extension
	if err := c.request(ctx, http.MethodPost, "/api/v1/extensions", in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExtension applies patch; a missing id yields ErrNotFound
func (c *Client) UpdateExtension(ctx context.Context, id string, patch models.ExtensionPatch) (*models.Extension, error) {
	var e models.Extension
	if err := c.request(ctx, http.MethodPut, "/api/v1/extensions/"+url.PathEscape(id), patch, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteExtension removes an extension; a missing id yields ErrNotFound
func (c *Client) DeleteExtension(ctx context.Context, id string) error {
	return c.request(ctx, http.MethodDelete, "/api/v1/extensions/"+url.PathEscape(id), nil, nil)
}

// AuditLogs lists audit entries matching f, newest first
func (c *Client) AuditLogs(ctx context.Context, f models.AuditLogFilter) ([]models.AuditLog, error) {
	q := url.Values{}
	if f.Action != "" {
		q.Set("action", string(f.Action))
	}
	if f.EntityType != "" {
		q.Set("entity_type", f.EntityType)
	}
	if f.UserID != "" {
		q.Set("user_id", f.UserID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	path := "/api/v1/audit-logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var logs []models.AuditLog
	if err := c.request(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
