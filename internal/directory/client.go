// Package directory is an HTTP client for the DotPay user directory service.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/config"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"
)

// InternalKeyHeader carries the shared credential for privileged directory calls.
const InternalKeyHeader = "X-DotPay-Internal-Key"

// Envelope is the directory service's response wrapper.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the directory service. The zero base URL means "not configured".
type Client struct {
	baseURL     string
	internalKey string
	client      *http.Client
	logger      logger.Logger
}

func NewClient(cfg config.DirectoryConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		internalKey: strings.TrimSpace(cfg.InternalKey),
		client:      &http.Client{Timeout: timeout},
		logger:      log,
	}
}

// Configured reports whether lookups can be issued at all.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// DeliveryConfigured reports whether privileged notification calls can be made.
func (c *Client) DeliveryConfigured() bool {
	return c.baseURL != "" && c.internalKey != ""
}

// Lookup resolves a DotPay ID, username, email or phone to a user record.
func (c *Client) Lookup(ctx context.Context, query string) (*domain.DirectoryUser, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, errors.ErrInvalidInput
	}
	return c.getUser(ctx, "/api/users/lookup?q="+url.QueryEscape(q))
}

// GetByAddress loads the user record owning a settlement address.
func (c *Client) GetByAddress(ctx context.Context, address string) (*domain.DirectoryUser, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == "" {
		return nil, errors.ErrInvalidInput
	}
	user, err := c.getUser(ctx, "/api/users/"+url.PathEscape(addr))
	if err == nil && user.Address == "" {
		user.Address = addr
	}
	return user, err
}

func (c *Client) getUser(ctx context.Context, path string) (*domain.DirectoryUser, error) {
	if !c.Configured() {
		return nil, errors.ErrDirectoryNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLookupFailed, err.Error())
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLookupFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.ErrRecipientNotFound
	}

	env, err := decodeEnvelope(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Directory lookup failed", map[string]interface{}{
			"status": resp.StatusCode,
			"path":   path,
		})
		return nil, errors.Wrap(errors.ErrLookupFailed, fmt.Sprintf("directory returned status %d", resp.StatusCode))
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrLookupFailed, err.Error())
	}
	if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, errors.ErrRecipientNotFound
	}

	var user domain.DirectoryUser
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return nil, errors.Wrap(errors.ErrLookupFailed, "decode user: "+err.Error())
	}
	user.Address = strings.ToLower(strings.TrimSpace(user.Address))
	return &user, nil
}

// DeliverPaymentNotification posts a payment notification for the recipient.
// It returns the directory's data field on success.
func (c *Client) DeliverPaymentNotification(ctx context.Context, payload domain.PaymentNotification) (json.RawMessage, error) {
	if !c.DeliveryConfigured() {
		return nil, errors.ErrDirectoryNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDeliveryFailed, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications/payment", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDeliveryFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDeliveryFailed, err.Error())
	}
	defer resp.Body.Close()

	env, decodeErr := decodeEnvelope(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decodeErr != nil || !env.Success {
		msg := "Failed to deliver notification."
		if env != nil && env.Message != "" {
			msg = env.Message
		}
		return nil, errors.Wrap(errors.ErrDeliveryFailed, fmt.Sprintf("status %d: %s", resp.StatusCode, msg))
	}
	return env.Data, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.internalKey != "" {
		req.Header.Set(InternalKeyHeader, c.internalKey)
	}
}

func decodeEnvelope(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
