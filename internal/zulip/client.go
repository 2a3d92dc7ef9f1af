// Package zulip is a minimal client for the Zulip message-creation API.
package zulip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-success response from the Zulip server.
type APIError struct {
	StatusCode int
	Code       string
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zulip API error (HTTP %d, code %s): %s", e.StatusCode, e.Code, e.Msg)
}

// Transient reports whether the failure is worth retrying: rate limits and
// server-side errors are, other client errors (bad auth, unknown stream,
// malformed request) are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client posts messages to a single Zulip realm as a bot user.
type Client struct {
	site       string
	botEmail   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given Zulip site (scheme://host).
func NewClient(site, botEmail, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		site:     strings.TrimRight(site, "/"),
		botEmail: botEmail,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type messageResponse struct {
	ID     int64  `json:"id"`
	Result string `json:"result"`
	Msg    string `json:"msg"`
	Code   string `json:"code"`
}

// SendMessage posts a stream message and returns the server-assigned
// message ID. Network failures are returned as-is (always retryable);
// API rejections come back as *APIError.
func (c *Client) SendMessage(ctx context.Context, stream, topic, content string) (int64, error) {
	form := url.Values{}
	form.Set("type", "stream")
	form.Set("to", stream)
	form.Set("topic", topic)
	form.Set("content", content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site+"/api/v1/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("building message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.botEmail, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var decoded messageResponse
	if err := json.Unmarshal(body, &decoded); err != nil && resp.StatusCode == http.StatusOK {
		return 0, fmt.Errorf("decoding message response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || decoded.Result != "success" {
		return 0, &APIError{
			StatusCode: resp.StatusCode,
			Code:       decoded.Code,
			Msg:        decoded.Msg,
		}
	}

	c.logger.Debug("message posted",
		"stream", stream,
		"topic", topic,
		"message_id", decoded.ID,
	)

	return decoded.ID, nil
}

// IsTransient reports whether a send failure may succeed on retry.
// Anything that is not a permanent API rejection (network errors, timeouts,
// rate limits, 5xx) counts as transient.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}
