// Package mailer dispatches transactional account emails through an HTTP
// delivery endpoint (an edge function or email API); rendering and SMTP
// delivery live behind that endpoint.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func New(endpoint, apiKey string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("email endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("invalid email endpoint scheme")
	}

	return &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

type message struct {
	Template string `json:"template"`
	To       string `json:"to"`
	ResetURL string `json:"reset_url,omitempty"`
	Name     string `json:"name,omitempty"`
}

func (c *Client) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	return c.send(ctx, message{Template: "password_reset", To: email, ResetURL: resetURL})
}

func (c *Client) SendWelcome(ctx context.Context, email, name string) error {
	return c.send(ctx, message{Template: "welcome", To: email, Name: name})
}

func (c *Client) send(ctx context.Context, msg message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s email: %w", msg.Template, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatch %s email: status %d: %s", msg.Template, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
