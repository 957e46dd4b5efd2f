package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Session is the server's view of the wallet session.
type Session struct {
	SessionID       string  `json:"session_id"`
	Network         string  `json:"network"`
	Connected       bool    `json:"connected"`
	WalletAddress   string  `json:"wallet_address,omitempty"`
	Balance         *string `json:"balance,omitempty"`
	BalanceLamports *uint64 `json:"balance_lamports,omitempty"`
	PendingReceiver string  `json:"pending_receiver"`
	PendingAmount   string  `json:"pending_amount"`
	State           string  `json:"state"`
	AgentConfigured bool    `json:"agent_configured"`
}

// Notice is a user-facing message the session raised since the last read.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// TransferResult is the outcome of a confirmed transfer.
type TransferResult struct {
	Signature string `json:"signature"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the solwallet session server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new session client. Transfers wait for confirmation,
// so the default timeout is generous.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetSession returns the session view and drains the server's notices.
func (c *Client) GetSession(ctx context.Context) (*Session, []Notice, error) {
	var resp struct {
		Session Session  `json:"session"`
		Notices []Notice `json:"notices"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Session, resp.Notices, nil
}

// Connect asks the server to perform an explicit connect to the signing agent.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/connect", nil, &s); err != nil {
		return nil, err
	}
	c.logger.Debug("session connected", "wallet", s.WalletAddress)
	return &s, nil
}

// SetPending records the receiver and amount text for the next transfer.
func (c *Client) SetPending(ctx context.Context, receiver, amount string) (*Session, error) {
	body := map[string]string{
		"receiver": receiver,
		"amount":   amount,
	}
	var s Session
	if err := c.do(ctx, http.MethodPut, "/api/v1/session/pending", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RefreshBalance asks the server to re-read the wallet balance.
func (c *Client) RefreshBalance(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/balance", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Transfer submits the pending transfer and blocks until it is confirmed or fails.
func (c *Client) Transfer(ctx context.Context) (*TransferResult, error) {
	var result TransferResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/session/transfer", nil, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("transfer confirmed", "signature", result.Signature)
	return &result, nil
}

// Send sets the pending fields and submits them in one call.
func (c *Client) Send(ctx context.Context, receiver, amount string) (*TransferResult, error) {
	if _, err := c.SetPending(ctx, receiver, amount); err != nil {
		return nil, err
	}
	return c.Transfer(ctx)
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
