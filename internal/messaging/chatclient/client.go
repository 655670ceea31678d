package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "contractor-relay/0.1"
	maxBodyBytes     = 64 << 10
)

// Config controls how the chat API client behaves.
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client posts text messages to the chat gateway. It performs exactly one
// HTTP call per Send; retries belong to the dispatcher.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string
}

// SendRequest is the outbound message body.
type SendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendResponse carries the raw provider answer for the audit log.
type SendResponse struct {
	StatusCode int
	Body       string
}

// APIError is returned for any status other than 200 or 201.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("chatclient: http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("chatclient: http status %d", e.StatusCode)
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("chatclient: endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("chatclient: API key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// Send posts {phone, message}. On 200/201 it returns the response; any other
// status yields *APIError, transport failures are wrapped as-is.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chatclient: marshal send body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chatclient: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chatclient: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("chatclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Debug("chat api rejected message", "status", resp.StatusCode)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return &SendResponse{StatusCode: resp.StatusCode, Body: string(data)}, nil
}
