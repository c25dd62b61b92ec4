package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const DefaultServiceURL = "http://localhost:8000"

// ErrServiceUnavailable is returned when the service cannot be reached.
var ErrServiceUnavailable = errors.New("MT5 Service Unavailable")

// ServiceError is returned when the service answers with an error.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return "MT5 Service Error: " + e.Detail
}

// Credentials identify a trading account on the service.
type Credentials struct {
	AccountID string `json:"account_id"`
	Password  string `json:"password"`
	Server    string `json:"server"`
}

type Position struct {
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume"`
	EntryPrice float64 `json:"entry_price"`
	Profit     float64 `json:"profit"`
}

// AccountSnapshot is the account state returned by /fetch-account.
type AccountSnapshot struct {
	AccountID     string     `json:"account_id"`
	Balance       float64    `json:"balance"`
	Equity        float64    `json:"equity"`
	Profit        float64    `json:"profit"`
	Margin        float64    `json:"margin"`
	FreeMargin    float64    `json:"free_margin"`
	MarginLevel   float64    `json:"margin_level"`
	Positions     []Position `json:"positions"`
	ProfitPercent *float64   `json:"profit_percent,omitempty"`
}

// ComputedProfitPercent prefers the service's own figure and otherwise
// derives it from equity over balance.
func (s *AccountSnapshot) ComputedProfitPercent() float64 {
	if s.ProfitPercent != nil {
		return *s.ProfitPercent
	}
	if s.Balance > 0 {
		return (s.Equity - s.Balance) / s.Balance * 100
	}
	return 0
}

// Fetcher is implemented by Client and by test doubles.
type Fetcher interface {
	FetchAccount(ctx context.Context, creds Credentials) (*AccountSnapshot, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a client. rps <= 0 disables rate limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
	}
}

type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// FetchAccount fetches the current snapshot for one account
func (c *Client) FetchAccount(ctx context.Context, creds Credentials) (*AccountSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fetch-account", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		detail := eb.Detail
		if detail == "" {
			detail = eb.Message
		}
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &ServiceError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var snapshot AccountSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Detail: "invalid response: " + err.Error()}
	}
	if snapshot.AccountID == "" {
		snapshot.AccountID = creds.AccountID
	}

	return &snapshot, nil
}
