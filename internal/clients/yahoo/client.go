package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the quote source has no such instrument, or
// returned no usable price for it.
var ErrNotFound = errors.New("symbol not found")

const defaultBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// Client is a Yahoo Finance quote client
type Client struct {
	client     *http.Client
	baseURL    string
	maxRetries int
	log        zerolog.Logger
}

// Option customizes the client
type Option func(*Client)

// WithBaseURL overrides the quote endpoint (used in tests)
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithMaxRetries sets the retry budget for transient failures
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    defaultBaseURL,
		maxRetries: 3,
		log:        log.With().Str("client", "yahoo").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// quoteResponse represents the response from the Yahoo Finance quote API
type quoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

// GetQuote fetches the current price and display name for a symbol.
//
// Transient failures are retried with exponential backoff; a symbol the
// source does not know, or that never yields a positive price, returns
// ErrNotFound.
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, ErrNotFound
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			c.log.Warn().
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Retrying quote fetch")
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		info, err := c.getQuoteInfo(ctx, symbol)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Quote{}, err
			}
			lastErr = err
			continue
		}

		// Try regularMarketPrice first, then currentPrice
		price := getFloat64(info, "regularMarketPrice")
		if price == nil || *price <= 0 {
			price = getFloat64(info, "currentPrice")
		}
		if price == nil || *price <= 0 {
			lastErr = fmt.Errorf("no valid price for %s", symbol)
			continue
		}

		name := getString(info, "longName", "")
		if name == "" {
			name = getString(info, "shortName", symbol)
		}

		return Quote{
			Symbol: symbol,
			Price:  decimal.NewFromFloat(*price),
			Name:   name,
		}, nil
	}

	if lastErr != nil {
		return Quote{}, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
	}
	return Quote{}, ErrNotFound
}

// getQuoteInfo fetches raw quote fields from the Yahoo Finance API
func (c *Client) getQuoteInfo(ctx context.Context, symbol string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,regularMarketPrice,currentPrice,longName,shortName")

	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error: %v", result.QuoteResponse.Error)
	}

	if len(result.QuoteResponse.Result) == 0 {
		return nil, ErrNotFound
	}

	return result.QuoteResponse.Result[0], nil
}

// Helper functions to safely extract values from the response map

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

func getString(m map[string]interface{}, key string, defaultVal string) string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}
