package bybit

import (
	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client is a read-only market data client for the Bybit v5 API
type Client struct {
	httpClient *bybit_api.Client
	testnet    bool
	retry      RetryConfig
}

// Config holds the configuration for the Bybit client. Keys are optional
// for public market endpoints.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	BaseURL   string // overrides the mainnet/testnet URL, e.g. for a local mock
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	baseURL := bybit_api.MAINNET
	if config.Testnet {
		baseURL = bybit_api.TESTNET
	}
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient: httpClient,
		testnet:    config.Testnet,
		retry:      DefaultRetryConfig(),
	}
}

// WithRetry replaces the retry policy used for market requests
func (c *Client) WithRetry(cfg RetryConfig) *Client {
	c.retry = cfg
	return c
}

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}
