// Package graph provides a Go client for the Microsoft Graph endpoints used to
// manage Cloud PCs, their provisioning policies, and group membership.
package graph

import (
	"strings"
	"time"
)

// DefaultBaseURL is the Graph beta endpoint, which exposes the
// virtualEndpoint Cloud PC API.
const DefaultBaseURL = "https://graph.microsoft.com/beta"

// Default client settings.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultRateLimit  = 5.0
)

// Config holds all configuration for the Graph client.
type Config struct {
	// BaseURL is the Graph API root, without a trailing slash.
	BaseURL string

	// Token is the OAuth bearer token. Acquiring it is the caller's concern.
	Token string

	// Timeout is the HTTP client timeout for each request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for failed requests.
	MaxRetries int

	// RetryDelay is the initial delay between retries (exponential backoff applied).
	RetryDelay time.Duration

	// RateLimit caps requests per second. Zero disables pacing.
	RateLimit float64
}

// DefaultConfig returns a Config with the production URL and default settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		RateLimit:  DefaultRateLimit,
	}
}

// WithToken returns a copy of the config with the specified token.
func (c Config) WithToken(token string) Config {
	c.Token = token
	return c
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithRetries returns a copy of the config with the specified retry settings.
func (c Config) WithRetries(maxRetries int, retryDelay time.Duration) Config {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
	return c
}

// WithBaseURL returns a copy of the config pointed at another Graph root.
func (c Config) WithBaseURL(baseURL string) Config {
	c.BaseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithRateLimit returns a copy of the config with the specified request rate.
func (c Config) WithRateLimit(perSecond float64) Config {
	c.RateLimit = perSecond
	return c
}
