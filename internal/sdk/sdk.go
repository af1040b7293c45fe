package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cadencefm/cadence/internal/version"
	"github.com/imroc/req/v3"
)

// Client is the main client for interacting with the Cadence API
type Client struct {
	client  *req.Client
	config  *Config
	Uploads *UploadsAPI
	Objects *ObjectsAPI
}

// New creates a new Cadence API client
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetCommonRetryCount(config.retryCount()).
		SetCommonRetryFixedInterval(config.retryInterval()).
		SetCommonRetryCondition(shouldRetry).
		SetUserAgent(userAgent()).
		SetCommonHeader(HeaderCadenceVersion, version.Version).
		SetCommonErrorResult(&APIError{})

	if config.AccessToken != "" {
		client.SetCommonBearerAuthToken(config.AccessToken)
	}

	if config.ClientID != "" {
		client.SetCommonHeader(HeaderCadenceClient, config.ClientID)
	}

	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}

	return &Client{
		client:  client,
		config:  config,
		Uploads: newUploadsAPI(client),
		Objects: newObjectsAPI(client),
	}, nil
}

// BaseURL returns the server url the client talks to
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Close releases idle connections
func (c *Client) Close() {
	c.client.GetClient().CloseIdleConnections()
}

func userAgent() string {
	return fmt.Sprintf("cadencectl/%s", version.Version)
}

// shouldRetry retries transport failures, throttling and server errors, but never a cancelled request
func shouldRetry(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil || resp.Response == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

var defaultRetryInterval = time.Second
