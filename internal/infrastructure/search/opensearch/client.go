// Package opensearch implements the OpenSearch-backed entity mention index:
// a connected client with background health checks, index bootstrap with the
// mention mapping, wholesale per-document reindexing, and the substring/type
// search the API and CLI expose.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

const (
	defaultMaxRetries          = 3
	defaultRetryBackoff        = 100 * time.Millisecond
	defaultMaxIdleConnsPerHost = 10
	healthCheckInterval        = 30 * time.Second
)

// Client manages the OpenSearch connection and its health state.
type Client struct {
	client  *opensearch.Client
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects to the cluster, verifies it answers, and starts the
// background health check.
func NewClient(cfg config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "opensearch addresses are required")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		client: osClient,
		logger: log,
		cancel: cancel,
	}

	if err := c.Ping(ctx); err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "opensearch cluster unreachable")
	}
	go c.watchHealth(ctx)

	log.Info("OpenSearch client connected",
		logging.Any("addresses", cfg.Addresses))
	return c, nil
}

// Ping checks the cluster answers and records the result.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "opensearch ping failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		return errors.Newf(errors.ErrCodeServiceUnavailable, "opensearch ping returned status %d", resp.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the last observed cluster health.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// GetClient returns the underlying OpenSearch client.
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// Close stops the background health check.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("OpenSearch client closed")
	return nil
}

func (c *Client) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("OpenSearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("OpenSearch cluster recovered")
			}
		}
	}
}
