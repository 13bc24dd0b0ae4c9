// Package olclient is the anti-corruption layer over the public catalog
// HTTP API. It backs the external provider variant and can substitute for
// the document store where no direct store access exists.
//
// All requests run through a circuit breaker so a struggling upstream fails
// fast instead of stalling a whole preload pass.
package olclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"bibdata/domain/core/entities"
	pkgerrors "bibdata/pkg/errors"
)

// editionsPageLimit is the page size requested from the editions listing
const editionsPageLimit = 500

// Config holds client settings
type Config struct {
	// Host is the catalog host, without scheme (ex: openlibrary.org)
	Host    string
	Timeout time.Duration

	// Circuit breaker settings
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold float64
	BreakerMinRequests      uint32
}

// DefaultConfig returns a default configuration for the client
func DefaultConfig(host string) Config {
	return Config{
		Host:                    host,
		Timeout:                 30 * time.Second,
		BreakerMaxRequests:      5,
		BreakerInterval:         30 * time.Second,
		BreakerTimeout:          60 * time.Second,
		BreakerFailureThreshold: 0.8,
		BreakerMinRequests:      5,
	}
}

// Client reads catalog records over HTTP
type Client struct {
	host       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a catalog API client
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog-api",
		MaxRequests: config.BreakerMaxRequests,
		Interval:    config.BreakerInterval,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip once there are enough requests to judge
			if counts.Requests < config.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a valid answer, not an upstream failure
			return err == nil || pkgerrors.IsNotFound(err)
		},
	})

	return &Client{
		host:       config.Host,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// GetDocument fetches one record (GET /{key}.json)
func (c *Client) GetDocument(ctx context.Context, key string) (*entities.Record, error) {
	var record entities.Record
	if err := c.getJSON(ctx, key+".json", nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// FetchMany fetches a batch of records (GET /api/get_many). This makes the
// client usable as a document store: absent keys simply do not appear in the
// result.
func (c *Client) FetchMany(ctx context.Context, keys []string) ([]*entities.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	encoded, err := json.Marshal(keys)
	if err != nil {
		return nil, pkgerrors.NewInternal("encode key list", err)
	}

	var response struct {
		Result map[string]*entities.Record `json:"result"`
	}
	query := url.Values{"keys": {string(encoded)}}
	if err := c.getJSON(ctx, "/api/get_many", query, &response); err != nil {
		return nil, err
	}

	records := make([]*entities.Record, 0, len(response.Result))
	for _, record := range response.Result {
		records = append(records, record)
	}
	return records, nil
}

// EditionsOfWork lists a work's editions (GET /{work}/editions.json).
// The boolean reports whether the listing was truncated at the page limit.
func (c *Client) EditionsOfWork(ctx context.Context, workKey string) ([]*entities.Record, bool, error) {
	var response struct {
		Links struct {
			Next string `json:"next"`
		} `json:"links"`
		Entries []*entities.Record `json:"entries"`
	}
	query := url.Values{"limit": {fmt.Sprint(editionsPageLimit)}}
	if err := c.getJSON(ctx, workKey+"/editions.json", query, &response); err != nil {
		return nil, false, err
	}
	return response.Entries, response.Links.Next != "", nil
}

// getJSON performs one GET through the circuit breaker and decodes the body
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	requestURL := &url.URL{Scheme: "http", Host: c.host, Path: path}
	if query != nil {
		requestURL.RawQuery = query.Encode()
	}

	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
		if err != nil {
			return nil, pkgerrors.NewInternal("build request", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, pkgerrors.NewUnavailable("catalog API request", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, pkgerrors.NewNotFound(fmt.Sprintf("catalog has no %s", path))
		case resp.StatusCode != http.StatusOK:
			return nil, pkgerrors.NewUnavailable(fmt.Sprintf("catalog API returned %d", resp.StatusCode), nil)
		}

		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return pkgerrors.NewUnavailable("catalog API circuit open", err)
		}
		return err
	}

	if err := json.Unmarshal(body.([]byte), target); err != nil {
		return pkgerrors.NewInternal("decode catalog response", err)
	}
	return nil
}
