package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"swapScope/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Client queries an Etherscan-compatible API for block heights.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

type blockNoResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NewClient builds an explorer client. A nil httpClient gets a 10s timeout client.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BlockNumberByTime returns the last block mined at or before the unix timestamp.
// The second result is false when the height could not be resolved.
func (c *Client) BlockNumberByTime(ctx context.Context, timestamp int64) (uint64, bool) {
	started := time.Now()
	number, err := c.blockNumberByTime(ctx, timestamp)
	metrics.ObserveRPC("getblocknobytime", err, started)
	if err != nil {
		c.logger.Warn("block lookup failed", zap.Int64("timestamp", timestamp), zap.Error(err))
		return 0, false
	}
	return number, true
}

func (c *Client) blockNumberByTime(ctx context.Context, timestamp int64) (uint64, error) {
	params := url.Values{}
	params.Set("module", "block")
	params.Set("action", "getblocknobytime")
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	params.Set("closest", "before")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload blockNoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}
	if payload.Status != "1" {
		return 0, fmt.Errorf("explorer error: %s: %s", payload.Message, strings.Trim(string(payload.Result), `"`))
	}

	var result string
	if err := json.Unmarshal(payload.Result, &result); err != nil {
		return 0, fmt.Errorf("parse result: %w", err)
	}
	number, err := strconv.ParseUint(result, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", result, err)
	}
	return number, nil
}
