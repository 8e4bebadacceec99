package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/utils"
)

const (
	hostsPath       = "/hosts"
	defaultTimeout  = 10 * time.Second
	maxErrorBodyLen = 256
)

// HTTPClient implements Client over the inventory JSON API.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  logger.Logger
}

// NewHTTPClient returns a client for the service rooted at baseURL.
// Every call is bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
		logger:  log,
	}
}

// FetchAll returns every known host keyed by hostname.
func (c *HTTPClient) FetchAll(ctx context.Context) (map[string]domain.Host, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+hostsPath, nil)
	if err != nil {
		return nil, unavailable("fetch hosts", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable("fetch hosts", err)
	}
	defer utils.SafeClose(resp.Body, c.logger, "inventory response body")

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("fetch hosts", statusError(resp))
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, unavailable("fetch hosts", fmt.Errorf("decode: %w", err))
	}

	hosts := make(map[string]domain.Host, len(raw))
	for key, data := range raw {
		var host domain.Host
		if err := json.Unmarshal(data, &host); err != nil {
			c.logger.Warn("skipping unreadable inventory record",
				logger.String("key", key),
				logger.Error(err))
			continue
		}
		if host.Hostname != key {
			c.logger.Debug("inventory key differs from record hostname",
				logger.String("key", key),
				logger.String("hostname", host.Hostname))
			host.Hostname = key
		}
		hosts[key] = host
	}

	return hosts, nil
}

// Upsert stores host under its hostname, replacing any existing record.
func (c *HTTPClient) Upsert(ctx context.Context, host domain.Host) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("encode host %s: %w", host.Hostname, err)
	}

	target := c.baseURL + hostsPath + "?" + url.Values{"hostname": {host.Hostname}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return unavailable("upsert "+host.Hostname, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable("upsert "+host.Hostname, err)
	}
	defer utils.SafeClose(resp.Body, c.logger, "inventory response body")

	if resp.StatusCode != http.StatusNoContent {
		return unavailable("upsert "+host.Hostname, statusError(resp))
	}

	return nil
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
}
