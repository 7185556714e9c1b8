package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"tunnel-panel/internal/logger"
)

// httpClient HTTP客户端实现
type httpClient struct {
	config    *HTTPConfig
	client    *http.Client
	transport *http.Transport
	connected bool
	mu        sync.Mutex
}

/**
 * Create new HTTP client talking to the panel server
 * @param {HTTPConfig} config - HTTP client configuration, nil uses DefaultHTTPConfig
 * @returns {HTTPClient} HTTP client interface
 * @description
 * - Network "unix" dials the socket file, "tcp" dials Address
 * - The connection is set up lazily on the first request
 * @example
 * client := rpc.NewHTTPClient(nil)
 * defer client.Close()
 * resp, err := client.Get("/api/tunnels", nil)
 */
func NewHTTPClient(config *HTTPConfig) HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	client := &httpClient{
		config:    config,
		transport: &http.Transport{},
	}
	client.client = &http.Client{
		Transport: client.transport,
		Timeout:   config.Timeout,
	}
	return client
}

func (c *httpClient) Get(path string, params map[string]interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodGet, path, params, nil)
}

func (c *httpClient) Post(path string, data interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodPost, path, nil, data)
}

func (c *httpClient) Put(path string, data interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodPut, path, nil, data)
}

func (c *httpClient) Patch(path string, data interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodPatch, path, nil, data)
}

func (c *httpClient) Delete(path string, params map[string]interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodDelete, path, params, nil)
}

/**
 * Send one request to the panel
 * @param {string} method - HTTP method
 * @param {string} path - API endpoint path
 * @param {map[string]interface{}} params - Query parameters
 * @param {interface{}} data - Request body, serialized as JSON
 * @returns {*HTTPResponse} Response, non-2xx statuses are not errors
 * @throws
 * - Connection establishment errors
 * - Transport errors and timeouts
 */
func (c *httpClient) do(method, path string, params map[string]interface{}, data interface{}) (*HTTPResponse, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	url, err := buildURL(c.config.BaseURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	var body io.Reader
	if data != nil {
		if body, err = serializeData(data); err != nil {
			return nil, err
		}
	}

	logger.Debugf("Sending %s request to %s", method, url)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	httpResp, err := deserializeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	return httpResp, nil
}

// Close 关闭客户端连接
func (c *httpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	c.connected = false
	return nil
}

// IsConnected 检查客户端是否已连接
func (c *httpClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

/**
 * Configure the transport dialer on first use
 * @returns {error} Error when the unix socket file does not exist
 */
func (c *httpClient) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	network, address := c.config.Network, c.config.Address
	if network == "unix" {
		// 检查socket文件是否存在
		if _, err := os.Stat(address); err != nil {
			return fmt.Errorf("socket file not found at %s, is the server running?", address)
		}
	}
	if network != "" && address != "" && c.transport != nil {
		var dialer net.Dialer
		c.transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, address)
		}
	}

	c.connected = true
	logger.Debugf("Connected to panel server at %s://%s", network, address)
	return nil
}
