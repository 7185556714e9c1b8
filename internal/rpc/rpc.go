package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/env"
	"tunnel-panel/internal/models"
)

// HTTPClient 定义HTTP客户端接口
type HTTPClient interface {
	Get(path string, params map[string]interface{}) (*HTTPResponse, error)
	Post(path string, data interface{}) (*HTTPResponse, error)
	Put(path string, data interface{}) (*HTTPResponse, error)
	Patch(path string, data interface{}) (*HTTPResponse, error)
	Delete(path string, params map[string]interface{}) (*HTTPResponse, error)
	IsConnected() bool
	Close() error
}

// HTTPConfig 定义HTTP客户端配置
type HTTPConfig struct {
	Address string        //面板服务侦听地址
	Network string        //unix,tcp...
	Timeout time.Duration // 默认超时时间
	BaseURL string        // 基础URL
	Token   string        // Bearer令牌，认证关闭时为空
}

/**
 * Default client configuration for the local CLI
 * @returns {*HTTPConfig} Unix socket when the server published one, otherwise tcp
 * @description
 * - TPANEL_TOKEN supplies the bearer token
 * - The tcp address comes from server.address, ":8000" dials 127.0.0.1:8000
 */
func DefaultHTTPConfig() *HTTPConfig {
	cfg := config.App()
	c := &HTTPConfig{
		Address: cfg.Server.Socket,
		Network: "unix",
		Timeout: 10 * time.Second,
		BaseURL: "http://localhost",
		Token:   os.Getenv("TPANEL_TOKEN"),
	}
	// 检查socket文件是否存在
	if c.Address == "" {
		c.Address = GetSocketPath("tunnel-panel.sock", "")
	}
	if _, err := os.Stat(c.Address); err != nil {
		c.Address = getTcpAddress(cfg.Server.Address)
		c.Network = "tcp"
	}
	return c
}

// HTTPResponse 定义HTTP响应结构
type HTTPResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Error      string              `json:"error"`
}

// OK reports a 2xx status
func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals a successful JSON body, otherwise returns the server error
func (r *HTTPResponse) Decode(v interface{}) error {
	if !r.OK() {
		return fmt.Errorf("%d: %s", r.StatusCode, r.Error)
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// buildURL 构建完整的URL
func buildURL(baseURL, path string, params map[string]interface{}) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	// 添加路径
	if u.Path == "" {
		u.Path = path
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	// 添加查询参数
	if params != nil {
		q := u.Query()
		for key, value := range params {
			switch v := value.(type) {
			case string:
				q.Set(key, v)
			case float32, float64:
				q.Set(key, fmt.Sprintf("%g", v))
			default:
				q.Set(key, fmt.Sprintf("%v", v))
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// serializeData 序列化请求数据
func serializeData(data interface{}) (io.Reader, error) {
	if data == nil {
		return nil, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data: %w", err)
	}

	return bytes.NewReader(jsonData), nil
}

// deserializeResponse 反序列化响应数据
func deserializeResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()
	httpResp := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	httpResp.Body = body
	if httpResp.OK() {
		return httpResp, nil
	}
	if len(body) == 0 {
		httpResp.Error = resp.Status
	} else {
		var errBody models.ErrorResponse
		if err := json.Unmarshal(body, &errBody); err != nil {
			httpResp.Error = strings.TrimSpace(string(body))
		} else {
			httpResp.Error = errBody.Detail
		}
	}
	if httpResp.Error == "" {
		httpResp.Error = "Unknown error"
	}
	return httpResp, nil
}

/**
 * 面板服务侦听的unix socket地址
 */
func GetSocketPath(socketName string, socketDir string) string {
	if socketDir == "" {
		socketDir = filepath.Join(env.PanelDir, "run")
	}
	return filepath.Join(socketDir, socketName)
}

/**
 * 面板服务侦听的tcp地址
 */
func getTcpAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil || port == "" {
		return "127.0.0.1:8000"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
