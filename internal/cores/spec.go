package cores

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
)

var ErrInvalidSpec = errors.New("invalid tunnel spec")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}

// Spec is the open settings bag of a tunnel
type Spec map[string]interface{}

func (s Spec) has(key string) bool {
	v, ok := s[key]
	if !ok || v == nil {
		return false
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return true
}

// String returns a trimmed string value, numbers are formatted
func (s Spec) String(key string) string {
	switch v := s[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int accepts JSON numbers and numeric strings; ok is false when the key is absent
func (s Spec) Int(key string) (n int, ok bool, err error) {
	if !s.has(key) {
		return 0, false, nil
	}
	switch v := s[key].(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, true, invalidf("%s must be an integer", key)
		}
		return int(v), true, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, true, invalidf("%s must be an integer", key)
		}
		return int(i), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, invalidf("%s must be an integer, got %q", key, v)
		}
		return i, true, nil
	default:
		return 0, true, invalidf("%s must be an integer", key)
	}
}

// Port is Int restricted to 1..65535
func (s Spec) Port(key string) (int, bool, error) {
	n, ok, err := s.Int(key)
	if err != nil || !ok {
		return n, ok, err
	}
	if n < 1 || n > 65535 {
		return 0, true, invalidf("%s must be between 1 and 65535, got %d", key, n)
	}
	return n, true, nil
}

// firstPort returns the first present port among keys
func (s Spec) firstPort(keys ...string) (int, bool, error) {
	for _, key := range keys {
		p, ok, err := s.Port(key)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return 0, false, nil
}

func (s Spec) defaultString(key, def string) string {
	v := s.String(key)
	if v == "" {
		v = def
	}
	s[key] = v
	return v
}

/**
 * Split "host:port", "host" or ":port" leniently
 * @param {string} addr - Address as typed in the admin UI
 * @returns {string} host - May be empty
 * @returns {int} port - 0 when missing
 */
func splitHostPort(addr string) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// 没有端口部分
		if p, convErr := strconv.Atoi(addr); convErr == nil {
			return "", p, checkPort(p, addr)
		}
		return strings.Trim(addr, "[]"), 0, nil
	}
	if portStr == "" {
		return host, 0, nil
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, invalidf("invalid port in address %q", addr)
	}
	return host, p, checkPort(p, addr)
}

func checkPort(p int, addr string) error {
	if p < 1 || p > 65535 {
		return invalidf("port out of range in address %q", addr)
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// splitList splits "a, b ,c" into trimmed items
func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
