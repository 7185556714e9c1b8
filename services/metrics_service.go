package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	gaugeMutex sync.Mutex

	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_http_requests_total",
			Help: "Total HTTP requests handled by the panel",
		},
		[]string{"route"},
	)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_http_request_errors_total",
			Help: "HTTP requests answered with status >= 400",
		},
		[]string{"route"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panel_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	tunnelStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnel_status",
			Help: "Number of tunnels by core and status",
		},
		[]string{"core", "status"},
	)

	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_process_restarts_total",
			Help: "Automatic restarts of tunnel processes",
		},
		[]string{"core"},
	)

	// Prometheus客户端不便读取计数值，健康检查接口使用本地计数器
	totalRequests int64
	totalErrors   int64
)

func init() {
	prometheus.MustRegister(requestCount)
	prometheus.MustRegister(requestErrors)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(tunnelStatus)
	prometheus.MustRegister(processRestarts)
}

func IncrementRequestCount(route string) {
	requestCount.WithLabelValues(route).Inc()
	atomic.AddInt64(&totalRequests, 1)
}

func IncrementErrorCount(route string) {
	requestErrors.WithLabelValues(route).Inc()
	atomic.AddInt64(&totalErrors, 1)
}

func RecordRequestDuration(route string, seconds float64) {
	requestDuration.WithLabelValues(route).Observe(seconds)
}

func GetTotalRequestCount() int64 {
	return atomic.LoadInt64(&totalRequests)
}

func GetTotalErrorCount() int64 {
	return atomic.LoadInt64(&totalErrors)
}

func recordRestart(core string) {
	processRestarts.WithLabelValues(core).Inc()
}

/**
 * Refresh the tunnel_status gauge from a full tunnel list
 * @param {[]models.Tunnel} tunnels - All stored tunnels
 * @description
 * - Counts are built first, then swapped in under gaugeMutex
 * - Vanished core/status pairs drop to nothing
 */
func updateTunnelGauge(tunnels []models.Tunnel) {
	counts := make(map[[2]string]float64)
	for _, t := range tunnels {
		counts[[2]string{t.Core, string(t.Status)}]++
	}

	gaugeMutex.Lock()
	defer gaugeMutex.Unlock()
	tunnelStatus.Reset()
	for k, n := range counts {
		tunnelStatus.WithLabelValues(k[0], k[1]).Set(n)
	}
}

/**
 * Push all registered metrics to a Prometheus Pushgateway
 * @param {string} addr - Pushgateway URL
 * @returns {error} Push error
 * @description
 * - Job is "tunnel-panel", grouped by hostname
 */
func PushMetrics(addr string) error {
	host, _ := os.Hostname()
	err := push.New(addr, "tunnel-panel").
		Gatherer(prometheus.DefaultGatherer).
		Grouping("instance", host).
		Push()
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", addr, err)
	}
	return nil
}

// StartMetricsPush pushes metrics periodically until ctx is cancelled
func StartMetricsPush(ctx context.Context, addr string, interval time.Duration) {
	if addr == "" {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger.Infof("Pushing metrics to %s every %s", addr, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := PushMetrics(addr); err != nil {
			logger.Warnf("指标推送失败: %v", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
