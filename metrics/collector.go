package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leeforge/mapcrop/json"
	"github.com/leeforge/mapcrop/logging"
)

const (
	TypeCounter   = "counter"
	TypeGauge     = "gauge"
	TypeHistogram = "histogram"

	// historyLimit 直方图保留的最近样本数
	historyLimit = 100

	// UnmatchedRoute labels requests that matched no registered route.
	UnmatchedRoute = "unmatched"
)

// Collector 指标收集器
type Collector struct {
	metrics map[string]*Metric
	mu      sync.RWMutex
}

// Metric 指标
type Metric struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Count     int64             `json:"count,omitempty"`
	Sum       float64           `json:"sum,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	History   []float64         `json:"history,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{
		metrics: make(map[string]*Metric),
	}
}

// IncCounter 增加计数器
func (c *Collector) IncCounter(name string, labels map[string]string) {
	c.AddCounter(name, 1, labels)
}

// AddCounter 增加计数器值
func (c *Collector) AddCounter(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := c.getOrCreate(name, TypeCounter, labels)
	metric.Value += value
	metric.Timestamp = time.Now().Unix()
}

// SetGauge 设置仪表值
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := c.getOrCreate(name, TypeGauge, labels)
	metric.Value = value
	metric.Timestamp = time.Now().Unix()
}

// ObserveHistogram 观察直方图. Value holds the latest sample.
func (c *Collector) ObserveHistogram(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := c.getOrCreate(name, TypeHistogram, labels)
	metric.Value = value
	metric.Count++
	metric.Sum += value
	metric.History = append(metric.History, value)
	if len(metric.History) > historyLimit {
		metric.History = metric.History[len(metric.History)-historyLimit:]
	}
	metric.Timestamp = time.Now().Unix()
}

// RecordRequest 记录 HTTP 请求
func (c *Collector) RecordRequest(method, path string, status int, duration float64) {
	labels := map[string]string{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}

	c.IncCounter("http_requests_total", labels)
	c.ObserveHistogram("http_request_duration_seconds", duration, labels)
}

// RecordCrop 记录一次成功的裁剪
func (c *Collector) RecordCrop(layer int, duration time.Duration, outputBytes int) {
	labels := map[string]string{"layer": strconv.Itoa(layer)}

	c.IncCounter("crop_requests_total", labels)
	c.ObserveHistogram("crop_duration_seconds", duration.Seconds(), labels)
	c.ObserveHistogram("crop_output_bytes", float64(outputBytes), labels)
}

// RecordRejection 记录被拒绝的裁剪请求
func (c *Collector) RecordRejection(reason string) {
	c.IncCounter("crop_rejections_total", map[string]string{"reason": reason})
}

func (c *Collector) getOrCreate(name, typ string, labels map[string]string) *Metric {
	key := buildKey(name, labels)
	if metric, exists := c.metrics[key]; exists {
		return metric
	}

	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	metric := &Metric{Name: name, Type: typ, Labels: copied}
	c.metrics[key] = metric
	return metric
}

// buildKey 构建指标键, labels sorted so the key is stable.
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteString(":")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(labels[k])
	}
	return sb.String()
}

// GetMetrics 获取所有指标的副本
func (c *Collector) GetMetrics() map[string]Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]Metric, len(c.metrics))
	for k, v := range c.metrics {
		m := *v
		m.History = append([]float64(nil), v.History...)
		result[k] = m
	}
	return result
}

// GetMetric 获取单个指标
func (c *Collector) GetMetric(name string, labels map[string]string) (Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metric, ok := c.metrics[buildKey(name, labels)]
	if !ok {
		return Metric{}, false
	}
	m := *metric
	m.History = append([]float64(nil), metric.History...)
	return m, true
}

// Total sums every series of a metric across labels.
func (c *Collector) Total(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total float64
	for _, m := range c.metrics {
		if m.Name != name {
			continue
		}
		if m.Type == TypeHistogram {
			total += float64(m.Count)
		} else {
			total += m.Value
		}
	}
	return total
}

// Summary 指标摘要
func (c *Collector) Summary() map[string]any {
	summary := map[string]any{
		"http_requests_total":   c.Total("http_requests_total"),
		"crop_requests_total":   c.Total("crop_requests_total"),
		"crop_rejections_total": c.Total("crop_rejections_total"),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var sum float64
	var count int64
	for _, m := range c.metrics {
		if m.Name == "crop_duration_seconds" {
			sum += m.Sum
			count += m.Count
		}
	}
	if count > 0 {
		summary["avg_crop_duration_seconds"] = sum / float64(count)
	}
	return summary
}

// Middleware HTTP 指标中间件. Requests are labelled by chi route pattern,
// so the series count is bounded by the number of routes.
func Middleware(collector *Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			collector.RecordRequest(r.Method, routePattern(r), ww.statusCode, time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return UnmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return UnmatchedRoute
}

// responseWriter 包装器
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Snapshot is the JSON document served by Handler.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]Metric `json:"metrics"`
	Summary   map[string]any    `json:"summary"`
}

// TakeSnapshot 获取指标快照
func TakeSnapshot(collector *Collector) Snapshot {
	return Snapshot{
		Timestamp: time.Now(),
		Metrics:   collector.GetMetrics(),
		Summary:   collector.Summary(),
	}
}

// Handler 指标处理器
func Handler(collector *Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(TakeSnapshot(collector)); err != nil {
			logging.FromContext(r.Context()).Warn("metrics encode failed", zap.Error(err))
		}
	})
}
