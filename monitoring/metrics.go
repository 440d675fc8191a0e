package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "superstore"

// MetricsCollector 服务指标。方法对 nil 接收者安全，组件可以不接指标
type MetricsCollector struct {
	registry *prometheus.Registry

	datasetLoads      *prometheus.CounterVec
	rowsLoaded        prometheus.Counter
	cellParseFailures *prometheus.CounterVec
	predictions       *prometheus.CounterVec
	trainingRuns      *prometheus.CounterVec
	trainingDuration  prometheus.Histogram
	requestDuration   *prometheus.HistogramVec
	activeSessions    prometheus.Gauge
	wsClients         prometheus.Gauge
}

// NewMetricsCollector 创建独立 registry 的指标收集器，含 Go 运行时与进程指标
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		datasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by result",
		}, []string{"result"}),
		rowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Order rows normalized",
		}),
		cellParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cell_parse_failures_total",
			Help:      "Cells that failed to parse and became missing",
		}, []string{"column"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served by mode and label",
		}, []string{"mode", "label"}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs by result",
		}, []string{"result"}),
		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Training duration seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions held in the workspace cache",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard websocket clients",
		}),
	}

	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mc.datasetLoads, mc.rowsLoaded, mc.cellParseFailures,
		mc.predictions, mc.trainingRuns, mc.trainingDuration,
		mc.requestDuration, mc.activeSessions, mc.wsClients,
	)
	return mc
}

// Registry 底层 registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler /metrics 端点
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// ObserveDatasetLoad 记录一次数据加载
func (mc *MetricsCollector) ObserveDatasetLoad(rows int, issues map[string]int, err error) {
	if mc == nil {
		return
	}
	if err != nil {
		mc.datasetLoads.WithLabelValues("error").Inc()
		return
	}
	mc.datasetLoads.WithLabelValues("ok").Inc()
	mc.rowsLoaded.Add(float64(rows))
	for column, n := range issues {
		mc.cellParseFailures.WithLabelValues(column).Add(float64(n))
	}
}

// ObservePredictions 按标签计数
func (mc *MetricsCollector) ObservePredictions(mode string, labels ...int) {
	if mc == nil {
		return
	}
	for _, l := range labels {
		mc.predictions.WithLabelValues(mode, strconv.Itoa(l)).Inc()
	}
}

// ObserveTraining 记录训练结果与耗时
func (mc *MetricsCollector) ObserveTraining(d time.Duration, err error) {
	if mc == nil {
		return
	}
	if err != nil {
		mc.trainingRuns.WithLabelValues("error").Inc()
		return
	}
	mc.trainingRuns.WithLabelValues("ok").Inc()
	mc.trainingDuration.Observe(d.Seconds())
}

// ObserveRequest 记录请求耗时
func (mc *MetricsCollector) ObserveRequest(route, method string, status int, d time.Duration) {
	if mc == nil {
		return
	}
	mc.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// SetActiveSessions 当前会话数
func (mc *MetricsCollector) SetActiveSessions(n int) {
	if mc == nil {
		return
	}
	mc.activeSessions.Set(float64(n))
}

// SetWebSocketClients 当前 websocket 连接数
func (mc *MetricsCollector) SetWebSocketClients(n int) {
	if mc == nil {
		return
	}
	mc.wsClients.Set(float64(n))
}
