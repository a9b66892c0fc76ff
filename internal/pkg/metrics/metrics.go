package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 工具调用与订阅相关的 Prometheus 指标
type Metrics struct {
	usageStarted      *prometheus.CounterVec
	usageFinished     *prometheus.CounterVec
	entitlementDenied *prometheus.CounterVec
	subscriptionEvent *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get 返回注册到默认 registry 的单例
func Get() *Metrics {
	once.Do(func() {
		instance = New(prometheus.DefaultRegisterer)
	})
	return instance
}

// New 创建并注册指标，重复注册时复用已存在的 collector
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		usageStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "usage",
			Name:      "started_total",
			Help:      "Tool invocations started, by tool",
		}, []string{"tool"}),
		usageFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "usage",
			Name:      "finished_total",
			Help:      "Tool invocations reaching a terminal status",
		}, []string{"tool", "status"}),
		entitlementDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "entitlement",
			Name:      "denied_total",
			Help:      "Tool starts denied by the entitlement check, by reason",
		}, []string{"reason"}),
		subscriptionEvent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "subscription",
			Name:      "events_total",
			Help:      "Subscription lifecycle events applied, by event and result",
		}, []string{"event", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolbox",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.usageStarted = registerCounterVec(registerer, m.usageStarted)
	m.usageFinished = registerCounterVec(registerer, m.usageFinished)
	m.entitlementDenied = registerCounterVec(registerer, m.entitlementDenied)
	m.subscriptionEvent = registerCounterVec(registerer, m.subscriptionEvent)
	m.httpRequests = registerCounterVec(registerer, m.httpRequests)
	if err := registerer.Register(m.httpDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.httpDuration = existing
			}
		}
	}
	return m
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}

func (m *Metrics) UsageStarted(tool string) {
	m.usageStarted.WithLabelValues(tool).Inc()
}

func (m *Metrics) UsageFinished(tool, status string) {
	m.usageFinished.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) EntitlementDenied(reason string) {
	m.entitlementDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) SubscriptionEvent(event, result string) {
	m.subscriptionEvent.WithLabelValues(event, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
