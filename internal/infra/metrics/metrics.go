// Package metrics 队列事件和平台结果的 Prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "crosspost"

type Collector struct {
	registry      *prometheus.Registry
	jobEvents     *prometheus.CounterVec
	jobFailures   *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	platformTotal *prometheus.CounterVec
	batchItems    *prometheus.CounterVec
	droppedEvents prometheus.Counter
}

func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		jobEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "events_total",
			Help:      "队列事件数量",
		}, []string{"queue", "event"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "failures_total",
			Help:      "任务失败次数,按错误类型区分",
		}, []string{"queue", "kind", "exhausted"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "任务从开始到结束的耗时",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"queue", "event"}),
		platformTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "platform_results_total",
			Help:      "各平台发布结果",
		}, []string{"platform", "outcome"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "batch_items_total",
			Help:      "批量抓取的条目结果",
		}, []string{"platform", "outcome"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "events_dropped_total",
			Help:      "分发器处理失败的事件",
		}),
	}

	for _, col := range []prometheus.Collector{c.jobEvents, c.jobFailures, c.jobDuration, c.platformTotal, c.batchItems, c.droppedEvents} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) JobEvent(queue, event string) {
	c.jobEvents.WithLabelValues(queue, event).Inc()
}

func (c *Collector) JobFailure(queue, kind string, exhausted bool) {
	if kind == "" {
		kind = "unknown"
	}
	ex := "false"
	if exhausted {
		ex = "true"
	}
	c.jobFailures.WithLabelValues(queue, kind, ex).Inc()
}

func (c *Collector) JobDuration(queue, event string, d time.Duration) {
	c.jobDuration.WithLabelValues(queue, event).Observe(d.Seconds())
}

// PlatformResult outcome 为 success / skipped / failed
func (c *Collector) PlatformResult(platform, outcome string) {
	c.platformTotal.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) BatchItems(platform string, success, failed int) {
	c.batchItems.WithLabelValues(platform, "success").Add(float64(success))
	c.batchItems.WithLabelValues(platform, "failed").Add(float64(failed))
}

func (c *Collector) EventDropped() { c.droppedEvents.Inc() }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics,ctx 结束后关闭
func (c *Collector) Serve(ctx context.Context, addr string, logger *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("指标服务已启动")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
