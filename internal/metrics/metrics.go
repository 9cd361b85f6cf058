package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// AllocationCollector 暴露分配算法相关的 Prometheus 指标
type AllocationCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	BestFitness      *prometheus.GaugeVec
	UnallocatedTotal *prometheus.GaugeVec
	CacheHitsTotal   prometheus.Counter
}

// NewAllocationCollector 将指标注册到 reg 上，reg 为空时使用默认的注册器
func NewAllocationCollector(reg prometheus.Registerer) (*AllocationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocator_runs_total",
		Help: "Number of allocation runs grouped by mode and outcome.",
	}, []string{"mode", "outcome"})
	runs, err := register(reg, runs, "allocator_runs_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allocator_run_duration_seconds",
		Help:    "Duration of genetic algorithm runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"mode"})
	duration, err = register(reg, duration, "allocator_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	fitness := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "allocator_best_fitness",
		Help: "Best fitness reached by the latest allocation run.",
	}, []string{"mode"})
	fitness, err = register(reg, fitness, "allocator_best_fitness")
	if err != nil {
		return nil, err
	}

	unallocated := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "allocator_unallocated_patients",
		Help: "Unallocated patients in the best chromosome of the latest run.",
	}, []string{"mode"})
	unallocated, err = register(reg, unallocated, "allocator_unallocated_patients")
	if err != nil {
		return nil, err
	}

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocator_single_cache_hits_total",
		Help: "Single patient allocations served from cache.",
	})
	cacheHits, err = register(reg, cacheHits, "allocator_single_cache_hits_total")
	if err != nil {
		return nil, err
	}

	return &AllocationCollector{
		gatherer:         gatherer,
		RunsTotal:        runs,
		RunDuration:      duration,
		BestFitness:      fitness,
		UnallocatedTotal: unallocated,
		CacheHitsTotal:   cacheHits,
	}, nil
}

func (c *AllocationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun 记录一次成功的运行
func (c *AllocationCollector) ObserveRun(mode string, d time.Duration, bestFitness float64, unallocated int) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(mode, "success").Inc()
	c.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
	c.BestFitness.WithLabelValues(mode).Set(bestFitness)
	c.UnallocatedTotal.WithLabelValues(mode).Set(float64(unallocated))
}

func (c *AllocationCollector) ObserveFailure(mode string) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(mode, "failure").Inc()
}

func (c *AllocationCollector) IncCacheHits() {
	if c == nil {
		return
	}
	c.CacheHitsTotal.Inc()
}

// register 在指标已经注册过时直接复用，类型不一致时报错
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return collector, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return collector, err
	}
	return collector, nil
}
