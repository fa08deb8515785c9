package metrics

import (
	"sync"
	"sync/atomic"
)

// Collector handles metrics collection for the broker and its writers.
type Collector struct {
	messagesByLevel sync.Map // map[int]*atomic.Uint64
	messagesDropped uint64

	errorCount     uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Metrics contains runtime metrics for the logger.
type Metrics struct {
	// Message counts by level
	MessagesLogged  map[int]uint64 `json:"messages_logged"`
	MessagesDropped uint64         `json:"messages_dropped"`

	// Queue metrics
	QueueDepth       int     `json:"queue_depth"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`

	// Error metrics
	ErrorCount     uint64            `json:"error_count"`
	ErrorsBySource map[string]uint64 `json:"errors_by_source"`
}

// GetMetrics returns a snapshot of the accumulated counters, joined
// with the caller-supplied queue depth/capacity.
func (c *Collector) GetMetrics(queueDepth, queueCapacity int) Metrics {
	metrics := Metrics{
		MessagesLogged:  make(map[int]uint64),
		MessagesDropped: atomic.LoadUint64(&c.messagesDropped),
		QueueDepth:      queueDepth,
		QueueCapacity:   queueCapacity,
		ErrorCount:      atomic.LoadUint64(&c.errorCount),
		ErrorsBySource:  make(map[string]uint64),
	}

	if metrics.QueueCapacity > 0 {
		metrics.QueueUtilization = float64(metrics.QueueDepth) / float64(metrics.QueueCapacity)
	}

	c.messagesByLevel.Range(func(key, value interface{}) bool {
		level := key.(int)
		counter := value.(*atomic.Uint64)
		if count := counter.Load(); count > 0 {
			metrics.MessagesLogged[level] = count
		}
		return true
	})

	c.errorsBySource.Range(func(key, value interface{}) bool {
		source := key.(string)
		counter := value.(*atomic.Uint64)
		if count := counter.Load(); count > 0 {
			metrics.ErrorsBySource[source] = count
		}
		return true
	})

	return metrics
}

// ResetMetrics resets all metrics counters.
func (c *Collector) ResetMetrics() {
	c.messagesByLevel.Range(func(key, value interface{}) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})

	atomic.StoreUint64(&c.messagesDropped, 0)
	atomic.StoreUint64(&c.errorCount, 0)

	c.errorsBySource.Range(func(key, value interface{}) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})
}

// TrackMessageLogged increments the message counter for a level.
func (c *Collector) TrackMessageLogged(level int) {
	val, _ := c.messagesByLevel.LoadOrStore(level, &atomic.Uint64{})
	counter := val.(*atomic.Uint64)
	counter.Add(1)
}

// TrackMessageDropped increments the dropped message counter.
func (c *Collector) TrackMessageDropped() {
	atomic.AddUint64(&c.messagesDropped, 1)
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	atomic.AddUint64(&c.errorCount, 1)

	val, _ := c.errorsBySource.LoadOrStore(source, &atomic.Uint64{})
	counter := val.(*atomic.Uint64)
	counter.Add(1)
}
