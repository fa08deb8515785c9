package metrics

import (
	"sync"
	"testing"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}

	m := c.GetMetrics(0, 0)
	if len(m.MessagesLogged) != 0 {
		t.Errorf("expected no logged messages initially, got %v", m.MessagesLogged)
	}
	if m.ErrorCount != 0 {
		t.Error("expected initial error count to be 0")
	}
}

func TestTrackMessageLogged(t *testing.T) {
	c := NewCollector()

	tests := []struct {
		name  string
		level int
		count int
	}{
		{"Single message level 1", 1, 1},
		{"Multiple messages level 2", 2, 5},
		{"Many messages level 3", 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.count; i++ {
				c.TrackMessageLogged(tt.level)
			}

			if got := c.GetMetrics(0, 0).MessagesLogged[tt.level]; got != uint64(tt.count) {
				t.Errorf("MessagesLogged[%d] = %d, want %d", tt.level, got, tt.count)
			}
		})
	}
}

func TestTrackMessageDropped(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 10; i++ {
		c.TrackMessageDropped()
	}

	m := c.GetMetrics(0, 0)
	if m.MessagesDropped != 10 {
		t.Errorf("MessagesDropped = %d, want 10", m.MessagesDropped)
	}
}

func TestTrackError(t *testing.T) {
	c := NewCollector()

	sources := []struct {
		source string
		count  int
	}{
		{"file_writer", 3},
		{"syslog_writer", 2},
		{"netclient_writer", 5},
	}

	var totalErrors uint64
	for _, s := range sources {
		for i := 0; i < s.count; i++ {
			c.TrackError(s.source)
			totalErrors++
		}
	}

	m := c.GetMetrics(0, 0)
	if m.ErrorCount != totalErrors {
		t.Errorf("ErrorCount = %d, want %d", m.ErrorCount, totalErrors)
	}
	for _, s := range sources {
		if m.ErrorsBySource[s.source] != uint64(s.count) {
			t.Errorf("ErrorsBySource[%s] = %d, want %d", s.source, m.ErrorsBySource[s.source], s.count)
		}
	}
}

func TestGetMetricsQueueUtilization(t *testing.T) {
	c := NewCollector()

	m := c.GetMetrics(10, 100)
	if m.QueueDepth != 10 || m.QueueCapacity != 100 {
		t.Errorf("QueueDepth/Capacity = %d/%d, want 10/100", m.QueueDepth, m.QueueCapacity)
	}
	if m.QueueUtilization != 0.1 {
		t.Errorf("QueueUtilization = %f, want 0.1", m.QueueUtilization)
	}
}

func TestGetMetricsWithZeroCapacity(t *testing.T) {
	c := NewCollector()

	m := c.GetMetrics(0, 0)
	if m.QueueUtilization != 0 {
		t.Errorf("QueueUtilization = %f, want 0 when capacity is 0", m.QueueUtilization)
	}
}

func TestResetMetrics(t *testing.T) {
	c := NewCollector()

	c.TrackMessageLogged(1)
	c.TrackMessageLogged(2)
	c.TrackMessageDropped()
	c.TrackError("source1")
	c.TrackError("source2")

	c.ResetMetrics()

	m := c.GetMetrics(0, 0)
	if len(m.MessagesLogged) != 0 {
		t.Errorf("MessagesLogged should be empty after reset, got %v", m.MessagesLogged)
	}
	if m.MessagesDropped != 0 {
		t.Errorf("MessagesDropped = %d, want 0 after reset", m.MessagesDropped)
	}
	if m.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0 after reset", m.ErrorCount)
	}
	if len(m.ErrorsBySource) != 0 {
		t.Errorf("ErrorsBySource should be empty after reset, got %v", m.ErrorsBySource)
	}
}

func TestConcurrentTracking(t *testing.T) {
	c := NewCollector()

	const (
		numGoroutines = 100
		numOperations = 1000
	)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(level int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				c.TrackMessageLogged(level % 5)
				if j%10 == 0 {
					c.TrackMessageDropped()
				}
				if j%15 == 0 {
					c.TrackError("concurrent_source")
				}
			}
		}(i)
	}

	wg.Wait()

	m := c.GetMetrics(0, 0)

	var totalMessages uint64
	for _, count := range m.MessagesLogged {
		totalMessages += count
	}
	expectedMessages := uint64(numGoroutines * numOperations)
	if totalMessages != expectedMessages {
		t.Errorf("total messages = %d, want %d", totalMessages, expectedMessages)
	}

	expectedDropped := uint64(numGoroutines * (numOperations / 10))
	if m.MessagesDropped != expectedDropped {
		t.Errorf("MessagesDropped = %d, want %d", m.MessagesDropped, expectedDropped)
	}

	// j%15==0 for j=0,15,...,990: 67 times per goroutine.
	expectedErrors := uint64(numGoroutines * 67)
	if m.ErrorCount != expectedErrors {
		t.Errorf("ErrorCount = %d, want %d", m.ErrorCount, expectedErrors)
	}
}

func BenchmarkTrackMessageLogged(b *testing.B) {
	c := NewCollector()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.TrackMessageLogged(i % 5)
	}
}

func BenchmarkGetMetrics(b *testing.B) {
	c := NewCollector()

	for i := 0; i < 100; i++ {
		c.TrackMessageLogged(i % 5)
		c.TrackError("error_source")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.GetMetrics(10, 100)
	}
}
