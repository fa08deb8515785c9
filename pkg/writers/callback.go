package writers

import (
	"fmt"
	"sync"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

const callbackChanCap = 1000

// Callback invokes a user function once per accepted record. The
// function is called under the writer's own lock; it must not call
// back into the broker synchronously (documented reentrancy
// constraint — doing so would deadlock against this same lock).
type Callback struct {
	cfg    CallbackConfig
	mu     sync.Mutex
	report Reporter

	ingest chan callbackMsg
	done   chan struct{}
	once   sync.Once

	closeMu sync.RWMutex
	closed  bool
}

type callbackMsg struct {
	level  uint8
	domain string
	msg    string
	sync   chan struct{}
}

// NewCallback starts the callback writer's worker goroutine.
func NewCallback(cfg CallbackConfig, report Reporter) *Callback {
	if report == nil {
		report = NopReporter
	}
	c := &Callback{
		cfg:    cfg,
		report: report,
		ingest: make(chan callbackMsg, callbackChanCap),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Callback) Kind() types.WriterKind { return types.KindCallback }

func (c *Callback) run() {
	for msg := range c.ingest {
		if msg.sync != nil {
			close(msg.sync)
			continue
		}
		c.invoke(msg.level, msg.domain, msg.msg)
	}
	close(c.done)
}

func (c *Callback) invoke(level uint8, domain, message string) {
	if c.cfg.Func == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cfg.Func(level, domain, message); err != nil {
		c.report("callback", domain, err)
	}
}

func (c *Callback) Send(formatted []byte, rec types.Record) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ingest <- callbackMsg{level: rec.Level, domain: rec.Domain, msg: rec.Message}:
		return nil
	default:
		return ErrFull
	}
}

func (c *Callback) Sync(timeout time.Duration) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	ack := make(chan struct{})
	select {
	case c.ingest <- callbackMsg{sync: ack}:
	case <-time.After(timeout):
		return fmt.Errorf("callback sync: %w", ErrFull)
	}
	select {
	case <-ack:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("callback sync: timed out")
	}
}

func (c *Callback) Rotate(string) error { return nil }

func (c *Callback) Close() error {
	c.closeMu.Lock()
	c.once.Do(func() {
		c.closed = true
		close(c.ingest)
	})
	c.closeMu.Unlock()
	<-c.done
	return nil
}
