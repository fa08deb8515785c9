package writers

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/logbroker/logbroker/pkg/types"
)

var levelColor = map[uint8]*color.Color{
	5:  color.New(color.FgCyan),    // TRACE
	10: color.New(color.FgGreen),   // DEBUG
	20: color.New(color.FgWhite),   // INFO
	25: color.New(color.FgHiGreen), // SUCCESS
	30: color.New(color.FgYellow),  // WARNING
	40: color.New(color.FgMagenta), // ERROR
	50: color.New(color.FgRed),     // FATAL/CRITICAL
	60: color.New(color.FgHiRed),   // EXCEPTION
}

func colorFor(level uint8) *color.Color {
	best := uint8(0)
	var c *color.Color
	for l, col := range levelColor {
		if level >= l && l >= best {
			best = l
			c = col
		}
	}
	if c == nil {
		return color.New(color.Reset)
	}
	return c
}

const consoleChanCap = 1000

// Console writes formatted records to stderr, colorizing each line by
// level when Color is enabled.
type Console struct {
	cfg    ConsoleConfig
	out    io.Writer
	report Reporter

	ingest chan consoleMsg
	done   chan struct{}
	once   sync.Once

	closeMu sync.RWMutex
	closed  bool
}

type consoleMsg struct {
	data []byte
	rec  types.Record
	sync chan struct{}
}

// NewConsole starts the console writer's worker goroutine.
func NewConsole(cfg ConsoleConfig, report Reporter) *Console {
	if report == nil {
		report = NopReporter
	}
	c := &Console{
		cfg:    cfg,
		out:    os.Stderr,
		report: report,
		ingest: make(chan consoleMsg, consoleChanCap),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Console) Kind() types.WriterKind { return types.KindConsole }

func (c *Console) run() {
	for msg := range c.ingest {
		if msg.sync != nil {
			close(msg.sync)
			continue
		}
		c.write(msg.data, msg.rec)
	}
	close(c.done)
}

func (c *Console) write(data []byte, rec types.Record) {
	if c.cfg.Color {
		colorFor(rec.Level).Fprint(c.out, string(data))
		return
	}
	c.out.Write(data)
}

func (c *Console) Send(formatted []byte, rec types.Record) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	cp := make([]byte, len(formatted))
	copy(cp, formatted)
	select {
	case c.ingest <- consoleMsg{data: cp, rec: rec}:
		return nil
	default:
		return ErrFull
	}
}

func (c *Console) Sync(timeout time.Duration) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	ack := make(chan struct{})
	select {
	case c.ingest <- consoleMsg{sync: ack}:
	case <-time.After(timeout):
		return fmt.Errorf("console sync: %w", ErrFull)
	}
	select {
	case <-ack:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("console sync: timed out")
	}
}

func (c *Console) Rotate(string) error { return nil }

// Close stops the worker goroutine and waits for it to drain. The
// close lock excludes Send/Sync while the ingest channel is being
// closed, so a concurrent Send can never race a send onto a channel
// that's in the middle of being closed.
func (c *Console) Close() error {
	c.closeMu.Lock()
	c.once.Do(func() {
		c.closed = true
		close(c.ingest)
	})
	c.closeMu.Unlock()
	<-c.done
	return nil
}
