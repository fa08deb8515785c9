//go:build windows

package writers

import (
	"fmt"
	"sync"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

const eventlogChanCap = 1000

// Eventlog is the Windows counterpart to Syslog. Windows Event Log
// registration requires an installed event source (typically set up
// once by an installer via the registry), which is outside this
// library's scope — see spec's OUT OF SCOPE for platform-specific
// collaborators. This writer buffers formatted lines and reports each
// one through Reporter rather than silently discarding records, so a
// missing event source is visible immediately.
type Eventlog struct {
	cfg    SyslogConfig
	report Reporter
	mu     sync.Mutex

	ingest chan eventlogMsg
	done   chan struct{}
	once   sync.Once
}

type eventlogMsg struct {
	level uint8
	msg   string
	sync  chan struct{}
}

// NewEventlog constructs a Windows event log writer. It always
// succeeds at construction; publish failures are reported per record
// via Reporter rather than failing the writer outright, since a
// missing registered event source is a deployment issue rather than a
// per-write one.
func NewEventlog(cfg SyslogConfig, report Reporter) (*Eventlog, error) {
	if report == nil {
		report = NopReporter
	}
	e := &Eventlog{
		cfg:    cfg,
		report: report,
		ingest: make(chan eventlogMsg, eventlogChanCap),
		done:   make(chan struct{}),
	}
	go e.run()
	return e, nil
}

func (e *Eventlog) Kind() types.WriterKind { return types.KindSyslog }

func (e *Eventlog) run() {
	for msg := range e.ingest {
		if msg.sync != nil {
			close(msg.sync)
			continue
		}
		e.publish(msg.level, msg.msg)
	}
	close(e.done)
}

func (e *Eventlog) publish(level uint8, message string) {
	// Without a registered event source, the best available behavior
	// is to report the line through Reporter for the caller's own
	// sink; a real deployment installs a source and replaces this with
	// golang.org/x/sys/windows/svc/eventlog calls keyed by severityFor.
	e.report("publish", e.cfg.Tag, fmt.Errorf("eventlog: %s", message))
}

func (e *Eventlog) Send(formatted []byte, rec types.Record) error {
	select {
	case e.ingest <- eventlogMsg{level: rec.Level, msg: string(formatted)}:
		return nil
	default:
		return ErrFull
	}
}

func (e *Eventlog) Sync(timeout time.Duration) error {
	ack := make(chan struct{})
	select {
	case e.ingest <- eventlogMsg{sync: ack}:
	case <-time.After(timeout):
		return fmt.Errorf("eventlog sync: %w", ErrFull)
	}
	select {
	case <-ack:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("eventlog sync: timed out")
	}
}

func (e *Eventlog) Rotate(string) error { return nil }

func (e *Eventlog) Close() error {
	e.once.Do(func() { close(e.ingest) })
	<-e.done
	return nil
}
