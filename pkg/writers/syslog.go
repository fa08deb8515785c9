package writers

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

const facilityUser = 1

// severityFor maps a record level down to the nearest POSIX syslog
// severity, per the source's level→severity table.
func severityFor(level uint8) int {
	switch {
	case level >= 60: // EXCEPTION
		return 1 // alert
	case level >= 50: // FATAL/CRITICAL
		return 2 // crit
	case level >= 40: // ERROR
		return 3 // error
	case level >= 30: // WARNING
		return 4 // warning
	case level >= 25: // SUCCESS
		return 5 // notice
	case level >= 20: // INFO
		return 6 // info
	default: // DEBUG, TRACE
		return 7 // debug
	}
}

const syslogChanCap = 1000

var syslogSocketPaths = []string{"/dev/log", "/var/run/syslog", "/var/run/log"}

// Syslog connects lazily (on construction) to the local syslog Unix
// socket and formats each record as
// "<priority>timestamp hostname tag[pid]: message".
type Syslog struct {
	cfg      SyslogConfig
	hostname string
	pid      int
	conn     net.Conn
	writer   *bufio.Writer
	mu       sync.Mutex
	report   Reporter

	ingest chan syslogMsg
	done   chan struct{}
	once   sync.Once
}

type syslogMsg struct {
	level uint8
	msg   string
	sync  chan struct{}
}

// NewSyslog dials the local syslog socket; connection failure fails
// construction outright, per the writer's lazy-connect-or-fail
// contract.
func NewSyslog(cfg SyslogConfig, report Reporter) (*Syslog, error) {
	if report == nil {
		report = NopReporter
	}
	var address string
	for _, p := range syslogSocketPaths {
		if _, err := os.Stat(p); err == nil {
			address = p
			break
		}
	}
	if address == "" {
		return nil, ErrSyslogWrap(fmt.Errorf("no local syslog socket found"))
	}
	conn, err := net.Dial("unix", address)
	if err != nil {
		return nil, ErrSyslogWrap(err)
	}
	hostname, _ := os.Hostname()

	s := &Syslog{
		cfg:      cfg,
		hostname: hostname,
		pid:      os.Getpid(),
		conn:     conn,
		writer:   bufio.NewWriter(conn),
		report:   report,
		ingest:   make(chan syslogMsg, syslogChanCap),
		done:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Syslog) Kind() types.WriterKind { return types.KindSyslog }

func (s *Syslog) run() {
	for msg := range s.ingest {
		if msg.sync != nil {
			s.mu.Lock()
			s.writer.Flush()
			s.mu.Unlock()
			close(msg.sync)
			continue
		}
		s.write(msg.level, msg.msg)
	}
	close(s.done)
}

func (s *Syslog) write(level uint8, message string) {
	priority := facilityUser*8 + severityFor(level)
	line := fmt.Sprintf("<%d>%s %s %s[%d]: %s", priority, time.Now().Format(time.Stamp), s.hostname, s.cfg.Tag, s.pid, strings.TrimSpace(message))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.WriteString(line); err != nil {
		s.report("write", "syslog", err)
		return
	}
	if !strings.HasSuffix(line, "\n") {
		s.writer.WriteString("\n")
	}
}

func (s *Syslog) Send(formatted []byte, rec types.Record) error {
	select {
	case s.ingest <- syslogMsg{level: rec.Level, msg: string(formatted)}:
		return nil
	default:
		return ErrFull
	}
}

func (s *Syslog) Sync(timeout time.Duration) error {
	ack := make(chan struct{})
	select {
	case s.ingest <- syslogMsg{sync: ack}:
	case <-time.After(timeout):
		return fmt.Errorf("syslog sync: %w", ErrFull)
	}
	select {
	case <-ack:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("syslog sync: timed out")
	}
}

func (s *Syslog) Rotate(string) error { return nil }

func (s *Syslog) Close() error {
	s.once.Do(func() { close(s.ingest) })
	<-s.done
	return s.conn.Close()
}

// ErrSyslogWrap wraps a syslog connection failure with a "syslog:"
// prefix. It is a plain wrapped error; the registry converts it into
// the taxonomy's Syslog kind when construction fails.
func ErrSyslogWrap(cause error) error {
	return fmt.Errorf("syslog: %w", cause)
}
