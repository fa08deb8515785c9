package writers

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/logbroker/logbroker/pkg/types"
)

const (
	fileChanCap     = 10000
	fileBufferSize  = 32 * 1024
	periodicTickDur = time.Second
)

type fileMsg struct {
	data  []byte
	sync  chan struct{}
	doit  bool // explicit Rotate command
	path  string
}

// File is a rotating, optionally compressed append-only log file.
// Rotation follows a strict numbered backlog: log.1 is always the
// newest rotated generation, log.N the oldest; the oldest is
// overwritten (discarded) once the backlog is full.
type File struct {
	mu     sync.Mutex
	cfg    FileConfig
	path   string
	file   *os.File
	writer *bufio.Writer
	lock   *flock.Flock
	size   int64
	report Reporter

	ingest chan fileMsg
	done   chan struct{}
	once   sync.Once
	stopTick chan struct{}

	closeMu sync.RWMutex
	closed  bool

	nextPeriodic time.Time
	nextAt       time.Time
}

// NewFile opens (creating if needed) the live log file and starts the
// writer's worker goroutine. Backlog values above MaxBacklog are
// rejected.
func NewFile(cfg FileConfig, report Reporter) (*File, error) {
	if cfg.Backlog > MaxBacklog {
		return nil, fmt.Errorf("backlog %d exceeds MaxBacklog (%d)", cfg.Backlog, MaxBacklog)
	}
	if report == nil {
		report = NopReporter
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	path := filepath.Clean(cfg.Path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	fw := &File{
		cfg:      cfg,
		path:     path,
		file:     f,
		writer:   bufio.NewWriterSize(f, fileBufferSize),
		lock:     flock.New(path),
		size:     info.Size(),
		report:   report,
		ingest:   make(chan fileMsg, fileChanCap),
		done:     make(chan struct{}),
		stopTick: make(chan struct{}),
	}
	fw.scheduleNextPeriodic()
	fw.scheduleNextAt()
	go fw.run()
	if cfg.RotatePeriod > 0 || cfg.RotateAt != nil {
		go fw.periodicTicker()
	}
	return fw, nil
}

func (fw *File) Kind() types.WriterKind { return types.KindFile }

func (fw *File) scheduleNextPeriodic() {
	if fw.cfg.RotatePeriod > 0 {
		fw.nextPeriodic = time.Now().Add(time.Duration(fw.cfg.RotatePeriod) * time.Second)
	}
}

// scheduleNextAt computes the next wall-clock occurrence of
// cfg.RotateAt, rolling to tomorrow if today's time of day has
// already passed.
func (fw *File) scheduleNextAt() {
	if fw.cfg.RotateAt == nil {
		return
	}
	now := time.Now()
	at := fw.cfg.RotateAt
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, at.Second, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	fw.nextAt = next
}

func (fw *File) periodicTicker() {
	t := time.NewTicker(periodicTickDur)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			fw.mu.Lock()
			due := (fw.cfg.RotatePeriod > 0 && !fw.nextPeriodic.IsZero() && time.Now().After(fw.nextPeriodic)) ||
				(fw.cfg.RotateAt != nil && !fw.nextAt.IsZero() && time.Now().After(fw.nextAt))
			fw.mu.Unlock()
			if due {
				select {
				case fw.ingest <- fileMsg{doit: true}:
				default:
				}
			}
		case <-fw.stopTick:
			return
		}
	}
}

func (fw *File) run() {
	for msg := range fw.ingest {
		switch {
		case msg.sync != nil:
			fw.mu.Lock()
			fw.writer.Flush()
			fw.mu.Unlock()
			close(msg.sync)
		case msg.doit:
			if err := fw.rotate(); err != nil {
				fw.report("rotate", fw.path, err)
			}
		default:
			fw.writeRecord(msg.data)
		}
	}
	close(fw.done)
}

func (fw *File) writeRecord(data []byte) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if err := fw.lock.Lock(); err != nil {
		fw.report("write", fw.path, err)
		return
	}
	n, err := fw.writer.Write(data)
	fw.lock.Unlock()
	if err != nil {
		fw.report("write", fw.path, err)
		return
	}
	fw.size += int64(n)

	if fw.cfg.FsyncOnRecord {
		fw.writer.Flush()
		fw.file.Sync()
	}

	if fw.shouldRotate() {
		if err := fw.rotateLocked(); err != nil {
			fw.report("rotate", fw.path, err)
		}
	}
}

func (fw *File) shouldRotate() bool {
	if fw.cfg.Backlog <= 0 {
		return false
	}
	if fw.cfg.MaxSize > 0 && fw.size > fw.cfg.MaxSize {
		return true
	}
	return false
}

// rotate is the externally triggered (Rotate command) entry point; it
// takes the lock itself.
func (fw *File) rotate() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.cfg.Backlog <= 0 {
		return nil
	}
	return fw.rotateLocked()
}

// rotateLocked implements the numbered-backlog rotation algorithm.
// Caller must hold fw.mu.
func (fw *File) rotateLocked() error {
	if err := fw.writer.Flush(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := fw.file.Close(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	backlog := fw.cfg.Backlog
	base := filepath.Base(fw.path)

	for i := backlog - 1; i >= 1; i-- {
		from := rotatedName(fw.path, i)
		to := rotatedName(fw.path, i+1)
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, to) // oldest (log.<backlog>) is overwritten/discarded
		}
	}

	data, err := os.ReadFile(fw.path)
	if err != nil {
		fw.reopen()
		return fmt.Errorf("archive: %w", err)
	}
	if err := archiveEntry(rotatedName(fw.path, 1), base, fw.cfg.Compression, data); err != nil {
		fw.reopen()
		return fmt.Errorf("archive: %w", err)
	}

	if err := fw.reopen(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func rotatedName(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}

func (fw *File) reopen() error {
	f, err := os.OpenFile(fw.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	fw.file = f
	fw.writer = bufio.NewWriterSize(f, fileBufferSize)
	fw.size = 0
	fw.scheduleNextPeriodic()
	fw.scheduleNextAt()
	return nil
}

func (fw *File) Send(formatted []byte, rec types.Record) error {
	fw.closeMu.RLock()
	defer fw.closeMu.RUnlock()
	if fw.closed {
		return ErrClosed
	}
	cp := make([]byte, len(formatted))
	copy(cp, formatted)
	select {
	case fw.ingest <- fileMsg{data: cp}:
		return nil
	default:
		return ErrFull
	}
}

func (fw *File) Sync(timeout time.Duration) error {
	fw.closeMu.RLock()
	defer fw.closeMu.RUnlock()
	if fw.closed {
		return ErrClosed
	}
	ack := make(chan struct{})
	select {
	case fw.ingest <- fileMsg{sync: ack}:
	case <-time.After(timeout):
		return fmt.Errorf("file sync: %w", ErrFull)
	}
	select {
	case <-ack:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("file sync: timed out")
	}
}

func (fw *File) Rotate(path string) error {
	if path != "" && path != fw.path {
		return nil
	}
	fw.closeMu.RLock()
	defer fw.closeMu.RUnlock()
	if fw.closed {
		return ErrClosed
	}
	select {
	case fw.ingest <- fileMsg{doit: true}:
		return nil
	default:
		return ErrFull
	}
}

func (fw *File) Close() error {
	fw.closeMu.Lock()
	fw.once.Do(func() {
		fw.closed = true
		close(fw.stopTick)
		close(fw.ingest)
	})
	fw.closeMu.Unlock()
	<-fw.done
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.writer.Flush()
	return fw.file.Close()
}
