package logbroker

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Logger is a lightweight producer handle bound to a broker's ingest
// channel. The zero value is usable but unbound: every log call
// returns NotConnected. Instance.Logger constructs one bound to a send
// endpoint.
type Logger struct {
	domain string
	level  uint32 // atomic, holds a Level
	tname  bool
	tid    bool
	send   chan<- logMessage
}

func newLogger(domain string, level Level, tname, tid bool, send chan<- logMessage) *Logger {
	l := &Logger{domain: domain, tname: tname, tid: tid, send: send}
	atomic.StoreUint32(&l.level, uint32(level))
	return l
}

// Level returns the logger's current gating level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.level))
}

// SetLevel changes the gating level; takes effect on the next call.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.level, uint32(level))
}

// Domain returns the logger's bound domain name.
func (l *Logger) Domain() string { return l.domain }

// Log emits a record at level if the logger's own gating level
// permits it. The send blocks when the broker's channel is at
// capacity — backpressure, not a drop, per the producer contract.
func (l *Logger) Log(level Level, msg string) error {
	if l == nil || l.send == nil {
		return NotConnected
	}
	if level < l.Level() {
		return nil
	}
	rec := Record{
		Level:     uint8(level),
		Domain:    l.domain,
		Message:   fmt.Sprintf("%s: %s", l.domain, msg),
		Timestamp: time.Now(),
	}
	if l.tname {
		rec.ThreadName = threadName()
		rec.HasTName = true
	}
	if l.tid {
		rec.ThreadID = threadID()
		rec.HasTID = true
	}
	l.send <- logMessage{kind: cmdMessage, rec: rec}
	return nil
}

// Logf formats with fmt.Sprintf before emitting.
func (l *Logger) Logf(level Level, format string, args ...interface{}) error {
	return l.Log(level, fmt.Sprintf(format, args...))
}

func (l *Logger) Trace(msg string)     { _ = l.Log(TRACE, msg) }
func (l *Logger) Debug(msg string)     { _ = l.Log(DEBUG, msg) }
func (l *Logger) Info(msg string)      { _ = l.Log(INFO, msg) }
func (l *Logger) Success(msg string)   { _ = l.Log(SUCCESS, msg) }
func (l *Logger) Warning(msg string)   { _ = l.Log(WARNING, msg) }
func (l *Logger) Error(msg string)     { _ = l.Log(ERROR, msg) }
func (l *Logger) Fatal(msg string)     { _ = l.Log(FATAL, msg) }
func (l *Logger) Exception(msg string) { _ = l.Log(EXCEPTION, msg) }

func (l *Logger) Tracef(format string, args ...interface{})     { _ = l.Logf(TRACE, format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})     { _ = l.Logf(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})      { _ = l.Logf(INFO, format, args...) }
func (l *Logger) Successf(format string, args ...interface{})   { _ = l.Logf(SUCCESS, format, args...) }
func (l *Logger) Warningf(format string, args ...interface{})   { _ = l.Logf(WARNING, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})     { _ = l.Logf(ERROR, format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{})     { _ = l.Logf(FATAL, format, args...) }
func (l *Logger) Exceptionf(format string, args ...interface{}) { _ = l.Logf(EXCEPTION, format, args...) }

// IsLevelEnabled reports whether a record at level would pass this
// logger's gate.
func (l *Logger) IsLevelEnabled(level Level) bool {
	return level >= l.Level()
}
