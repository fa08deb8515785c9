package logbroker

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Stable error codes, mirrored from the POSIX errno values the source
// library surfaces plus one library-specific sentinel.
const (
	EIO    = 5
	EINVAL = 22
	EFAIL  = 100
)

// Kind discriminates the error taxonomy.
type Kind int

const (
	KindIo Kind = iota
	KindUtf8
	KindSyslog
	KindRecv
	KindSend
	KindSendCmd
	KindRecvAnswer
	KindInvalidValue
	KindInvalidEncryption
	KindJoin
	KindConfig
	KindArchive
)

// Convenience aliases used when constructing errors, matching the
// taxonomy names from the wire-level design.
const (
	EInvalidValue      = KindInvalidValue
	EInvalidEncryption = KindInvalidEncryption
)

// Error is the library's single error type; Kind discriminates the
// taxonomy and Code is the stable small-integer surface.
type Error struct {
	Kind      Kind
	Code      int
	Component string
	Cmd       string
	Cause     error
	msg       string
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("logbroker: %v", e.Cause)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

func codeFor(k Kind) int {
	switch k {
	case KindIo:
		return EIO
	case KindInvalidValue, KindInvalidEncryption:
		return EINVAL
	default:
		return EFAIL
	}
}

func newError(kind Kind, component, cmd string, cause error) *Error {
	e := &Error{
		Kind:      kind,
		Code:      codeFor(kind),
		Component: component,
		Cmd:       cmd,
		Cause:     cause,
		Timestamp: time.Now(),
	}
	if cause != nil {
		e.msg = errors.Wrap(cause, component).Error()
	} else {
		e.msg = component
	}
	return e
}

// ErrIo wraps an I/O failure.
func ErrIo(component string, cause error) error { return newError(KindIo, component, "", cause) }

// ErrUtf8 signals malformed UTF-8 on the wire.
func ErrUtf8(component string) error { return newError(KindUtf8, component, "", nil) }

// ErrSyslog wraps a syslog connection/write failure.
func ErrSyslog(cause error) error { return newError(KindSyslog, "syslog", "", cause) }

// ErrRecv signals a failed receive on a network connection.
func ErrRecv(cause error) error { return newError(KindRecv, "recv", "", cause) }

// ErrSend signals a failed send on a network connection.
func ErrSend(cause error) error { return newError(KindSend, "send", "", cause) }

// ErrSendCmd wraps a failed command send to a named component.
func ErrSendCmd(component, cmd string, cause error) error {
	return newError(KindSendCmd, component, cmd, cause)
}

// ErrRecvAnswer wraps a failed ack receive from a named component.
func ErrRecvAnswer(component, cmd string, cause error) error {
	return newError(KindRecvAnswer, component, cmd, cause)
}

// ErrInvalidValue signals a rejected configuration value.
func ErrInvalidValue(component string, cause error) error {
	return newError(KindInvalidValue, component, "", cause)
}

// ErrInvalidEncryption wraps an encryption setup or verification
// failure for component, naming the encryption kind involved.
func ErrInvalidEncryption(component, kind string, cause error) error {
	e := newError(KindInvalidEncryption, component, "", cause)
	e.Cmd = kind
	return e
}

// ErrJoin wraps a worker-join failure during shutdown.
func ErrJoin(component string, cause error) error {
	return newError(KindJoin, component, "", cause)
}

// ErrConfig wraps a config file parse/validation failure.
func ErrConfig(cause error) error { return newError(KindConfig, "config", "", cause) }

// ErrArchive wraps a rotation/compression failure.
func ErrArchive(cause error) error { return newError(KindArchive, "archive", "", cause) }

// NotConnected is returned by a Logger with no bound broker.
var NotConnected = newError(KindInvalidValue, "logger", "", fmt.Errorf("logger is not connected to a broker"))

// Timeout is returned by Sync/SyncAll when a writer does not ack
// within the requested duration.
var Timeout = newError(KindRecvAnswer, "sync", "", fmt.Errorf("timed out waiting for writer acknowledgement"))

// ErrorLevel ranks the severity of an internal LogError report,
// independent of the record Level that triggered it.
type ErrorLevel int

const (
	ErrorLevelLow ErrorLevel = iota
	ErrorLevelWarn
	ErrorLevelMedium
	ErrorLevelHigh
	ErrorLevelCritical
)

// LogError is the shape delivered to an ErrorHandler.
type LogError struct {
	Operation   string
	Destination string
	Message     string
	Err         error
	Level       ErrorLevel
	Timestamp   time.Time
}

func (e LogError) Error() string { return e.Message }
func (e LogError) Unwrap() error { return e.Err }

// ErrorHandler receives internal faults that are logged rather than
// returned (broker-to-writer sends, writer worker failures, and so
// on), per the propagation policy: producer-to-broker failures are
// fatal to the caller, everything downstream of the broker is
// reported and absorbed.
type ErrorHandler func(err LogError)

// SilentErrorHandler discards every report; used under test mode.
var SilentErrorHandler ErrorHandler = func(err LogError) {}

// StderrErrorHandler writes a one-line report to stderr.
var StderrErrorHandler ErrorHandler = func(err LogError) {
	fmt.Fprintf(stderrWriter, "logbroker: %s: %s: %v\n", err.Operation, err.Destination, err.Err)
}

// aggregateErrors joins independent shutdown errors without letting
// the first one short-circuit the rest.
func aggregateErrors(errs []error) error {
	var result *multierror.Error
	for _, e := range errs {
		if e != nil {
			result = multierror.Append(result, e)
		}
	}
	return result.ErrorOrNil()
}
