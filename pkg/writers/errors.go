package writers

import "errors"

// ErrFull is returned by Send when a writer's bounded ingest channel
// has no room; the caller (the broker) logs it and moves on to the
// next writer rather than blocking the whole fan-out.
var ErrFull = errors.New("writer ingest channel full")

// ErrClosed is returned after Close by Send and Sync of the console,
// file, callback and net client writers, and by File.Rotate.
var ErrClosed = errors.New("writer is closed")

// Reporter receives a writer's internal faults (write errors, dropped
// connections, failed dials) for the owner to log; writers never
// panic or block on a fault, they call Reporter and continue.
type Reporter func(operation, destination string, err error)

// NopReporter discards every report.
func NopReporter(string, string, error) {}
