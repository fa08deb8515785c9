package logbroker

import (
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

// StructuredForm chooses the broker's record rendering.
type StructuredForm int

const (
	Plain StructuredForm = iota
	Json
	Xml
)

// Record is a single log entry as it travels from producer to broker.
// It shares its wire shape with types.Record so the broker can hand
// it to a writer without copying.
type Record = types.Record

type cmdKind int

const (
	cmdMessage cmdKind = iota
	cmdMessageRemote
	cmdSync
	cmdSyncAll
	cmdRotate
	cmdStop
)

// logMessage is the broker's single command union. Only the fields
// relevant to Kind are populated.
type logMessage struct {
	kind cmdKind

	rec Record

	// cmdSync / cmdSyncAll
	typeMask WriterKind
	timeout  time.Duration
	done     chan error

	// cmdRotate
	path string

	// cmdStop
	now bool
}
