// Package writers implements the concrete log sinks: console, file,
// syslog/eventlog, callback, and the TCP net client/server pair. Each
// type owns a worker goroutine and a bounded ingest channel and
// implements types.Writer.
package writers

// EncryptionKind tags the key material carried by a Client/Server
// writer config.
type EncryptionKind int

const (
	EncryptionNone EncryptionKind = iota
	EncryptionAuthKey
	EncryptionAES
)

// Encryption pairs a kind with its key bytes.
type Encryption struct {
	Kind EncryptionKind
	Key  []byte
}

// CompressionMethod selects the rotated-archive entry compressor.
type CompressionMethod int

const (
	Store CompressionMethod = iota
	Deflate
	Zstd
	Lzma
)

// MaxBacklog is the compile-time ceiling on FileConfig.Backlog.
const MaxBacklog = 999

// TimeOfDay is a wall-clock time of day used for scheduled rotation.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// ConsoleConfig configures a console writer.
type ConsoleConfig struct {
	Color bool
}

// FileConfig configures a file writer.
type FileConfig struct {
	Path          string
	MaxSize       int64
	Backlog       int
	Compression   CompressionMethod
	RotateAt      *TimeOfDay
	RotatePeriod  int64
	FsyncOnRecord bool
}

// ClientConfig configures a NetClient writer.
type ClientConfig struct {
	Host       string
	Port       uint16
	Encryption Encryption
}

// ServerConfig configures a NetServer writer.
type ServerConfig struct {
	Host         string
	Port         uint16
	Encryption   Encryption
	PortFilePath string
}

// CallbackFunc is invoked once per accepted record.
type CallbackFunc func(level uint8, domain, message string) error

// CallbackConfig configures a Callback writer.
type CallbackConfig struct {
	Func CallbackFunc
}

// SyslogConfig configures a Syslog/Eventlog writer.
type SyslogConfig struct {
	Tag string
}
