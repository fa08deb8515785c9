package logbroker

import (
	"os"
	"regexp"

	"github.com/logbroker/logbroker/pkg/types"
	"github.com/logbroker/logbroker/pkg/writers"
)

// WriterKind discriminates the tagged sum of writer configs/instances.
// Kept closed per the redesign notes: a bounded switch, not an
// open-ended interface registry. Aliased from pkg/types so writer
// implementations share the same value space without importing the
// root package.
type WriterKind = types.WriterKind

const (
	KindRoot     = types.KindRoot
	KindConsole  = types.KindConsole
	KindFile     = types.KindFile
	KindClient   = types.KindClient
	KindServer   = types.KindServer
	KindCallback = types.KindCallback
	KindSyslog   = types.KindSyslog
)

// Writer-kind-specific config structs live in pkg/writers so that
// package can construct concrete writers without importing the root
// package; the root package re-exports them under their familiar
// names for callers building a WriterConfig.
type (
	EncryptionKind    = writers.EncryptionKind
	Encryption        = writers.Encryption
	ConsoleConfig     = writers.ConsoleConfig
	FileConfig        = writers.FileConfig
	TimeOfDay         = writers.TimeOfDay
	CompressionMethod = writers.CompressionMethod
	ClientConfig      = writers.ClientConfig
	ServerConfig      = writers.ServerConfig
	CallbackFunc      = writers.CallbackFunc
	CallbackConfig    = writers.CallbackConfig
	SyslogConfig      = writers.SyslogConfig
)

const (
	EncryptionNone    = writers.EncryptionNone
	EncryptionAuthKey = writers.EncryptionAuthKey
	EncryptionAES     = writers.EncryptionAES

	Store   = writers.Store
	Deflate = writers.Deflate
	Zstd    = writers.Zstd
	Lzma    = writers.Lzma

	MaxBacklog = writers.MaxBacklog
)

// WriterConfig is the tagged sum of every writer variant, plus the
// common fields every writer carries (enabled flag, level, regex
// filters).
type WriterConfig struct {
	Kind          WriterKind
	Enabled       bool
	Level         Level
	DomainFilter  *regexp.Regexp
	MessageFilter *regexp.Regexp

	Console  *ConsoleConfig
	File     *FileConfig
	Client   *ClientConfig
	Server   *ServerConfig
	Callback *CallbackConfig
	Syslog   *SyslogConfig
}

// SetDomainFilter compiles and validates pattern before installing it;
// invalid patterns are rejected immediately rather than at match time.
func (c *WriterConfig) SetDomainFilter(pattern string) error {
	if pattern == "" {
		c.DomainFilter = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrInvalidValue("domain_filter", err)
	}
	c.DomainFilter = re
	return nil
}

// SetMessageFilter compiles and validates pattern before installing it.
func (c *WriterConfig) SetMessageFilter(pattern string) error {
	if pattern == "" {
		c.MessageFilter = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrInvalidValue("message_filter", err)
	}
	c.MessageFilter = re
	return nil
}

// Config is the registry-wide root configuration: shared metadata
// attached to every formatted record plus the broker's channel size.
type Config struct {
	Domain      string
	Host        string
	Pname       string
	Pid         int
	Structured  StructuredForm
	LevelSymbol LevelSymbolScheme
	ChannelSize int

	// ExtConfig toggles which optional annotations are rendered.
	IncludeHost    bool
	IncludePname   bool
	IncludePid     bool
	IncludeTName   bool
	IncludeTID     bool

	ErrorHandler ErrorHandler
}

// DefaultConfig returns the configuration used when the root instance
// is lazily constructed with no overrides.
func DefaultConfig() *Config {
	host, _ := os.Hostname()
	return &Config{
		Domain:       "root",
		Host:         host,
		Pname:        os.Args[0],
		Pid:          os.Getpid(),
		Structured:   Plain,
		LevelSymbol:  Str,
		ChannelSize:  1000,
		IncludeHost:  true,
		IncludePname: true,
		IncludePid:   true,
		ErrorHandler: defaultErrorHandler(),
	}
}

// Validate clamps invalid values to defaults rather than erroring.
func (c *Config) Validate() {
	if c.ChannelSize <= 0 {
		c.ChannelSize = 1000
	}
	if c.Domain == "" {
		c.Domain = "root"
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultErrorHandler()
	}
}
