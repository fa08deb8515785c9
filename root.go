package logbroker

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/logbroker/logbroker/internal/metrics"
	"github.com/logbroker/logbroker/pkg/configfile"
	"github.com/logbroker/logbroker/pkg/wire"
)

// Metrics is a point-in-time snapshot of message/drop/error counters
// accumulated since the instance was constructed (or since the last
// ResetMetrics call), plus the producer queue's depth and capacity.
type Metrics = metrics.Metrics

// Instance composes a registry and broker into one logging pipeline.
// Root() exposes the process-wide singleton; New constructs an
// independent instance for callers that want their own (tests, or a
// process hosting more than one logging domain).
type Instance struct {
	cfg *Config
	reg *Registry
	brk *broker

	portFile  string
	serverWID uint32
	hasServer bool
}

// New constructs a standalone instance; nil cfg uses DefaultConfig.
func New(cfg *Config) *Instance {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()
	reg := newRegistry(cfg)
	brk := newBroker(cfg, reg)
	reg.attachBroker(brk.send(), brk.metrics)
	return &Instance{cfg: cfg, reg: reg, brk: brk}
}

// Logger returns a producer handle bound to this instance's broker.
func (in *Instance) Logger(domain string, level Level, tname, tid bool) *Logger {
	return newLogger(domain, level, tname, tid, in.brk.send())
}

// AddWriter constructs and registers a writer, returning its fresh id.
func (in *Instance) AddWriter(cfg WriterConfig) (uint32, error) {
	return in.reg.AddWriter(cfg)
}

// RemoveWriter unregisters and closes wid's writer.
func (in *Instance) RemoveWriter(wid uint32) error {
	instance, err := in.reg.RemoveWriter(wid)
	if err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	return instance.Close()
}

// SetRootWriter replaces writer 0's shared metadata in place.
func (in *Instance) SetRootWriter(cfg WriterConfig) { in.reg.SetRootWriter(cfg) }

func (in *Instance) Enable(wid uint32) error  { return in.reg.Enable(wid) }
func (in *Instance) Disable(wid uint32) error { return in.reg.Disable(wid) }

func (in *Instance) EnableType(kind WriterKind)  { in.reg.EnableType(kind) }
func (in *Instance) DisableType(kind WriterKind) { in.reg.DisableType(kind) }

func (in *Instance) SetLevel(wid uint32, level Level) error { return in.reg.SetLevel(wid, level) }

func (in *Instance) SetDomainFilter(wid uint32, pattern string) error {
	return in.reg.SetDomainFilter(wid, pattern)
}

func (in *Instance) SetMessageFilter(wid uint32, pattern string) error {
	return in.reg.SetMessageFilter(wid, pattern)
}

func (in *Instance) SetEncryption(wid uint32, key []byte) error {
	return in.reg.SetEncryption(wid, key)
}

func (in *Instance) GetWriterConfig(wid uint32) (WriterConfig, error) {
	return in.reg.GetWriterConfig(wid)
}

func (in *Instance) GetServerConfig(wid uint32) (ServerConfig, error) {
	return in.reg.GetServerConfig(wid)
}

func (in *Instance) GetServerAddressesPorts() map[uint32]string {
	return in.reg.GetServerAddressesPorts()
}

// Sync flushes every enabled writer of kind, waiting up to timeout.
func (in *Instance) Sync(kind WriterKind, timeout time.Duration) error {
	done := make(chan error, 1)
	in.brk.send() <- logMessage{kind: cmdSync, typeMask: kind, timeout: timeout, done: done}
	return <-done
}

// SyncAll flushes every enabled writer, waiting up to timeout.
func (in *Instance) SyncAll(timeout time.Duration) error {
	done := make(chan error, 1)
	in.brk.send() <- logMessage{kind: cmdSyncAll, timeout: timeout, done: done}
	return <-done
}

// Metrics returns a snapshot of the broker's accumulated counters
// (messages logged per level, dropped-on-full-writer count, format
// errors) alongside the producer channel's current depth/capacity.
func (in *Instance) Metrics() Metrics {
	return in.brk.metricsSnapshot()
}

// ResetMetrics zeroes every accumulated counter without otherwise
// disturbing the running instance.
func (in *Instance) ResetMetrics() {
	in.brk.metrics.ResetMetrics()
}

// Rotate requests rotation of the file writer matching path, or every
// file writer when path is empty.
func (in *Instance) Rotate(path string) {
	in.brk.send() <- logMessage{kind: cmdRotate, path: path}
}

// Shutdown drains (or, if now, abandons) queued records, stops the
// broker, closes every writer, and removes this instance's port file
// if it created one.
func (in *Instance) Shutdown(now bool) error {
	in.brk.stop(now)
	err := in.reg.shutdown()
	if in.portFile != "" {
		os.Remove(in.portFile)
	}
	return err
}

// portFilePath returns the well-known port-file path for pid, shared
// between a server instance publishing its port and a child process
// looking for its parent's.
func portFilePath(pid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("fastlogging_rs_server_port.%d", pid))
}

// defaultConfigFilePath resolves the config file search order: the
// FASTLOGGING_CONFIG_FILE env var, else fastlogging.{json,yaml,xml} in
// the working directory.
func defaultConfigFilePath() string {
	if path := os.Getenv("FASTLOGGING_CONFIG_FILE"); path != "" {
		return path
	}
	for _, ext := range []string{"json", "yaml", "xml"} {
		candidate := "fastlogging." + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// probeReachable dials host:port with a short timeout to confirm a
// discovered parent server is actually listening, not just that its
// port file happens to still exist.
func probeReachable(port uint16) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// initRoot builds the process-wide singleton: a root NetServer
// publishing its port file, then either an auto-attached NetClient to
// a discovered parent, a merged config file, or a default console
// writer, per the parent-discovery procedure.
func initRoot() *Instance {
	cfg := DefaultConfig()
	in := New(cfg)

	myPortFile := portFilePath(os.Getpid())
	srvCfg := ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		Encryption:   Encryption{Kind: EncryptionAuthKey, Key: AuthKey()},
		PortFilePath: myPortFile,
	}
	if wid, err := in.AddWriter(WriterConfig{Kind: KindServer, Enabled: true, Level: NOTSET, Server: &srvCfg}); err == nil {
		in.serverWID = wid
		in.hasServer = true
		in.portFile = myPortFile
	} else if cfg.ErrorHandler != nil {
		cfg.ErrorHandler(LogError{Operation: "init_root_server", Err: err, Level: ErrorLevelWarn, Timestamp: time.Now()})
	}

	if attachToParent(in) {
		return in
	}

	if path := defaultConfigFilePath(); path != "" {
		if err := mergeConfigFile(in, path); err == nil {
			return in
		}
	}

	in.AddWriter(WriterConfig{Kind: KindConsole, Enabled: true, Level: NOTSET, Console: &ConsoleConfig{Color: true}})
	return in
}

// attachToParent looks up the parent PID's port file; if it exists and
// the server behind it is reachable, it adds a NetClient writer
// pointed at the parent using the parent's own published encryption
// key, so child-process logs transparently forward upward.
func attachToParent(in *Instance) bool {
	ppid := os.Getppid()
	if ppid <= 1 {
		return false
	}
	pf, err := wire.ReadPortFile(portFilePath(ppid))
	if err != nil {
		return false
	}
	if !probeReachable(pf.Port) {
		return false
	}

	enc := Encryption{}
	switch pf.Kind {
	case wire.KeyAuth:
		enc = Encryption{Kind: EncryptionAuthKey, Key: pf.Key}
	case wire.KeyAES:
		enc = Encryption{Kind: EncryptionAES, Key: pf.Key}
	}
	_, err = in.AddWriter(WriterConfig{
		Kind:    KindClient,
		Enabled: true,
		Level:   NOTSET,
		Client:  &ClientConfig{Host: "127.0.0.1", Port: pf.Port, Encryption: enc},
	})
	return err == nil
}

// mergeConfigFile loads path and adds the writers it describes.
func mergeConfigFile(in *Instance, path string) error {
	fc, err := configfile.Load(path)
	if err != nil {
		return err
	}
	if fc.Domain != "" {
		in.SetRootWriter(WriterConfig{Kind: KindRoot, Enabled: true, Level: Level(fc.Level)})
	}
	if fc.Console != nil {
		in.AddWriter(WriterConfig{Kind: KindConsole, Enabled: true, Level: Level(fc.Level), Console: &ConsoleConfig{Color: fc.Console.Color}})
	}
	if fc.File != nil {
		in.AddWriter(WriterConfig{Kind: KindFile, Enabled: true, Level: Level(fc.Level), File: &FileConfig{
			Path:         fc.File.Path,
			MaxSize:      fc.File.MaxSize,
			Backlog:      fc.File.Backlog,
			Compression:  CompressionMethod(fc.File.Compression),
			RotatePeriod: fc.File.RotatePeriod,
		}})
	}
	if fc.Syslog != nil {
		in.AddWriter(WriterConfig{Kind: KindSyslog, Enabled: true, Level: Level(fc.Level), Syslog: &SyslogConfig{Tag: fc.Syslog.Tag}})
	}
	if fc.Connect != nil {
		in.AddWriter(WriterConfig{Kind: KindClient, Enabled: true, Level: Level(fc.Level), Client: &ClientConfig{Host: fc.Connect.Host, Port: fc.Connect.Port}})
	}
	if fc.Server != nil {
		in.AddWriter(WriterConfig{Kind: KindServer, Enabled: true, Level: Level(fc.Level), Server: &ServerConfig{Host: fc.Server.Host, Port: fc.Server.Port, PortFilePath: fc.Server.PortFilePath}})
	}
	return nil
}

var (
	rootOnce     sync.Once
	rootInstance *Instance

	rootLoggerOnce sync.Once
	rootLoggerVal  *Logger
)

// Root returns the process-wide singleton instance, constructing it
// (and running parent discovery) on first use.
func Root() *Instance {
	rootOnce.Do(func() {
		rootInstance = initRoot()
	})
	return rootInstance
}

func rootLogger() *Logger {
	rootLoggerOnce.Do(func() {
		rootLoggerVal = Root().Logger("root", NOTSET, false, false)
	})
	return rootLoggerVal
}

// Module-level convenience functions bound to the root singleton's
// default logger, mirroring the language-binding surface that cannot
// thread its own Instance through every call site.

func Trace(msg string)     { rootLogger().Trace(msg) }
func Debug(msg string)     { rootLogger().Debug(msg) }
func Info(msg string)      { rootLogger().Info(msg) }
func Success(msg string)   { rootLogger().Success(msg) }
func Warning(msg string)   { rootLogger().Warning(msg) }
func Error(msg string)     { rootLogger().Error(msg) }
func Fatal(msg string)     { rootLogger().Fatal(msg) }
func Exception(msg string) { rootLogger().Exception(msg) }

func Tracef(format string, args ...interface{})     { rootLogger().Tracef(format, args...) }
func Debugf(format string, args ...interface{})     { rootLogger().Debugf(format, args...) }
func Infof(format string, args ...interface{})      { rootLogger().Infof(format, args...) }
func Successf(format string, args ...interface{})   { rootLogger().Successf(format, args...) }
func Warningf(format string, args ...interface{})   { rootLogger().Warningf(format, args...) }
func Errorf(format string, args ...interface{})     { rootLogger().Errorf(format, args...) }
func Fatalf(format string, args ...interface{})     { rootLogger().Fatalf(format, args...) }
func Exceptionf(format string, args ...interface{}) { rootLogger().Exceptionf(format, args...) }

// Shutdown tears down the process-wide singleton, if one was ever
// constructed.
func Shutdown(now bool) error {
	if rootInstance == nil {
		return nil
	}
	return rootInstance.Shutdown(now)
}
