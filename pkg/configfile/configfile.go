// Package configfile loads and persists writer configuration as
// JSON, YAML or XML, dispatched by file extension, mirroring the
// on-disk shape the root package assembles writers from.
package configfile

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MaxFileSize rejects config files larger than this, the same ceiling
// the source implementation enforces before it will even attempt to
// parse a file.
const MaxFileSize = 4096

// MergePolicy controls how a loaded file's settings combine with
// settings passed in by the caller at load time.
type MergePolicy int

const (
	// Replace discards the loaded file's matching fields entirely in
	// favor of the caller-supplied ones.
	Replace MergePolicy = iota
	// Merge keeps the loaded file's fields and only fills in zero
	// values from the caller-supplied ones.
	Merge
	// MergeReplace merges field by field, but caller-supplied
	// non-zero fields win over the file's.
	MergeReplace
)

// WriterConfig is the on-disk shape of one writer's settings. Pointer
// fields are omitted from the encoding when nil so a minimal config
// file only mentions the writers it configures.
type WriterConfig struct {
	Level      uint8  `json:"level" yaml:"level" xml:"level"`
	Domain     string `json:"domain" yaml:"domain" xml:"domain"`
	Hostname   string `json:"hostname,omitempty" yaml:"hostname,omitempty" xml:"hostname,omitempty"`
	Pname      string `json:"pname,omitempty" yaml:"pname,omitempty" xml:"pname,omitempty"`
	Pid        int    `json:"pid,omitempty" yaml:"pid,omitempty" xml:"pid,omitempty"`
	Structured int    `json:"structured" yaml:"structured" xml:"structured"`

	Console *ConsoleEntry `json:"console,omitempty" yaml:"console,omitempty" xml:"console,omitempty"`
	File    *FileEntry    `json:"file,omitempty" yaml:"file,omitempty" xml:"file,omitempty"`
	Server  *ServerEntry  `json:"server,omitempty" yaml:"server,omitempty" xml:"server,omitempty"`
	Connect *ClientEntry  `json:"connect,omitempty" yaml:"connect,omitempty" xml:"connect,omitempty"`
	Syslog  *SyslogEntry  `json:"syslog,omitempty" yaml:"syslog,omitempty" xml:"syslog,omitempty"`
}

// ConsoleEntry mirrors writers.ConsoleConfig on disk.
type ConsoleEntry struct {
	Color bool `json:"color" yaml:"color" xml:"color"`
}

// FileEntry mirrors writers.FileConfig on disk.
type FileEntry struct {
	Path         string `json:"path" yaml:"path" xml:"path"`
	MaxSize      int64  `json:"max_size,omitempty" yaml:"max_size,omitempty" xml:"max_size,omitempty"`
	Backlog      int    `json:"backlog,omitempty" yaml:"backlog,omitempty" xml:"backlog,omitempty"`
	Compression  int    `json:"compression,omitempty" yaml:"compression,omitempty" xml:"compression,omitempty"`
	RotatePeriod int64  `json:"rotate_period,omitempty" yaml:"rotate_period,omitempty" xml:"rotate_period,omitempty"`
}

// ServerEntry mirrors writers.ServerConfig on disk.
type ServerEntry struct {
	Host         string `json:"host" yaml:"host" xml:"host"`
	Port         uint16 `json:"port" yaml:"port" xml:"port"`
	PortFilePath string `json:"port_file,omitempty" yaml:"port_file,omitempty" xml:"port_file,omitempty"`
}

// ClientEntry mirrors writers.ClientConfig on disk.
type ClientEntry struct {
	Host string `json:"host" yaml:"host" xml:"host"`
	Port uint16 `json:"port" yaml:"port" xml:"port"`
}

// SyslogEntry mirrors writers.SyslogConfig on disk.
type SyslogEntry struct {
	Tag string `json:"tag" yaml:"tag" xml:"tag"`
}

// Load reads and decodes the config file at path. A missing file is
// not an error: it returns a zero-value WriterConfig with Domain
// defaulted to "root", matching the behavior of starting from defaults
// when no file has been written yet.
func Load(path string) (*WriterConfig, error) {
	cfg := &WriterConfig{Domain: "root"}
	if path == "" {
		return cfg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "configfile: stat")
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("configfile: %s exceeds max size of %d bytes", path, MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "configfile: read")
	}

	if err := unmarshal(path, data, cfg); err != nil {
		return nil, errors.Wrapf(err, "configfile: decode %s", path)
	}
	return cfg, nil
}

// Save encodes cfg and writes it to path, dispatching format by
// extension.
func Save(path string, cfg *WriterConfig) error {
	data, err := marshal(path, cfg)
	if err != nil {
		return errors.Wrapf(err, "configfile: encode %s", path)
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("configfile: encoded config exceeds max size of %d bytes", MaxFileSize)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "configfile: write")
	}
	return nil
}

func extensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func unmarshal(path string, data []byte, cfg *WriterConfig) error {
	switch extensionOf(path) {
	case "json":
		return json.Unmarshal(data, cfg)
	case "yaml", "yml":
		return yaml.Unmarshal(data, cfg)
	case "xml":
		return xml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", extensionOf(path))
	}
}

func marshal(path string, cfg *WriterConfig) ([]byte, error) {
	switch extensionOf(path) {
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	case "xml":
		return xml.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", extensionOf(path))
	}
}

// Merge combines a loaded file config with caller-supplied overrides
// per policy, returning the resolved config. base is typically the
// result of Load; override carries whatever the caller passed to the
// root instance constructor.
func Merge(base, override *WriterConfig, policy MergePolicy) *WriterConfig {
	if override == nil {
		return base
	}
	if base == nil {
		return override
	}

	switch policy {
	case Replace:
		return override
	case Merge:
		merged := *base
		mergeZero(&merged, override)
		return &merged
	default: // MergeReplace
		merged := *base
		mergeNonZero(&merged, override)
		return &merged
	}
}

func mergeZero(base, override *WriterConfig) {
	if base.Level == 0 {
		base.Level = override.Level
	}
	if base.Domain == "" {
		base.Domain = override.Domain
	}
	if base.Console == nil {
		base.Console = override.Console
	}
	if base.File == nil {
		base.File = override.File
	}
	if base.Server == nil {
		base.Server = override.Server
	}
	if base.Connect == nil {
		base.Connect = override.Connect
	}
	if base.Syslog == nil {
		base.Syslog = override.Syslog
	}
}

func mergeNonZero(base, override *WriterConfig) {
	if override.Level != 0 {
		base.Level = override.Level
	}
	if override.Domain != "" {
		base.Domain = override.Domain
	}
	if override.Console != nil {
		base.Console = override.Console
	}
	if override.File != nil {
		base.File = override.File
	}
	if override.Server != nil {
		base.Server = override.Server
	}
	if override.Connect != nil {
		base.Connect = override.Connect
	}
	if override.Syslog != nil {
		base.Syslog = override.Syslog
	}
}
