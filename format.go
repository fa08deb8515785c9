package logbroker

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"
)

const timeLayout = "2006.01.02 15:04:05"

// formatRecord renders rec into buf according to cfg.Structured,
// reusing buf across calls (the broker owns one buffer per dispatch
// cycle). Every optional annotation (host, pname, pid, thread name,
// thread id) is included iff the matching Config.Include* flag is
// set, mirroring the source's ExtConfig gating.
func formatRecord(cfg *Config, rec Record, buf *bytes.Buffer) error {
	buf.Reset()
	switch cfg.Structured {
	case Json:
		return formatJSON(cfg, rec, buf)
	case Xml:
		return formatXML(cfg, rec, buf)
	default:
		formatPlain(cfg, rec, buf)
		return nil
	}
}

func formatPlain(cfg *Config, rec Record, buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%s", rec.Timestamp.Format(timeLayout))
	if cfg.IncludeHost && cfg.Host != "" {
		fmt.Fprintf(buf, " [%s]", cfg.Host)
	}
	if cfg.IncludePname && cfg.Pname != "" {
		fmt.Fprintf(buf, " [%s]", cfg.Pname)
	}
	if cfg.IncludePid {
		fmt.Fprintf(buf, " [%d]", cfg.Pid)
	}
	if cfg.IncludeTName && rec.HasTName {
		fmt.Fprintf(buf, " [>%s]", rec.ThreadName)
	}
	if cfg.IncludeTID && rec.HasTID {
		fmt.Fprintf(buf, " [%d]", rec.ThreadID)
	}
	fmt.Fprintf(buf, " %s: %s %s\n", rec.Domain, Level(rec.Level).String(cfg.LevelSymbol), rec.Message)
}

type jsonRecord struct {
	Timestamp  string `json:"timestamp"`
	Host       string `json:"host,omitempty"`
	Pname      string `json:"pname,omitempty"`
	Pid        int    `json:"pid,omitempty"`
	ThreadName string `json:"tname,omitempty"`
	ThreadID   uint32 `json:"tid,omitempty"`
	Domain     string `json:"domain"`
	Level      string `json:"level"`
	Message    string `json:"message"`
}

func formatJSON(cfg *Config, rec Record, buf *bytes.Buffer) error {
	jr := jsonRecord{
		Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
		Domain:    rec.Domain,
		Level:     Level(rec.Level).String(cfg.LevelSymbol),
		Message:   rec.Message,
	}
	if cfg.IncludeHost {
		jr.Host = cfg.Host
	}
	if cfg.IncludePname {
		jr.Pname = cfg.Pname
	}
	if cfg.IncludePid {
		jr.Pid = cfg.Pid
	}
	if cfg.IncludeTName && rec.HasTName {
		jr.ThreadName = rec.ThreadName
	}
	if cfg.IncludeTID && rec.HasTID {
		jr.ThreadID = rec.ThreadID
	}
	enc, err := json.Marshal(jr)
	if err != nil {
		return ErrIo("format_json", err)
	}
	buf.Write(enc)
	buf.WriteByte('\n')
	return nil
}

type xmlRecord struct {
	XMLName    xml.Name `xml:"record"`
	Timestamp  string   `xml:"timestamp,attr"`
	Host       string   `xml:"host,attr,omitempty"`
	Pname      string   `xml:"pname,attr,omitempty"`
	Pid        int      `xml:"pid,attr,omitempty"`
	ThreadName string   `xml:"tname,attr,omitempty"`
	ThreadID   uint32   `xml:"tid,attr,omitempty"`
	Domain     string   `xml:"domain,attr"`
	Level      string   `xml:"level,attr"`
	Message    string   `xml:",chardata"`
}

func formatXML(cfg *Config, rec Record, buf *bytes.Buffer) error {
	xr := xmlRecord{
		Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
		Domain:    rec.Domain,
		Level:     Level(rec.Level).String(cfg.LevelSymbol),
		Message:   rec.Message,
	}
	if cfg.IncludeHost {
		xr.Host = cfg.Host
	}
	if cfg.IncludePname {
		xr.Pname = cfg.Pname
	}
	if cfg.IncludePid {
		xr.Pid = cfg.Pid
	}
	if cfg.IncludeTName && rec.HasTName {
		xr.ThreadName = rec.ThreadName
	}
	if cfg.IncludeTID && rec.HasTID {
		xr.ThreadID = rec.ThreadID
	}
	enc, err := xml.Marshal(xr)
	if err != nil {
		return ErrIo("format_xml", err)
	}
	buf.Write(enc)
	buf.WriteByte('\n')
	return nil
}
