package logbroker

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"
)

func testRecord() Record {
	return Record{
		Level:     uint8(WARNING),
		Domain:    "svc",
		Message:   "svc: something happened",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFormatPlainIncludesDomainLevelMessage(t *testing.T) {
	cfg := &Config{Structured: Plain, LevelSymbol: Str}
	var buf bytes.Buffer
	if err := formatRecord(cfg, testRecord(), &buf); err != nil {
		t.Fatalf("formatRecord: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "svc") || !strings.Contains(line, "WARNING") || !strings.Contains(line, "something happened") {
		t.Errorf("plain line = %q, missing expected fields", line)
	}
}

func TestFormatPlainRespectsIncludeFlags(t *testing.T) {
	cfg := &Config{Structured: Plain, LevelSymbol: Str, IncludeHost: true, Host: "myhost", IncludePid: true, Pid: 4242}
	var buf bytes.Buffer
	formatRecord(cfg, testRecord(), &buf)
	line := buf.String()
	if !strings.Contains(line, "myhost") {
		t.Errorf("line = %q, want host included", line)
	}
	if !strings.Contains(line, "4242") {
		t.Errorf("line = %q, want pid included", line)
	}

	cfg2 := &Config{Structured: Plain, LevelSymbol: Str}
	var buf2 bytes.Buffer
	formatRecord(cfg2, testRecord(), &buf2)
	if strings.Contains(buf2.String(), "myhost") {
		t.Errorf("line = %q, host should be absent when IncludeHost is false", buf2.String())
	}
}

func TestFormatJSONRoundTrips(t *testing.T) {
	cfg := &Config{Structured: Json, LevelSymbol: Str, IncludeHost: true, Host: "h"}
	var buf bytes.Buffer
	if err := formatRecord(cfg, testRecord(), &buf); err != nil {
		t.Fatalf("formatRecord: %v", err)
	}
	var jr jsonRecord
	if err := json.Unmarshal(buf.Bytes(), &jr); err != nil {
		t.Fatalf("unmarshal: %v, line = %q", err, buf.String())
	}
	if jr.Domain != "svc" || jr.Level != "WARNING" || jr.Host != "h" {
		t.Errorf("jsonRecord = %+v", jr)
	}
}

func TestFormatXMLRoundTrips(t *testing.T) {
	cfg := &Config{Structured: Xml, LevelSymbol: Str}
	var buf bytes.Buffer
	if err := formatRecord(cfg, testRecord(), &buf); err != nil {
		t.Fatalf("formatRecord: %v", err)
	}
	var xr xmlRecord
	if err := xml.Unmarshal(buf.Bytes(), &xr); err != nil {
		t.Fatalf("unmarshal: %v, line = %q", err, buf.String())
	}
	if xr.Domain != "svc" || xr.Level != "WARNING" {
		t.Errorf("xmlRecord = %+v", xr)
	}
}
