package logbroker

import (
	"sync"
	"testing"
	"time"
)

func newTestInstance() *Instance {
	return New(&Config{
		Domain:       "test",
		ChannelSize:  100,
		Structured:   Plain,
		LevelSymbol:  Str,
		ErrorHandler: SilentErrorHandler,
	})
}

func captureCallback() (*CallbackConfig, func() []string) {
	var mu sync.Mutex
	var got []string
	cfg := &CallbackConfig{Func: func(level uint8, domain, message string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, message)
		return nil
	}}
	return cfg, func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(got))
		copy(out, got)
		return out
	}
}

func TestLevelGatingPerWriter(t *testing.T) {
	in := newTestInstance()
	defer in.Shutdown(false)

	cfg, snapshot := captureCallback()
	if _, err := in.AddWriter(WriterConfig{Kind: KindCallback, Enabled: true, Level: WARNING, Callback: cfg}); err != nil {
		t.Fatalf("AddWriter: %v", err)
	}

	logger := in.Logger("svc", NOTSET, false, false)
	logger.Info("below threshold")
	logger.Warning("at threshold")
	logger.Error("above threshold")

	if err := in.SyncAll(2 * time.Second); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	got := snapshot()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (info should have been gated out): %v", len(got), got)
	}
}

func TestDisableEnableWriter(t *testing.T) {
	in := newTestInstance()
	defer in.Shutdown(false)

	cfgA, snapshotA := captureCallback()
	cfgB, snapshotB := captureCallback()
	widA, err := in.AddWriter(WriterConfig{Kind: KindCallback, Enabled: true, Level: NOTSET, Callback: cfgA})
	if err != nil {
		t.Fatalf("AddWriter A: %v", err)
	}
	if _, err := in.AddWriter(WriterConfig{Kind: KindCallback, Enabled: true, Level: NOTSET, Callback: cfgB}); err != nil {
		t.Fatalf("AddWriter B: %v", err)
	}

	logger := in.Logger("svc", NOTSET, false, false)

	if err := in.Disable(widA); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	logger.Info("first")
	if err := in.SyncAll(2 * time.Second); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if got := snapshotA(); len(got) != 0 {
		t.Errorf("disabled writer A received %v, want none", got)
	}
	if got := snapshotB(); len(got) != 1 {
		t.Errorf("writer B got %v, want exactly one message", got)
	}

	if err := in.Enable(widA); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	logger.Info("second")
	if err := in.SyncAll(2 * time.Second); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if got := snapshotA(); len(got) != 1 {
		t.Errorf("re-enabled writer A got %v, want exactly one message", got)
	}
	if got := snapshotB(); len(got) != 2 {
		t.Errorf("writer B got %v, want two messages total", got)
	}
}

func TestDomainAndMessageFilter(t *testing.T) {
	in := newTestInstance()
	defer in.Shutdown(false)

	cfg, snapshot := captureCallback()
	wid, err := in.AddWriter(WriterConfig{Kind: KindCallback, Enabled: true, Level: NOTSET, Callback: cfg})
	if err != nil {
		t.Fatalf("AddWriter: %v", err)
	}
	if err := in.SetDomainFilter(wid, "^svc$"); err != nil {
		t.Fatalf("SetDomainFilter: %v", err)
	}
	if err := in.SetMessageFilter(wid, "keep"); err != nil {
		t.Fatalf("SetMessageFilter: %v", err)
	}

	svcLogger := in.Logger("svc", NOTSET, false, false)
	otherLogger := in.Logger("other", NOTSET, false, false)

	svcLogger.Info("keep this")
	svcLogger.Info("drop this")
	otherLogger.Info("keep that too")

	if err := in.SyncAll(2 * time.Second); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	got := snapshot()
	if len(got) != 1 {
		t.Fatalf("got %v, want exactly one message surviving both filters", got)
	}
}

func TestSetRootWriterUpdatesSharedMetadata(t *testing.T) {
	in := newTestInstance()
	defer in.Shutdown(false)

	in.SetRootWriter(WriterConfig{Kind: KindRoot, Enabled: true, Level: ERROR})
	if in.reg.writers[0].level != ERROR {
		t.Errorf("root entry level = %v, want ERROR", in.reg.writers[0].level)
	}
}
