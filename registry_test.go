package logbroker

import (
	"testing"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

// slowWriter is a minimal types.Writer whose Sync always takes delay,
// used to exercise Registry.syncAll's timeout path without any real
// I/O.
type slowWriter struct {
	delay time.Duration
}

func (s *slowWriter) Kind() types.WriterKind                        { return types.KindCallback }
func (s *slowWriter) Send(formatted []byte, rec types.Record) error { return nil }
func (s *slowWriter) Sync(timeout time.Duration) error {
	time.Sleep(s.delay)
	return nil
}
func (s *slowWriter) Rotate(path string) error { return nil }
func (s *slowWriter) Close() error             { return nil }

func TestRegistryIDsMonotonicNeverRecycled(t *testing.T) {
	reg := newRegistry(DefaultConfig())

	cfg := func() WriterConfig {
		c, _ := captureCallback()
		return WriterConfig{Kind: KindCallback, Enabled: true, Level: NOTSET, Callback: c}
	}

	var ids []uint32
	for i := 0; i < 3; i++ {
		id, err := reg.AddWriter(cfg())
		if err != nil {
			t.Fatalf("AddWriter: %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] == 0 {
		t.Fatal("first registered writer got id 0, which is reserved for root")
	}

	// Remove the middle one and add two more; no id should repeat.
	if _, err := reg.RemoveWriter(ids[1]); err != nil {
		t.Fatalf("RemoveWriter: %v", err)
	}
	for i := 0; i < 2; i++ {
		id, err := reg.AddWriter(cfg())
		if err != nil {
			t.Fatalf("AddWriter: %v", err)
		}
		ids = append(ids, id)
	}

	seen := make(map[uint32]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("id %d was issued twice: %v", id, ids)
		}
		seen[id] = true
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("ids not strictly increasing: %v", ids)
		}
	}
}

func TestRegistrySyncAllTimeout(t *testing.T) {
	reg := newRegistry(DefaultConfig())
	reg.mu.Lock()
	reg.writers[1] = &writerEntry{id: 1, kind: KindCallback, enabled: true, level: NOTSET, instance: &slowWriter{delay: 200 * time.Millisecond}}
	reg.order = []uint32{0, 1}
	reg.mu.Unlock()

	if err := reg.syncAll(20 * time.Millisecond); err != Timeout {
		t.Errorf("syncAll with short timeout = %v, want Timeout", err)
	}
	if err := reg.syncAll(time.Second); err != nil {
		t.Errorf("syncAll with ample timeout = %v, want nil", err)
	}
}

func TestRegistryRemoveRootRejected(t *testing.T) {
	reg := newRegistry(DefaultConfig())
	if _, err := reg.RemoveWriter(0); err == nil {
		t.Fatal("RemoveWriter(0) succeeded, want rejection of removing the root writer")
	}
}
