package writers

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

func readZipEntry(t *testing.T, path string) []byte {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive %s: %v", path, err)
	}
	defer r.Close()
	if len(r.File) != 1 {
		t.Fatalf("archive %s has %d entries, want 1", path, len(r.File))
	}
	rc, err := r.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	return data
}

func TestFileWriterBasicAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	fw, err := NewFile(FileConfig{Path: path}, NopReporter)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer fw.Close()

	fw.Send([]byte("line one\n"), types.Record{})
	fw.Send([]byte("line two\n"), types.Record{})
	if err := fw.Sync(time.Second); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "line one\nline two\n" {
		t.Errorf("log contents = %q", data)
	}
}

// TestFileWriterRotationBound rotates exactly backlog times (no
// generation has yet been discarded) and checks that every emitted
// byte is recoverable, newest-to-oldest, across the rotated archives
// plus the live file.
func TestFileWriterRotationBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	const (
		backlog      = 3
		segment      = 101 // bytes per generation before MaxSize=100 trips rotation
		liveTail     = 50
		total        = backlog*segment + liveTail // exactly `backlog` rotations, nothing discarded
	)
	fw, err := NewFile(FileConfig{
		Path:        path,
		MaxSize:     100,
		Backlog:     backlog,
		Compression: Store,
	}, NopReporter)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer fw.Close()

	for i := 0; i < total; i++ {
		fw.Send([]byte("x"), types.Record{})
	}
	if err := fw.Sync(5 * time.Second); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	for i := 1; i <= backlog; i++ {
		if _, err := os.Stat(rotatedName(path, i)); err != nil {
			t.Errorf("expected rotated file %d to exist: %v", i, err)
		}
	}
	if _, err := os.Stat(rotatedName(path, backlog+1)); err == nil {
		t.Errorf("rotated file %d should not exist (backlog = %d)", backlog+1, backlog)
	}

	var combined []byte
	for i := backlog; i >= 1; i-- {
		combined = append(combined, readZipEntry(t, rotatedName(path, i))...)
	}
	live, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read live file: %v", err)
	}
	combined = append(combined, live...)
	if len(combined) != total {
		t.Errorf("combined rotated+live byte count = %d, want %d", len(combined), total)
	}
}

// TestFileWriterRotationDiscardsOldest drives well past backlog
// rotations and checks the bound still holds: never more than
// backlog rotated files, regardless of how much was discarded.
func TestFileWriterRotationDiscardsOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "y.log")
	const backlog = 3
	fw, err := NewFile(FileConfig{
		Path:        path,
		MaxSize:     100,
		Backlog:     backlog,
		Compression: Store,
	}, NopReporter)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer fw.Close()

	for i := 0; i < 500; i++ {
		fw.Send([]byte("x"), types.Record{})
	}
	if err := fw.Sync(5 * time.Second); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	for i := 1; i <= backlog; i++ {
		if _, err := os.Stat(rotatedName(path, i)); err != nil {
			t.Errorf("expected rotated file %d to exist: %v", i, err)
		}
	}
	if _, err := os.Stat(rotatedName(path, backlog+1)); err == nil {
		t.Errorf("rotated file %d should not exist (backlog = %d)", backlog+1, backlog)
	}
}

func TestFileWriterRejectsBacklogAboveMax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "y.log")
	if _, err := NewFile(FileConfig{Path: path, Backlog: MaxBacklog + 1}, NopReporter); err == nil {
		t.Fatal("NewFile accepted a backlog above MaxBacklog")
	}
}

func TestFileWriterExplicitRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "z.log")
	fw, err := NewFile(FileConfig{Path: path, Backlog: 2, Compression: Store}, NopReporter)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer fw.Close()

	fw.Send([]byte("first\n"), types.Record{})
	fw.Sync(time.Second)
	if err := fw.Rotate(path); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	fw.Sync(time.Second)

	if _, err := os.Stat(rotatedName(path, 1)); err != nil {
		t.Errorf("expected log.1 after explicit rotate: %v", err)
	}
}

func TestFileWriterSendAfterCloseReturnsErrClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.log")
	fw, err := NewFile(FileConfig{Path: path}, NopReporter)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	fw.Close()

	if err := fw.Send([]byte("late\n"), types.Record{}); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := fw.Sync(time.Second); err != ErrClosed {
		t.Errorf("Sync after Close = %v, want ErrClosed", err)
	}
	if err := fw.Rotate(path); err != ErrClosed {
		t.Errorf("Rotate after Close = %v, want ErrClosed", err)
	}
}
