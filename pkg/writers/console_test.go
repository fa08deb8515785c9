package writers

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/logbroker/logbroker/pkg/types"
)

func TestConsoleWritesFormattedLine(t *testing.T) {
	c := NewConsole(ConsoleConfig{Color: false}, NopReporter)
	defer c.Close()

	var buf bytes.Buffer
	c.out = &buf

	if err := c.Send([]byte("hello world\n"), types.Record{Level: 20}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Sync(time.Second); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "hello world") {
		t.Errorf("console output = %q, want it to contain %q", got, "hello world")
	}
}

func TestConsoleColorDoesNotAlterLiteralText(t *testing.T) {
	c := NewConsole(ConsoleConfig{Color: true}, NopReporter)
	defer c.Close()

	var buf bytes.Buffer
	c.out = &buf

	c.Send([]byte("warn\n"), types.Record{Level: 30})
	c.Sync(time.Second)

	if !strings.Contains(buf.String(), "warn") {
		t.Errorf("colored output lost the literal text: %q", buf.String())
	}
}

func TestConsoleSendAfterCloseReturnsErrClosed(t *testing.T) {
	c := NewConsole(ConsoleConfig{}, NopReporter)
	c.Close()

	if err := c.Send([]byte("late\n"), types.Record{Level: 20}); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := c.Sync(time.Second); err != ErrClosed {
		t.Errorf("Sync after Close = %v, want ErrClosed", err)
	}
}

func TestColorForPicksNearestThreshold(t *testing.T) {
	if colorFor(23) != colorFor(20) {
		t.Error("colorFor(23) should fall back to the INFO (20) color")
	}
	if colorFor(0) == nil {
		t.Error("colorFor(0) returned nil")
	}
}
