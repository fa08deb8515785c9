package logbroker

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Go has no native OS-thread-name/thread-id concept at the goroutine
// level (producers are goroutines, not threads), so thread annotation
// is modeled on top of the runtime-assigned goroutine id: threadID()
// reports it directly, and SetGoroutineName lets a caller register a
// human-readable name for the calling goroutine for use by loggers
// constructed by Instance.Logger with tname set to true.
var goroutineNames sync.Map // map[uint64]string

// SetGoroutineName associates name with the calling goroutine for the
// lifetime of the goroutine (or until overwritten/cleared).
func SetGoroutineName(name string) {
	goroutineNames.Store(goroutineID(), name)
}

// ClearGoroutineName removes any name associated with the calling
// goroutine. Call this before a pooled goroutine is recycled.
func ClearGoroutineName() {
	goroutineNames.Delete(goroutineID())
}

func threadID() uint32 {
	return uint32(goroutineID())
}

func threadName() string {
	if v, ok := goroutineNames.Load(goroutineID()); ok {
		return v.(string)
	}
	return ""
}

// goroutineID parses the numeric id out of runtime.Stack's header
// line ("goroutine 123 [running]:"). It is intended for diagnostic
// thread-id annotation only, never for synchronization logic.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	idx := bytes.IndexByte(buf, ' ')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:idx]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
