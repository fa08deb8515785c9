package logbroker

import (
	"io"
	"os"
)

// stderrWriter is where StderrErrorHandler writes; it is a variable so
// it can be redirected, and production code never reassigns it.
var stderrWriter io.Writer = os.Stderr

// isTestMode reports whether the library should prefer
// SilentErrorHandler over StderrErrorHandler by default.
func isTestMode() bool {
	return os.Getenv("LOGBROKER_TEST_MODE") == "1"
}

func defaultErrorHandler() ErrorHandler {
	if isTestMode() {
		return SilentErrorHandler
	}
	return StderrErrorHandler
}
