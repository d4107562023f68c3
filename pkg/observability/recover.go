package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack trace instead of
// letting it take down the process. Meant as a deferred guard on long-lived
// goroutines such as the backends file watcher and scheduled sweeps.
func RecoverPanic(logger *Logger, operation string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"operation": operation,
			"panic":     r,
			"stack":     string(debug.Stack()),
		}).Error("Recovered from panic")
	}
}
