package sqlite

import (
	"strings"
	"time"
)

// isSQLiteBusy reports whether err is a transient SQLITE_BUSY failure
// worth retrying. WAL mode narrows the window but concurrent batch
// writers can still collide on the write lock.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying busy failures up to 5 attempts with an
// exponentially growing delay starting at 10ms. Any other error is
// returned immediately.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	delay := 10 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
	}
	return err
}
