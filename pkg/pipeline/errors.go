package pipeline

import (
	"errors"
	"os"
)

var (
	// ErrNotImage marks files that are not decodable images of a supported kind.
	ErrNotImage = errors.New("not a supported image")

	// ErrNotFound marks lookups of unknown image ids or paths. Non-fatal.
	ErrNotFound = errors.New("image not found")

	// ErrFatalIO marks a copy whose retries are exhausted. It is fatal for the
	// affected image only; batch callers continue with the next image.
	ErrFatalIO = errors.New("i/o failure after retries")
)

// retryable reports whether a copy error is worth another attempt. Missing
// files and permission errors never resolve by waiting.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) || os.IsPermission(err) {
		return false
	}
	return true
}
