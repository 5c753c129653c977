package store

// Errors
var (
	// ErrStorageUnavailable means the durable store could not be read or parsed.
	// It is fatal at load time.
	ErrStorageUnavailable = storeError("storage unavailable")
	// ErrPersistence means a mutation succeeded in memory but the write failed.
	// The next successful write reconciles the file.
	ErrPersistence = storeError("persistence failed")
	// ErrNotFound is returned when a source lookup misses.
	ErrNotFound = storeError("notification not found")
	// ErrCacheClosed is returned by mutations after Close.
	ErrCacheClosed = storeError("cache is closed")
)

type storeError string

func (e storeError) Error() string {
	return string(e)
}
