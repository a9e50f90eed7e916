package cache

import "time"

// Service is the cache behavior infrastructure clients depend on. The
// carrier client keeps its short-lived auth token behind this interface.
type Service interface {
	// Get retrieves a value. The second return reports whether it was found.
	Get(key string) (interface{}, bool)

	// Set stores a value for the given duration.
	Set(key string, value interface{}, duration time.Duration)

	// Delete removes a single key.
	Delete(key string)

	// Flush drops everything.
	Flush()
}
