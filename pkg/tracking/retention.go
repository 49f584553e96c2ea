package tracking

import (
	"math"
	"time"
)

// UnlimitedItemsPerUser is the sentinel that disables the per-user retention
// cap, equivalent to a non-positive MaxItemsPerUser.
const UnlimitedItemsPerUser = math.MaxInt32

// cleanupBatchSize bounds a single retention delete so the store never
// receives an oversized operation.
const cleanupBatchSize = 5000

// RetentionConfig declares the two independent retention policies. The TTL
// policy is enforced by the store's own expiry mechanism (see
// MongoStorage.EnsureIndexes); the per-user cap is swept after each insert.
type RetentionConfig struct {
	// Period is how long notifications are kept, measured from creation.
	// Zero or negative disables time-based expiry.
	Period time.Duration `env:"NOTIFTRACK_RETENTION_PERIOD" envDefault:"2160h"`

	// MaxItemsPerUser caps how many notifications one user may accumulate.
	// A non-positive value or UnlimitedItemsPerUser disables the cap.
	MaxItemsPerUser int `env:"NOTIFTRACK_MAX_ITEMS_PER_USER" envDefault:"0"`
}

// capEnabled reports whether the per-user cap sweep should run.
func (c RetentionConfig) capEnabled() bool {
	return c.MaxItemsPerUser > 0 && c.MaxItemsPerUser < UnlimitedItemsPerUser
}
