package constants

import (
	"fmt"
	"time"
)

// Redis key layout
// Pattern: seatlock:{module}:{operation}:{identifier}

const (
	CACHE_PREFIX = "seatlock"
)

// Cache TTLs
const (
	TTL_SHOW_DETAIL  = 30 * time.Second // availability counter changes with every booking
	TTL_BOOKING_LIST = 2 * time.Minute
)

// Catalog cache keys
const (
	CACHE_KEY_SHOW_DETAIL = CACHE_PREFIX + ":shows:detail:uuid:" // + show-id
)

// Booking cache keys
const (
	CACHE_KEY_USER_BOOKINGS = CACHE_PREFIX + ":bookings:user:uuid:" // + user-id:limit:X:offset:Y
)

// Lease keys. Lease state is authoritative data, not cache.
const (
	LEASE_KEY_PREFIX     = CACHE_PREFIX + ":lease:"         // + show-id:row-column
	LEASE_SHOW_PREFIX    = CACHE_PREFIX + ":leases:show:"   // + show-id (zset scored by expiry)
	LEASE_HOLDER_PREFIX  = CACHE_PREFIX + ":leases:holder:" // + holder (set of show-id|seat)
	LEASE_EXPIRY_INDEX   = CACHE_PREFIX + ":leases:expiry"  // zset of show-id|seat by expiry
	LEASE_CHANNEL_PREFIX = CACHE_PREFIX + ":show:"          // pub/sub channel + show-id
	RATE_LIMIT_PREFIX    = CACHE_PREFIX + ":ratelimit:"
)

// Invalidation patterns
const (
	PATTERN_INVALIDATE_USER_BOOKINGS = CACHE_KEY_USER_BOOKINGS + "%s:*"
)

func BuildShowDetailKey(showID string) string {
	return CACHE_KEY_SHOW_DETAIL + showID
}

func BuildUserBookingsKey(userID string, limit, offset int) string {
	return fmt.Sprintf("%s%s:limit:%d:offset:%d", CACHE_KEY_USER_BOOKINGS, userID, limit, offset)
}

func BuildUserBookingsPattern(userID string) string {
	return fmt.Sprintf(PATTERN_INVALIDATE_USER_BOOKINGS, userID)
}

func BuildShowChannel(showID string) string {
	return LEASE_CHANNEL_PREFIX + showID
}
