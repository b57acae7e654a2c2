package leases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"seatlock/internal/catalog"
	"seatlock/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

// Layout:
//
//	seatlock:lease:{show}:{row}-{col}  string holder, PX ttl
//	seatlock:leases:show:{show}        zset of "{row}-{col}" scored by expiry millis
//	seatlock:leases:expiry             zset of "{show}|{row}-{col}" scored by expiry millis
//	seatlock:leases:holder:{holder}    set of "{show}|{row}-{col}"
//
// Expiry is judged against the zset scores so every instance agrees on it
// even before redis evicts the lease key.

// KEYS: lease, show zset, holder set, expiry zset
// ARGV: holder, now, ttl, expires, seat member, global member, holder prefix
var acquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[1] then
	local score = redis.call('ZSCORE', KEYS[2], ARGV[5])
	if score and tonumber(score) > tonumber(ARGV[2]) then
		return {'0', cur}
	end
	redis.call('SREM', ARGV[7] .. cur, ARGV[6])
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
redis.call('ZADD', KEYS[4], ARGV[4], ARGV[6])
redis.call('SADD', KEYS[3], ARGV[6])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
return {'1', ARGV[4]}
`)

// KEYS: lease, show zset, holder set, expiry zset
// ARGV: holder, seat member, global member
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('ZREM', KEYS[4], ARGV[3])
redis.call('SREM', KEYS[3], ARGV[3])
return 1
`)

// Releases the holder's leases, optionally limited to one show.
// KEYS: holder set, expiry zset
// ARGV: holder, lease prefix, show zset prefix, show filter ('' for all)
// Returns flat {global member, expires, ...}
var releaseHolderScript = redis.NewScript(`
local out = {}
local members = redis.call('SMEMBERS', KEYS[1])
for _, m in ipairs(members) do
	local sep = string.find(m, '|', 1, true)
	local show = string.sub(m, 1, sep - 1)
	local seat = string.sub(m, sep + 1)
	if ARGV[4] == '' or ARGV[4] == show then
		local key = ARGV[2] .. show .. ':' .. seat
		local cur = redis.call('GET', key)
		if cur == ARGV[1] or not cur then
			local score = redis.call('ZSCORE', ARGV[3] .. show, seat)
			if cur then
				redis.call('DEL', key)
			end
			if score then
				redis.call('ZREM', ARGV[3] .. show, seat)
				redis.call('ZREM', KEYS[2], m)
				table.insert(out, m)
				table.insert(out, score)
			end
		end
		redis.call('SREM', KEYS[1], m)
	end
end
return out
`)

// KEYS: show zset
// ARGV: now, lease prefix for the show
// Returns flat {seat member, holder, expires, ...}
var snapshotScript = redis.NewScript(`
local out = {}
local entries = redis.call('ZRANGEBYSCORE', KEYS[1], '(' .. ARGV[1], '+inf', 'WITHSCORES')
for i = 1, #entries, 2 do
	local holder = redis.call('GET', ARGV[2] .. entries[i])
	if holder then
		table.insert(out, entries[i])
		table.insert(out, holder)
		table.insert(out, entries[i + 1])
	end
end
return out
`)

// KEYS: expiry zset
// ARGV: now, lease prefix, show zset prefix, holder prefix, batch size
// Returns flat {global member, holder, expires, ...}
var sweepScript = redis.NewScript(`
local out = {}
local entries = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, tonumber(ARGV[5]))
for i = 1, #entries, 2 do
	local m = entries[i]
	local sep = string.find(m, '|', 1, true)
	local show = string.sub(m, 1, sep - 1)
	local seat = string.sub(m, sep + 1)
	local key = ARGV[2] .. show .. ':' .. seat
	local holder = redis.call('GET', key)
	redis.call('DEL', key)
	redis.call('ZREM', ARGV[3] .. show, seat)
	redis.call('ZREM', KEYS[1], m)
	if holder then
		redis.call('SREM', ARGV[4] .. holder, m)
	else
		holder = ''
	end
	table.insert(out, m)
	table.insert(out, holder)
	table.insert(out, entries[i + 1])
end
return out
`)

// KEYS: show zset, expiry zset
// ARGV: show, lease prefix, holder prefix
// Returns flat {seat member, holder, expires, ...}
var invalidateShowScript = redis.NewScript(`
local out = {}
local entries = redis.call('ZRANGE', KEYS[1], 0, -1, 'WITHSCORES')
for i = 1, #entries, 2 do
	local seat = entries[i]
	local m = ARGV[1] .. '|' .. seat
	local key = ARGV[2] .. ARGV[1] .. ':' .. seat
	local holder = redis.call('GET', key)
	redis.call('DEL', key)
	redis.call('ZREM', KEYS[2], m)
	if holder then
		redis.call('SREM', ARGV[3] .. holder, m)
	else
		holder = ''
	end
	table.insert(out, seat)
	table.insert(out, holder)
	table.insert(out, entries[i + 1])
end
redis.call('DEL', KEYS[1])
return out
`)

const sweepBatchSize = 500

// RedisStore keeps leases in redis so several API instances share one view.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// PreloadScripts loads the Lua scripts so the first calls use EVALSHA
func (r *RedisStore) PreloadScripts(ctx context.Context) error {
	for _, s := range []*redis.Script{acquireScript, releaseScript, releaseHolderScript, snapshotScript, sweepScript, invalidateShowScript} {
		if err := s.Load(ctx, r.client).Err(); err != nil {
			return fmt.Errorf("failed to load lease script: %w", err)
		}
	}
	return nil
}

func leaseKey(showID string, seat catalog.Seat) string {
	return constants.LEASE_KEY_PREFIX + showID + ":" + seat.Key()
}

func showKey(showID string) string {
	return constants.LEASE_SHOW_PREFIX + showID
}

func holderKey(holder string) string {
	return constants.LEASE_HOLDER_PREFIX + holder
}

func globalMember(showID string, seat catalog.Seat) string {
	return showID + "|" + seat.Key()
}

func (r *RedisStore) Acquire(ctx context.Context, showID string, seat catalog.Seat, holder string, ttl time.Duration) (Lease, error) {
	now := r.now()
	expires := now.Add(ttl)
	res, err := acquireScript.Run(ctx, r.client,
		[]string{leaseKey(showID, seat), showKey(showID), holderKey(holder), constants.LEASE_EXPIRY_INDEX},
		holder,
		now.UnixMilli(),
		ttl.Milliseconds(),
		expires.UnixMilli(),
		seat.Key(),
		globalMember(showID, seat),
		constants.LEASE_HOLDER_PREFIX,
	).StringSlice()
	if err != nil {
		return Lease{}, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if len(res) != 2 {
		return Lease{}, fmt.Errorf("unexpected acquire response: %v", res)
	}
	if res[0] != "1" {
		return Lease{}, ErrAlreadyHeld
	}

	return Lease{ShowID: showID, Seat: seat, Holder: holder, ExpiresAt: time.UnixMilli(expires.UnixMilli())}, nil
}

func (r *RedisStore) Release(ctx context.Context, showID string, seat catalog.Seat, holder string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client,
		[]string{leaseKey(showID, seat), showKey(showID), holderKey(holder), constants.LEASE_EXPIRY_INDEX},
		holder,
		seat.Key(),
		globalMember(showID, seat),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release lease: %w", err)
	}
	return n == 1, nil
}

func (r *RedisStore) ReleaseAll(ctx context.Context, holder string) ([]Lease, error) {
	return r.releaseHolder(ctx, holder, "")
}

func (r *RedisStore) ReleaseShow(ctx context.Context, showID string, holder string) ([]Lease, error) {
	return r.releaseHolder(ctx, holder, showID)
}

func (r *RedisStore) releaseHolder(ctx context.Context, holder, showID string) ([]Lease, error) {
	res, err := releaseHolderScript.Run(ctx, r.client,
		[]string{holderKey(holder), constants.LEASE_EXPIRY_INDEX},
		holder,
		constants.LEASE_KEY_PREFIX,
		constants.LEASE_SHOW_PREFIX,
		showID,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to release holder leases: %w", err)
	}

	out := make([]Lease, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		show, seat, err := splitGlobalMember(res[i])
		if err != nil {
			return nil, err
		}
		expires, err := parseMillis(res[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, Lease{ShowID: show, Seat: seat, Holder: holder, ExpiresAt: expires})
	}
	sortLeases(out)
	return out, nil
}

func (r *RedisStore) Snapshot(ctx context.Context, showID string) ([]Lease, error) {
	res, err := snapshotScript.Run(ctx, r.client,
		[]string{showKey(showID)},
		r.now().UnixMilli(),
		constants.LEASE_KEY_PREFIX+showID+":",
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot leases: %w", err)
	}

	out, err := parseTriples(res, func(member string) (string, catalog.Seat, error) {
		seat, err := catalog.ParseSeat(member)
		return showID, seat, err
	})
	if err != nil {
		return nil, err
	}
	sortLeases(out)
	return out, nil
}

// Sweep removes expired leases in batches until none remain past now
func (r *RedisStore) Sweep(ctx context.Context) ([]Lease, error) {
	now := r.now().UnixMilli()
	var out []Lease
	for {
		res, err := sweepScript.Run(ctx, r.client,
			[]string{constants.LEASE_EXPIRY_INDEX},
			now,
			constants.LEASE_KEY_PREFIX,
			constants.LEASE_SHOW_PREFIX,
			constants.LEASE_HOLDER_PREFIX,
			sweepBatchSize,
		).StringSlice()
		if err != nil {
			return out, fmt.Errorf("failed to sweep leases: %w", err)
		}

		batch, err := parseTriples(res, splitGlobalMember)
		if err != nil {
			return out, err
		}
		out = append(out, batch...)
		if len(batch) < sweepBatchSize {
			break
		}
	}
	sortLeases(out)
	return out, nil
}

func (r *RedisStore) InvalidateShow(ctx context.Context, showID string) ([]Lease, error) {
	res, err := invalidateShowScript.Run(ctx, r.client,
		[]string{showKey(showID), constants.LEASE_EXPIRY_INDEX},
		showID,
		constants.LEASE_KEY_PREFIX,
		constants.LEASE_HOLDER_PREFIX,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate show leases: %w", err)
	}

	out, err := parseTriples(res, func(member string) (string, catalog.Seat, error) {
		seat, err := catalog.ParseSeat(member)
		return showID, seat, err
	})
	if err != nil {
		return nil, err
	}
	sortLeases(out)
	return out, nil
}

func parseTriples(res []string, member func(string) (string, catalog.Seat, error)) ([]Lease, error) {
	if len(res)%3 != 0 {
		return nil, fmt.Errorf("unexpected lease response length %d", len(res))
	}
	out := make([]Lease, 0, len(res)/3)
	for i := 0; i < len(res); i += 3 {
		show, seat, err := member(res[i])
		if err != nil {
			return nil, err
		}
		expires, err := parseMillis(res[i+2])
		if err != nil {
			return nil, err
		}
		out = append(out, Lease{ShowID: show, Seat: seat, Holder: res[i+1], ExpiresAt: expires})
	}
	return out, nil
}

func splitGlobalMember(m string) (string, catalog.Seat, error) {
	show, seatKey, ok := strings.Cut(m, "|")
	if !ok {
		return "", catalog.Seat{}, errors.New("malformed lease member " + m)
	}
	seat, err := catalog.ParseSeat(seatKey)
	return show, seat, err
}

// parseMillis accepts both integer and float renderings of a zset score
func parseMillis(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed lease expiry %q: %w", s, err)
	}
	return time.UnixMilli(int64(f)), nil
}
