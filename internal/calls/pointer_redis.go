package calls

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPointers keeps the per-callee incoming-call pointer in Redis.
// The key carries a TTL matching the pending deadline, so a crashed process
// can never leak a stale pointer past the call's budget.
type RedisPointers struct {
	rdb   *redis.Client
	clock func() time.Time
}

func NewRedisPointers(rdb *redis.Client) *RedisPointers {
	return &RedisPointers{rdb: rdb, clock: time.Now}
}

func pointerKey(calleeID string) string {
	return "incoming_call:" + calleeID
}

var pointerDeleteScript = redis.NewScript(`
-- KEYS[1] = pointer key
-- ARGV[1] = room id the caller believes the pointer references
--
-- Delete only if the stored pointer is for that room, so resolving an old
-- call never removes a newer call's pointer.
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local ok, data = pcall(cjson.decode, raw)
if not ok then
  redis.call('DEL', KEYS[1])
  return 1
end
if data['room_id'] == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

func (p *RedisPointers) Set(ctx context.Context, calleeID string, in IncomingCall) error {
	if calleeID == "" {
		return errors.New("callee id is required")
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	ttl := in.ExpiresAt.Sub(p.clock())
	if ttl <= 0 {
		// Already past the deadline; nothing for the callee to see.
		return nil
	}
	return p.rdb.Set(ctx, pointerKey(calleeID), raw, ttl).Err()
}

func (p *RedisPointers) Get(ctx context.Context, calleeID string) (IncomingCall, bool, error) {
	raw, err := p.rdb.Get(ctx, pointerKey(calleeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return IncomingCall{}, false, nil
		}
		return IncomingCall{}, false, err
	}
	var in IncomingCall
	if err := json.Unmarshal(raw, &in); err != nil {
		return IncomingCall{}, false, err
	}
	return in, true, nil
}

func (p *RedisPointers) Delete(ctx context.Context, calleeID, roomID string) error {
	_, err := pointerDeleteScript.Run(ctx, p.rdb, []string{pointerKey(calleeID)}, roomID).Result()
	return err
}
