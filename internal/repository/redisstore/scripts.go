package redisstore

import "github.com/redis/go-redis/v9"

// applyDeltaScript adds ARGV[1] to the balance only if the result stays
// non-negative. Replies {-1} for a missing account and {-2, balance} for
// insufficient funds. On success it replies {1, balance, field, value, ...}
// with the whole updated hash, so no second read follows a committed delta.
var applyDeltaScript = redis.NewScript(`
local bal = redis.call('HGET', KEYS[1], 'balance')
if not bal then
	return {-1}
end
if tonumber(bal) + tonumber(ARGV[1]) < 0 then
	return {-2, tonumber(bal)}
end
local nb = redis.call('HINCRBY', KEYS[1], 'balance', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
local reply = {1, nb}
local fields = redis.call('HGETALL', KEYS[1])
for i = 1, #fields do
	reply[#reply + 1] = fields[i]
end
return reply
`)

// appendEntryScript writes an entry and indexes it under both accounts. With
// a fourth key it first claims the idempotency key and returns 0 if taken.
var appendEntryScript = redis.NewScript(`
if #KEYS == 4 then
	if redis.call('SETNX', KEYS[4], ARGV[3]) == 0 then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[3])
return 1
`)
