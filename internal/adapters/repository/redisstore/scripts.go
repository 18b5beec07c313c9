package redisstore

import "github.com/redis/go-redis/v9"

// Lua scripts return -1 when the owning record is missing.

var markCompletedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
if redis.call("HGET", KEYS[1], "completed") == "1" then return 0 end
redis.call("HSET", KEYS[1], "completed", "1")
return 1
`)

var appendApplicationScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
if redis.call("HGET", KEYS[1], "completed") == "1" then return 0 end
for _, v in ipairs(redis.call("LRANGE", KEYS[2], 0, -1)) do
  if v == ARGV[1] then return 1 end
end
redis.call("RPUSH", KEYS[2], ARGV[1])
return 1
`)

// KEYS: user, ranking. ARGV: field, delta, member, rank (1|0).
var incrementScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return {0, 0} end
local v = redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])
if ARGV[4] == "1" then redis.call("ZADD", KEYS[2], v, ARGV[3]) end
return {1, v}
`)

var addRefScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
for _, v in ipairs(redis.call("LRANGE", KEYS[2], 0, -1)) do
  if v == ARGV[1] then return 0 end
end
redis.call("RPUSH", KEYS[2], ARGV[1])
return 1
`)

var removeRefScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
return redis.call("LREM", KEYS[2], 0, ARGV[1])
`)

// KEYS: user, badge names, badge descriptions. ARGV: name, description pairs.
var addBadgesScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
local added = 0
for i = 1, #ARGV, 2 do
  if redis.call("HSETNX", KEYS[3], ARGV[i], ARGV[i + 1]) == 1 then
    redis.call("RPUSH", KEYS[2], ARGV[i])
    added = added + 1
  end
end
return added
`)

// KEYS: user, ranking. ARGV: member.
var resetScoreScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
local s = redis.call("HGET", KEYS[1], "score")
if s and tonumber(s) ~= 0 then return 0 end
redis.call("HSET", KEYS[1], "score", "0")
redis.call("ZADD", KEYS[2], 0, ARGV[1])
return 1
`)

var setStatusScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return -1 end
redis.call("HSET", KEYS[1], "status", ARGV[1])
return 1
`)
