package ratelimiter

// fixedWindowLua runs the whole check-and-increment inside the store, so no
// other caller can interleave between the read and the write for a key.
//
// KEYS[1] is the counter key, ARGV[1] the limit, ARGV[2] the window in
// milliseconds. Returns {allowed, count, ttl_ms}. The reject branch never
// touches the counter, and an increment inside a live window never resets its
// expiry. A live key that lost its expiry gets the full window back.
const fixedWindowLua = `
local key    = KEYS[1]
local limit  = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", key) or "0")
if count >= limit then
  local ttl = redis.call("PTTL", key)
  if ttl < 0 then
    redis.call("PEXPIRE", key, window)
    ttl = window
  end
  return {0, count, ttl}
end

count = redis.call("INCR", key)
if count == 1 then
  redis.call("PEXPIRE", key, window)
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
  redis.call("PEXPIRE", key, window)
  ttl = window
end
return {1, count, ttl}
`
