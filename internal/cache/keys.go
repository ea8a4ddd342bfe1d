package cache

// Key catalog. Every key the service writes lives under the "streakboard:"
// namespace so prefix invalidation cannot touch foreign data on a shared
// Redis instance.
const (
	PrefixLeaderboard = "streakboard:leaderboard:"
	PrefixProfile     = "streakboard:profile:"
	PrefixStats       = "streakboard:stats:"
	PrefixRateLimit   = "streakboard:ratelimit:"

	KeyGlobalStats = "streakboard:stats"
	KeyLastSync    = "streakboard:sync:last_run"
	KeySyncLease   = "streakboard:sync:lease"
)

// ProfileKey returns the cache key for one user's profile view.
func ProfileKey(handle string) string {
	return PrefixProfile + handle
}

// RateLimitKey scopes a rate counter to an identifier and an action.
func RateLimitKey(identifier, action string) string {
	return PrefixRateLimit + action + ":" + identifier
}
