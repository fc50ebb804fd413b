package models

// RedisConfig holds the Redis connection used by the circuit breaker and
// rate limiter storage. Optional; in-memory fallbacks apply when absent.
type RedisConfig struct {
	URL string `json:"redis_url,omitzero" yaml:"url"`
}
