package bridge

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Channel prefix, default "chatsync:ws:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "chatsync:ws:",
	}
}

// WithDefaults returns a copy of c with empty fields filled from
// DefaultRedisConfig.
func (c RedisConfig) WithDefaults() *RedisConfig {
	d := DefaultRedisConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.Prefix == "" {
		c.Prefix = d.Prefix
	}
	return &c
}
