package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "CHATSYNC"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "chatsync.db"
	defaultLogLevel     = "info"
	defaultAuthIssuer   = "chatsync"
	defaultTokenTTL     = 24 * time.Hour
	defaultRedisAddr    = "localhost:6379"
	defaultRedisPrefix  = "chatsync:ws:"
)

// legacyEnv lists the unprefixed variables still honored for keys that
// existed before the CHATSYNC prefix.
var legacyEnv = map[string]string{
	"redis.addr":     "REDIS_ADDR",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",
	"redis.prefix":   "REDIS_WS_PREFIX",
}

// AppConfig captures runtime configuration for the chat server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	LogPretty    bool

	AuthSigningSecret string
	AuthIssuer        string
	AuthTokenTTL      time.Duration
	// AllowAnonymous admits handshakes that declare ?userId= without a token.
	AllowAnonymous bool
	// AdminToken guards the operator routes. They are not mounted when empty.
	AdminToken string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	Socket SocketConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	socket := DefaultConfig()
	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.pretty", false)
	v.SetDefault("auth.issuer", defaultAuthIssuer)
	v.SetDefault("auth.token_ttl", defaultTokenTTL)
	v.SetDefault("auth.allow_anonymous", false)
	v.SetDefault("auth.admin_token", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", defaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", defaultRedisPrefix)
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
	v.SetDefault("socket.max_connections", socket.MaxConnections)
	v.SetDefault("socket.ping_interval", socket.PingInterval)
	v.SetDefault("socket.write_timeout", socket.WriteTimeout)
	v.SetDefault("socket.read_buffer", socket.ReadBufferSize)
	v.SetDefault("socket.write_buffer", socket.WriteBufferSize)
	v.SetDefault("socket.allowed_origins", []string{})
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       v.GetString("http.address"),
		DatabasePath:      v.GetString("database.path"),
		LogLevel:          v.GetString("log.level"),
		LogPretty:         v.GetBool("log.pretty"),
		AuthSigningSecret: v.GetString("auth.signing_secret"),
		AuthIssuer:        v.GetString("auth.issuer"),
		AuthTokenTTL:      v.GetDuration("auth.token_ttl"),
		AllowAnonymous:    v.GetBool("auth.allow_anonymous"),
		AdminToken:        v.GetString("auth.admin_token"),
		RedisEnabled:      v.GetBool("redis.enabled"),
		RedisAddr:         v.GetString("redis.addr"),
		RedisPassword:     v.GetString("redis.password"),
		RedisDB:           v.GetInt("redis.db"),
		RedisPrefix:       v.GetString("redis.prefix"),
		Socket: SocketConfig{
			MaxConnections:  v.GetInt("socket.max_connections"),
			PingInterval:    v.GetInt("socket.ping_interval"),
			WriteTimeout:    v.GetInt("socket.write_timeout"),
			ReadBufferSize:  v.GetInt("socket.read_buffer"),
			WriteBufferSize: v.GetInt("socket.write_buffer"),
			AllowedOrigins:  splitList(v.GetStringSlice("socket.allowed_origins")),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthSigningSecret) == "" && !c.AllowAnonymous {
		return fmt.Errorf("auth.signing_secret is required unless auth.allow_anonymous is set")
	}
	if c.AuthSigningSecret != "" && strings.TrimSpace(c.AuthIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis.db must not be negative")
	}
	if c.Socket.MaxConnections < 0 {
		return fmt.Errorf("socket.max_connections must not be negative")
	}
	if c.Socket.ReadBufferSize <= 0 || c.Socket.WriteBufferSize <= 0 {
		return fmt.Errorf("socket buffer sizes must be positive")
	}
	return nil
}

// splitList accepts both list values and a single comma separated string,
// which is how a list arrives from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
