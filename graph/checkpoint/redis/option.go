// Package redis provides a Redis-backed CheckpointSaver.
package redis

import "github.com/redis/go-redis/v9"

// DefaultKeyPrefix namespaces all saver keys in Redis.
const DefaultKeyPrefix = "langgraph"

// Options configures the Redis saver.
type Options struct {
	// Addr is the Redis server address, used when no Client is supplied.
	Addr string
	// Password authenticates against the Redis server.
	Password string
	// DB selects the Redis database.
	DB int
	// KeyPrefix namespaces the saver's keys.
	KeyPrefix string
	// Client is an externally managed client. When set, Addr, Password,
	// and DB are ignored and Close does not close the client.
	Client redis.UniversalClient
}

// Option configures the Redis saver.
type Option func(*Options)

// WithAddr sets the Redis server address.
func WithAddr(addr string) Option {
	return func(o *Options) { o.Addr = addr }
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(o *Options) { o.Password = password }
}

// WithDB selects the Redis database.
func WithDB(db int) Option {
	return func(o *Options) { o.DB = db }
}

// WithKeyPrefix namespaces the saver's keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

// WithClient supplies an externally managed Redis client.
func WithClient(client redis.UniversalClient) Option {
	return func(o *Options) { o.Client = client }
}

func newOptions(opts ...Option) *Options {
	o := &Options{
		Addr:      "127.0.0.1:6379",
		KeyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
