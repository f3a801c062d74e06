package config

import "time"

const (
	KindLocal = "local"
	KindRedis = "redis"
)

type Config struct {
	Kind      string
	RedisAddr string
	TTL       time.Duration
}
