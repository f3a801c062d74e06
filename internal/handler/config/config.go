package config

type Config struct {
	ServerAddr     string
	RateLimitRPS   float64
	RateLimitBurst int
}
