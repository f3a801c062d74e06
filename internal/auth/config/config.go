package config

import "time"

type Config struct {
	// Пустой секрет отключает проверку токенов
	Secret   string
	TokenTTL time.Duration
}
