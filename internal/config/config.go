package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	authConfig "github.com/marlonreghert/tryvault-velocity/internal/auth/config"
	handlerConfig "github.com/marlonreghert/tryvault-velocity/internal/handler/config"
	lockerConfig "github.com/marlonreghert/tryvault-velocity/internal/locker/config"
	loggerConfig "github.com/marlonreghert/tryvault-velocity/internal/logger/config"
	"github.com/marlonreghert/tryvault-velocity/internal/model"
	serviceConfig "github.com/marlonreghert/tryvault-velocity/internal/service/config"
	storeConfig "github.com/marlonreghert/tryvault-velocity/internal/store/config"
)

type Config struct {
	Handler   handlerConfig.Config
	Service   serviceConfig.Config
	Store     storeConfig.Config
	Logger    loggerConfig.Config
	Locker    lockerConfig.Config
	Auth      authConfig.Config
	ServerURL string
}

const (
	defaultServerAddr = "localhost:8080"
	defaultBoltPath   = "velocity.db"
	defaultLockTTL    = 5 * time.Second
)

func DefaultConfig() Config {
	return Config{
		Handler: handlerConfig.Config{ServerAddr: defaultServerAddr},
		Service: serviceConfig.Config{Limits: model.DefaultLimits()},
		Store: storeConfig.Config{
			Driver:   storeConfig.DriverMemory,
			BoltPath: defaultBoltPath,
		},
		Logger:    loggerConfig.Config{LogLevel: "info"},
		Locker:    lockerConfig.Config{Kind: lockerConfig.KindLocal, TTL: defaultLockTTL},
		ServerURL: "http://" + defaultServerAddr,
	}
}

// GetConfig: значения по умолчанию, затем файл .env, затем переменные окружения.
// Уже заданные переменные окружения файл .env не перекрывает.
func GetConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := DefaultConfig()
	l := &lookup{}

	l.str("LOG_LEVEL", &cfg.Logger.LogLevel)

	l.str("STORE_DRIVER", &cfg.Store.Driver)
	l.str("DATABASE_URI", &cfg.Store.DBDsn)
	l.str("BOLT_PATH", &cfg.Store.BoltPath)

	l.str("LOCKER", &cfg.Locker.Kind)
	l.str("REDIS_ADDR", &cfg.Locker.RedisAddr)
	l.duration("LOCK_TTL", &cfg.Locker.TTL)

	l.int64("LIMIT_LOADS_PER_DAY", &cfg.Service.Limits.LoadsPerDay)
	l.decimal("LIMIT_AMOUNT_PER_DAY", &cfg.Service.Limits.AmountPerDay)
	l.decimal("LIMIT_AMOUNT_PER_WEEK", &cfg.Service.Limits.AmountPerWeek)

	l.str("RUN_ADDRESS", &cfg.Handler.ServerAddr)
	l.float("RATE_LIMIT_RPS", &cfg.Handler.RateLimitRPS)
	l.int("RATE_LIMIT_BURST", &cfg.Handler.RateLimitBurst)

	l.str("AUTH_SECRET", &cfg.Auth.Secret)
	l.duration("AUTH_TOKEN_TTL", &cfg.Auth.TokenTTL)

	l.str("SERVER_URL", &cfg.ServerURL)

	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

var ErrInvalidLimits = errors.New("invalid limits")

func (cfg Config) Validate() error {
	limits := cfg.Service.Limits
	if limits.LoadsPerDay <= 0 || !limits.AmountPerDay.IsPositive() || !limits.AmountPerWeek.IsPositive() {
		return fmt.Errorf("%w: loads per day %d, amount per day %s, amount per week %s",
			ErrInvalidLimits, limits.LoadsPerDay, limits.AmountPerDay, limits.AmountPerWeek)
	}
	return nil
}

// lookup читает переменные окружения и копит ошибки разбора
type lookup struct {
	errs []error
}

func (l *lookup) str(name string, dst *string) {
	if value, ok := os.LookupEnv(name); ok {
		*dst = value
	}
}

func (l *lookup) int(name string, dst *int) {
	if value, ok := os.LookupEnv(name); ok {
		v, err := strconv.Atoi(value)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
}

func (l *lookup) int64(name string, dst *int64) {
	if value, ok := os.LookupEnv(name); ok {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
}

func (l *lookup) float(name string, dst *float64) {
	if value, ok := os.LookupEnv(name); ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
}

func (l *lookup) duration(name string, dst *time.Duration) {
	if value, ok := os.LookupEnv(name); ok {
		v, err := time.ParseDuration(value)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
}

func (l *lookup) decimal(name string, dst *decimal.Decimal) {
	if value, ok := os.LookupEnv(name); ok {
		v, err := decimal.NewFromString(value)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
}
