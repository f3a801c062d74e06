package config

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

type Config struct {
	Driver   string
	DBDsn    string
	BoltPath string
}
