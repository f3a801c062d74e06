package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/store/config"
)

// Store хранит журнал пополнений и отвечает на агрегатные запросы по нему.
// Интервалы полуоткрытые: start <= time < end.
type Store interface {
	LoadExists(ctx context.Context, id int64, customerID int64) (bool, error)
	LoadCountAccepted(ctx context.Context, customerID int64, start time.Time, end time.Time) (int64, error)
	LoadSumAccepted(ctx context.Context, customerID int64, start time.Time, end time.Time) (decimal.Decimal, error)
	LoadSave(ctx context.Context, record model.LoadRecord) error
	Close() error
}

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrUnknownDriver = errors.New("unknown store driver")
)

func NewStore(cfg config.Config) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPGStore(cfg.DBDsn)
	case config.DriverBolt:
		return NewBoltStore(cfg.BoltPath)
	case config.DriverMemory, "":
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

type store struct {
	database *sql.DB
}

func NewPGStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// Журнал пополнений.
	// Записи только добавляются, ключ - пара (id, customer_id)
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS load_funds_request (" +
			" id BIGINT NOT NULL," +
			" customer_id BIGINT NOT NULL," +
			" load_amount NUMERIC (20, 2) NOT NULL," +
			" time TIMESTAMPTZ NOT NULL," +
			" accepted BOOLEAN NOT NULL," +
			" PRIMARY KEY (id, customer_id)" +
			" );")
	if err != nil {
		db.Close()
		return nil, err
	}

	// Агрегаты всегда считаются по клиенту, принятым записям и интервалу времени
	_, err = db.Exec(
		"CREATE INDEX IF NOT EXISTS load_funds_request_customer_time" +
			" ON load_funds_request (customer_id, accepted, time);")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &store{
		database: db,
	}, nil
}

func (store *store) LoadExists(ctx context.Context, id int64, customerID int64) (bool, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM load_funds_request"+
			" WHERE id = $1"+
			"   AND customer_id = $2)",
		id,
		customerID)
	var exists bool
	err := row.Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (store *store) LoadCountAccepted(ctx context.Context, customerID int64, start time.Time, end time.Time) (int64, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM load_funds_request"+
			" WHERE customer_id = $1"+
			"   AND accepted"+
			"   AND time >= $2"+
			"   AND time < $3",
		customerID,
		start,
		end)
	var count int64
	err := row.Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (store *store) LoadSumAccepted(ctx context.Context, customerID int64, start time.Time, end time.Time) (decimal.Decimal, error) {
	// Нет записей - ноль, а не NULL
	row := store.database.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(load_amount), 0) FROM load_funds_request"+
			" WHERE customer_id = $1"+
			"   AND accepted"+
			"   AND time >= $2"+
			"   AND time < $3",
		customerID,
		start,
		end)
	var sum decimal.Decimal
	err := row.Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (store *store) LoadSave(ctx context.Context, record model.LoadRecord) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO load_funds_request (id, customer_id, load_amount, time, accepted)"+
			" VALUES ($1, $2, $3, $4, $5)",
		record.ID,
		record.CustomerID,
		record.Amount,
		record.Time,
		record.Accepted)
	if err != nil {
		// Проверка: уже существует
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return ErrAlreadyExists
			}
		}
		return err
	}
	return nil
}

func (store *store) Close() error {
	return store.database.Close()
}
