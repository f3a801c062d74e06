package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/store/config"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	stores := map[string]Store{
		config.DriverMemory: NewMemStore(),
	}

	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "velocity.db"))
	require.NoError(t, err)
	stores[config.DriverBolt] = bolt

	// postgres проверяется только при заданной базе
	if dsn := os.Getenv("DATABASE_URI"); dsn != "" {
		pg, err := NewPGStore(dsn)
		require.NoError(t, err)
		_, err = pg.(*store).database.Exec("TRUNCATE load_funds_request")
		require.NoError(t, err)
		stores[config.DriverPostgres] = pg
	}

	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func record(id int64, customer int64, amount string, at string, accepted bool) model.LoadRecord {
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return model.LoadRecord{
		ID:         id,
		CustomerID: customer,
		Amount:     decimal.RequireFromString(amount),
		Time:       t,
		Accepted:   accepted,
	}
}

func TestStoreLoadExists(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			exists, err := s.LoadExists(ctx, 1, 100)
			require.NoError(t, err)
			require.False(t, exists)

			require.NoError(t, s.LoadSave(ctx, record(1, 100, "10.00", "2000-01-03T10:00:00Z", true)))

			exists, err = s.LoadExists(ctx, 1, 100)
			require.NoError(t, err)
			require.True(t, exists)

			// тот же id у другого клиента - другая запись
			exists, err = s.LoadExists(ctx, 1, 200)
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestStoreLoadSaveDuplicate(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.LoadSave(ctx, record(7, 100, "10.00", "2000-01-03T10:00:00Z", true)))

			err := s.LoadSave(ctx, record(7, 100, "99.00", "2000-01-04T10:00:00Z", false))
			require.ErrorIs(t, err, ErrAlreadyExists)

			sum, err := s.LoadSumAccepted(ctx, 100, mustTime("2000-01-01T00:00:00Z"), mustTime("2000-02-01T00:00:00Z"))
			require.NoError(t, err)
			require.True(t, sum.Equal(decimal.RequireFromString("10.00")), sum.String())
		})
	}
}

func TestStoreLoadAggregates(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, r := range []model.LoadRecord{
				record(1, 100, "100.10", "2000-01-03T00:00:00Z", true),  // начало интервала входит
				record(2, 100, "200.20", "2000-01-03T23:59:59Z", true),  // внутри
				record(3, 100, "300.30", "2000-01-04T00:00:00Z", true),  // конец интервала не входит
				record(4, 100, "400.40", "2000-01-03T12:00:00Z", false), // отклонена
				record(5, 200, "500.50", "2000-01-03T12:00:00Z", true),  // другой клиент
				record(6, 100, "600.60", "2000-01-02T23:59:59Z", true),  // до интервала
			} {
				require.NoError(t, s.LoadSave(ctx, r))
			}

			start := mustTime("2000-01-03T00:00:00Z")
			end := mustTime("2000-01-04T00:00:00Z")

			count, err := s.LoadCountAccepted(ctx, 100, start, end)
			require.NoError(t, err)
			require.Equal(t, int64(2), count)

			sum, err := s.LoadSumAccepted(ctx, 100, start, end)
			require.NoError(t, err)
			require.True(t, sum.Equal(decimal.RequireFromString("300.30")), sum.String())
		})
	}
}

func TestStoreLoadSumEmpty(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			sum, err := s.LoadSumAccepted(ctx, 999, mustTime("2000-01-03T00:00:00Z"), mustTime("2000-01-04T00:00:00Z"))
			require.NoError(t, err)
			require.True(t, sum.IsZero())

			count, err := s.LoadCountAccepted(ctx, 999, mustTime("2000-01-03T00:00:00Z"), mustTime("2000-01-04T00:00:00Z"))
			require.NoError(t, err)
			require.Zero(t, count)
		})
	}
}

func TestStoreLoadOffsetTime(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			// 2000-01-03T23:30:00-05:00 = 2000-01-04T04:30:00Z
			require.NoError(t, s.LoadSave(ctx, record(1, 100, "50", "2000-01-03T23:30:00-05:00", true)))

			count, err := s.LoadCountAccepted(ctx, 100, mustTime("2000-01-03T00:00:00Z"), mustTime("2000-01-04T00:00:00Z"))
			require.NoError(t, err)
			require.Zero(t, count)

			count, err = s.LoadCountAccepted(ctx, 100, mustTime("2000-01-04T00:00:00Z"), mustTime("2000-01-05T00:00:00Z"))
			require.NoError(t, err)
			require.Equal(t, int64(1), count)
		})
	}
}

func TestStoreLoadFarTimes(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			// наносекунды от 1970 года в int64 кончаются 2262-04-11T23:47:16Z
			require.NoError(t, s.LoadSave(ctx, record(1, 100, "10", "2262-04-11T10:00:00Z", true)))
			require.NoError(t, s.LoadSave(ctx, record(2, 100, "20", "2262-04-11T23:50:00Z", true)))
			require.NoError(t, s.LoadSave(ctx, record(3, 100, "40", "1600-01-03T10:00:00Z", true)))

			sum, err := s.LoadSumAccepted(ctx, 100, mustTime("2262-04-11T00:00:00Z"), mustTime("2262-04-12T00:00:00Z"))
			require.NoError(t, err)
			require.True(t, sum.Equal(decimal.NewFromInt(30)), sum.String())

			count, err := s.LoadCountAccepted(ctx, 100, mustTime("1600-01-03T00:00:00Z"), mustTime("1600-01-04T00:00:00Z"))
			require.NoError(t, err)
			require.Equal(t, int64(1), count)
		})
	}
}

func TestNewStoreUnknownDriver(t *testing.T) {
	_, err := NewStore(config.Config{Driver: "mongo"})
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestBoltStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "velocity.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.LoadSave(ctx, record(1, 100, "12.34", "2000-01-03T10:00:00Z", true)))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	exists, err := s.LoadExists(ctx, 1, 100)
	require.NoError(t, err)
	require.True(t, exists)

	sum, err := s.LoadSumAccepted(ctx, 100, mustTime("2000-01-03T00:00:00Z"), mustTime("2000-01-04T00:00:00Z"))
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.RequireFromString("12.34")))
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
