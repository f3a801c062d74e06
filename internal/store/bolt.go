package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"strconv"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/marlonreghert/tryvault-velocity/internal/model"
)

var (
	bucketIdentity  = []byte("identity")
	bucketCustomers = []byte("customers")
)

// Запись журнала в bolt. Сумма и время хранятся строками,
// чтобы не терять точность и смещение часового пояса.
type boltRecord struct {
	ID         int64  `msgpack:"id"`
	CustomerID int64  `msgpack:"customer_id"`
	Amount     string `msgpack:"load_amount"`
	Time       string `msgpack:"time"`
	Accepted   bool   `msgpack:"accepted"`
}

// boltStore - журнал во встроенной базе bolt (один файл).
//
// identity:               "<customer>/<id>" -> пусто
// customers/<customer>:   ключ времени + id -> boltRecord
//
// Ключи внутри клиента упорядочены по времени, поэтому агрегаты
// по интервалу читаются одним проходом курсора.
type boltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIdentity); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketCustomers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) LoadExists(_ context.Context, id int64, customerID int64) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketIdentity).Get(identityKey(id, customerID)) != nil
		return nil
	})
	return exists, err
}

func (s *boltStore) LoadCountAccepted(_ context.Context, customerID int64, start time.Time, end time.Time) (int64, error) {
	var count int64
	err := s.forEachInRange(customerID, start, end, func(record boltRecord) error {
		if record.Accepted {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *boltStore) LoadSumAccepted(_ context.Context, customerID int64, start time.Time, end time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := s.forEachInRange(customerID, start, end, func(record boltRecord) error {
		if !record.Accepted {
			return nil
		}
		amount, err := decimal.NewFromString(record.Amount)
		if err != nil {
			return err
		}
		sum = sum.Add(amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (s *boltStore) LoadSave(_ context.Context, record model.LoadRecord) error {
	data, err := msgpack.Marshal(boltRecord{
		ID:         record.ID,
		CustomerID: record.CustomerID,
		Amount:     record.Amount.String(),
		Time:       record.Time.Format(time.RFC3339Nano),
		Accepted:   record.Accepted,
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		identity := tx.Bucket(bucketIdentity)
		key := identityKey(record.ID, record.CustomerID)
		if identity.Get(key) != nil {
			return ErrAlreadyExists
		}
		if err := identity.Put(key, []byte{}); err != nil {
			return err
		}

		customer, err := tx.Bucket(bucketCustomers).CreateBucketIfNotExists(customerKey(record.CustomerID))
		if err != nil {
			return err
		}
		return customer.Put(timeKey(record.Time, record.ID), data)
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func (s *boltStore) forEachInRange(customerID int64, start time.Time, end time.Time, fn func(boltRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		customer := tx.Bucket(bucketCustomers).Bucket(customerKey(customerID))
		if customer == nil {
			return nil
		}

		from := timePrefix(start)
		to := timePrefix(end)
		c := customer.Cursor()
		for k, v := c.Seek(from); k != nil && bytes.Compare(k[:timePrefixSize], to) < 0; k, v = c.Next() {
			var record boltRecord
			if err := msgpack.Unmarshal(v, &record); err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func identityKey(id int64, customerID int64) []byte {
	return []byte(strconv.FormatInt(customerID, 10) + "/" + strconv.FormatInt(id, 10))
}

func customerKey(customerID int64) []byte {
	return []byte(strconv.FormatInt(customerID, 10))
}

// Ключ времени: секунды со старшим битом, инвертированным для времени до 1970 года,
// и наносекунды. Порядок байтов совпадает с порядком времени на всем диапазоне time.Time.
const timePrefixSize = 12

func timePrefix(t time.Time) []byte {
	b := make([]byte, timePrefixSize)
	binary.BigEndian.PutUint64(b, uint64(t.Unix())^(1<<63))
	binary.BigEndian.PutUint32(b[8:], uint32(t.Nanosecond()))
	return b
}

func timeKey(t time.Time, id int64) []byte {
	b := make([]byte, timePrefixSize+8)
	copy(b, timePrefix(t))
	binary.BigEndian.PutUint64(b[timePrefixSize:], uint64(id))
	return b
}
