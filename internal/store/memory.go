package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marlonreghert/tryvault-velocity/internal/model"
)

type loadKey struct {
	id         int64
	customerID int64
}

// memStore - журнал в памяти процесса. Данные теряются при перезапуске.
type memStore struct {
	mu        sync.RWMutex
	identity  map[loadKey]struct{}
	customers map[int64][]model.LoadRecord
}

func NewMemStore() Store {
	return &memStore{
		identity:  make(map[loadKey]struct{}),
		customers: make(map[int64][]model.LoadRecord),
	}
}

func (s *memStore) LoadExists(_ context.Context, id int64, customerID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.identity[loadKey{id: id, customerID: customerID}]
	return ok, nil
}

func (s *memStore) LoadCountAccepted(_ context.Context, customerID int64, start time.Time, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.customers[customerID] {
		if record.Accepted && inRange(record.Time, start, end) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) LoadSumAccepted(_ context.Context, customerID int64, start time.Time, end time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, record := range s.customers[customerID] {
		if record.Accepted && inRange(record.Time, start, end) {
			sum = sum.Add(record.Amount)
		}
	}
	return sum, nil
}

func (s *memStore) LoadSave(_ context.Context, record model.LoadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := loadKey{id: record.ID, customerID: record.CustomerID}
	if _, ok := s.identity[key]; ok {
		return ErrAlreadyExists
	}
	s.identity[key] = struct{}{}
	s.customers[record.CustomerID] = append(s.customers[record.CustomerID], record)
	return nil
}

func (s *memStore) Close() error {
	return nil
}

func inRange(t time.Time, start time.Time, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
