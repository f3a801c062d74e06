// Package locker сериализует обработку запросов одного клиента.
//
// Проверка повтора, чтение агрегатов и запись в журнал должны выполняться
// как единое целое, иначе два параллельных запроса клиента прочитают
// одинаковые суммы и оба пройдут лимит.
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marlonreghert/tryvault-velocity/internal/locker/config"
)

// Unlock снимает блокировку. Ошибка означает, что блокировка
// могла остаться у хранилища до истечения TTL или уже была потеряна.
type Unlock func() error

type Locker interface {
	Lock(ctx context.Context, customerID int64) (Unlock, error)
	Close() error
}

var (
	ErrNotAcquired = errors.New("lock not acquired")
	ErrLockLost    = errors.New("lock lost before release")
	ErrUnknownKind = errors.New("unknown locker kind")
)

func NewLocker(cfg config.Config) (Locker, error) {
	switch cfg.Kind {
	case config.KindLocal, "":
		return NewLocalLocker(), nil
	case config.KindRedis:
		return NewRedisLocker(cfg.RedisAddr, cfg.TTL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// localLocker - блокировка на уровне клиента внутри одного процесса
type localLocker struct {
	mu    sync.Mutex
	locks map[int64]*customerLock
}

type customerLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[int64]*customerLock)}
}

func (l *localLocker) Lock(ctx context.Context, customerID int64) (Unlock, error) {
	l.mu.Lock()
	lock, ok := l.locks[customerID]
	if !ok {
		lock = &customerLock{ch: make(chan struct{}, 1)}
		l.locks[customerID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return func() error {
			<-lock.ch
			l.release(customerID, lock)
			return nil
		}, nil
	case <-ctx.Done():
		l.release(customerID, lock)
		return nil, fmt.Errorf("%w: customer %d: %w", ErrNotAcquired, customerID, ctx.Err())
	}
}

// Неиспользуемые блокировки удаляются, чтобы карта не росла
// вместе с числом клиентов.
func (l *localLocker) release(customerID int64, lock *customerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, customerID)
	}
}

func (l *localLocker) Close() error {
	return nil
}
