package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marlonreghert/tryvault-velocity/internal/locker"
	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/service/config"
	"github.com/marlonreghert/tryvault-velocity/internal/store"
)

type Service interface {
	// ProcessLoad принимает решение по запросу и записывает его в журнал.
	// ok == false без ошибки означает повторный запрос: ответа нет.
	ProcessLoad(ctx context.Context, request model.LoadRequest) (response model.LoadResponse, ok bool, err error)
	GetUsage(ctx context.Context, customerID int64, at time.Time) (model.Usage, error)
}

var (
	ErrStoreRead      = errors.New("store read failed")
	ErrInvalidRequest = errors.New("invalid request")
)

const (
	ruleLoadsPerDay   = "loads_per_day"
	ruleAmountPerDay  = "amount_per_day"
	ruleAmountPerWeek = "amount_per_week"
)

type service struct {
	cfg    config.Config
	store  store.Store
	locker locker.Locker
	zaplog *zap.Logger
}

func NewService(cfg config.Config, store store.Store, locker locker.Locker, zaplog *zap.Logger) Service {
	return &service{
		cfg:    cfg,
		store:  store,
		locker: locker,
		zaplog: zaplog,
	}
}

func (service *service) ProcessLoad(ctx context.Context, request model.LoadRequest) (model.LoadResponse, bool, error) {
	if request.Amount.IsNegative() {
		return model.LoadResponse{}, false, fmt.Errorf("%w: negative amount %s", ErrInvalidRequest, request.Amount)
	}
	if !request.Amount.Equal(request.Amount.Truncate(model.AmountScale)) {
		return model.LoadResponse{}, false, fmt.Errorf("%w: fractional cents %s", ErrInvalidRequest, request.Amount)
	}
	if request.Time.IsZero() {
		return model.LoadResponse{}, false, fmt.Errorf("%w: empty time", ErrInvalidRequest)
	}

	log := service.zaplog.With(
		zap.Int64("id", request.ID),
		zap.Int64("customer_id", request.CustomerID))

	// Блокировка клиента на время проверки и записи
	unlock, err := service.locker.Lock(ctx, request.CustomerID)
	if err != nil {
		return model.LoadResponse{}, false, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Error("release customer lock", zap.Error(err))
		}
	}()

	exists, err := service.store.LoadExists(ctx, request.ID, request.CustomerID)
	if err != nil {
		return model.LoadResponse{}, false, fmt.Errorf("%w: exists: %w", ErrStoreRead, err)
	}
	if exists {
		log.Info("duplicate load request skipped")
		return model.LoadResponse{}, false, nil
	}

	rule, err := service.checkLimits(ctx, request)
	if err != nil {
		return model.LoadResponse{}, false, err
	}
	accepted := rule == ""
	if !accepted {
		log.Info("load rejected", zap.String("rule", rule))
	}

	err = service.store.LoadSave(ctx, model.NewLoadRecord(request, accepted))
	if err != nil {
		// Без записи в журнале лимиты не учтут пополнение,
		// поэтому клиенту сообщаем, что оно не прошло
		log.Error("save load record", zap.Error(err))
		return model.NewLoadResponse(request, false), true, nil
	}

	log.Info("load processed", zap.Bool("accepted", accepted))
	return model.NewLoadResponse(request, accepted), true, nil
}

// checkLimits возвращает имя первого нарушенного лимита или пустую строку.
// Достижение лимита считается его превышением.
func (service *service) checkLimits(ctx context.Context, request model.LoadRequest) (string, error) {
	limits := service.cfg.Limits
	w := newWindows(request.Time)

	loadsToday, err := service.store.LoadCountAccepted(ctx, request.CustomerID, w.dayStart, w.dayEnd)
	if err != nil {
		return "", fmt.Errorf("%w: count day: %w", ErrStoreRead, err)
	}
	if loadsToday >= limits.LoadsPerDay {
		return ruleLoadsPerDay, nil
	}

	amountToday, err := service.store.LoadSumAccepted(ctx, request.CustomerID, w.dayStart, w.dayEnd)
	if err != nil {
		return "", fmt.Errorf("%w: sum day: %w", ErrStoreRead, err)
	}
	if reached(amountToday, request.Amount, limits.AmountPerDay) {
		return ruleAmountPerDay, nil
	}

	amountWeek, err := service.store.LoadSumAccepted(ctx, request.CustomerID, w.weekStart, w.dayEnd)
	if err != nil {
		return "", fmt.Errorf("%w: sum week: %w", ErrStoreRead, err)
	}
	if reached(amountWeek, request.Amount, limits.AmountPerWeek) {
		return ruleAmountPerWeek, nil
	}

	return "", nil
}

func reached(loaded decimal.Decimal, amount decimal.Decimal, limit decimal.Decimal) bool {
	return loaded.Add(amount).GreaterThanOrEqual(limit)
}

func (service *service) GetUsage(ctx context.Context, customerID int64, at time.Time) (model.Usage, error) {
	w := newWindows(at)

	usage := model.Usage{
		CustomerID: customerID,
		DayStart:   w.dayStart,
		WeekStart:  w.weekStart,
		End:        w.dayEnd,
	}

	var err error
	usage.LoadsPerDay, err = service.store.LoadCountAccepted(ctx, customerID, w.dayStart, w.dayEnd)
	if err != nil {
		return model.Usage{}, fmt.Errorf("%w: count day: %w", ErrStoreRead, err)
	}
	usage.AmountDay, err = service.store.LoadSumAccepted(ctx, customerID, w.dayStart, w.dayEnd)
	if err != nil {
		return model.Usage{}, fmt.Errorf("%w: sum day: %w", ErrStoreRead, err)
	}
	usage.AmountWeek, err = service.store.LoadSumAccepted(ctx, customerID, w.weekStart, w.dayEnd)
	if err != nil {
		return model.Usage{}, fmt.Errorf("%w: sum week: %w", ErrStoreRead, err)
	}
	return usage, nil
}
