package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Входящие запросы на пополнение. Сумма в центах: не больше AmountScale знаков после точки,
// столько же хранит журнал в PostgreSQL.

const AmountScale = 2

type LoadRequest struct {
	ID         int64
	CustomerID int64
	Amount     decimal.Decimal
	Time       time.Time
}

// Журнал пополнений. Запись создается один раз на каждый не повторный запрос,
// в том числе отклоненный, и больше не изменяется.

type LoadRecord struct {
	ID         int64
	CustomerID int64
	Amount     decimal.Decimal
	Time       time.Time
	Accepted   bool
}

func NewLoadRecord(req LoadRequest, accepted bool) LoadRecord {
	return LoadRecord{
		ID:         req.ID,
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Time:       req.Time,
		Accepted:   accepted,
	}
}

// Ответ

type LoadResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Accepted   bool   `json:"accepted"`
}

func NewLoadResponse(req LoadRequest, accepted bool) LoadResponse {
	return LoadResponse{
		ID:         strconv.FormatInt(req.ID, 10),
		CustomerID: strconv.FormatInt(req.CustomerID, 10),
		Accepted:   accepted,
	}
}

// Использование лимитов клиентом на дату запроса

type Usage struct {
	CustomerID  int64
	DayStart    time.Time
	WeekStart   time.Time
	End         time.Time
	LoadsPerDay int64
	AmountDay   decimal.Decimal
	AmountWeek  decimal.Decimal
}

// Тело ответа с ошибкой. Code позволяет клиенту отличить сбой чтения
// хранилища, после которого можно перейти к следующему запросу.

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeStoreRead      = "store_read"
	ErrorCodeLockTimeout    = "lock_timeout"
	ErrorCodeInternal       = "internal"
)
