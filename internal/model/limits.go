package model

import "github.com/shopspring/decimal"

// Лимиты пополнений

type Limits struct {
	LoadsPerDay   int64
	AmountPerDay  decimal.Decimal
	AmountPerWeek decimal.Decimal
}

const (
	LoadsPerDay   = 3
	AmountPerDay  = 5000
	AmountPerWeek = 20000
)

func DefaultLimits() Limits {
	return Limits{
		LoadsPerDay:   LoadsPerDay,
		AmountPerDay:  decimal.NewFromInt(AmountPerDay),
		AmountPerWeek: decimal.NewFromInt(AmountPerWeek),
	}
}
