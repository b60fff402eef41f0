package model

import "github.com/shopspring/decimal"

const MilliScale = 1000

var milli = decimal.NewFromInt(MilliScale)

func ToMilli(v decimal.Decimal) int64 {
	return v.Mul(milli).Round(0).IntPart()
}

func FromMilli(v int64) decimal.Decimal {
	return decimal.New(v, -3)
}
