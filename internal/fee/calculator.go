// Package fee computes the platform fee split for a payment amount.
// Amounts are integer minor currency units; the rate is an exact decimal.
package fee

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRate   = errors.New("fee rate must be in [0, 1)")
)

// DefaultRate is the marketplace platform fee (5%)
var DefaultRate = decimal.RequireFromString("0.05")

// Split is the result of applying the platform fee to an amount.
// PlatformFee + WorkerAmount always equals Amount.
type Split struct {
	Amount       int64 `json:"amount"`
	PlatformFee  int64 `json:"platform_fee"`
	WorkerAmount int64 `json:"worker_amount"`
}

// Calculator applies a fixed fee rate
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator creates a calculator for the given rate
func NewCalculator(rate decimal.Decimal) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	return &Calculator{rate: rate}, nil
}

// NewDefaultCalculator creates a calculator using DefaultRate
func NewDefaultCalculator() *Calculator {
	return &Calculator{rate: DefaultRate}
}

// Rate returns the configured fee rate
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// Split computes (platformFee, workerAmount) for amount.
// The fee is rounded to the nearest minor unit, halves rounding up.
func (c *Calculator) Split(amount int64) (Split, error) {
	if amount <= 0 {
		return Split{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	platformFee := decimal.NewFromInt(amount).Mul(c.rate).Round(0).IntPart()

	return Split{
		Amount:       amount,
		PlatformFee:  platformFee,
		WorkerAmount: amount - platformFee,
	}, nil
}
