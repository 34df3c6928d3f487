package models

import (
	"errors"
	"fmt"
	"strings"
)

// Money is a monetary value in the smallest currency unit (cents, pence).
// Balances never touch floating point; all arithmetic is integer-only.
type Money struct {
	Amount   int64  `json:"amount"`   // minor units
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur"
}

// MaxMinorUnits caps the magnitude of any amount. 2^53 keeps every value
// exactly representable by JSON number consumers.
const MaxMinorUnits = int64(1) << 53

var (
	ErrCurrencyMismatch   = errors.New("money: currency mismatch")
	ErrArithmeticOverflow = errors.New("money: amount magnitude exceeds ceiling")
)

// NewMoney builds a Money value, normalizing the currency code and
// enforcing the magnitude ceiling.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount > MaxMinorUnits || amount < -MaxMinorUnits {
		return Money{}, ErrArithmeticOverflow
	}
	return Money{Amount: amount, Currency: strings.ToLower(currency)}, nil
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money {
	return Money{Amount: 0, Currency: strings.ToLower(currency)}
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.Amount+other.Amount, m.Currency)
}

// Subtract returns m - other.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.Amount-other.Amount, m.Currency)
}

// Negate flips the sign. The ceiling is symmetric, so this cannot overflow.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && strings.EqualFold(m.Currency, other.Currency)
}

// Compare returns -1, 0 or 1 ordering m against other.
func (m Money) Compare(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	}
	return 0, nil
}

// ToDisplay renders the amount for user-facing surfaces, e.g. "25.00 USD".
// This is the only place minor units are divided for display.
func (m Money) ToDisplay() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(m.Currency))
}

func (m Money) sameCurrency(other Money) error {
	if !strings.EqualFold(m.Currency, other.Currency) {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}
