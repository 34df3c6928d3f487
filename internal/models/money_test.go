package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMoney(t *testing.T) {
	t.Run("normalizes currency to lowercase", func(t *testing.T) {
		m, err := NewMoney(2500, "USD")
		assert.NoError(t, err)
		assert.Equal(t, int64(2500), m.Amount)
		assert.Equal(t, "usd", m.Currency)
	})

	t.Run("rejects amounts above the ceiling", func(t *testing.T) {
		_, err := NewMoney(MaxMinorUnits+1, "usd")
		assert.ErrorIs(t, err, ErrArithmeticOverflow)

		_, err = NewMoney(-MaxMinorUnits-1, "usd")
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("accepts the ceiling itself", func(t *testing.T) {
		_, err := NewMoney(MaxMinorUnits, "usd")
		assert.NoError(t, err)
	})
}

func TestMoney_Add(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Money
		want    int64
		wantErr error
	}{
		{"simple addition", USD(1000), USD(500), 1500, nil},
		{"negative operand", USD(1000), USD(-300), 700, nil},
		{"currency mismatch", USD(1000), Money{Amount: 500, Currency: "eur"}, 0, ErrCurrencyMismatch},
		{"overflow past ceiling", USD(MaxMinorUnits), USD(1), 0, ErrArithmeticOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}

func TestMoney_Subtract(t *testing.T) {
	got, err := USD(1000).Subtract(USD(250))
	assert.NoError(t, err)
	assert.Equal(t, int64(750), got.Amount)

	_, err = USD(1000).Subtract(Money{Amount: 1, Currency: "ngn"})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = USD(-MaxMinorUnits).Subtract(USD(1))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestMoney_Compare(t *testing.T) {
	less, err := USD(100).Compare(USD(200))
	assert.NoError(t, err)
	assert.Equal(t, -1, less)

	equal, err := USD(200).Compare(USD(200))
	assert.NoError(t, err)
	assert.Equal(t, 0, equal)

	greater, err := USD(300).Compare(USD(200))
	assert.NoError(t, err)
	assert.Equal(t, 1, greater)

	_, err = USD(100).Compare(Money{Amount: 100, Currency: "eur"})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_Negate(t *testing.T) {
	assert.Equal(t, int64(-500), USD(500).Negate().Amount)
	assert.Equal(t, int64(500), USD(-500).Negate().Amount)
	assert.True(t, USD(0).Negate().IsZero())
}

func TestMoney_Predicates(t *testing.T) {
	assert.True(t, USD(1).IsPositive())
	assert.True(t, USD(-1).IsNegative())
	assert.True(t, Zero("usd").IsZero())
	assert.True(t, USD(100).Equal(Money{Amount: 100, Currency: "USD"}))
	assert.False(t, USD(100).Equal(USD(101)))
}

func TestMoney_ToDisplay(t *testing.T) {
	tests := []struct {
		m    Money
		want string
	}{
		{USD(2500), "25.00 USD"},
		{USD(5), "0.05 USD"},
		{USD(-1234), "-12.34 USD"},
		{Money{Amount: 999, Currency: "eur"}, "9.99 EUR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.m.ToDisplay())
	}
}
