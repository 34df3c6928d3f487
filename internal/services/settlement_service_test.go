package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func newSettlementForTest(t *testing.T) (*SettlementService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	ent := NewEntitlementService(db, nil)
	ledger := NewLedgerService(db, ent, nil)
	return NewSettlementService(ledger, "TESTBIC1"), mock, func() { db.Close() }
}

func TestSettlementService_ExportDay(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	t.Run("exports approved deposits as pacs.008", func(t *testing.T) {
		service, mock, cleanup := newSettlementForTest(t)
		defer cleanup()

		committed := day.Add(10 * time.Hour)
		mock.ExpectQuery("FROM ledger_entries WHERE kind = 'deposit' AND status = 'committed'").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(entryCols).
				AddRow("entry-1", "acct-1", "deposit", "committed", int64(2500), "usd", "",
					nil, "transfer-ref-1", nil, "", "mod-1", committed, committed).
				AddRow("entry-2", "acct-2", "deposit", "committed", int64(1050), "usd", "",
					nil, "", nil, "", "mod-1", committed, committed))

		xmlDoc, count, err := service.ExportDay(ctx, day)
		assert.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.True(t, strings.HasPrefix(xmlDoc, "<?xml"))
		assert.Contains(t, xmlDoc, "entry-1")
		assert.Contains(t, xmlDoc, "entry-2")
		assert.Contains(t, xmlDoc, "USD")
		assert.Contains(t, xmlDoc, "TESTBIC1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty day exports nothing", func(t *testing.T) {
		service, mock, cleanup := newSettlementForTest(t)
		defer cleanup()

		mock.ExpectQuery("FROM ledger_entries WHERE kind = 'deposit' AND status = 'committed'").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(entryCols))

		xmlDoc, count, err := service.ExportDay(ctx, day)
		assert.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Empty(t, xmlDoc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMinorToDecimal(t *testing.T) {
	assert.Equal(t, 25.0, minorToDecimal(2500))
	assert.Equal(t, 10.5, minorToDecimal(1050))
	assert.Equal(t, 0.01, minorToDecimal(1))
}

func TestCurrencyCode(t *testing.T) {
	assert.Equal(t, "USD", currencyCode("usd"))
	assert.Equal(t, "EUR", currencyCode("eur"))
	assert.Equal(t, "USD", currencyCode(""))     // fallback
	assert.Equal(t, "USD", currencyCode("usdt")) // not a 3-letter code
}

func TestTruncateRef(t *testing.T) {
	assert.Equal(t, "fallback-id", truncateRef("", "fallback-id"))
	assert.Equal(t, "short-ref", truncateRef("short-ref", "fallback-id"))

	long := strings.Repeat("x", 50)
	assert.Len(t, truncateRef(long, "fallback-id"), 35)
}
