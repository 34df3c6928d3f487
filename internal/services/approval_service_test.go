package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/streamvault/backend/internal/models"
)

func TestApprovalWorkflow_Resolve(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ent := NewEntitlementService(db, nil)
	ledger := NewLedgerService(db, ent, nil)
	notifier := newCaptureNotifier()
	workflow := NewApprovalWorkflow(ledger, notifier)
	ctx := context.Background()

	t.Run("approve decision commits and notifies", func(t *testing.T) {
		expectTxBegin(mock)
		mock.ExpectQuery("FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry-1").
			WillReturnRows(pendingDepositRow("entry-1", "acct-1", 2500))
		mock.ExpectQuery("FROM accounts WHERE id = \\$1 OR user_id = \\$1 LIMIT 1 FOR UPDATE").
			WithArgs("acct-1").
			WillReturnRows(accountRow("acct-1", "user-1", 0, 1, nil))
		mock.ExpectExec("UPDATE ledger_entries SET status").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET available").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := workflow.Resolve(ctx, "entry-1", DecisionApprove, "mod-1", "")
		assert.NoError(t, err)
		assert.Equal(t, models.EntryCommitted, entry.Status)

		select {
		case ev := <-notifier.events:
			assert.Equal(t, EventDepositApproved, ev.Type)
			assert.Equal(t, "entry-1", ev.EntryID)
			assert.Equal(t, string(models.EntryCommitted), ev.NewState)
		case <-time.After(2 * time.Second):
			t.Fatal("no notification emitted")
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reject decision resolves and notifies with the reason", func(t *testing.T) {
		expectTxBegin(mock)
		mock.ExpectQuery("FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry-2").
			WillReturnRows(pendingDepositRow("entry-2", "acct-1", 1000))
		mock.ExpectExec("UPDATE ledger_entries SET status").
			WithArgs("rejected", "", "blurry screenshot", nil, "entry-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := workflow.Resolve(ctx, "entry-2", DecisionReject, "mod-1", "blurry screenshot")
		assert.NoError(t, err)
		assert.Equal(t, models.EntryRejected, entry.Status)

		select {
		case ev := <-notifier.events:
			assert.Equal(t, EventDepositRejected, ev.Type)
			assert.Equal(t, "blurry screenshot", ev.Reason)
		case <-time.After(2 * time.Second):
			t.Fatal("no notification emitted")
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ledger errors propagate without notification", func(t *testing.T) {
		expectTxBegin(mock)
		mock.ExpectQuery("FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry-3").
			WillReturnRows(sqlmock.NewRows(entryCols).
				AddRow("entry-3", "acct-1", "deposit", "rejected", int64(1000), "usd", "",
					nil, "", nil, "fraud", "mod-1", time.Now(), nil))
		mock.ExpectRollback()

		_, err := workflow.Resolve(ctx, "entry-3", DecisionApprove, "mod-2", "")
		assert.ErrorIs(t, err, ErrEntryNotPending)
		assert.Empty(t, notifier.events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown decision", func(t *testing.T) {
		_, err := workflow.Resolve(ctx, "entry-1", Decision("maybe"), "mod-1", "")
		assert.ErrorIs(t, err, ErrEntryNotPending)
	})
}
