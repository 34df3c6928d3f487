package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/streamvault/backend/internal/models"
)

// Decision is a moderator's verdict on a pending deposit.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ApprovalWorkflow is the one road from any moderation surface (admin REST,
// Telegram callback) to the ledger's deposit resolution. pending → approved
// or rejected, terminal. The workflow never touches balances itself.
type ApprovalWorkflow struct {
	ledger   *LedgerService
	notifier Notifier
}

func NewApprovalWorkflow(ledger *LedgerService, notifier Notifier) *ApprovalWorkflow {
	return &ApprovalWorkflow{ledger: ledger, notifier: notifier}
}

// Resolve applies a moderator decision. Idempotent: repeating a decision
// that already stands returns the resolved entry; a conflicting decision
// on a terminal entry returns ErrEntryNotPending.
func (wf *ApprovalWorkflow) Resolve(ctx context.Context, entryID string, decision Decision, moderatorRef, reason string) (*models.LedgerEntry, error) {
	var (
		entry *models.LedgerEntry
		err   error
		state string
	)
	switch decision {
	case DecisionApprove:
		entry, err = wf.ledger.ApproveDeposit(ctx, entryID, moderatorRef)
		state = EventDepositApproved
	case DecisionReject:
		entry, err = wf.ledger.RejectDeposit(ctx, entryID, reason)
		state = EventDepositRejected
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrEntryNotPending, decision)
	}
	if err != nil {
		return nil, err
	}

	wf.emit(Event{
		Type:      state,
		AccountID: entry.AccountID,
		EntryID:   entry.ID,
		NewState:  string(entry.Status),
		Reason:    reason,
		Amount:    entry.Amount,
		Currency:  entry.Currency,
	})
	return entry, nil
}

func (wf *ApprovalWorkflow) emit(ev Event) {
	if wf.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wf.notifier.Notify(ctx, ev); err != nil {
			log.Printf("[APPROVAL] notification failed for entry %s: %v", ev.EntryID, err)
		}
	}()
}
