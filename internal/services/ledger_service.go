package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/streamvault/backend/internal/audit"
	"github.com/streamvault/backend/internal/config"
	"github.com/streamvault/backend/internal/models"
)

// LedgerService is the single entry point for every balance mutation.
// Each operation is one database transaction serialized per account: the
// account row is taken FOR UPDATE under a bounded lock_timeout, and the
// final balance write is version-checked. Two concurrent approvals, or a
// purchase racing a reversal, can never interleave into a bad balance.
type LedgerService struct {
	db       *sql.DB
	cfg      *config.LedgerConfig
	ent      *EntitlementService
	notifier Notifier
	audit    *audit.Logger
}

func NewLedgerService(db *sql.DB, ent *EntitlementService, notifier Notifier) *LedgerService {
	return &LedgerService{
		db:       db,
		cfg:      config.LoadLedgerConfig(),
		ent:      ent,
		notifier: notifier,
		audit:    audit.NewLogger(),
	}
}

const entryColumns = `id, account_id, kind, status, amount, currency, content_id,
	related_entry_id, external_ref, idempotency_key, reason, actor_ref, created_at, committed_at`

const accountColumns = `id, user_id, currency, available, reserved,
	subscription_expires_at, version, created_at, updated_at`

// CreateAccountTx opens a zero-balance account inside the caller's
// transaction. Used by registration so user and account commit together.
func (s *LedgerService) CreateAccountTx(tx *sql.Tx, userID string) (string, error) {
	accountID := uuid.New().String()
	_, err := tx.Exec(`
		INSERT INTO accounts (id, user_id, currency, available, reserved, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 1, NOW(), NOW())`,
		accountID, userID, s.cfg.Currency)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	return accountID, nil
}

// RequestDeposit records a pending deposit. No balance is touched until a
// moderator approves it. Replaying the same idempotency key returns the
// original entry instead of creating a second one.
func (s *LedgerService) RequestDeposit(ctx context.Context, accountID string, amount models.Money, externalRef, idempotencyKey string) (*models.LedgerEntry, error) {
	if amount.Amount <= 0 || amount.Amount < s.cfg.MinDepositAmount {
		return nil, ErrInvalidAmount
	}
	if amount.Amount > models.MaxMinorUnits {
		return nil, models.ErrArithmeticOverflow
	}

	if idempotencyKey != "" {
		if existing, err := s.entryByIdempotencyKey(ctx, idempotencyKey); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if _, err := amount.Compare(models.Zero(account.Currency)); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Kind:        models.KindDeposit,
		Status:      models.EntryPending,
		Amount:      amount.Amount,
		Currency:    account.Currency,
		ExternalRef: externalRef,
		CreatedAt:   time.Now(),
	}
	if idempotencyKey != "" {
		entry.IdempotencyKey = &idempotencyKey
	}

	if err := s.insertEntry(ctx, tx, entry); err != nil {
		// Two requests raced on the same key; the first one won.
		if isUniqueViolation(err) && idempotencyKey != "" {
			tx.Rollback()
			return s.entryByIdempotencyKey(ctx, idempotencyKey)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit request: %w", err)
	}

	s.audit.LogEntry("DEPOSIT_REQUESTED", entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	s.notify(Event{
		Type:      EventDepositRequested,
		AccountID: entry.AccountID,
		EntryID:   entry.ID,
		NewState:  string(models.EntryPending),
		Amount:    entry.Amount,
		Currency:  entry.Currency,
	})
	return entry, nil
}

// ApproveDeposit commits a pending deposit and credits the account exactly
// once. Approving an already-approved entry is an idempotent no-op that
// returns the stored entry; approving a rejected entry fails.
func (s *LedgerService) ApproveDeposit(ctx context.Context, entryID, approverRef string) (*models.LedgerEntry, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.lockEntry(ctx, tx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Kind != models.KindDeposit {
		return nil, ErrEntryNotPending
	}
	switch entry.Status {
	case models.EntryCommitted:
		return entry, nil
	case models.EntryRejected:
		return nil, ErrEntryNotPending
	}

	account, err := s.lockAccount(ctx, tx, entry.AccountID)
	if err != nil {
		return nil, err
	}

	credited, err := models.Money{Amount: account.Available, Currency: account.Currency}.Add(entry.Money())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.resolveEntry(ctx, tx, entry.ID, models.EntryCommitted, approverRef, "", &now); err != nil {
		return nil, err
	}
	if err := s.updateAccount(ctx, tx, account, credited.Amount, account.Reserved, account.SubscriptionExpiresAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit approval: %w", err)
	}

	entry.Status = models.EntryCommitted
	entry.ActorRef = approverRef
	entry.CommittedAt = &now

	s.audit.LogEntry("DEPOSIT_APPROVED", entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	return entry, nil
}

// RejectDeposit resolves a pending deposit without touching the balance.
// Idempotent under the same rule as ApproveDeposit.
func (s *LedgerService) RejectDeposit(ctx context.Context, entryID, reason string) (*models.LedgerEntry, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.lockEntry(ctx, tx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Kind != models.KindDeposit {
		return nil, ErrEntryNotPending
	}
	switch entry.Status {
	case models.EntryRejected:
		return entry, nil
	case models.EntryCommitted:
		return nil, ErrEntryNotPending
	}

	if err := s.resolveEntry(ctx, tx, entry.ID, models.EntryRejected, "", reason, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit rejection: %w", err)
	}

	entry.Status = models.EntryRejected
	entry.Reason = reason

	s.audit.LogEntry("DEPOSIT_REJECTED", entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	return entry, nil
}

// Purchase debits the price and grants the entitlement in one transaction.
// Content the account already owns, or that an active subscription covers,
// is a no-op returning the entry behind the prior grant.
func (s *LedgerService) Purchase(ctx context.Context, accountID, contentID string, price models.Money) (*models.LedgerEntry, error) {
	if price.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	// Already owned: return the purchase that granted it.
	if sourceID, ok, err := s.ent.activeGrantTx(ctx, tx, account.ID, contentID); err != nil {
		return nil, err
	} else if ok {
		return s.entryByIDTx(ctx, tx, sourceID)
	}

	// Covered by subscription: return the charge that opened the window.
	if account.SubscriptionActive(time.Now()) {
		entry, err := s.latestEntryTx(ctx, tx, account.ID, models.KindSubscriptionCharge)
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
		return entry, nil
	}

	if account.Available < price.Amount {
		s.audit.LogError("PURCHASE", "", account.ID, ErrInsufficientBalance)
		return nil, ErrInsufficientBalance
	}
	if _, err := price.Compare(models.Zero(account.Currency)); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &models.LedgerEntry{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Kind:        models.KindPurchase,
		Status:      models.EntryCommitted,
		Amount:      -price.Amount,
		Currency:    account.Currency,
		ContentID:   contentID,
		CreatedAt:   now,
		CommittedAt: &now,
	}
	if err := s.insertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.ent.grantTx(ctx, tx, account.ID, contentID, entry.ID); err != nil {
		return nil, err
	}
	if err := s.updateAccount(ctx, tx, account, account.Available-price.Amount, account.Reserved, account.SubscriptionExpiresAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}

	s.ent.invalidate(ctx, account.UserID, contentID)
	s.audit.LogEntry("PURCHASE", entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	s.notify(Event{
		Type:      EventPurchase,
		AccountID: entry.AccountID,
		EntryID:   entry.ID,
		NewState:  string(entry.Status),
		Amount:    entry.Amount,
		Currency:  entry.Currency,
	})
	return entry, nil
}

// Subscribe charges the subscription price and extends the access window:
// expiry moves to max(now, current expiry) + durationDays.
func (s *LedgerService) Subscribe(ctx context.Context, accountID string, price models.Money, durationDays int) (*models.LedgerEntry, error) {
	if price.Amount <= 0 || durationDays <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Available < price.Amount {
		s.audit.LogError("SUBSCRIBE", "", account.ID, ErrInsufficientBalance)
		return nil, ErrInsufficientBalance
	}
	if _, err := price.Compare(models.Zero(account.Currency)); err != nil {
		return nil, err
	}

	now := time.Now()
	base := now
	if account.SubscriptionExpiresAt != nil && account.SubscriptionExpiresAt.After(now) {
		base = *account.SubscriptionExpiresAt
	}
	newExpiry := base.AddDate(0, 0, durationDays)

	entry := &models.LedgerEntry{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Kind:        models.KindSubscriptionCharge,
		Status:      models.EntryCommitted,
		Amount:      -price.Amount,
		Currency:    account.Currency,
		CreatedAt:   now,
		CommittedAt: &now,
	}
	if err := s.insertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.updateAccount(ctx, tx, account, account.Available-price.Amount, account.Reserved, &newExpiry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subscription: %w", err)
	}

	s.audit.LogEntry("SUBSCRIBE", entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	s.notify(Event{
		Type:      EventSubscription,
		AccountID: entry.AccountID,
		EntryID:   entry.ID,
		NewState:  string(entry.Status),
		Amount:    entry.Amount,
		Currency:  entry.Currency,
	})
	return entry, nil
}

// Reverse undoes a committed purchase, subscription charge or approved
// deposit with a linked reversal entry. Purchases lose their entitlement.
// A deposit reversal that would drive the balance negative fails instead
// of breaking the non-negative invariant.
func (s *LedgerService) Reverse(ctx context.Context, entryID, reason string) (*models.LedgerEntry, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	original, err := s.lockEntry(ctx, tx, entryID)
	if err != nil {
		return nil, err
	}
	switch original.Kind {
	case models.KindPurchase, models.KindSubscriptionCharge, models.KindDeposit:
	default:
		return nil, ErrEntryNotReversible
	}
	if original.Status != models.EntryCommitted {
		return nil, ErrEntryNotReversible
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM ledger_entries
		WHERE related_entry_id = $1 AND kind = 'reversal'`, original.ID).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("check prior reversal: %w", err)
	}
	if existing > 0 {
		return nil, ErrEntryNotReversible
	}

	account, err := s.lockAccount(ctx, tx, original.AccountID)
	if err != nil {
		return nil, err
	}

	newAvailable := account.Available - original.Amount
	if newAvailable < 0 {
		return nil, ErrInsufficientBalance
	}
	if newAvailable > models.MaxMinorUnits {
		return nil, models.ErrArithmeticOverflow
	}

	now := time.Now()
	relatedID := original.ID
	reversal := &models.LedgerEntry{
		ID:             uuid.New().String(),
		AccountID:      account.ID,
		Kind:           models.KindReversal,
		Status:         models.EntryCommitted,
		Amount:         -original.Amount,
		Currency:       original.Currency,
		ContentID:      original.ContentID,
		RelatedEntryID: &relatedID,
		Reason:         reason,
		CreatedAt:      now,
		CommittedAt:    &now,
	}
	if err := s.insertEntry(ctx, tx, reversal); err != nil {
		return nil, err
	}
	if original.Kind == models.KindPurchase && original.ContentID != "" {
		if err := s.ent.revokeTx(ctx, tx, account.ID, original.ContentID); err != nil {
			return nil, err
		}
	}
	if err := s.updateAccount(ctx, tx, account, newAvailable, account.Reserved, account.SubscriptionExpiresAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reversal: %w", err)
	}

	if original.Kind == models.KindPurchase && original.ContentID != "" {
		s.ent.invalidate(ctx, account.UserID, original.ContentID)
	}
	s.audit.LogEntry("REVERSAL", reversal.ID, reversal.AccountID, reversal.Amount, string(reversal.Status))
	return reversal, nil
}

// AdminAdjust applies a signed manual correction. Negative adjustments
// respect the non-negative balance invariant.
func (s *LedgerService) AdminAdjust(ctx context.Context, accountID string, amount models.Money, reason, adjusterRef string) (*models.LedgerEntry, error) {
	if amount.Amount == 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	adjusted, err := models.Money{Amount: account.Available, Currency: account.Currency}.Add(amount)
	if err != nil {
		return nil, err
	}
	if adjusted.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	now := time.Now()
	entry := &models.LedgerEntry{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Kind:        models.KindAdminAdjustment,
		Status:      models.EntryCommitted,
		Amount:      amount.Amount,
		Currency:    account.Currency,
		Reason:      reason,
		ActorRef:    adjusterRef,
		CreatedAt:   now,
		CommittedAt: &now,
	}
	if err := s.insertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.updateAccount(ctx, tx, account, adjusted.Amount, account.Reserved, account.SubscriptionExpiresAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit adjustment: %w", err)
	}

	s.audit.LogEntry("ADMIN_ADJUSTMENT", entry.ID, entry.AccountID, entry.Amount, string(entry.Status))
	return entry, nil
}

// BalanceOf returns the current balances without locking.
func (s *LedgerService) BalanceOf(ctx context.Context, accountID string) (*models.Balance, error) {
	var b models.Balance
	err := s.db.QueryRowContext(ctx, `
		SELECT available, reserved, currency FROM accounts
		WHERE id = $1 OR user_id = $1
		LIMIT 1`, accountID).Scan(&b.Available, &b.Reserved, &b.Currency)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("balance query: %w", err)
	}
	return &b, nil
}

// AccountByUser resolves a user's account.
func (s *LedgerService) AccountByUser(ctx context.Context, userID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account query: %w", err)
	}
	return account, nil
}

// Entry fetches one ledger entry by ID.
func (s *LedgerService) Entry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, entryID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("entry query: %w", err)
	}
	return entry, nil
}

// ListEntries returns an account's history, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListPendingDeposits feeds the moderation queue, oldest first.
func (s *LedgerService) ListPendingDeposits(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE kind = 'deposit' AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// CommittedDepositsBetween returns approved deposits for settlement export.
func (s *LedgerService) CommittedDepositsBetween(ctx context.Context, from, to time.Time) ([]*models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE kind = 'deposit' AND status = 'committed'
		AND committed_at >= $1 AND committed_at < $2
		ORDER BY committed_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("settlement query: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ReplayBalance sums committed entries for an account. Used by tests and the
// admin reconciliation endpoint to prove the balance cache is honest.
func (s *LedgerService) ReplayBalance(ctx context.Context, accountID string) (int64, error) {
	var sum sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE account_id = $1 AND status = 'committed'`, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("replay query: %w", err)
	}
	return sum.Int64, nil
}

// --- internals ---

func (s *LedgerService) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	// Bounded lock acquisition: blocked row locks fail with 55P03, which
	// maps to ErrBusy so callers can retry instead of hanging.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.cfg.LockTimeout.Milliseconds())); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE id = $1 OR user_id = $1
		LIMIT 1
		FOR UPDATE`, accountID)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, mapLockError(err)
	}
	return account, nil
}

func (s *LedgerService) lockEntry(ctx context.Context, tx *sql.Tx, entryID string) (*models.LedgerEntry, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE id = $1
		FOR UPDATE`, entryID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, mapLockError(err)
	}
	return entry, nil
}

func (s *LedgerService) insertEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, kind, status, amount, currency, content_id,
			related_entry_id, external_ref, idempotency_key, reason, actor_ref, created_at, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.AccountID, e.Kind, e.Status, e.Amount, e.Currency, e.ContentID,
		e.RelatedEntryID, e.ExternalRef, e.IdempotencyKey, e.Reason, e.ActorRef, e.CreatedAt, e.CommittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *LedgerService) resolveEntry(ctx context.Context, tx *sql.Tx, entryID string, status models.EntryStatus, actorRef, reason string, committedAt *time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = $1, actor_ref = $2, reason = $3, committed_at = $4
		WHERE id = $5 AND status = 'pending'`,
		status, actorRef, reason, committedAt, entryID)
	if err != nil {
		return fmt.Errorf("resolve entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEntryNotPending
	}
	return nil
}

func (s *LedgerService) updateAccount(ctx context.Context, tx *sql.Tx, account *models.Account, available, reserved int64, expiresAt *time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET available = $1, reserved = $2, subscription_expires_at = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		available, reserved, expiresAt, time.Now(), account.ID, account.Version)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

func (s *LedgerService) entryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return entry, nil
}

func (s *LedgerService) entryByIDTx(ctx context.Context, tx *sql.Tx, entryID string) (*models.LedgerEntry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, entryID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("entry lookup: %w", err)
	}
	return entry, nil
}

func (s *LedgerService) latestEntryTx(ctx context.Context, tx *sql.Tx, accountID string, kind models.EntryKind) (*models.LedgerEntry, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id = $1 AND kind = $2 AND status = 'committed'
		ORDER BY created_at DESC
		LIMIT 1`, accountID, kind)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest entry lookup: %w", err)
	}
	return entry, nil
}

func (s *LedgerService) notify(ev Event) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Printf("[LEDGER] notification failed for entry %s: %v", ev.EntryID, err)
		}
	}()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Currency, &a.Available, &a.Reserved,
		&a.SubscriptionExpiresAt, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Status, &e.Amount, &e.Currency, &e.ContentID,
		&e.RelatedEntryID, &e.ExternalRef, &e.IdempotencyKey, &e.Reason, &e.ActorRef, &e.CreatedAt, &e.CommittedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func mapLockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03": // lock_not_available
			return ErrBusy
		case "40001": // serialization_failure
			return ErrConflict
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
