package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/streamvault/backend/internal/audit"
	"github.com/streamvault/backend/internal/config"
)

// EntitlementService answers "may this user watch this content". A grant
// exists iff a committed purchase paid for it or an unexpired subscription
// covers it. HasAccess is a pure read: no counters, no side effects.
//
// Permanent grants are cached in Redis and invalidated on grant/revoke.
// Subscription windows are never cached; expiry is checked against the
// account row every time.
type EntitlementService struct {
	db    *sql.DB
	redis *redis.Client
	cfg   *config.LedgerConfig
	audit *audit.Logger
}

func NewEntitlementService(db *sql.DB, redisClient *redis.Client) *EntitlementService {
	return &EntitlementService{
		db:    db,
		redis: redisClient,
		cfg:   config.LoadLedgerConfig(),
		audit: audit.NewLogger(),
	}
}

// HasAccess reports whether the user can view the content at `now`.
func (es *EntitlementService) HasAccess(ctx context.Context, userID, contentID string, now time.Time) (bool, error) {
	if es.cachedGrant(ctx, userID, contentID) {
		return true, nil
	}

	var owned bool
	var expiresAt *time.Time
	err := es.db.QueryRowContext(ctx, `
		SELECT (e.content_id IS NOT NULL), a.subscription_expires_at
		FROM accounts a
		LEFT JOIN entitlements e
			ON e.account_id = a.id AND e.content_id = $2 AND e.revoked_at IS NULL
		WHERE a.user_id = $1`, userID, contentID).Scan(&owned, &expiresAt)
	if err == sql.ErrNoRows {
		return false, ErrAccountNotFound
	}
	if err != nil {
		return false, fmt.Errorf("access query: %w", err)
	}

	if owned {
		es.cacheGrant(ctx, userID, contentID)
		return true, nil
	}
	return expiresAt != nil && expiresAt.After(now), nil
}

// Grant records a permanent entitlement outside a ledger transaction.
// The ledger's purchase path uses grantTx instead so debit and grant
// commit together.
func (es *EntitlementService) Grant(ctx context.Context, accountID, contentID, sourceEntryID string) error {
	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grant: %w", err)
	}
	defer tx.Rollback()

	if err := es.grantTx(ctx, tx, accountID, contentID, sourceEntryID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	es.invalidateByAccount(ctx, accountID, contentID)
	return nil
}

// Revoke removes a permanent entitlement.
func (es *EntitlementService) Revoke(ctx context.Context, accountID, contentID string) error {
	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revoke: %w", err)
	}
	defer tx.Rollback()

	if err := es.revokeTx(ctx, tx, accountID, contentID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revoke: %w", err)
	}
	es.invalidateByAccount(ctx, accountID, contentID)
	return nil
}

// grantTx inserts or re-activates the entitlement row inside the caller's
// transaction. Re-purchasing after a reversal reuses the same row.
func (es *EntitlementService) grantTx(ctx context.Context, tx *sql.Tx, accountID, contentID, sourceEntryID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entitlements (account_id, content_id, source_entry_id, granted_at, revoked_at)
		VALUES ($1, $2, $3, NOW(), NULL)
		ON CONFLICT (account_id, content_id)
		DO UPDATE SET source_entry_id = $3, granted_at = NOW(), revoked_at = NULL`,
		accountID, contentID, sourceEntryID)
	if err != nil {
		return fmt.Errorf("grant entitlement: %w", err)
	}
	es.audit.LogAccess("ENTITLEMENT_GRANTED", accountID, contentID, sourceEntryID)
	return nil
}

func (es *EntitlementService) revokeTx(ctx context.Context, tx *sql.Tx, accountID, contentID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE entitlements SET revoked_at = NOW()
		WHERE account_id = $1 AND content_id = $2 AND revoked_at IS NULL`,
		accountID, contentID)
	if err != nil {
		return fmt.Errorf("revoke entitlement: %w", err)
	}
	es.audit.LogAccess("ENTITLEMENT_REVOKED", accountID, contentID, "")
	return nil
}

// activeGrantTx checks ownership inside a ledger transaction, returning the
// source entry that granted access.
func (es *EntitlementService) activeGrantTx(ctx context.Context, tx *sql.Tx, accountID, contentID string) (string, bool, error) {
	var sourceEntryID string
	err := tx.QueryRowContext(ctx, `
		SELECT source_entry_id FROM entitlements
		WHERE account_id = $1 AND content_id = $2 AND revoked_at IS NULL`,
		accountID, contentID).Scan(&sourceEntryID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("grant lookup: %w", err)
	}
	return sourceEntryID, true, nil
}

func (es *EntitlementService) cacheKey(userID, contentID string) string {
	return fmt.Sprintf("ent:%s:%s", userID, contentID)
}

func (es *EntitlementService) cachedGrant(ctx context.Context, userID, contentID string) bool {
	if es.redis == nil {
		return false
	}
	val, err := es.redis.Get(ctx, es.cacheKey(userID, contentID)).Result()
	return err == nil && val == "1"
}

func (es *EntitlementService) cacheGrant(ctx context.Context, userID, contentID string) {
	if es.redis == nil {
		return
	}
	if err := es.redis.Set(ctx, es.cacheKey(userID, contentID), "1", es.cfg.EntitlementCacheTTL).Err(); err != nil {
		log.Printf("[ENTITLEMENT] cache write failed: %v", err)
	}
}

// invalidate drops the cached grant for a user/content pair.
func (es *EntitlementService) invalidate(ctx context.Context, userID, contentID string) {
	if es.redis == nil {
		return
	}
	if err := es.redis.Del(ctx, es.cacheKey(userID, contentID)).Err(); err != nil {
		log.Printf("[ENTITLEMENT] cache invalidation failed: %v", err)
	}
}

// invalidateByAccount resolves the owning user, then invalidates.
func (es *EntitlementService) invalidateByAccount(ctx context.Context, accountID, contentID string) {
	if es.redis == nil {
		return
	}
	var userID string
	if err := es.db.QueryRowContext(ctx,
		`SELECT user_id FROM accounts WHERE id = $1`, accountID).Scan(&userID); err != nil {
		log.Printf("[ENTITLEMENT] user lookup for invalidation failed: %v", err)
		return
	}
	es.invalidate(ctx, userID, contentID)
}
