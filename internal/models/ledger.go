package models

import (
	"time"
)

// EntryKind categorises ledger entries.
type EntryKind string

const (
	KindDeposit            EntryKind = "deposit"
	KindPurchase           EntryKind = "purchase"
	KindSubscriptionCharge EntryKind = "subscription_charge"
	KindAdminAdjustment    EntryKind = "admin_adjustment"
	KindReversal           EntryKind = "reversal"
)

// EntryStatus is the lifecycle state of a ledger entry. Only deposits are
// born pending; every other kind commits in the transaction that creates it.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCommitted EntryStatus = "committed"
	EntryRejected  EntryStatus = "rejected"
)

// LedgerEntry is an immutable, append-only record of one balance-affecting
// event. The sum of committed amounts for an account must always equal the
// account's available balance; the balance column is a replayable cache.
type LedgerEntry struct {
	ID             string      `json:"id" db:"id"`
	AccountID      string      `json:"account_id" db:"account_id"`
	Kind           EntryKind   `json:"kind" db:"kind"`
	Status         EntryStatus `json:"status" db:"status"`
	Amount         int64       `json:"amount" db:"amount"` // signed, minor units
	Currency       string      `json:"currency" db:"currency"`
	ContentID      string      `json:"content_id,omitempty" db:"content_id"`
	RelatedEntryID *string     `json:"related_entry_id,omitempty" db:"related_entry_id"`
	ExternalRef    string      `json:"external_ref,omitempty" db:"external_ref"` // receipt URL, transfer code; opaque
	IdempotencyKey *string     `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Reason         string      `json:"reason,omitempty" db:"reason"`
	ActorRef       string      `json:"actor_ref,omitempty" db:"actor_ref"` // moderator / admin reference
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	CommittedAt    *time.Time  `json:"committed_at,omitempty" db:"committed_at"`
}

// Money returns the entry's signed delta as a Money value.
func (e *LedgerEntry) Money() Money {
	return Money{Amount: e.Amount, Currency: e.Currency}
}

// Resolved reports whether the entry has left the pending state.
func (e *LedgerEntry) Resolved() bool {
	return e.Status != EntryPending
}

// Account holds a user's balance state. Available and Reserved are minor
// units and never negative. Mutated only through the ledger service.
type Account struct {
	ID                    string     `json:"id" db:"id"`
	UserID                string     `json:"user_id" db:"user_id"`
	Currency              string     `json:"currency" db:"currency"`
	Available             int64      `json:"available" db:"available"`
	Reserved              int64      `json:"reserved" db:"reserved"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty" db:"subscription_expires_at"`
	Version               int        `json:"version" db:"version"` // for optimistic locking
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// SubscriptionActive reports whether a subscription window covers now.
func (a *Account) SubscriptionActive(now time.Time) bool {
	return a.SubscriptionExpiresAt != nil && a.SubscriptionExpiresAt.After(now)
}

// Balance is the read-only view returned by balance queries.
type Balance struct {
	Available int64  `json:"available"`
	Reserved  int64  `json:"reserved"`
	Currency  string `json:"currency"`
}

// Entitlement is a permanent access grant for one piece of content,
// always traceable to the committed purchase entry that paid for it.
type Entitlement struct {
	AccountID     string     `json:"account_id" db:"account_id"`
	ContentID     string     `json:"content_id" db:"content_id"`
	SourceEntryID string     `json:"source_entry_id" db:"source_entry_id"`
	GrantedAt     time.Time  `json:"granted_at" db:"granted_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}
