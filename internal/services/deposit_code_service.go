package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"log"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/streamvault/backend/internal/config"
)

// DepositCode is the single-use bank-transfer reference bound to a pending
// deposit entry. The user puts the code in their transfer narration; a
// moderator matches the incoming payment back to the entry by consuming it.
type DepositCode struct {
	Code      string    `json:"code"`
	EntryID   string    `json:"entryId"`
	AccountID string    `json:"accountId"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
}

// DepositCodeService issues and consumes transfer reference codes. Only the
// SHA-256 of a code is stored; issuance is rate limited per account through
// Redis when available.
type DepositCodeService struct {
	db     *sql.DB
	redis  *redis.Client
	config *config.DepositCodeConfig
}

func NewDepositCodeService(db *sql.DB, redisClient *redis.Client) *DepositCodeService {
	return &DepositCodeService{
		db:     db,
		redis:  redisClient,
		config: config.LoadDepositCodeConfig(),
	}
}

// Issue creates a reference code for a freshly requested deposit and renders
// the QR payment slip users scan at their banking app.
func (s *DepositCodeService) Issue(ctx context.Context, entryID, accountID string, amount int64) (string, string, error) {
	if err := s.checkRateLimit(ctx, accountID); err != nil {
		return "", "", err
	}

	code := s.generateSecureCode()
	hashedCode := s.hashCode(code)
	expiresAt := time.Now().Add(s.config.CodeTimeout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposit_codes (code_hash, entry_id, account_id, amount, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, false)`,
		hashedCode, entryID, accountID, amount, expiresAt)
	if err != nil {
		return "", "", fmt.Errorf("store deposit code: %w", err)
	}

	s.incrementRateLimit(ctx, accountID)

	slip, err := s.renderSlip(code, amount)
	if err != nil {
		return "", "", err
	}

	log.Printf("[DEPOSIT_CODE] issued for entry %s, expires %v", entryID, expiresAt)
	return code, slip, nil
}

// ValidateAndConsume marks a code used and returns the deposit it belongs
// to. FOR UPDATE keeps two moderators from consuming the same code.
func (s *DepositCodeService) ValidateAndConsume(ctx context.Context, code string) (*DepositCode, error) {
	hashedCode := s.hashCode(code)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var dc DepositCode
	err = tx.QueryRowContext(ctx, `
		SELECT entry_id, account_id, amount, expires_at, used
		FROM deposit_codes
		WHERE code_hash = $1
		FOR UPDATE`, hashedCode).Scan(&dc.EntryID, &dc.AccountID, &dc.Amount, &dc.ExpiresAt, &dc.Used)
	if err == sql.ErrNoRows {
		return nil, ErrCodeInvalid
	}
	if err != nil {
		return nil, err
	}

	if dc.Used {
		return nil, ErrCodeUsed
	}
	if time.Now().After(dc.ExpiresAt) {
		return nil, ErrCodeInvalid
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE deposit_codes SET used = true WHERE code_hash = $1`, hashedCode); err != nil {
		return nil, fmt.Errorf("consume deposit code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	dc.Code = code
	dc.Used = true
	return &dc, nil
}

func (s *DepositCodeService) checkRateLimit(ctx context.Context, accountID string) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf("deposit_code_rate:%s", accountID)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		log.Printf("[DEPOSIT_CODE] rate limit check failed: %v", err)
		return nil
	}
	if count >= s.config.MaxGenerationPerUser {
		return ErrRateLimited
	}
	return nil
}

func (s *DepositCodeService) incrementRateLimit(ctx context.Context, accountID string) {
	if s.redis == nil {
		return
	}
	key := fmt.Sprintf("deposit_code_rate:%s", accountID)
	if count, err := s.redis.Incr(ctx, key).Result(); err == nil && count == 1 {
		s.redis.Expire(ctx, key, s.config.RateLimitWindow)
	}
}

func (s *DepositCodeService) generateSecureCode() string {
	const digits = "0123456789"
	code := make([]byte, s.config.CodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		code[i] = digits[n.Int64()]
	}
	return s.config.CodePrefix + string(code)
}

func (s *DepositCodeService) hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// renderSlip encodes "code|amount" into a base64 QR PNG.
func (s *DepositCodeService) renderSlip(code string, amount int64) (string, error) {
	payload := fmt.Sprintf("%s|%d", code, amount)
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("render slip: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.config.QRSize)); err != nil {
		return "", fmt.Errorf("render slip: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
