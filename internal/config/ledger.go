package config

import (
	"os"
	"strconv"
	"time"
)

type LedgerConfig struct {
	Currency            string
	LockTimeout         time.Duration
	MinDepositAmount    int64
	SubscriptionDays    int
	EntitlementCacheTTL time.Duration
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Currency:            getEnv("LEDGER_CURRENCY", "usd"),
		LockTimeout:         getEnvAsDuration("LEDGER_LOCK_TIMEOUT", 3*time.Second),
		MinDepositAmount:    getEnvAsInt64("LEDGER_MIN_DEPOSIT", 100),
		SubscriptionDays:    getEnvAsInt("LEDGER_SUBSCRIPTION_DAYS", 30),
		EntitlementCacheTTL: getEnvAsDuration("LEDGER_ENTITLEMENT_CACHE_TTL", 10*time.Minute),
	}
}

type DepositCodeConfig struct {
	CodeLength           int
	CodeTimeout          time.Duration
	MaxGenerationPerUser int
	RateLimitWindow      time.Duration
	CodePrefix           string
	QRSize               int
}

func LoadDepositCodeConfig() *DepositCodeConfig {
	return &DepositCodeConfig{
		CodeLength:           getEnvAsInt("DEPOSIT_CODE_LENGTH", 8),
		CodeTimeout:          getEnvAsDuration("DEPOSIT_CODE_TIMEOUT", 24*time.Hour),
		MaxGenerationPerUser: getEnvAsInt("DEPOSIT_MAX_GEN_PER_USER", 5),
		RateLimitWindow:      getEnvAsDuration("DEPOSIT_RATE_LIMIT_WINDOW", 1*time.Hour),
		CodePrefix:           getEnv("DEPOSIT_CODE_PREFIX", "SV"),
		QRSize:               getEnvAsInt("DEPOSIT_QR_SIZE", 256),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
