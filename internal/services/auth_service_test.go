package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	ent := NewEntitlementService(db, nil)
	ledger := NewLedgerService(db, ent, nil)
	service := NewAuthService(db, nil, ledger)

	t.Run("successful registration opens a wallet account", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "viewer@example.com",
			Password:    "password123",
			DisplayName: "Jane Viewer",
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), req.Email, req.DisplayName, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "usd").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.NotEmpty(t, response.AccountID)
		assert.Equal(t, req.Email, response.User.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{Email: "not-an-email", Password: "short", DisplayName: "x"})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	ent := NewEntitlementService(db, nil)
	ledger := NewLedgerService(db, ent, nil)
	service := NewAuthService(db, nil, ledger)

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, display_name, password_hash, role FROM users").
			WithArgs("viewer@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password_hash", "role"}).
				AddRow("user-1", "viewer@example.com", "Jane Viewer", hashedPassword, "user"))
		mock.ExpectQuery("FROM accounts WHERE user_id = \\$1").
			WithArgs("user-1").
			WillReturnRows(accountRow("acct-1", "user-1", 0, 1, nil))
		mock.ExpectExec("UPDATE users SET last_login").
			WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(LoginRequest{Email: "viewer@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "acct-1", response.AccountID)
		assert.Empty(t, response.User.PasswordHash)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, display_name, password_hash, role FROM users").
			WithArgs("viewer@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password_hash", "role"}).
				AddRow("user-1", "viewer@example.com", "Jane Viewer", hashedPassword, "user"))

		body, _ := json.Marshal(LoginRequest{Email: "viewer@example.com", Password: "wrongpassword"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, display_name, password_hash, role FROM users").
			WithArgs("ghost@example.com").
			WillReturnError(assert.AnError)

		body, _ := json.Marshal(LoginRequest{Email: "ghost@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHashAndVerifyPassword(t *testing.T) {
	setAuthTestConfig()

	hash, err := hashPassword("correct horse battery staple")
	assert.NoError(t, err)
	assert.Contains(t, hash, "$")
	assert.NotContains(t, hash, "correct horse")

	assert.True(t, verifyPassword("correct horse battery staple", hash))
	assert.False(t, verifyPassword("wrong password", hash))
	assert.False(t, verifyPassword("anything", "not-a-valid-hash"))

	// Same password, fresh salt, different hash.
	hash2, err := hashPassword("correct horse battery staple")
	assert.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	tokenString, err := generateJWT("user-1", "admin")
	assert.NoError(t, err)
	assert.True(t, strings.Count(tokenString, ".") == 2)

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "user-1", claims["user_id"])
	assert.Equal(t, "admin", claims["role"])
}
