package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/streamvault/backend/internal/services"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data     string
		decision services.Decision
		entryID  string
		ok       bool
	}{
		{"approve:entry-1", services.DecisionApprove, "entry-1", true},
		{"reject:entry-2", services.DecisionReject, "entry-2", true},
		{"approve:", "", "", false},
		{"approve", "", "", false},
		{"delete:entry-1", "", "", false},
		{"", "", "", false},
		{"approve:entry:with:colons", services.DecisionApprove, "entry:with:colons", true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			decision, entryID, ok := parseCallbackData(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.decision, decision)
			assert.Equal(t, tt.entryID, entryID)
		})
	}
}

func TestWebhookHandler_secretToken(t *testing.T) {
	viper.Set("telegram.webhook_secret", "test-secret")
	defer viper.Set("telegram.webhook_secret", "")

	handler := NewWebhookHandler(nil)

	t.Run("missing token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":1}`))
		rec := httptest.NewRecorder()

		handler.HandleUpdate(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":1}`))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
		rec := httptest.NewRecorder()

		handler.HandleUpdate(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-callback update is acknowledged", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":1}`))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "test-secret")
		rec := httptest.NewRecorder()

		handler.HandleUpdate(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ignored")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{not json`))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "test-secret")
		rec := httptest.NewRecorder()

		handler.HandleUpdate(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unrecognized callback data is acknowledged", func(t *testing.T) {
		body := `{"update_id":1,"callback_query":{"id":"cb1","from":{"id":7,"username":"mod"},"data":"noop"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "test-secret")
		rec := httptest.NewRecorder()

		handler.HandleUpdate(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ignored")
	})
}
