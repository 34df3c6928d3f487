package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/spf13/viper"

	"github.com/streamvault/backend/internal/services"
)

// WebhookHandler receives Telegram Bot API callback queries from the
// moderator chat's inline approve/reject buttons. It is a thin shim: parse,
// authenticate, and hand the decision to the same ApprovalWorkflow the
// admin REST surface uses.
type WebhookHandler struct {
	workflow *services.ApprovalWorkflow
}

func NewWebhookHandler(workflow *services.ApprovalWorkflow) *WebhookHandler {
	return &WebhookHandler{workflow: workflow}
}

type telegramUpdate struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		From struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// HandleUpdate processes one Telegram update
// @Summary Telegram webhook
// @Description Inline-keyboard callbacks from the moderator chat; secret-token authenticated
// @Tags webhook
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {string} string "Bad secret token"
// @Router /webhook/telegram [post]
func (h *WebhookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	secret := viper.GetString("telegram.webhook_secret")
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(got)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		services.SendErrorResponse(w, "Invalid update payload", http.StatusBadRequest, nil)
		return
	}

	// Telegram retries until it sees 200, so non-callback updates and
	// already-resolved entries must still acknowledge.
	if update.CallbackQuery == nil {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
		return
	}

	decision, entryID, ok := parseCallbackData(update.CallbackQuery.Data)
	if !ok {
		log.Printf("[WEBHOOK] unrecognized callback data: %q", update.CallbackQuery.Data)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
		return
	}

	moderator := update.CallbackQuery.From.Username
	if moderator == "" {
		moderator = "telegram"
	}

	reason := ""
	if decision == services.DecisionReject {
		reason = "rejected via telegram"
	}

	entry, err := h.workflow.Resolve(r.Context(), entryID, decision, "tg:"+moderator, reason)
	if err != nil {
		if services.Retryable(err) {
			services.SendLedgerError(w, err)
			return
		}
		// Terminal failures (already resolved the other way, unknown
		// entry) are logged and acknowledged; retrying won't help.
		log.Printf("[WEBHOOK] decision %s on entry %s failed: %v", decision, entryID, err)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "rejected", "error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "entry": entry})
}

func parseCallbackData(data string) (services.Decision, string, bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	switch parts[0] {
	case "approve":
		return services.DecisionApprove, parts[1], true
	case "reject":
		return services.DecisionReject, parts[1], true
	}
	return "", "", false
}
