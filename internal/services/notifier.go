package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/streamvault/backend/internal/models"
)

// Event types emitted toward the notification collaborator.
const (
	EventDepositRequested = "deposit_requested"
	EventDepositApproved  = "deposit_approved"
	EventDepositRejected  = "deposit_rejected"
	EventPurchase         = "purchase"
	EventSubscription     = "subscription"
)

// Event is what the ledger tells the outside world. Delivery is best-effort;
// the ledger never blocks on it and never depends on it for correctness.
type Event struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
	EntryID   string `json:"entry_id"`
	NewState  string `json:"new_state"`
	Reason    string `json:"reason,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the process log. Used in tests and in
// deployments without a bot token.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ev Event) error {
	data, _ := json.Marshal(ev)
	log.Printf("[NOTIFY] %s", string(data))
	return nil
}

// TelegramNotifier delivers events to the moderator chat via the Bot API.
// New-deposit events carry inline approve/reject buttons whose callback
// data routes back through the webhook into the approval workflow.
type TelegramNotifier struct {
	client *http.Client
	token  string
	chatID string
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		chatID: chatID,
	}
}

func (tn *TelegramNotifier) Notify(ctx context.Context, ev Event) error {
	payload := map[string]any{
		"chat_id": tn.chatID,
		"text":    tn.format(ev),
	}
	if ev.Type == EventDepositRequested {
		payload["reply_markup"] = map[string]any{
			"inline_keyboard": [][]map[string]string{{
				{"text": "Approve", "callback_data": "approve:" + ev.EntryID},
				{"text": "Reject", "callback_data": "reject:" + ev.EntryID},
			}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", tn.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	}
	return nil
}

func (tn *TelegramNotifier) format(ev Event) string {
	amount := models.Money{Amount: ev.Amount, Currency: ev.Currency}
	switch ev.Type {
	case EventDepositRequested:
		return fmt.Sprintf("New deposit request %s\nAccount: %s\nAmount: %s", ev.EntryID, ev.AccountID, amount.ToDisplay())
	case EventDepositApproved:
		return fmt.Sprintf("Deposit %s approved for account %s", ev.EntryID, ev.AccountID)
	case EventDepositRejected:
		return fmt.Sprintf("Deposit %s rejected for account %s: %s", ev.EntryID, ev.AccountID, ev.Reason)
	case EventPurchase:
		return fmt.Sprintf("Purchase %s on account %s: %s", ev.EntryID, ev.AccountID, amount.ToDisplay())
	case EventSubscription:
		return fmt.Sprintf("Subscription charge %s on account %s: %s", ev.EntryID, ev.AccountID, amount.ToDisplay())
	}
	return fmt.Sprintf("Ledger event %s: entry %s state %s", ev.Type, ev.EntryID, ev.NewState)
}
