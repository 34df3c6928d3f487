package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is one line of the ledger audit trail. Every balance-affecting
// operation emits exactly one event, success or failure.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EntryID   string    `json:"entry_id"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogEntry records a committed or transitioned ledger entry.
func (a *Logger) LogEntry(eventType, entryID, accountID string, amount int64, status string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EntryID:   entryID,
		AccountID: accountID,
		Amount:    amount,
		Status:    status,
	})
}

// LogAccess records an entitlement grant or revocation.
func (a *Logger) LogAccess(eventType, accountID, contentID, entryID string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EntryID:   entryID,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   map[string]string{"content_id": contentID},
	})
}

// LogError records a failed operation against an account or entry.
func (a *Logger) LogError(eventType, entryID, accountID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EntryID:   entryID,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
