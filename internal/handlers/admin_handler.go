package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/services"
)

// AdminHandler is the moderator REST surface. It routes every deposit
// decision through the same ApprovalWorkflow the Telegram webhook uses,
// so both surfaces share one idempotent code path.
type AdminHandler struct {
	ledger     *services.LedgerService
	workflow   *services.ApprovalWorkflow
	codes      *services.DepositCodeService
	settlement *services.SettlementService
	validator  *services.ValidationHelper
}

func NewAdminHandler(ledger *services.LedgerService, workflow *services.ApprovalWorkflow, codes *services.DepositCodeService, settlement *services.SettlementService) *AdminHandler {
	return &AdminHandler{
		ledger:     ledger,
		workflow:   workflow,
		codes:      codes,
		settlement: settlement,
		validator:  services.NewValidationHelper(),
	}
}

// ListPendingDeposits returns the moderation queue
// @Summary Pending deposits
// @Description Deposit requests awaiting a decision, oldest first
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.LedgerEntry
// @Router /admin/deposits/pending [get]
func (h *AdminHandler) ListPendingDeposits(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListPendingDeposits(r.Context(), 100)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}

// ApproveDeposit approves a pending deposit
// @Summary Approve deposit
// @Description Credit the account for a pending deposit; idempotent on repeat
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Ledger entry ID"
// @Success 200 {object} models.LedgerEntry
// @Failure 409 {object} services.ErrorResponse "Already rejected"
// @Router /admin/deposits/{entryId}/approve [post]
func (h *AdminHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	moderator, _ := r.Context().Value("userID").(string)

	entry, err := h.workflow.Resolve(r.Context(), entryID, services.DecisionApprove, moderator, "")
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// RejectDeposit rejects a pending deposit
// @Summary Reject deposit
// @Description Resolve a pending deposit without crediting; idempotent on repeat
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Ledger entry ID"
// @Param request body object{reason=string} true "Rejection reason"
// @Success 200 {object} models.LedgerEntry
// @Router /admin/deposits/{entryId}/reject [post]
func (h *AdminHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	moderator, _ := r.Context().Value("userID").(string)

	var req struct {
		Reason string `json:"reason" validate:"required,max=200"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	entry, err := h.workflow.Resolve(r.Context(), entryID, services.DecisionReject, moderator, req.Reason)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// MatchDeposit approves a deposit by its transfer reference code
// @Summary Match incoming transfer
// @Description Consume a one-time reference code and approve the deposit it belongs to
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Transfer reference code"
// @Success 200 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse "Invalid or used code"
// @Router /admin/deposits/match [post]
func (h *AdminHandler) MatchDeposit(w http.ResponseWriter, r *http.Request) {
	moderator, _ := r.Context().Value("userID").(string)

	var req struct {
		Code string `json:"code" validate:"required,max=32"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	dc, err := h.codes.ValidateAndConsume(r.Context(), req.Code)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	entry, err := h.workflow.Resolve(r.Context(), dc.EntryID, services.DecisionApprove, moderator, "")
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// ReverseEntry reverses a committed entry
// @Summary Reverse entry
// @Description Undo a committed purchase, subscription charge or approved deposit via a linked reversal
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Ledger entry ID"
// @Param request body object{reason=string} true "Reversal reason"
// @Success 200 {object} models.LedgerEntry
// @Failure 409 {object} services.ErrorResponse "Not reversible"
// @Router /admin/entries/{entryId}/reverse [post]
func (h *AdminHandler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")

	var req struct {
		Reason string `json:"reason" validate:"required,max=200"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	entry, err := h.ledger.Reverse(r.Context(), entryID, req.Reason)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// AdjustAccount applies a manual balance correction
// @Summary Adjust balance
// @Description Apply a signed admin adjustment to an account
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body object{amount=int64,reason=string} true "Adjustment"
// @Success 200 {object} models.LedgerEntry
// @Failure 422 {object} services.ErrorResponse "Would drive balance negative"
// @Router /admin/accounts/{accountId}/adjust [post]
func (h *AdminHandler) AdjustAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	admin, _ := r.Context().Value("userID").(string)

	var req struct {
		Amount   int64  `json:"amount" validate:"required"`
		Currency string `json:"currency" validate:"omitempty,len=3"`
		Reason   string `json:"reason" validate:"required,max=200"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	currency := req.Currency
	if currency == "" {
		if balance, err := h.ledger.BalanceOf(r.Context(), accountID); err == nil {
			currency = balance.Currency
		}
	}

	entry, err := h.ledger.AdminAdjust(r.Context(), accountID, models.Money{Amount: req.Amount, Currency: currency}, req.Reason, admin)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// ExportSettlement exports a day's approved deposits as ISO 20022
// @Summary Settlement export
// @Description pacs.008 document covering one day of approved deposits
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param date query string false "Day to export (2006-01-02), defaults to yesterday"
// @Success 200 {object} object{date=string,transactions=int,xml=string}
// @Router /admin/settlement/export [get]
func (h *AdminHandler) ExportSettlement(w http.ResponseWriter, r *http.Request) {
	day := time.Now().AddDate(0, 0, -1)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid date, expected 2006-01-02", http.StatusBadRequest, nil)
			return
		}
		day = parsed
	}

	xmlDoc, count, err := h.settlement.ExportDay(r.Context(), day)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"date":         day.Format("2006-01-02"),
		"transactions": count,
		"xml":          xmlDoc,
	})
}

// ReconcileAccount replays the ledger against the cached balance
// @Summary Reconcile account
// @Description Sum committed entries and compare with the stored balance
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{available=int64,replayed=int64,consistent=bool}
// @Router /admin/accounts/{accountId}/reconcile [get]
func (h *AdminHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	balance, err := h.ledger.BalanceOf(r.Context(), accountID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	replayed, err := h.ledger.ReplayBalance(r.Context(), accountID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"available":  balance.Available,
		"replayed":   replayed,
		"consistent": balance.Available == replayed,
	})
}
