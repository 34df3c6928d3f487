package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/streamvault/backend/internal/models"
	"github.com/streamvault/backend/internal/services"
)

type WalletHandler struct {
	ledger    *services.LedgerService
	codes     *services.DepositCodeService
	validator *services.ValidationHelper
}

func NewWalletHandler(ledger *services.LedgerService, codes *services.DepositCodeService) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		codes:     codes,
		validator: services.NewValidationHelper(),
	}
}

// RequestDeposit opens a pending deposit
// @Summary Request a deposit
// @Description Create a pending deposit entry with a one-time transfer reference code and QR payment slip
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,receiptUrl=string,idempotencyKey=string} true "Deposit request"
// @Success 200 {object} object{entry=models.LedgerEntry,referenceCode=string,qrSlip=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/deposits [post]
func (h *WalletHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountFor(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount         int64  `json:"amount" validate:"required,gt=0"`
		ReceiptURL     string `json:"receiptUrl" validate:"omitempty,url"`
		IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=64"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	amount := models.Money{Amount: req.Amount, Currency: account.Currency}
	entry, err := h.ledger.RequestDeposit(r.Context(), account.ID, amount, req.ReceiptURL, req.IdempotencyKey)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	response := map[string]any{"entry": entry}
	if entry.Status == models.EntryPending {
		code, slip, err := h.codes.Issue(r.Context(), entry.ID, account.ID, entry.Amount)
		if err != nil {
			services.SendLedgerError(w, err)
			return
		}
		response["referenceCode"] = code
		response["qrSlip"] = slip
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Purchase unlocks a single piece of content
// @Summary Purchase content
// @Description Debit the wallet and grant a permanent entitlement; owned or subscription-covered content is a no-op
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{contentId=string,price=int64} true "Purchase request"
// @Success 200 {object} models.LedgerEntry
// @Failure 422 {object} services.ErrorResponse "Insufficient balance"
// @Router /wallet/purchases [post]
func (h *WalletHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountFor(w, r)
	if !ok {
		return
	}

	var req struct {
		ContentID string `json:"contentId" validate:"required,max=128"`
		Price     int64  `json:"price" validate:"required,gt=0"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	price := models.Money{Amount: req.Price, Currency: account.Currency}
	entry, err := h.ledger.Purchase(r.Context(), account.ID, req.ContentID, price)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// Subscribe opens or extends the subscription window
// @Summary Subscribe
// @Description Debit the subscription price and extend access to all subscription-gated content
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{price=int64,durationDays=int} true "Subscription request"
// @Success 200 {object} models.LedgerEntry
// @Failure 422 {object} services.ErrorResponse "Insufficient balance"
// @Router /wallet/subscriptions [post]
func (h *WalletHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountFor(w, r)
	if !ok {
		return
	}

	var req struct {
		Price        int64 `json:"price" validate:"required,gt=0"`
		DurationDays int   `json:"durationDays" validate:"required,gt=0,lte=365"`
	}
	if !decodeJSON(w, r, &req, h.validator) {
		return
	}

	price := models.Money{Amount: req.Price, Currency: account.Currency}
	entry, err := h.ledger.Subscribe(r.Context(), account.ID, price, req.DurationDays)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entry": entry})
}

// GetBalance returns the wallet balance
// @Summary Get balance
// @Description Current available and reserved balance in minor units
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Balance
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountFor(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), account.ID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balance)
}

// ListEntries returns wallet history
// @Summary List ledger entries
// @Description The account's ledger history, newest first
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.LedgerEntry
// @Router /wallet/entries [get]
func (h *WalletHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountFor(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.ListEntries(r.Context(), account.ID, 50)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}

func (h *WalletHandler) accountFor(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return nil, false
	}
	account, err := h.ledger.AccountByUser(r.Context(), userID)
	if err != nil {
		services.SendLedgerError(w, err)
		return nil, false
	}
	return account, true
}
