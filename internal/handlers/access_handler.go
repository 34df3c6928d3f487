package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/backend/internal/services"
)

// AccessHandler answers the content-serving layer's "may this user watch
// this" question. Pure read; nothing here counts views or mutates state.
type AccessHandler struct {
	entitlements *services.EntitlementService
}

func NewAccessHandler(entitlements *services.EntitlementService) *AccessHandler {
	return &AccessHandler{entitlements: entitlements}
}

// CheckAccess reports whether the caller may view the content
// @Summary Check content access
// @Description True when a permanent purchase grant exists or the subscription window covers now
// @Tags content
// @Produce json
// @Security BearerAuth
// @Param contentId path string true "Content ID"
// @Success 200 {object} object{contentId=string,hasAccess=bool}
// @Failure 401 {object} services.ErrorResponse
// @Router /content/{contentId}/access [get]
func (h *AccessHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	contentID := chi.URLParam(r, "contentId")
	hasAccess, err := h.entitlements.HasAccess(r.Context(), userID, contentID, time.Now())
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"contentId": contentID,
		"hasAccess": hasAccess,
	})
}
