package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"peerprep-matching/internal/matching"
	"peerprep-matching/internal/monitoring"
	"peerprep-matching/internal/storage"

	"github.com/go-chi/chi/v5"
)

// Confirmer is the slice of the confirmation flow the gateway needs.
type Confirmer interface {
	PairMatched(ctx context.Context, a, b *matching.Session) error
	Ready(ctx context.Context, userToken string) (bool, error)
	Decline(ctx context.Context, userToken string) error
}

// HistoryStore serves resolved match records.
type HistoryStore interface {
	GetMatchHistory(ctx context.Context, userID string, limit int) ([]storage.MatchRecord, error)
}

type MatchingHandler struct {
	engine  *matching.Engine
	confirm Confirmer
	history HistoryStore
}

func NewMatchingHandler(engine *matching.Engine, confirm Confirmer, history HistoryStore) *MatchingHandler {
	return &MatchingHandler{
		engine:  engine,
		confirm: confirm,
		history: history,
	}
}

type StartRequestBody struct {
	ID           string                `json:"id"`
	Email        string                `json:"email"`
	Difficulties matching.Difficulties `json:"difficulties"`
	Topics       []string              `json:"topics"`
	ProgLangs    []string              `json:"progLangs"`
}

type TokenRequestBody struct {
	UserToken string `json:"userToken"`
}

type MatchedUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type CheckStateResponse struct {
	Message     string           `json:"message"`
	RoomID      string           `json:"roomId,omitempty"`
	MatchedUser *MatchedUserInfo `json:"matchedUser,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Start registers the user and places them in the wait queue. Duplicate start
// requests for an already-waiting user are absorbed.
func (h *MatchingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var body StartRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := validateStartRequest(body); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	session := &matching.Session{
		ID:           body.ID,
		Email:        body.Email,
		Difficulties: body.Difficulties,
		Topics:       body.Topics,
		ProgLangs:    body.ProgLangs,
	}
	if err := h.engine.Register(session); err != nil {
		h.writeEngineError(w, err)
		return
	}

	log.Printf("[MATCHING] User %s started matching", body.ID)
	monitoring.SetQueueLengths(h.engine.Len(), h.engine.ConfirmationCount())
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "matching started"})
}

// CheckState is the short-poll endpoint: if the caller is unmatched it
// attempts a match, then reports "match found" or "matching".
func (h *MatchingHandler) CheckState(w http.ResponseWriter, r *http.Request) {
	var body TokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !h.engine.IsRegistered(body.UserToken) {
		h.writeError(w, http.StatusBadRequest, "unknown user", "This user does not exist in the matching service.")
		return
	}

	matched, err := h.engine.IsMatched(body.UserToken)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if !matched {
		matched, err = h.engine.TryMatchWith(body.UserToken)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		if matched {
			self, serr := h.engine.Session(body.UserToken)
			partner, perr := h.engine.MatchedUser(body.UserToken)
			if serr == nil && perr == nil && partner != nil {
				if cerr := h.confirm.PairMatched(r.Context(), self, partner); cerr != nil {
					log.Printf("[MATCHING] Failed to start confirmation for %s/%s: %v", self.ID, partner.ID, cerr)
				}
				monitoring.RecordMatch(time.Since(self.EnqueuedAt))
			}
			monitoring.SetQueueLengths(h.engine.Len(), h.engine.ConfirmationCount())
		}
	}

	if !matched {
		h.writeJSON(w, http.StatusOK, CheckStateResponse{Message: "matching"})
		return
	}

	resp := CheckStateResponse{Message: "match found"}
	if self, err := h.engine.Session(body.UserToken); err == nil {
		resp.RoomID = self.RoomID
	}
	if partner, err := h.engine.MatchedUser(body.UserToken); err == nil && partner != nil {
		resp.MatchedUser = &MatchedUserInfo{ID: partner.ID, Email: partner.Email}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Cancel removes a waiting user. It is idempotent: cancelling an unknown
// token succeeds.
func (h *MatchingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body TokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.engine.CancelMatching(body.UserToken)
	log.Printf("[MATCHING] User %s cancelled matching", body.UserToken)
	monitoring.RecordCancellation()
	monitoring.SetQueueLengths(h.engine.Len(), h.engine.ConfirmationCount())
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "success"})
}

// Ready marks the caller as ready for their match.
func (h *MatchingHandler) Ready(w http.ResponseWriter, r *http.Request) {
	var body TokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	confirmed, err := h.confirm.Ready(r.Context(), body.UserToken)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	monitoring.SetQueueLengths(h.engine.Len(), h.engine.ConfirmationCount())
	if confirmed {
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "confirmed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "waiting for peer"})
}

// Decline dismisses the caller's match.
func (h *MatchingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	var body TokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.confirm.Decline(r.Context(), body.UserToken); err != nil {
		h.writeEngineError(w, err)
		return
	}
	monitoring.SetQueueLengths(h.engine.Len(), h.engine.ConfirmationCount())
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "declined"})
}

// QueueStatus exposes the wait queue for operators.
func (h *MatchingHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"length":     h.engine.Len(),
		"userIds":    h.engine.WaitingIDs(),
		"userEmails": h.engine.WaitingEmails(),
	})
}

// MatchHistory returns a user's resolved matches, most recent first.
func (h *MatchingHandler) MatchHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user_id", "userID is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.GetMatchHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load match history", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"matches": records})
}

func validateStartRequest(body StartRequestBody) error {
	if body.ID == "" {
		return errors.New("id is required")
	}
	if body.Email == "" {
		return errors.New("email is required")
	}
	if body.Difficulties.None() {
		return errors.New("at least one difficulty must be selected")
	}
	return nil
}

func (h *MatchingHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matching.ErrNotRegistered):
		h.writeError(w, http.StatusBadRequest, "unknown user", "This user does not exist in the matching service.")
	case errors.Is(err, matching.ErrNotMatched):
		h.writeError(w, http.StatusBadRequest, "not matched", "This user is not matched with anyone.")
	case errors.Is(err, matching.ErrStateCorrupted):
		h.writeError(w, http.StatusInternalServerError, "matching state error", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "matching failed", err.Error())
	}
}

func (h *MatchingHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *MatchingHandler) writeError(w http.ResponseWriter, status int, error, message string) {
	log.Printf("[ERROR] HTTP %d - %s: %s", status, error, message)
	h.writeJSON(w, status, ErrorResponse{Error: error, Message: message})
}
