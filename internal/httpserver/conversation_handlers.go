package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatserver/internal/service"
)

type conversationCreateRequest struct {
	ParticipantIDs []int64 `json:"participant_ids"`
	IsGroup        bool    `json:"is_group"`
	Name           *string `json:"name"`
	GroupName      *string `json:"group_name"`
	GroupImageID   *string `json:"group_image_id"`
	AdminID        *int64  `json:"admin_id"`
}

type kickRequest struct {
	UserID int64 `json:"user_id"`
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := requireUser(w, r)
		if caller == nil {
			return
		}
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		conv, err := convSvc.CreateConversation(r.Context(), service.ConversationCreateInput{
			ParticipantIDs: req.ParticipantIDs,
			IsGroup:        req.IsGroup,
			Name:           req.Name,
			GroupName:      req.GroupName,
			GroupImageID:   req.GroupImageID,
			AdminID:        req.AdminID,
		}, caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := CurrentIdentity(r)
		if id == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		// A valid identity without a provisioned record sees an empty list,
		// not an error: the webhook may still be in flight on first login.
		if id.User == nil {
			writeJSON(w, http.StatusOK, []*service.ConversationView{})
			return
		}
		convs, err := convSvc.ListForUser(r.Context(), id.User)
		if err != nil {
			writeError(w, err)
			return
		}
		if convs == nil {
			convs = []*service.ConversationView{}
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleKickUser(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := requireUser(w, r)
		if caller == nil {
			return
		}
		convID, ok := conversationIDParam(w, r)
		if !ok {
			return
		}
		var req kickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := convSvc.KickUser(r.Context(), convID, req.UserID, caller); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleExitConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := requireUser(w, r)
		if caller == nil {
			return
		}
		convID, ok := conversationIDParam(w, r)
		if !ok {
			return
		}
		status, err := convSvc.ExitConversation(r.Context(), convID, caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func conversationIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "conversationID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}
