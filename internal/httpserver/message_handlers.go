package httpserver

import (
	"encoding/json"
	"net/http"

	"chatserver/internal/domain"
	"chatserver/internal/service"
)

type messageCreateRequest struct {
	SenderID int64  `json:"sender_id"`
	Type     string `json:"message_type"`
	Content  string `json:"content"`
	ObjectID string `json:"object_id"`
}

func handleCreateMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := requireUser(w, r)
		if caller == nil {
			return
		}
		convID, ok := conversationIDParam(w, r)
		if !ok {
			return
		}
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		var (
			msg *domain.Message
			err error
		)
		switch domain.MessageType(req.Type) {
		case domain.MessageText:
			msg, err = msgSvc.SendText(r.Context(), caller, req.SenderID, convID, req.Content)
		case domain.MessageImage:
			msg, err = msgSvc.SendImage(r.Context(), caller, req.SenderID, convID, req.ObjectID)
		case domain.MessageVideo:
			msg, err = msgSvc.SendVideo(r.Context(), caller, req.SenderID, convID, req.ObjectID)
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message_type must be text, image or video"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := requireUser(w, r)
		if caller == nil {
			return
		}
		convID, ok := conversationIDParam(w, r)
		if !ok {
			return
		}
		msgs, err := msgSvc.ListMessages(r.Context(), convID, caller)
		if err != nil {
			writeError(w, err)
			return
		}
		if msgs == nil {
			msgs = []*service.MessageView{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}
