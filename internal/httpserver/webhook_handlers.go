package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"chatserver/internal/domain"
	"chatserver/internal/security"
	"chatserver/internal/service"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// webhookEvent is the identity provider's delivery envelope.
type webhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type webhookUserData struct {
	TokenIdentifier string `json:"token_identifier"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Image           string `json:"image"`
}

// handleIdentityWebhook is the trusted-internal surface: user provisioning
// and session presence events pushed by the identity provider. Deliveries
// are authenticated by an HMAC signature over the raw body, not by a bearer
// token.
func handleIdentityWebhook(userSvc *service.UserService, verifier *security.WebhookVerifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
			return
		}

		if !verifier.Verify(body, r.Header.Get(webhookSignatureHeader)) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook signature"})
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		var data webhookUserData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event data"})
			return
		}

		ctx := r.Context()
		switch event.Type {
		case "user.created":
			user, err := userSvc.Create(ctx, service.CreateUserInput{
				TokenIdentifier: data.TokenIdentifier,
				Email:           data.Email,
				Name:            data.Name,
				Image:           data.Image,
			})
			if errors.Is(err, domain.ErrConflict) {
				// Redelivery of an already-processed event.
				writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
				return
			}
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "user_id": user.ID})
		case "user.updated":
			if err := userSvc.UpdateImage(ctx, data.TokenIdentifier, data.Image); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case "session.created", "session.ended":
			online := event.Type == "session.created"
			if err := userSvc.SetOnlineByToken(ctx, data.TokenIdentifier, online); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			log.Warn("ignoring unknown webhook event", zap.String("type", event.Type))
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		}
	}
}
