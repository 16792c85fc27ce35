package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"chatserver/internal/config"
	"chatserver/internal/domain"
	"chatserver/internal/presence"
	"chatserver/internal/security"
	"chatserver/internal/service"
	"chatserver/internal/storage"
	"chatserver/internal/ws"
)

// Deps carries the wired infrastructure the router builds services from.
type Deps struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Participants  domain.ParticipantRepository
	Messages      domain.MessageRepository
	Objects       storage.ObjectStore
	Presence      presence.Registry
	Tokens        *security.TokenService
	Webhooks      *security.WebhookVerifier
	Hub           *ws.Hub
	Log           *zap.Logger
}

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware.
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	userSvc := service.NewUserService(d.Users, d.Conversations, d.Participants, d.Hub)
	convSvc := service.NewConversationService(d.Conversations, d.Participants, d.Users, d.Objects, d.Hub)
	msgSvc := service.NewMessageService(d.Messages, d.Conversations, d.Participants, d.Users, d.Objects, d.Hub, d.Log)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Trusted-internal surface: identity provider webhook, HMAC-signed.
	r.Post("/webhooks/identity", handleIdentityWebhook(userSvc, d.Webhooks, d.Log))

	// Authenticated API
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Tokens, d.Users, d.Log))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", handleListUsers(userSvc))
			r.Get("/me", handleMe(userSvc))
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", handleCreateConversation(convSvc))
			r.Get("/", handleListConversations(convSvc))
			r.Get("/{conversationID}/members", handleGroupMembers(userSvc))
			r.Post("/{conversationID}/kick", handleKickUser(convSvc))
			r.Post("/{conversationID}/exit", handleExitConversation(convSvc))
			r.Get("/{conversationID}/messages", handleListMessages(msgSvc))
			r.Post("/{conversationID}/messages", handleCreateMessage(msgSvc))
		})

		r.Post("/uploads", handleCreateUpload(d.Objects, d.Log))
	})

	// WebSocket endpoint: reactive query push and presence.
	r.Get("/ws", ws.MakeHandler(d.Hub, d.Tokens, d.Users, d.Presence, userSvc, cfg.CORSOrigins, d.Log))

	return r
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
