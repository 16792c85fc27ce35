package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatserver/internal/domain"
	"chatserver/internal/presence"
	"chatserver/internal/security"
)

// OnlineSetter flips a user's online flag; only the first connect and last
// disconnect of a user's sessions cross this boundary.
type OnlineSetter interface {
	SetOnlineByID(ctx context.Context, id int64, online bool) error
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}

	// Browsers cannot set headers on WebSocket dials, so the token may also
	// ride in the subprotocol list: "bearer, <token>".
	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	return ""
}

// MakeHandler returns the HTTP handler for the /ws endpoint. The socket is
// push-only from the server's point of view: mutations arrive over the HTTP
// API, and the hub fans their effects out here. Connecting and disconnecting
// feed the presence registry, which drives the users' online flags.
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	registry presence.Registry,
	online OnlineSetter,
	allowedOrigins []string,
	log *zap.Logger,
) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin:  makeCheckOrigin(allowedOrigins),
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		subject, err := tokens.Subject(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		user, err := users.GetByTokenIdentifier(r.Context(), subject)
		if err != nil {
			log.Error("ws: user lookup failed", zap.String("subject", subject), zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws: upgrade failed", zap.Error(err))
			return
		}

		hub.Register(user.ID, conn)
		first, err := registry.Connect(r.Context(), user.ID)
		if err != nil {
			log.Error("ws: presence connect failed", zap.Int64("user_id", user.ID), zap.Error(err))
		} else if first {
			if err := online.SetOnlineByID(r.Context(), user.ID, true); err != nil {
				log.Error("ws: set online failed", zap.Int64("user_id", user.ID), zap.Error(err))
			}
		}

		log.Info("ws: connected", zap.Int64("user_id", user.ID))

		defer func() {
			hub.Unregister(user.ID, conn)
			conn.Close()

			// The request context is done once the handler returns.
			ctx := context.Background()
			last, err := registry.Disconnect(ctx, user.ID)
			if err != nil {
				log.Error("ws: presence disconnect failed", zap.Int64("user_id", user.ID), zap.Error(err))
				return
			}
			if last {
				if err := online.SetOnlineByID(ctx, user.ID, false); err != nil {
					log.Error("ws: set offline failed", zap.Int64("user_id", user.ID), zap.Error(err))
				}
			}
			log.Info("ws: disconnected", zap.Int64("user_id", user.ID))
		}()

		// Clients do not send application events over the socket; the read
		// loop only notices closure.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
