package middleware

import (
	"context"
	"net/http"
	"strings"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/model"

	"github.com/golang-jwt/jwt/v5"
)

const ActorKey contextKey = "actor"

type actorClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authentication parses the Bearer token and places the resolved actor on the
// request context. Requests without a valid token are rejected before they
// reach any handler.
func Authentication(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	secretBytes := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractBearerToken(r)
			if tokenStr == "" {
				rejectUnauthorized(w, log, r, "missing bearer token")
				return
			}

			claims := &actorClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secretBytes, nil
			})
			if err != nil || !token.Valid {
				rejectUnauthorized(w, log, r, "invalid token")
				return
			}

			if claims.Subject == "" {
				rejectUnauthorized(w, log, r, "token has no subject")
				return
			}

			actor := model.Actor{
				ID:    claims.Subject,
				Roles: claims.Roles,
			}
			if len(actor.Roles) == 0 {
				actor.Roles = []string{model.RoleClient}
			}

			ctx := context.WithValue(r.Context(), ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(model.Actor)
	return actor, ok
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func rejectUnauthorized(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	requestID := ""
	if rid := r.Context().Value(RequestIDKey); rid != nil {
		if id, ok := rid.(string); ok {
			requestID = id
		}
	}

	log.Warn("Unauthorized request",
		"request_id", requestID,
		"reason", reason,
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Authentication required"}`))
}
