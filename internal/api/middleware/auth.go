package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/theblitlabs/sentinel/pkg/auth"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

type contextKey string

// ContributorAddressKey carries the authenticated wallet address through the
// request context.
const ContributorAddressKey contextKey = "contributor_address"

// Auth validates the Authorization bearer token on mutating endpoints and
// stashes the contributor address in the request context.
func Auth(secret string) mux.MiddlewareFunc {
	key := []byte(secret)
	log := logger.WithComponent("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := auth.VerifyToken(key, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				log.Debug().Err(err).
					Str("path", r.URL.Path).
					Msg("Rejected bearer token")
				http.Error(w, "Invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContributorAddressKey, claims.Address)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContributorAddress returns the authenticated address stored by Auth, or an
// empty string when the request was not authenticated.
func ContributorAddress(ctx context.Context) string {
	addr, _ := ctx.Value(ContributorAddressKey).(string)
	return addr
}
