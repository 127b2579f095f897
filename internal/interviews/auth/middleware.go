package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// publicRoutes are reachable without a session.
var publicRoutes = map[string]bool{
	"POST /v1/auth/signup": true,
	"POST /v1/auth/login":  true,
	"GET /health":          true,
	"GET /metrics":         true,
}

// HTTPMiddleware rejects requests to protected routes that carry no valid
// session and stores the session in the request context otherwise.
func HTTPMiddleware(next http.Handler, sessions SessionResolver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isProtectedRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractTokenFromHeader(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		session, err := sessions.GetSession(r.Context(), tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// extractTokenFromHeader reads the bearer token. Browsers cannot set headers
// on WebSocket upgrades, so the access_token query parameter is accepted too.
func extractTokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header required")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid authorization format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return "", fmt.Errorf("invalid authorization format")
	}

	return tokenString, nil
}

func isProtectedRequest(r *http.Request) bool {
	if publicRoutes[r.Method+" "+r.URL.Path] {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/v1/")
}
