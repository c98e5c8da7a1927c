package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/cinnamona/bakery/internal/auth"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// token's claims in the request context.
func RequireAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httpError(w, http.StatusUnauthorized, "No token provided")
				return
			}
			claims, err := issuer.Verify(token)
			if err != nil {
				httpError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      auth.User `json:"user"`
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeInto(w, r, &req); err != nil {
			deps.fail(w, r, err, "")
			return
		}
		if req.Email == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "Email and password required")
			return
		}

		user, err := deps.Credentials.Authenticate(req.Email, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			deps.Logger.Warn("failed admin login", "email", req.Email, "remote", r.RemoteAddr)
			httpError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if err != nil {
			deps.fail(w, r, err, "")
			return
		}

		token, exp, err := deps.Issuer.Issue(user)
		if err != nil {
			deps.fail(w, r, err, "")
			return
		}

		// token and user are repeated at the top level for older admin clients.
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    loginResult{Token: token, ExpiresAt: exp, User: user},
			"token":   token,
			"user":    user,
		})
	}
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "No token provided")
		return
	}
	writeData(w, http.StatusOK, claims.User())
}
