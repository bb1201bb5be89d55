package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/auth"
	"github.com/xenking/bakery-cart/internal/cartapi"
)

// Authenticated verifies the bearer token and stores the user id in the
// request context. Requests without a valid token get 401.
func (h *Handler) Authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, cartapi.ErrorBody{Message: "missing bearer token"})
			return
		}

		userID, err := h.verifier.Verify(token)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, cartapi.ErrorBody{Message: "invalid or expired token"})
			return
		}

		ctx := auth.WithUser(r.Context(), userID)
		ctx = zctx.With(ctx, zap.String("user_id", userID))
		next(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
