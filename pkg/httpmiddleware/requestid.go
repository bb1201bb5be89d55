package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request id in both directions. The cart client
// sets it on every store call, so one id follows an engine operation through
// client and server logs.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID adopts the caller's X-Request-ID, or mints one when it is missing
// or malformed, and echoes it back. The id is added to the context logger as
// request_id. Must run after InjectLogger.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, ok := adoptRequestID(r.Header.Get(HeaderRequestID))
			if !ok {
				zctx.From(ctx).Debug("Replacing request id",
					zap.Int("len", len(r.Header.Get(HeaderRequestID))),
				)
			}
			w.Header().Set(HeaderRequestID, id)

			ctx = context.WithValue(ctx, requestIDKey{}, id)
			ctx = zctx.With(ctx, zap.String("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// adoptRequestID returns the incoming id when it is printable ASCII of a
// sane length, else a fresh UUID. ok is false only when a supplied id was
// rejected.
func adoptRequestID(in string) (id string, ok bool) {
	if in == "" {
		return uuid.NewString(), true
	}
	printable := len(in) <= maxRequestIDLen && strings.IndexFunc(in, func(c rune) bool {
		return c < 0x20 || c > 0x7E
	}) < 0
	if !printable {
		return uuid.NewString(), false
	}
	return in, true
}
