package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Wrap(okHandler(), mark("outer"), mark("inner")).ServeHTTP(httptest.NewRecorder(), request("10.0.0.1:1"))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	l.now = func() time.Time { return now }
	h := l.Middleware()(okHandler())

	serve := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:1234"))
		return w
	}

	w := serve()
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, http.StatusOK, serve().Code)

	w = serve()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	// Half of the previous window still counts.
	now = now.Add(90 * time.Second)
	assert.Equal(t, http.StatusOK, serve().Code)
	assert.Equal(t, http.StatusTooManyRequests, serve().Code)

	// Two idle windows reset the budget.
	now = now.Add(3 * time.Minute)
	assert.Equal(t, http.StatusOK, serve().Code)
}

func TestRateLimiter_Keys(t *testing.T) {
	tests := []struct {
		name   string
		cfg    RateLimitConfig
		first  func(r *http.Request)
		second func(r *http.Request)
		want   int
	}{
		{
			name:   "different IPs are independent",
			first:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" },
			second: func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" },
			want:   http.StatusOK,
		},
		{
			name:   "same IP on another port shares the budget",
			first:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" },
			second: func(r *http.Request) { r.RemoteAddr = "10.0.0.1:2" },
			want:   http.StatusTooManyRequests,
		},
		{
			name: "first forwarded hop is the client",
			first: func(r *http.Request) {
				r.RemoteAddr = "192.168.1.1:1"
				r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
			},
			second: func(r *http.Request) {
				r.RemoteAddr = "192.168.1.2:1"
				r.Header.Set("X-Forwarded-For", "203.0.113.50")
			},
			want: http.StatusTooManyRequests,
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{KeyFunc: func(r *http.Request) string {
				return r.Header.Get("Authorization")
			}},
			first:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer a") },
			second: func(r *http.Request) { r.Header.Set("Authorization", "Bearer b") },
			want:   http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Max = 1
			cfg.Window = time.Minute
			h := NewRateLimiter(cfg).Middleware()(okHandler())

			r1 := request("127.0.0.1:1")
			tt.first(r1)
			w1 := httptest.NewRecorder()
			h.ServeHTTP(w1, r1)
			require.Equal(t, http.StatusOK, w1.Code)

			r2 := request("127.0.0.1:1")
			tt.second(r2)
			w2 := httptest.NewRecorder()
			h.ServeHTTP(w2, r2)
			assert.Equal(t, tt.want, w2.Code)
		})
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	l.now = func() time.Time { return now }
	h := l.Middleware()(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), request("10.0.0.1:1"))
	h.ServeHTTP(httptest.NewRecorder(), request("10.0.0.2:1"))

	assert.Zero(t, l.evict(now.Add(time.Minute)))
	assert.Equal(t, 2, l.evict(now.Add(2*time.Minute)))
	assert.Empty(t, l.windows)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
		wantCreds  bool
	}{
		{
			name:       "any origin",
			method:     http.MethodGet,
			origin:     "https://shop.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "listed origin matched case-insensitively",
			cfg:        CORSConfig{AllowOrigins: []string{"https://Shop.example.com"}},
			method:     http.MethodGet,
			origin:     "https://shop.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://Shop.example.com",
		},
		{
			name:       "unlisted origin gets no headers",
			cfg:        CORSConfig{AllowOrigins: []string{"https://shop.example.com"}},
			method:     http.MethodGet,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "credentials echo the origin",
			cfg:        CORSConfig{AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "https://shop.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://shop.example.com",
			wantCreds:  true,
		},
		{
			name:       "preflight is answered",
			cfg:        CORSConfig{MaxAge: 600},
			method:     http.MethodOptions,
			origin:     "https://shop.example.com",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantOrigin: "*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := CORS(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/cart", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPut)
				req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials") == "true")
			assert.Equal(t, !tt.preflight, called)
			if tt.preflight {
				assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "Authorization, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
			} else if tt.wantOrigin != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), HeaderRequestID)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("oven on fire")
	}), InjectLogger(zap.New(core)), Recovery())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.1:1"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Panic recovered", logs.All()[0].Message)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		zctx.From(r.Context()).Info("Handled")
	}), RequestID())

	t.Run("reuses a valid id", func(t *testing.T) {
		req := request("10.0.0.1:1")
		req.Header.Set(HeaderRequestID, "req-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
	})
	t.Run("replaces an invalid id", func(t *testing.T) {
		req := request("10.0.0.1:1")
		req.Header.Set(HeaderRequestID, "bad\x01id")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
	})
}

func TestAdoptRequestID(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantSame bool
		wantOK   bool
	}{
		{name: "engine uuid", in: "3f1c2a7e-7c1d-4d4e-9b1a-0c2f5e6d7a8b", wantSame: true, wantOK: true},
		{name: "printable", in: "cart-cli 42", wantSame: true, wantOK: true},
		{name: "longest allowed", in: strings.Repeat("a", maxRequestIDLen), wantSame: true, wantOK: true},
		{name: "missing", in: "", wantOK: true},
		{name: "too long", in: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "control byte", in: "line\nbreak"},
		{name: "non ascii", in: "корзина"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := adoptRequestID(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantSame {
				assert.Equal(t, tt.in, id)
				return
			}
			_, err := uuid.Parse(id)
			assert.NoError(t, err, "a fresh uuid is minted")
		})
	}
}

func TestRequestID_LogsReplacement(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), InjectLogger(zap.New(core)), RequestID())

	req := request("10.0.0.1:1")
	req.Header.Set(HeaderRequestID, strings.Repeat("x", maxRequestIDLen+1))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("Replacing request id").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, maxRequestIDLen+1, entries[0].ContextMap()["len"])
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	mux.HandleFunc("POST /api/cart/items", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := Wrap(mux, InjectLogger(zap.New(core)), RequestID(), LogRequests(MakeRouteFinder(mux)))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cart/items", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	ok := entries[0].ContextMap()
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "GET /api/cart", ok["route"])
	assert.EqualValues(t, 200, ok["status"])
	assert.EqualValues(t, 2, ok["bytes"])
	assert.NotEmpty(t, ok["request_id"])

	failed := entries[1].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, 500, failed["status"])
}
