package cartclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bakery-cart/internal/auth"
	"github.com/xenking/bakery-cart/internal/cartapi"
)

type mockTokens struct {
	token      string
	refreshed  string
	refreshErr error
	refreshes  atomic.Int32
}

func (m *mockTokens) Token(context.Context) (string, error) {
	return m.token, nil
}

func (m *mockTokens) Refresh(context.Context) (string, error) {
	m.refreshes.Add(1)
	if m.refreshErr != nil {
		return "", m.refreshErr
	}
	m.token = m.refreshed
	return m.refreshed, nil
}

const emptyCart = `{"items":[],"giftItems":[],"coupon":{"code":null,"discount":"0.00","autoCode":null,"autoDiscount":"0.00"},` +
	`"subtotal":"0.00","discountTotal":"0.00","grandTotal":"0.00","itemCount":0}`

func TestClient_GetCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, cartapi.PathCart, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(cartapi.HeaderRequestID))
		_, _ = w.Write([]byte(emptyCart))
	}))
	defer srv.Close()

	snap, err := New(srv.URL, StaticToken("tok")).GetCart(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

func TestClient_SendsRequestBodies(t *testing.T) {
	type seen struct{ method, path, body string }
	var got []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		got = append(got, seen{r.Method, r.URL.Path, string(body)})
		_, _ = w.Write([]byte(emptyCart))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", StaticToken("tok"))
	ctx := context.Background()
	require.NoError(t, c.AddItem(ctx, cartapi.AddItemRequest{ProductID: "cookies", Quantity: 2, Selection: cartapi.Selection{Grams: 250}}))
	require.NoError(t, c.UpdateItem(ctx, "line 1", 3))
	require.NoError(t, c.RemoveItem(ctx, "line-2"))
	require.NoError(t, c.ApplyCoupon(ctx, "SAVE10"))
	require.NoError(t, c.RemoveCoupon(ctx))

	assert.Equal(t, []seen{
		{http.MethodPost, "/api/cart/items", `{"productId":"cookies","quantity":2,"grams":250}`},
		{http.MethodPut, "/api/cart/items/line 1", `{"quantity":3}`},
		{http.MethodDelete, "/api/cart/items/line-2", ""},
		{http.MethodPost, "/api/cart/coupon", `{"code":"SAVE10"}`},
		{http.MethodDelete, "/api/cart/coupon", ""},
	}, got)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    cartapi.Kind
		wantReason  cartapi.Reason
		wantMessage string
	}{
		{
			name:        "coupon rejection keeps server message",
			status:      http.StatusUnprocessableEntity,
			body:        `{"code":422,"message":"This coupon has expired.","reason":"expired"}`,
			wantKind:    cartapi.KindRejected,
			wantReason:  cartapi.ReasonExpired,
			wantMessage: "This coupon has expired.",
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			body:        `{"code":404,"message":"cart item x not found","reason":"not_found"}`,
			wantKind:    cartapi.KindRejected,
			wantReason:  cartapi.ReasonNotFound,
			wantMessage: "cart item x not found",
		},
		{
			name:        "rejection without body",
			status:      http.StatusBadRequest,
			wantKind:    cartapi.KindRejected,
			wantReason:  cartapi.ReasonBadRequest,
			wantMessage: "Request was rejected (HTTP 400).",
		},
		{
			name:        "server error hides details",
			status:      http.StatusInternalServerError,
			body:        `{"code":500,"message":"pq: connection refused"}`,
			wantKind:    cartapi.KindServer,
			wantMessage: cartapi.MessageServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(srv.URL, StaticToken("tok")).ApplyCoupon(context.Background(), "X")

			var e *cartapi.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.wantReason, e.Reason)
			assert.Equal(t, tt.wantMessage, e.Message)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, StaticToken("tok")).GetCart(context.Background())

	var e *cartapi.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, cartapi.KindNetwork, e.Kind)
	assert.Equal(t, cartapi.MessageNetwork, e.Message)
}

func TestClient_MalformedSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, StaticToken("tok")).GetCart(context.Background())

	var e *cartapi.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, cartapi.KindServer, e.Kind)
}

func TestClient_RefreshOnUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(emptyCart))
	}))
	defer srv.Close()

	tokens := &mockTokens{token: "stale", refreshed: "fresh"}
	_, err := New(srv.URL, tokens).GetCart(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(1), tokens.refreshes.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_UnauthorizedAfterRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Run("retry still rejected", func(t *testing.T) {
		calls.Store(0)
		tokens := &mockTokens{token: "stale", refreshed: "also-stale"}
		err := New(srv.URL, tokens).RemoveCoupon(context.Background())

		var e *cartapi.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, cartapi.KindUnauthorized, e.Kind)
		assert.Equal(t, cartapi.MessageUnauthorized, e.Message)
		assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
	})

	t.Run("refresh fails", func(t *testing.T) {
		calls.Store(0)
		tokens := &mockTokens{token: "stale", refreshErr: errors.New("signed out")}
		err := New(srv.URL, tokens).RemoveCoupon(context.Background())

		var e *cartapi.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, cartapi.KindUnauthorized, e.Kind)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("static token cannot refresh", func(t *testing.T) {
		err := New(srv.URL, StaticToken("tok")).RemoveCoupon(context.Background())
		require.ErrorIs(t, err, ErrNoRefresh)
	})
}

func TestRefreshingTokenSource(t *testing.T) {
	secret := []byte("s")
	issuer := auth.NewIssuer(secret, time.Minute)
	expiring, err := issuer.Issue("u1")
	require.NoError(t, err)

	var refreshes atomic.Int32
	src := NewRefreshingTokenSource(expiring, 30*time.Second, func(context.Context) (string, error) {
		refreshes.Add(1)
		return auth.NewIssuer(secret, time.Hour).Issue("u1")
	})
	ctx := context.Background()

	tok, err := src.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, expiring, tok, "a minute left is outside the skew")
	assert.Zero(t, refreshes.Load())

	src.now = func() time.Time { return time.Now().Add(45 * time.Second) }
	tok, err = src.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, expiring, tok)
	assert.Equal(t, int32(1), refreshes.Load())

	again, err := src.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestRefreshingTokenSource_EmptyInitial(t *testing.T) {
	src := NewRefreshingTokenSource("", time.Second, func(context.Context) (string, error) {
		return "", errors.New("no session")
	})

	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh token")
}
