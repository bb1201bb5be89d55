// Package cartclient talks to the remote cart store over HTTP.
package cartclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/cartapi"
)

// maxResponseBytes bounds response payloads read from the store.
const maxResponseBytes = 4 << 20

// Client implements the cart store port over the HTTP contract. Every failure
// is returned as *cartapi.Error.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	lg      *zap.Logger
}

type options struct {
	httpClient     *http.Client
	timeout        time.Duration
	lg             *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) { o.lg = lg }
}

// WithTracerProvider sets the tracer provider of the transport.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider of the transport.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// New creates a Client for the store at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	o := options{
		timeout: 15 * time.Second,
		lg:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.httpClient
	if hc == nil {
		var otelOpts []otelhttp.Option
		if o.tracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tracerProvider))
		}
		if o.meterProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithMeterProvider(o.meterProvider))
		}
		hc = &http.Client{
			Timeout:   o.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelOpts...),
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		tokens:  tokens,
		lg:      o.lg,
	}
}

// GetCart fetches the authoritative cart snapshot.
func (c *Client) GetCart(ctx context.Context) (*cartapi.Snapshot, error) {
	var snap cartapi.Snapshot
	if err := c.do(ctx, http.MethodGet, cartapi.PathCart, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AddItem adds or increments a line.
func (c *Client) AddItem(ctx context.Context, req cartapi.AddItemRequest) error {
	return c.do(ctx, http.MethodPost, cartapi.PathCartItems, req, nil)
}

// UpdateItem sets the quantity of a line.
func (c *Client) UpdateItem(ctx context.Context, itemID string, quantity int) error {
	return c.do(ctx, http.MethodPut, cartapi.ItemPath(itemID), cartapi.UpdateQuantityRequest{Quantity: quantity}, nil)
}

// RemoveItem deletes a line.
func (c *Client) RemoveItem(ctx context.Context, itemID string) error {
	return c.do(ctx, http.MethodDelete, cartapi.ItemPath(itemID), nil, nil)
}

// ApplyCoupon submits a manual coupon code.
func (c *Client) ApplyCoupon(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, cartapi.PathCartCoupon, cartapi.ApplyCouponRequest{Code: code}, nil)
}

// RemoveCoupon clears the manual coupon.
func (c *Client) RemoveCoupon(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, cartapi.PathCartCoupon, nil, nil)
}

// ListProducts returns the catalog.
func (c *Client) ListProducts(ctx context.Context) (cartapi.Products, error) {
	var out cartapi.Products
	if err := c.do(ctx, http.MethodGet, cartapi.PathProducts, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one store call. A 401 triggers a single token refresh and
// retry; a second 401 or a failed refresh is reported as KindUnauthorized.
func (c *Client) do(ctx context.Context, method, path string, body cartapi.Encoder, out cartapi.Decoder) error {
	var payload []byte
	if body != nil {
		payload = cartapi.Marshal(body)
	}
	requestID := uuid.NewString()
	lg := c.lg.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return cartapi.Unauthorized(err)
	}

	resp, err := c.send(ctx, method, path, payload, token, requestID)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		lg.Debug("Store rejected credentials, refreshing")

		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return cartapi.Unauthorized(err)
		}
		resp, err = c.send(ctx, method, path, payload, token, requestID)
		if err != nil {
			return err
		}
	}
	defer drain(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return cartapi.NetworkError(errors.Wrap(err, "read response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb cartapi.ErrorBody
		if err := cartapi.Unmarshal(data, &eb); err != nil {
			lg.Debug("Undecodable error body", zap.Int("status", resp.StatusCode), zap.Error(err))
		}
		e := cartapi.FromStatus(resp.StatusCode, eb)
		lg.Debug("Store returned error",
			zap.Int("status", resp.StatusCode),
			zap.Stringer("kind", e.Kind),
			zap.String("reason", string(e.Reason)),
		)
		return e
	}

	if out == nil {
		return nil
	}
	if err := cartapi.Unmarshal(data, out); err != nil {
		return &cartapi.Error{
			Kind:    cartapi.KindServer,
			Status:  resp.StatusCode,
			Message: cartapi.MessageServer,
			Err:     errors.Wrap(err, "decode response"),
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token, requestID string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &cartapi.Error{Kind: cartapi.KindServer, Message: cartapi.MessageServer, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(cartapi.HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, cartapi.NetworkError(errors.Wrapf(err, "%s %s", method, path))
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}
