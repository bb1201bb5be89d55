// Package engine implements the storefront cart engine: a shared state
// container that keeps a server-persisted cart in sync with every display
// surface. The engine never prices anything itself. Every total it exposes
// is a projection of the last snapshot returned by the store.
package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/bakery-cart/internal/cartapi"
)

// Store is the remote cart store. Implementations report failures as
// *cartapi.Error; anything else is treated as a server failure.
type Store interface {
	GetCart(ctx context.Context) (*cartapi.Snapshot, error)
	AddItem(ctx context.Context, req cartapi.AddItemRequest) error
	UpdateItem(ctx context.Context, itemID string, quantity int) error
	RemoveItem(ctx context.Context, itemID string) error
	ApplyCoupon(ctx context.Context, code string) error
	RemoveCoupon(ctx context.Context) error
}

// State is what display surfaces render.
type State struct {
	Snapshot cartapi.Snapshot
	// Loading is true while any operation of the current session is in flight.
	Loading bool
	// Err is the banner error of the last failed operation, cleared by the
	// next successful sync or ClearError.
	Err *cartapi.Error
	// Version increases with every published change.
	Version uint64
}

// Engine is the single cart state container of a session. It is safe for
// concurrent use; all surfaces should share one instance.
type Engine struct {
	store  Store
	lg     *zap.Logger
	tracer trace.Tracer
	opsCnt metric.Int64Counter

	// queue serializes remote mutations and their follow-up reloads.
	queue sync.Mutex
	loads singleflight.Group

	mu         sync.Mutex
	snap       cartapi.Snapshot
	err        *cartapi.Error
	inflight   int
	version    uint64
	epoch      uint64
	nextSeq    uint64
	appliedSeq uint64
	pending    map[string]*pendingQuantity
	watchers   map[*watcher]struct{}
}

type options struct {
	lg             *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) { o.lg = lg }
}

// WithTracerProvider sets the tracer provider used for operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for operation counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// New creates an Engine over store. The cart starts empty; call Load at
// session start.
func New(store Store, opts ...Option) (*Engine, error) {
	o := options{
		lg:             zap.NewNop(),
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	const name = "github.com/xenking/bakery-cart/internal/engine"
	opsCnt, err := o.meterProvider.Meter(name).Int64Counter("cart.engine.operations",
		metric.WithDescription("Cart engine operations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:    store,
		lg:       o.lg,
		tracer:   o.tracerProvider.Tracer(name),
		opsCnt:   opsCnt,
		snap:     emptySnapshot(),
		pending:  make(map[string]*pendingQuantity),
		watchers: make(map[*watcher]struct{}),
	}, nil
}

func emptySnapshot() cartapi.Snapshot {
	return cartapi.Snapshot{
		Items:     []cartapi.Item{},
		GiftItems: []cartapi.Item{},
	}
}

func cloneSnapshot(s cartapi.Snapshot) cartapi.Snapshot {
	s.Items = slices.Clone(s.Items)
	s.GiftItems = slices.Clone(s.GiftItems)
	return s
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Snapshot: cloneSnapshot(e.snap),
		Loading:  e.inflight > 0,
		Err:      e.err,
		Version:  e.version,
	}
}

// Snapshot returns the last applied snapshot.
func (e *Engine) Snapshot() cartapi.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSnapshot(e.snap)
}

// Subtotal is the store-computed sum of line totals.
func (e *Engine) Subtotal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Subtotal
}

// DiscountTotal is the manual plus the auto discount.
func (e *Engine) DiscountTotal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.DiscountTotal
}

// GrandTotal is the payable amount.
func (e *Engine) GrandTotal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.GrandTotal
}

// ItemCount is the number of purchasable units, for badges.
func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.ItemCount
}

// Loading reports whether any operation is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight > 0
}

// Err returns the banner error, if any.
func (e *Engine) Err() *cartapi.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// ClearError dismisses the banner error.
func (e *Engine) ClearError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		return
	}
	e.err = nil
	e.publishLocked()
}

// Reset discards all session state, e.g. on logout. Responses of operations
// started before Reset are ignored when they arrive.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.epoch++
	e.snap = emptySnapshot()
	e.err = nil
	e.inflight = 0
	e.appliedSeq = e.nextSeq
	e.pending = make(map[string]*pendingQuantity)
	e.publishLocked()
	e.lg.Debug("Cart reset", zap.Uint64("epoch", e.epoch))
}

// begin marks an operation of the current session as in flight. The returned
// func must be called exactly once when the operation settles.
func (e *Engine) begin() (epoch uint64, end func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch, e.beginLocked()
}

func (e *Engine) beginLocked() (end func()) {
	epoch := e.epoch
	e.inflight++
	if e.inflight == 1 {
		e.publishLocked()
	}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.epoch != epoch {
			return
		}
		e.inflight--
		if e.inflight == 0 {
			e.publishLocked()
		}
	}
}

// fail records err as the banner error unless its session has ended.
func (e *Engine) fail(epoch uint64, err *cartapi.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return
	}
	e.err = err
	e.publishLocked()
}

// nextLoad reserves a sequence number for a snapshot fetch.
func (e *Engine) nextLoad() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSeq++
	return e.nextSeq
}

// applyLocked replaces the snapshot with the result of fetch seq, unless the
// session changed or a later fetch was applied already.
func (e *Engine) applyLocked(epoch, seq uint64, snap *cartapi.Snapshot) bool {
	if e.epoch != epoch || seq <= e.appliedSeq {
		e.lg.Debug("Discarding stale snapshot",
			zap.Uint64("seq", seq),
			zap.Uint64("applied_seq", e.appliedSeq),
			zap.Bool("ended_session", e.epoch != epoch),
		)
		return false
	}
	next := cloneSnapshot(*snap)
	if next.Items == nil {
		next.Items = []cartapi.Item{}
	}
	if next.GiftItems == nil {
		next.GiftItems = []cartapi.Item{}
	}
	e.appliedSeq = seq
	e.snap = next
	e.err = nil
	e.publishLocked()
	return true
}
