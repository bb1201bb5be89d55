package engine

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/cartapi"
)

const (
	opLoad         = "load"
	opAddItem      = "add_item"
	opUpdateItem   = "update_quantity"
	opRemoveItem   = "remove_item"
	opApplyCoupon  = "apply_coupon"
	opRemoveCoupon = "remove_coupon"
)

// Load fetches the cart from the store and replaces the local snapshot.
// Concurrent calls share one request. On failure the previous snapshot is
// kept and the error is surfaced.
func (e *Engine) Load(ctx context.Context) (cartapi.Snapshot, error) {
	ctx, finish := e.observe(ctx, opLoad)
	epoch, end := e.begin()
	defer end()

	ch := e.loads.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return nil, e.reload(context.WithoutCancel(ctx), epoch)
	})
	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		cerr := cartapi.NetworkError(ctx.Err())
		e.fail(epoch, cerr)
		err = cerr
	}
	return e.Snapshot(), finish(err)
}

// AddItem adds quantity units of a product selection. The store merges the
// request into a matching line.
func (e *Engine) AddItem(ctx context.Context, productID string, quantity int, sel cartapi.Selection) (cartapi.Snapshot, error) {
	return e.mutate(ctx, opAddItem, func(ctx context.Context) error {
		return e.store.AddItem(ctx, cartapi.AddItemRequest{
			ProductID: productID,
			Quantity:  quantity,
			Selection: sel,
		})
	})
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
// Rapid updates of the same line are coalesced: the latest value wins and
// every caller observes the final outcome.
func (e *Engine) UpdateQuantity(ctx context.Context, itemID string, quantity int) (cartapi.Snapshot, error) {
	op := opUpdateItem
	if quantity <= 0 {
		op = opRemoveItem
		quantity = 0
	}
	return e.setQuantity(ctx, op, itemID, quantity)
}

// RemoveItem deletes a line. Gift lines are read-only.
func (e *Engine) RemoveItem(ctx context.Context, itemID string) (cartapi.Snapshot, error) {
	return e.setQuantity(ctx, opRemoveItem, itemID, 0)
}

// ApplyCoupon applies a manually entered code. The code is trimmed and
// upper-cased; a blank code is rejected without contacting the store.
func (e *Engine) ApplyCoupon(ctx context.Context, code string) (cartapi.Snapshot, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return e.rejectLocally(ctx, opApplyCoupon,
			cartapi.Rejected(cartapi.ReasonInvalidCode, "Please enter a coupon code."))
	}
	return e.mutate(ctx, opApplyCoupon, func(ctx context.Context) error {
		return e.store.ApplyCoupon(ctx, code)
	})
}

// RemoveCoupon clears the manual coupon. Auto-applied discounts stay.
func (e *Engine) RemoveCoupon(ctx context.Context) (cartapi.Snapshot, error) {
	return e.mutate(ctx, opRemoveCoupon, func(ctx context.Context) error {
		return e.store.RemoveCoupon(ctx)
	})
}

// mutate sends one remote mutation and reloads the snapshot after it. Both
// run under the queue so reloads are applied in submission order.
func (e *Engine) mutate(ctx context.Context, op string, send func(ctx context.Context) error) (cartapi.Snapshot, error) {
	ctx, finish := e.observe(ctx, op)
	epoch, end := e.begin()
	defer end()

	e.queue.Lock()
	defer e.queue.Unlock()

	if err := send(ctx); err != nil {
		cerr := cartapi.AsError(err)
		e.fail(epoch, cerr)
		return e.Snapshot(), finish(cerr)
	}
	err := e.reload(ctx, epoch)
	return e.Snapshot(), finish(err)
}

// reload fetches and applies the current snapshot.
func (e *Engine) reload(ctx context.Context, epoch uint64) error {
	seq := e.nextLoad()
	snap, err := e.store.GetCart(ctx)
	if err != nil {
		cerr := cartapi.AsError(err)
		e.fail(epoch, cerr)
		return cerr
	}

	e.mu.Lock()
	e.applyLocked(epoch, seq, snap)
	e.mu.Unlock()
	return nil
}

func (e *Engine) rejectLocally(ctx context.Context, op string, err *cartapi.Error) (cartapi.Snapshot, error) {
	_, finish := e.observe(ctx, op)
	e.mu.Lock()
	epoch := e.epoch
	e.mu.Unlock()

	e.fail(epoch, err)
	return e.Snapshot(), finish(err)
}

// observe starts a span for op. The returned func records the outcome and
// returns err as *cartapi.Error, or nil.
func (e *Engine) observe(ctx context.Context, op string) (context.Context, func(err error) error) {
	ctx, span := e.tracer.Start(ctx, "cart."+op)
	return ctx, func(err error) error {
		defer span.End()

		outcome := "ok"
		cerr := cartapi.AsError(err)
		if cerr != nil {
			outcome = cerr.Kind.String()
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Message)
		}
		e.opsCnt.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))

		if cerr == nil {
			e.lg.Debug("Cart operation succeeded", zap.String("op", op))
			return nil
		}
		e.lg.Warn("Cart operation failed",
			zap.String("op", op),
			zap.Stringer("kind", cerr.Kind),
			zap.String("reason", string(cerr.Reason)),
			zap.Int("status", cerr.Status),
			zap.Error(cerr.Err),
		)
		return cerr
	}
}
