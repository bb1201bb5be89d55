package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/cartapi"
)

// pendingQuantity is the coalescing slot of one line. want is the latest
// requested quantity (zero removes); waiters receive the outcome of the
// request that finally settles the line.
type pendingQuantity struct {
	want    int
	waiters []chan result
}

type result struct {
	snap cartapi.Snapshot
	err  error
}

// setQuantity queues the desired quantity of a line. If a request for the
// same line is already in flight the new value replaces any queued one and
// the caller waits for the shared outcome.
func (e *Engine) setQuantity(ctx context.Context, op, itemID string, quantity int) (cartapi.Snapshot, error) {
	ctx, finish := e.observe(ctx, op)
	epoch, end := e.begin()
	defer end()

	done := make(chan result, 1)

	e.mu.Lock()
	if e.epoch != epoch {
		// Reset raced with begin.
		e.mu.Unlock()
		return e.Snapshot(), finish(nil)
	}
	if e.snap.IsGift(itemID) {
		e.mu.Unlock()
		err := cartapi.Rejected(cartapi.ReasonReadOnly, "Free gifts cannot be changed.")
		e.fail(epoch, err)
		return e.Snapshot(), finish(err)
	}
	p, ok := e.pending[itemID]
	if ok {
		p.want = quantity
		p.waiters = append(p.waiters, done)
		e.lg.Debug("Coalescing quantity update",
			zap.String("item_id", itemID),
			zap.Int("quantity", quantity),
		)
	} else {
		p = &pendingQuantity{want: quantity, waiters: []chan result{done}}
		e.pending[itemID] = p
		// The worker outlives the first caller's cancellation: later callers
		// depend on it.
		go e.drainQuantity(context.WithoutCancel(ctx), epoch, itemID, p, e.beginLocked())
	}
	e.mu.Unlock()

	select {
	case res := <-done:
		return res.snap, finish(res.err)
	case <-ctx.Done():
		err := cartapi.NetworkError(ctx.Err())
		e.fail(epoch, err)
		return e.Snapshot(), finish(err)
	}
}

// drainQuantity sends the latest wanted quantity of a line until the store
// has settled on it. Results of superseded requests are never applied.
func (e *Engine) drainQuantity(ctx context.Context, epoch uint64, itemID string, p *pendingQuantity, end func()) {
	e.queue.Lock()
	defer e.queue.Unlock()

	for {
		e.mu.Lock()
		sent := p.want
		e.mu.Unlock()

		var err error
		if sent == 0 {
			err = e.store.RemoveItem(ctx, itemID)
		} else {
			err = e.store.UpdateItem(ctx, itemID, sent)
		}

		if e.superseded(p, sent) {
			continue
		}

		var (
			seq  uint64
			snap *cartapi.Snapshot
		)
		if err == nil {
			seq = e.nextLoad()
			snap, err = e.store.GetCart(ctx)
		}

		e.mu.Lock()
		if p.want != sent {
			e.mu.Unlock()
			continue
		}
		if err == nil {
			e.applyLocked(epoch, seq, snap)
		} else if e.epoch == epoch {
			e.err = cartapi.AsError(err)
			e.publishLocked()
		}
		if e.pending[itemID] == p {
			delete(e.pending, itemID)
		}
		res := result{snap: cloneSnapshot(e.snap), err: err}
		waiters := p.waiters
		p.waiters = nil
		e.mu.Unlock()

		end()

		for _, w := range waiters {
			w <- res
		}
		return
	}
}

func (e *Engine) superseded(p *pendingQuantity, sent int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.want == sent {
		return false
	}
	e.lg.Debug("Quantity superseded", zap.Int("sent", sent), zap.Int("want", p.want))
	return true
}
