package engine

type watcher struct {
	ch chan State
}

// Watch subscribes to state changes. The channel always holds the latest
// state only; slow readers skip intermediate versions and never block the
// engine. The current state is delivered immediately. Call cancel to
// unsubscribe; the channel is closed afterwards.
func (e *Engine) Watch() (<-chan State, func()) {
	w := &watcher{ch: make(chan State, 1)}

	e.mu.Lock()
	e.watchers[w] = struct{}{}
	w.ch <- e.stateLocked()
	e.mu.Unlock()

	return w.ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.watchers[w]; !ok {
			return
		}
		delete(e.watchers, w)
		close(w.ch)
	}
}

// publishLocked bumps the version and hands the new state to every watcher.
func (e *Engine) publishLocked() {
	e.version++
	if len(e.watchers) == 0 {
		return
	}
	st := e.stateLocked()
	for w := range e.watchers {
		select {
		case <-w.ch:
		default:
		}
		select {
		case w.ch <- st:
		default:
		}
	}
}
