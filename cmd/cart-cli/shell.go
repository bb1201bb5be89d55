package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/bakery-cart/internal/cartapi"
)

// lockedWriter serializes command output with banners printed from the
// watch goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// shell reads commands from in until EOF or "quit". Store failures are not
// printed by commands; the banner goroutine reports the engine's error state
// instead.
func (c *cli) shell(ctx context.Context, in io.Reader) error {
	out := &lockedWriter{w: c.out}
	sc := &cli{eng: c.eng, catalog: c.catalog, out: out}

	states, cancel := c.eng.Watch()
	var wg sync.WaitGroup
	wg.Go(func() {
		var shown string
		for st := range states {
			if st.Err == nil {
				shown = ""
				continue
			}
			if st.Err.Message == shown {
				continue
			}
			shown = st.Err.Message
			fmt.Fprintf(out, "! %s\n", shown)
		}
	})
	defer func() {
		cancel()
		wg.Wait()
	}()

	if _, err := sc.eng.Load(ctx); err == nil {
		_ = renderCart(out, sc.eng.Snapshot())
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "cart> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit":
			return nil
		case "clear":
			sc.eng.ClearError()
			continue
		case "shell":
			continue
		}
		if err := sc.run(ctx, args); err != nil && !reported(sc.eng.Err(), err) {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

// reported reports whether err is the engine's banner error.
func reported(banner *cartapi.Error, err error) bool {
	var cerr *cartapi.Error
	return banner != nil && errors.As(err, &cerr) && cerr == banner
}
