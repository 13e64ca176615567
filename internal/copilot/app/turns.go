package app

import (
	"context"
	"sync"
	"time"
)

// turnGroup runs conversation turns in the background and lets shutdown wait
// for them before the database closes.
type turnGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTurnGroup() *turnGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &turnGroup{ctx: ctx, cancel: cancel}
}

// Go runs fn on its own goroutine with the group context.
func (g *turnGroup) Go(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx)
	}()
}

// Drain waits up to grace for running turns, then cancels the rest and waits
// for them to return. It reports whether turns had to be cancelled.
func (g *turnGroup) Drain(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		g.cancel()
		return false
	case <-timer.C:
	}
	g.cancel()
	<-done
	return true
}
