// Package reloader runs callbacks on process signals.
package reloader

import (
	"os"
	"os/signal"
	"syscall"
)

// OnSignal calls fn for every delivery of sigs until the returned stop func
// is called.
func OnSignal(fn func(), sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				fn()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

func OnSIGHUP(fn func()) (stop func()) { return OnSignal(fn, syscall.SIGHUP) }

func OnSIGUSR1(fn func()) (stop func()) { return OnSignal(fn, syscall.SIGUSR1) }
