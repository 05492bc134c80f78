// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package worker provides managed background goroutines with a shared
// halt signal.
package worker

import "sync"

// Worker manages a set of background goroutines that share one halt
// channel.  The zero value is ready to use.
type Worker struct {
	sync.WaitGroup
	initOnce sync.Once

	haltCh chan interface{}
}

// Go runs fn in a new goroutine tracked by the Worker.  More than one
// goroutine may be started under the same Worker.  It is fn's job to
// watch the channel returned by HaltCh and return when it is closed.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.init)
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Halt closes the halt channel and blocks until every goroutine started
// under the Worker has returned.
func (w *Worker) Halt() {
	w.initOnce.Do(w.init)
	close(w.haltCh)
	w.Wait()
}

// HaltCh returns the channel that is closed by Halt.
func (w *Worker) HaltCh() <-chan interface{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}

func (w *Worker) init() {
	w.haltCh = make(chan interface{})
}
