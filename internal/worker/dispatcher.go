package worker

import "sync"

// Dispatcher is the coordination goroutine: a single consumer draining posted
// functions in order. All worker notifications and loop state mutations are
// marshaled through it, giving single-writer discipline without locks in the
// observers.
type Dispatcher struct {
	mu     sync.Mutex
	ch     chan func()
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the coordination goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		ch:   make(chan func(), 64),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for f := range d.ch {
		f()
	}
}

// Post enqueues f for execution on the coordination goroutine. Posts after
// Close are dropped.
func (d *Dispatcher) Post(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.ch <- f
}

// Close drains pending work and stops the goroutine. Blocks until the last
// posted function has run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}
