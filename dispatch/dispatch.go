// Package dispatch runs callbacks asynchronously, one after the other, in the order they were posted.
package dispatch

import "sync"

// Dispatcher runs the posted functions one after the other on its own goroutine, in the order they
// were posted. Post never blocks, the queue is unbounded.
type Dispatcher struct {
	lock   sync.Mutex
	queue  []func()
	signal chan struct{}
	closed chan struct{}
	done   chan struct{}
}

// New starts a dispatcher.
func New() *Dispatcher {
	result := &Dispatcher{
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go result.run()
	return result
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.closed:
			return
		case <-d.signal:
		}

		for {
			d.lock.Lock()
			if len(d.queue) == 0 {
				d.lock.Unlock()
				break
			}
			next := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.lock.Unlock()

			next()
		}
	}
}

// Post queues the given function.
func (d *Dispatcher) Post(f func()) {
	d.lock.Lock()
	d.queue = append(d.queue, f)
	d.lock.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Close stops the dispatcher after the currently running function. Pending functions are dropped.
// It must not be called from a posted function.
func (d *Dispatcher) Close() {
	select {
	case <-d.closed:
	default:
		close(d.closed)
	}
	<-d.done
}
