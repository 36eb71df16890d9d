package trees

import (
	"log/slog"
	"sync"
)

// Operation identifies the tree operation a notification reports
type Operation int

const (
	OpInitialize Operation = iota + 1
	OpApply
	OpReset
)

func (o Operation) String() string {
	switch o {
	case OpInitialize:
		return "initialize"
	case OpApply:
		return "apply"
	case OpReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Notification describes one successful tree mutation. For Initialize and
// Reset, Entity is the new root.
type Notification struct {
	Op     Operation
	Event  Event
	Entity Entity

	// Updated lists every entity attached or whose status changed, in the
	// order the mutation touched them.
	Updated []Entity

	// Attached lists the ids of entities added to the tree, ancestors first.
	Attached []EntityID

	// Expand lists parents that received their first child, for display.
	Expand []EntityID
}

// Observer receives tree notifications on the dispatcher goroutine
type Observer interface {
	OnChange(n Notification)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(n Notification)

func (f ObserverFunc) OnChange(n Notification) { f(n) }

// Dispatcher queues notifications and delivers them to observers from its
// own goroutine. Post never blocks, so a slow observer cannot stall the
// tree mutation that produced the notification.
type Dispatcher struct {
	mu        sync.Mutex
	pending   []Notification
	observers []Observer
	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closed    bool
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Subscribe registers an observer for all subsequent notifications
func (d *Dispatcher) Subscribe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Post enqueues a notification. Notifications posted after Close are dropped.
func (d *Dispatcher) Post(n Notification) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, n)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued, undelivered notifications
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close delivers everything already queued and stops the dispatcher
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		observers := append([]Observer(nil), d.observers...)
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}

		for _, n := range batch {
			for _, o := range observers {
				d.deliver(o, n)
			}
		}
	}
}

func (d *Dispatcher) deliver(o Observer, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Observer panicked", "op", n.Op, "path", n.Entity.Path, "panic", r)
		}
	}()
	o.OnChange(n)
}
