package debounce

import (
	"sync"
	"time"
)

// Handler receives the device identifier and the last observed state once a
// debounce window closes.
type Handler func(deviceID string, state bool)

// slot is the debounce state for one device: the most recent observed value,
// the timer that will forward it and a sequence number that invalidates
// superseded timers. fireMu serialises fires for the device so downstream
// publishes keep forwarding order.
type slot struct {
	state   bool
	seq     uint64
	pending *time.Timer
	fireMu  sync.Mutex
}

// Dispatcher collapses rapid repeated state changes per device into a single
// trailing-edge invocation of the wrapped handler. Devices never share a
// window: a burst on one device does not delay another.
type Dispatcher struct {
	window time.Duration
	fn     Handler

	mu    sync.Mutex
	slots map[string]*slot
}

func New(window time.Duration, fn Handler) *Dispatcher {
	return &Dispatcher{
		window: window,
		fn:     fn,
		slots:  make(map[string]*slot),
	}
}

// Dispatch records the observed state for a device and re-arms its window.
// Only the last state seen before the window elapses reaches the handler;
// earlier states in the burst are dropped.
func (d *Dispatcher) Dispatch(deviceID string, state bool) {
	d.mu.Lock()
	s, ok := d.slots[deviceID]
	if !ok {
		s = &slot{}
		d.slots[deviceID] = s
	}
	s.state = state
	s.seq++
	seq := s.seq
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(d.window, func() {
		d.fire(deviceID, s, seq)
	})
	d.mu.Unlock()
}

// fire forwards the slot's state unless the timer was superseded or the slot
// cancelled while the callback was in flight.
func (d *Dispatcher) fire(deviceID string, s *slot, seq uint64) {
	d.mu.Lock()
	if d.slots[deviceID] != s || s.seq != seq {
		d.mu.Unlock()
		return
	}
	state := s.state
	s.pending = nil
	d.mu.Unlock()

	s.fireMu.Lock()
	defer s.fireMu.Unlock()
	d.fn(deviceID, state)
}

// Cancel drops any pending forward for a device without invoking the
// handler.
func (d *Dispatcher) Cancel(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[deviceID]
	if !ok {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	delete(d.slots, deviceID)
}

// Reset cancels every pending forward and clears all slots. The subscription
// rebuild path uses it so devices from a torn-down set cannot fire
// afterwards.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.slots {
		if s.pending != nil {
			s.pending.Stop()
		}
	}
	d.slots = make(map[string]*slot)
}
