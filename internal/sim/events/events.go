// Package events carries board state-change notifications to observers.
//
// Every board mutation emits exactly one Event, synchronously, before the
// mutating call returns.
package events

import "sync"

type Type string

const (
	Moved             Type = "moved"
	ArrowFired        Type = "arrowFired"
	Eliminated        Type = "eliminated"
	ScoreChanged      Type = "scoreChanged"
	ArrowCountChanged Type = "arrowCountChanged"
)

// Subject identifies the element an event is about. Index is the element's
// slot within its kind (treasure n. 0, pup n. 1, ...); it is 0 for singletons.
type Subject struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Index int    `json:"index"`
}

// Cell is a [row, col] pair.
type Cell [2]int

type Event struct {
	Type    Type    `json:"type"`
	Subject Subject `json:"subject"`

	// Moved, ArrowFired.
	From *Cell `json:"from,omitempty"`
	To   *Cell `json:"to,omitempty"`

	// ScoreChanged, ArrowCountChanged.
	Old int `json:"old"`
	New int `json:"new"`
}

type Listener func(Event)

// Bus fans events out to listeners in subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []sub
}

type sub struct {
	id int
	fn Listener
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Listener) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, sub{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]sub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(e)
	}
}

// Chan subscribes a buffered channel. A slow reader loses the oldest
// pending event rather than stalling the emitter.
func (b *Bus) Chan(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Event, buf)
	cancel := b.Subscribe(func(e Event) { sendLatest(ch, e) })
	return ch, cancel
}

func sendLatest(ch chan Event, e Event) {
	select {
	case ch <- e:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- e:
	default:
	}
}

// Recorder collects events until Drain is called.
type Recorder struct {
	mu  sync.Mutex
	buf []Event
}

func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	r.buf = append(r.buf, e)
	r.mu.Unlock()
}

func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.buf
	r.buf = nil
	return out
}
