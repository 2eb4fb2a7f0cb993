// Package progress fans out ordered per-item progress events to observers.
//
// Publishing never blocks: each subscriber owns a bounded channel and, when
// it is full, the oldest undelivered event is discarded in favour of the new
// one. A bounded ring buffer keeps recent events for late observers.
package progress

import (
	"context"
	"sync"
	"time"
)

// Event is one progress update for a queue item.
type Event struct {
	Sequence     uint64    `json:"seq"`
	Timestamp    time.Time `json:"ts"`
	ItemID       int64     `json:"item_id"`
	SourceID     string    `json:"source_id,omitempty"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage,omitempty"`
	StagePercent float64   `json:"stage_percent"`
	Overall      float64   `json:"overall"`
	Attempt      int       `json:"attempt,omitempty"`
	Message      string    `json:"message,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Terminal     bool      `json:"terminal,omitempty"`
}

// Sink receives every published event synchronously. Sinks must be fast.
type Sink interface {
	Append(Event)
}

// Reporter stores recent progress events and delivers them to subscribers.
type Reporter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	sinks    []Sink
	subs     map[*Subscription]struct{}
	closed   bool
	now      func() time.Time
}

// NewReporter constructs a reporter retaining up to capacity recent events.
func NewReporter(capacity int) *Reporter {
	if capacity <= 0 {
		capacity = 512
	}
	r := &Reporter{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
		now:      time.Now,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// AddSink wires an additional sink that receives every published event.
func (r *Reporter) AddSink(sink Sink) {
	if r == nil || sink == nil {
		return
	}
	r.mu.Lock()
	r.sinks = append(r.sinks, sink)
	r.mu.Unlock()
}

// Publish stamps evt with a sequence number and delivers it. It returns the
// stamped event.
func (r *Reporter) Publish(evt Event) Event {
	if r == nil {
		return evt
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return evt
	}
	r.nextSeq++
	evt.Sequence = r.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = r.now().UTC()
	}

	if len(r.buffer) == r.capacity {
		copy(r.buffer, r.buffer[1:])
		r.buffer = r.buffer[:r.capacity-1]
	}
	r.buffer = append(r.buffer, evt)

	for sub := range r.subs {
		if sub.itemID != 0 && sub.itemID != evt.ItemID {
			continue
		}
		sub.deliver(evt)
		if evt.Terminal && sub.itemID != 0 {
			sub.closeLocked()
			delete(r.subs, sub)
		}
	}
	sinks := append([]Sink(nil), r.sinks...)
	r.cond.Broadcast()
	r.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
	return evt
}

// Subscribe registers an observer. itemID 0 receives events for all items;
// otherwise only that item's events are delivered and the channel closes
// after its terminal event. buffer bounds the undelivered backlog.
func (r *Reporter) Subscribe(itemID int64, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{itemID: itemID, ch: make(chan Event, buffer), reporter: r}
	sub.C = sub.ch
	if r == nil {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	r.subs[sub] = struct{}{}
	return sub
}

// Close detaches every subscriber and stops accepting events.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for sub := range r.subs {
		sub.closeLocked()
	}
	r.subs = make(map[*Subscription]struct{})
	r.cond.Broadcast()
}

// Fetch returns buffered events with sequence greater than since. When wait
// is true, Fetch blocks until at least one event is available or ctx ends.
func (r *Reporter) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if r == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > r.capacity {
		limit = r.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		events, next := r.snapshotLocked(since, limit)
		if len(events) > 0 || !wait || r.closed {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		r.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (r *Reporter) Tail(limit int) ([]Event, uint64) {
	if r == nil {
		return nil, 0
	}
	if limit <= 0 || limit > r.capacity {
		limit = r.capacity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) == 0 {
		return nil, r.nextSeq
	}
	start := max(len(r.buffer)-limit, 0)
	out := make([]Event, len(r.buffer)-start)
	copy(out, r.buffer[start:])
	return out, r.nextSeq
}

func (r *Reporter) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	start := -1
	for i, evt := range r.buffer {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, r.nextSeq
	}
	end := min(start+limit, len(r.buffer))
	out := make([]Event, end-start)
	copy(out, r.buffer[start:end])
	return out, r.nextSeq
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// Subscription is a registered observer. Receive from C.
type Subscription struct {
	C <-chan Event

	ch       chan Event
	itemID   int64
	reporter *Reporter
	dropped  uint64
	closed   bool
}

// deliver performs a non-blocking send, evicting the oldest queued event
// when the channel is full. Callers hold the reporter lock.
func (s *Subscription) deliver(evt Event) {
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped++
	default:
	}
	select {
	case s.ch <- evt:
	default:
		s.dropped++
	}
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	if s == nil || s.reporter == nil {
		return
	}
	r := s.reporter
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, s)
	s.closeLocked()
}

// Dropped reports how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	if s == nil || s.reporter == nil {
		return 0
	}
	s.reporter.mu.Lock()
	defer s.reporter.mu.Unlock()
	return s.dropped
}
