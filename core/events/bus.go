package events

import (
	"sync"
	"time"

	"dineledger/core/types"
)

const defaultBacklog = 256

// Bus fans released events out to subscribers. Events that arrive without a
// sequence receive the next one; pre-sequenced events keep theirs. Slow
// subscribers drop events instead of blocking the node.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	subs    map[uint64]chan *types.Event
	nextSub uint64
	recent  []*types.Event
	keep    int
	nowFn   func() time.Time
	dropped uint64
}

// NewBus returns a bus that retains the last keep events for late subscribers.
func NewBus(keep int) *Bus {
	if keep <= 0 {
		keep = defaultBacklog
	}
	return &Bus{
		subs:  make(map[uint64]chan *types.Event),
		keep:  keep,
		nowFn: time.Now,
	}
}

// Publish stamps and delivers the events in order.
func (b *Bus) Publish(evts ...Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range evts {
		if e == nil {
			continue
		}
		raw := e.Event()
		if raw == nil {
			continue
		}
		stamped := raw.Clone()
		if stamped.Sequence > b.seq {
			b.seq = stamped.Sequence
		} else {
			b.seq++
			stamped.Sequence = b.seq
		}
		if stamped.Timestamp == 0 {
			stamped.Timestamp = b.nowFn().Unix()
		}
		b.recent = append(b.recent, stamped)
		if len(b.recent) > b.keep {
			b.recent = b.recent[len(b.recent)-b.keep:]
		}
		for _, ch := range b.subs {
			select {
			case ch <- stamped.Clone():
			default:
				b.dropped++
			}
		}
	}
}

// Subscribe registers a listener. The returned backlog holds retained events
// with a sequence greater than after. The cancel function must be called to
// release the channel.
func (b *Bus) Subscribe(after uint64, buffer int) (<-chan *types.Event, []*types.Event, func()) {
	if buffer <= 0 {
		buffer = defaultBacklog
	}
	ch := make(chan *types.Event, buffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	backlog := make([]*types.Event, 0)
	for _, evt := range b.recent {
		if evt.Sequence > after {
			backlog = append(backlog, evt.Clone())
		}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, backlog, cancel
}

// Resume continues numbering after seq, typically the last sequence persisted
// before a restart. It never moves the counter backwards.
func (b *Bus) Resume(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq > b.seq {
		b.seq = seq
	}
}

// Sequence returns the last assigned sequence number.
func (b *Bus) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
