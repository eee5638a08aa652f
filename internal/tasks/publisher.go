package tasks

import (
	"slices"
	"sync"

	"github.com/desertthunder/rulemig/internal/models"
)

// Snapshot is the published view of all tracked migrations.
//
// The zero value is the "unknown" state held before the first refresh; Known distinguishes it
// from a refresh that returned no migrations.
type Snapshot struct {
	Known bool              `json:"known"`
	Stats []models.JobStats `json:"migrations"`
}

// Find returns the stats of jobID, if present.
func (s Snapshot) Find(jobID string) (models.JobStats, bool) {
	for _, st := range s.Stats {
		if st.ID == jobID {
			return st, true
		}
	}
	return models.JobStats{}, false
}

// Publisher is a single-slot broadcast of the latest [Snapshot].
//
// Subscribers receive the current value on subscription and then only ever the newest value:
// a slow subscriber misses intermediate snapshots but never blocks [Publisher.Publish].
type Publisher struct {
	mu     sync.Mutex
	latest Snapshot
	subs   map[int]chan Snapshot
	nextID int
	closed bool
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan Snapshot)}
}

// Publish replaces the latest snapshot with stats and broadcasts it.
func (p *Publisher) Publish(stats []models.JobStats) {
	snap := Snapshot{Known: true, Stats: slices.Clone(stats)}
	if snap.Stats == nil {
		snap.Stats = []models.JobStats{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.latest = snap
	for _, ch := range p.subs {
		offer(ch, snap)
	}
}

// Latest returns the current snapshot.
func (p *Publisher) Latest() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Subscribe returns a channel carrying the latest snapshot and a function that detaches it.
//
// The channel is closed when the subscription is canceled or the publisher is closed.
func (p *Publisher) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.latest

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of attached subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close detaches and closes every subscriber. Later publishes are dropped.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

// offer replaces any unread value in ch with snap. Callers hold the publisher lock,
// so ch has no other writer and the send cannot block.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	ch <- snap
}
