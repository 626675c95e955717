package app

import (
	"sync"

	"quiz-api/internal/domain"
)

// ResultFeed fans recorded results out to in-process subscribers.
type ResultFeed struct {
	mu          sync.Mutex
	subscribers map[chan domain.ResultEvent]struct{}
	recent      []domain.ResultEvent
	keep        int
}

// NewResultFeed keeps the last keep events as the initial snapshot for new subscribers.
func NewResultFeed(keep int) *ResultFeed {
	if keep < 0 {
		keep = 0
	}
	return &ResultFeed{
		subscribers: make(map[chan domain.ResultEvent]struct{}),
		keep:        keep,
	}
}

// Subscribe returns a channel that receives result events, starting with the
// recent backlog. The caller must invoke the returned cancel function to avoid leaks.
func (f *ResultFeed) Subscribe() (<-chan domain.ResultEvent, func()) {
	f.mu.Lock()
	size := 8
	if len(f.recent) > size {
		size = len(f.recent)
	}
	ch := make(chan domain.ResultEvent, size)
	for _, ev := range f.recent {
		ch <- ev
	}
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers ev to every subscriber without blocking.
func (f *ResultFeed) Broadcast(ev domain.ResultEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.keep > 0 {
		f.recent = append(f.recent, ev)
		if len(f.recent) > f.keep {
			f.recent = f.recent[len(f.recent)-f.keep:]
		}
	}
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event to make room.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *ResultFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
