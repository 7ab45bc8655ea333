// Package notify carries "record set changed" events from writers to live subscribers.
package notify

import (
	"context"
	"sync"
)

// LocalNotifier broadcasts change events within a single process.
type LocalNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan string
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[int]chan string)}
}

func (l *LocalNotifier) Ping(_ context.Context) error { return nil }

// Publish never blocks; a subscriber with a full buffer already has a pending
// wake-up, and every wake-up reloads the full snapshot.
func (l *LocalNotifier) Publish(_ context.Context, subjectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- subjectID:
		default:
		}
	}
	return nil
}

func (l *LocalNotifier) Subscribe(_ context.Context) (<-chan string, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan string, 16)
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers reports the number of open subscriptions.
func (l *LocalNotifier) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
