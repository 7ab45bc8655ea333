package testutil

import (
	"context"
	"errors"
	"sync"
)

// MockNotifier implements ports.ChangeNotifier for testing. Published ids are
// recorded and forwarded to every open subscription.
type MockNotifier struct {
	mu          sync.Mutex
	Published   []string
	subs        []chan string
	FailPublish bool
	FailPing    bool
}

func (m *MockNotifier) Publish(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPublish {
		return errors.New("publish failed")
	}
	m.Published = append(m.Published, subjectID)
	for _, ch := range m.subs {
		select {
		case ch <- subjectID:
		default:
		}
	}
	return nil
}

func (m *MockNotifier) Subscribe(_ context.Context) (<-chan string, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan string, 16)
	m.subs = append(m.subs, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, c := range m.subs {
				if c == ch {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}, nil
}

func (m *MockNotifier) Ping(_ context.Context) error {
	if m.FailPing {
		return errors.New("notifier down")
	}
	return nil
}

// PublishedIDs returns a copy of the published subject ids.
func (m *MockNotifier) PublishedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Published...)
}

// Subscriptions reports the number of open subscriptions.
func (m *MockNotifier) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
