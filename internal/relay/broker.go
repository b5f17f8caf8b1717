// Package relay fans analysis events out to SSE subscribers so operators
// can watch the analyzer's verdict stream live.
package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
)

const subscriberBufSize = 64

// Event is a single feed event.
type Event struct {
	Type    string
	Payload string
}

// AnalysisCompleted builds the event published after each successful
// analysis.
func AnalysisCompleted(tgID int64, res *analyze.Result) Event {
	payload, err := json.Marshal(struct {
		TgID          int64          `json:"tg_id"`
		Signal        analyze.Signal `json:"signal"`
		ExpiryMinutes int            `json:"expiry_minutes"`
		Remaining     *int           `json:"remaining_limit,omitempty"`
	}{tgID, res.Signal, res.ExpiryMinutes, res.RemainingLimit})
	if err != nil {
		return Event{Type: "analysis", Payload: "{}"}
	}
	return Event{Type: "analysis", Payload: string(payload)}
}

// Broker distributes events to all subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a client and returns its id and a buffered receive
// channel. Slow consumers have events dropped rather than blocking the
// publisher.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers evt to every subscriber without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
