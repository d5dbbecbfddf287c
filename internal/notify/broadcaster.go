package notify

import (
	"sync"

	"github.com/copp1723/swarm-sub001/internal/logging"
)

// Notifier receives task events. Implementations must not block the caller.
type Notifier interface {
	Publish(event Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}

const defaultMaxHistory = 1000

// Broadcaster fans events out to per-task subscriber channels. Sends are
// non-blocking: when a subscriber's buffer is full the event is dropped,
// except terminal events which evict the oldest buffered event to get
// through. A bounded per-task history is replayed to late subscribers.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[string][]chan Event
	history    map[string][]Event
	maxHistory int
	logger     logging.Logger

	metrics broadcasterMetrics
}

type broadcasterMetrics struct {
	mu sync.Mutex

	eventsSent        int64
	droppedEvents     int64
	totalConnections  int64
	activeConnections int64
}

func NewBroadcaster(logger logging.Logger) *Broadcaster {
	return &Broadcaster{
		subs:       make(map[string][]chan Event),
		history:    make(map[string][]Event),
		maxHistory: defaultMaxHistory,
		logger:     logging.OrNop(logger),
	}
}

// Publish implements Notifier.
func (b *Broadcaster) Publish(event Event) {
	if event == nil {
		return
	}
	taskID := event.EventTaskID()
	if taskID == "" {
		return
	}

	b.storeHistory(taskID, event)

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-broadcast. Every send below is non-blocking, so the
	// lock is never held across a wait.
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subs[taskID]
	for i, ch := range subs {
		select {
		case ch <- event:
			b.metrics.incrementEventsSent()
		default:
			if b.deliverTerminal(taskID, ch, event) {
				continue
			}
			b.logger.Warn("Subscriber buffer full for task %s, dropping %s event (subscriber %d/%d)",
				taskID, event.EventType(), i+1, len(subs))
			b.metrics.incrementDroppedEvents()
		}
	}
}

// deliverTerminal makes room for a terminal event by evicting the oldest
// buffered event. Non-terminal events never evict.
func (b *Broadcaster) deliverTerminal(taskID string, ch chan Event, event Event) bool {
	if !isTerminalEvent(event) {
		return false
	}

	// Retry first in case the subscriber drained the buffer.
	select {
	case ch <- event:
		b.metrics.incrementEventsSent()
		return true
	default:
	}

	select {
	case <-ch:
	default:
		return false
	}

	select {
	case ch <- event:
		b.logger.Warn("Subscriber buffer saturated for task %s; evicted oldest event to deliver %s",
			taskID, event.EventType())
		b.metrics.incrementEventsSent()
		return true
	default:
		return false
	}
}

// Subscribe registers a channel for a task's events and returns the buffered
// history so late subscribers catch up before live delivery.
func (b *Broadcaster) Subscribe(taskID string, ch chan Event) []Event {
	b.mu.Lock()
	b.subs[taskID] = append(b.subs[taskID], ch)
	b.mu.Unlock()
	b.metrics.incrementConnections()

	b.logger.Info("Subscriber registered for task %s", taskID)
	return b.History(taskID)
}

// Unsubscribe removes the channel and closes it. When the last subscriber of
// a finished task leaves, the task's replay buffer is dropped as well.
func (b *Broadcaster) Unsubscribe(taskID string, ch chan Event) {
	b.mu.Lock()
	removed := false
	subs := b.subs[taskID]
	for i, sub := range subs {
		if sub == ch {
			b.subs[taskID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			b.metrics.decrementConnections()
			removed = true
			break
		}
	}
	if !removed {
		b.mu.Unlock()
		return
	}
	remaining := len(b.subs[taskID])
	if remaining == 0 {
		delete(b.subs, taskID)
	}
	history := b.history[taskID]
	finished := len(history) > 0 && isTerminalEvent(history[len(history)-1])
	b.mu.Unlock()

	b.logger.Info("Subscriber removed from task %s (remaining: %d)", taskID, remaining)
	if remaining == 0 && finished {
		b.ClearHistory(taskID)
	}
}

// History returns a copy of the buffered events for a task.
func (b *Broadcaster) History(taskID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	history := b.history[taskID]
	if len(history) == 0 {
		return nil
	}
	out := make([]Event, len(history))
	copy(out, history)
	return out
}

// SubscriberCount returns the number of live subscribers for a task.
func (b *Broadcaster) SubscriberCount(taskID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[taskID])
}

// ClearHistory drops the buffered events for a task.
func (b *Broadcaster) ClearHistory(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, taskID)
}

func (b *Broadcaster) storeHistory(taskID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := append(b.history[taskID], event)
	if len(history) > b.maxHistory {
		history = history[len(history)-b.maxHistory:]
	}
	b.history[taskID] = history
}

// Metrics is a snapshot of broadcaster delivery counters.
type Metrics struct {
	EventsSent        int64 `json:"events_sent"`
	DroppedEvents     int64 `json:"dropped_events"`
	TotalConnections  int64 `json:"total_connections"`
	ActiveConnections int64 `json:"active_connections"`
}

func (b *Broadcaster) Metrics() Metrics {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return Metrics{
		EventsSent:        b.metrics.eventsSent,
		DroppedEvents:     b.metrics.droppedEvents,
		TotalConnections:  b.metrics.totalConnections,
		ActiveConnections: b.metrics.activeConnections,
	}
}

func (m *broadcasterMetrics) incrementEventsSent() {
	m.mu.Lock()
	m.eventsSent++
	m.mu.Unlock()
}

func (m *broadcasterMetrics) incrementDroppedEvents() {
	m.mu.Lock()
	m.droppedEvents++
	m.mu.Unlock()
}

func (m *broadcasterMetrics) incrementConnections() {
	m.mu.Lock()
	m.totalConnections++
	m.activeConnections++
	m.mu.Unlock()
}

func (m *broadcasterMetrics) decrementConnections() {
	m.mu.Lock()
	m.activeConnections--
	m.mu.Unlock()
}
