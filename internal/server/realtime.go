package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventResourceChanged marks a notebook or note mutation.
	RealtimeEventResourceChanged = "resource-change"
	realtimeEventHeartbeat       = "heartbeat"

	// realtimeAllKey is the subscription key receiving every event; only
	// admin subscribers are attached to it.
	realtimeAllKey = "*"
)

// RealtimeMessage describes one resource mutation fanned out to listeners.
type RealtimeMessage struct {
	UserID       string
	EventType    string
	ResourceKind string
	ResourceIDs  []string
	Timestamp    time.Time
}

// RealtimeDispatcher fans resource-change events out to per-user streams.
// Slow subscribers are skipped rather than blocking the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe attaches a stream for the given key: a user id, or
// realtimeAllKey for the admin firehose. The stream closes when ctx ends.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, key string) (<-chan RealtimeMessage, func()) {
	if key == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(key, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(key, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to the owning user's subscribers and to the
// admin firehose.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0)
	for _, subscriber := range d.subscribers[message.UserID] {
		copies = append(copies, subscriber)
	}
	for _, subscriber := range d.subscribers[realtimeAllKey] {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(key string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[key]; !ok {
		d.subscribers[key] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[key][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(key string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[key]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, key)
		}
	}
	d.mu.Unlock()
}
