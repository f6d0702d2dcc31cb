// Package feed pushes store change events to connected observers over
// websockets, one subscription per class. It is an optimization layered
// on top of the polling contract, not a replacement: a subscriber that
// falls behind is dropped and recovers by re-fetching the list endpoints,
// so no correctness depends on delivery.
package feed

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// ClassChecker reports whether a class id refers to a live class. The
// store's GetClass backs it; the feed never imports the store.
type ClassChecker func(classID string) bool

// Feed fans change events out to per-class subscriber sets.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{} // classID -> set
	classExists ClassChecker
	bufferSize  int
	closed      bool
}

// New creates a feed. bufferSize is the per-subscriber event buffer; a
// subscriber whose buffer fills is dropped rather than allowed to stall
// the publisher.
func New(classExists ClassChecker, bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Feed{
		subscribers: make(map[string]map[*subscriber]struct{}),
		classExists: classExists,
		bufferSize:  bufferSize,
	}
}

// Publish delivers an event to every subscriber of the event's class.
// It never blocks: slow subscribers are disconnected asynchronously.
// Wired as the store's change listener, so it runs outside the store
// lock on every committed mutation.
func (f *Feed) Publish(ev types.ChangeEvent) {
	f.mu.RLock()
	var slow []*subscriber
	for sub := range f.subscribers[ev.ClassID] {
		select {
		case sub.send <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range slow {
		log.Printf("feed: dropping slow subscriber class=%s", ev.ClassID)
		go sub.close()
	}
}

// Stats reports subscriber counts for the health endpoint.
func (f *Feed) Stats() map[string]int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := 0
	for _, subs := range f.subscribers {
		total += len(subs)
	}
	return map[string]int{
		"subscribers":        total,
		"subscribed_classes": len(f.subscribers),
	}
}

// Close disconnects every subscriber and refuses new ones. Used at
// shutdown after the HTTP server stops accepting connections.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	var all []*subscriber
	for _, subs := range f.subscribers {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}

func (f *Feed) add(sub *subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if f.subscribers[sub.classID] == nil {
		f.subscribers[sub.classID] = make(map[*subscriber]struct{})
	}
	f.subscribers[sub.classID][sub] = struct{}{}
	return true
}

// remove is idempotent; it also prunes empty class sets so a long-lived
// process doesn't accumulate entries for every class ever watched.
func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[sub.classID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(f.subscribers, sub.classID)
	}
}

// subscriber is one websocket observer of a class.
type subscriber struct {
	feed    *Feed
	classID string
	conn    *websocket.Conn
	send    chan types.ChangeEvent
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.send)
	})
}

// writePump serializes all writes to the connection: queued events plus
// keepalive pings. Exits when the send channel closes or a write fails.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

// readPump discards inbound frames (the feed is one-way) and detects
// disconnects and pong liveness.
func (s *subscriber) readPump() {
	defer s.close()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
