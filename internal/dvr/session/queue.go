package session

import (
	"strings"
	"sync"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/wire"
)

// queueCapacity is the maximum number of queued messages retained before
// the oldest half is discarded.
const queueCapacity = 200

// pruneAge is the age past which a queued message may be discarded during
// pruning, independent of capacity.
const pruneAge = 60 * time.Second

// queuedMessage is one command-channel message awaiting a consumer.
type queuedMessage struct {
	at     time.Time
	header wire.Header
	body   string
}

// commandQueue is the mutex-guarded FIFO shared by the reader goroutine
// (producer) and waitFor/heartbeat callers (consumers). Scan-and-remove of
// the first substring match must happen atomically under the same lock
// used for push and prune, exactly as the protocol's "wait with
// substring-match and remove" requires.
type commandQueue struct {
	mu    sync.Mutex
	items []queuedMessage
}

func (q *commandQueue) push(msg queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
	q.pruneLocked()
}

// pruneLocked drops the oldest half when capacity is exceeded, and any
// entries older than pruneAge. Caller must hold q.mu.
func (q *commandQueue) pruneLocked() {
	if len(q.items) > queueCapacity {
		drop := len(q.items) / 2
		q.items = append([]queuedMessage{}, q.items[drop:]...)
	}
	cutoff := time.Now().Add(-pruneAge)
	i := 0
	for _, m := range q.items {
		if m.at.Before(cutoff) {
			continue
		}
		q.items[i] = m
		i++
	}
	q.items = q.items[:i]
}

// takeFirst scans for the first message whose body contains substr,
// removes it and returns it.
func (q *commandQueue) takeFirst(substr string) (queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.items {
		if strings.Contains(m.body, substr) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return m, true
		}
	}
	return queuedMessage{}, false
}

// takeFirstMatching removes and returns the first message for which pred
// returns true, used by the heartbeat loop which needs "contains A but
// not B" semantics that a plain substring match can't express.
func (q *commandQueue) takeFirstMatching(pred func(body string) bool) (queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.items {
		if pred(m.body) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return m, true
		}
	}
	return queuedMessage{}, false
}
