package controller

import (
	"sync"
	"time"

	"skipfleet/internal/models"
)

// queuedState is one playback-state update plus the monotonic receipt time
// the scheduling arithmetic compensates delay against.
type queuedState struct {
	state     models.PlaybackState
	timeStart time.Time
}

// mailbox is the coalescing queue of capacity one described in the design
// notes: a single-slot cell where a push replaces whatever is pending,
// paired with a capacity-one notify channel so the consumer never busy-waits
// and never sees more than one pending wakeup.
type mailbox struct {
	mu     sync.Mutex
	value  *queuedState
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(v queuedState) {
	m.mu.Lock()
	m.value = &v
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (queuedState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == nil {
		return queuedState{}, false
	}
	v := *m.value
	m.value = nil
	return v, true
}
