package scan

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// EventType names a scan stream event.
type EventType string

const (
	EventStart           EventType = "start"
	EventLog             EventType = "log"
	EventProgress        EventType = "progress"
	EventAssetDiscovered EventType = "asset_discovered"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

// Event is one message on a scan stream. Seq increases by one per event
// within a scan, so consumers that re-subscribe can skip what they have seen.
type Event struct {
	Type   EventType `json:"type"`
	ScanID uuid.UUID `json:"scanId"`
	Seq    int       `json:"seq"`

	Entry    *model.ScanLogEntry `json:"entry,omitempty"`
	Progress int                 `json:"progress,omitempty"`
	Asset    *model.Asset        `json:"asset,omitempty"`

	Status        model.ScanStatus `json:"status,omitempty"`
	AssetsFound   int              `json:"assetsFound,omitempty"`
	AssetsNew     int              `json:"assetsNew,omitempty"`
	AssetsUpdated int              `json:"assetsUpdated,omitempty"`
	Message       string           `json:"message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// hub keeps the ordered history of one scan and fans events out to live
// subscribers. Sends never block: a subscriber whose buffer is full is
// dropped (its channel closed) and may subscribe again to replay.
type hub struct {
	scanID uuid.UUID
	buffer int

	mu           sync.Mutex
	history      []Event
	subs         map[int]chan Event
	nextSub      int
	lastProgress int
	closed       bool
}

func newHub(scanID uuid.UUID, buffer int) *hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &hub{
		scanID: scanID,
		buffer: buffer,
		subs:   make(map[int]chan Event),
	}
}

// publish stamps ev with the scan ID and sequence number, clamps progress so
// it never decreases, records it, and delivers it to every live subscriber.
// Events published after close are discarded.
func (h *hub) publish(ev Event) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ev, false
	}

	ev.ScanID = h.scanID
	ev.Seq = len(h.history) + 1
	if ev.Type == EventProgress {
		if ev.Progress < h.lastProgress {
			ev.Progress = h.lastProgress
		}
		if ev.Progress > 100 {
			ev.Progress = 100
		}
		h.lastProgress = ev.Progress
	}
	h.history = append(h.history, ev)

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
	return ev, true
}

// subscribe atomically snapshots the history and registers a live channel,
// so the caller sees every event exactly once and in order. When the hub is
// already closed the live channel is returned closed.
func (h *hub) subscribe() ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	backlog := append([]Event(nil), h.history...)
	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return backlog, ch, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				close(c)
				delete(h.subs, id)
			}
		})
	}
	return backlog, ch, cancel
}

// close ends the stream for every subscriber. It is safe to call twice.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *hub) progress() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastProgress
}
