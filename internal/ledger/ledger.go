// Package ledger holds the ordered gallery of wardrobe entries.
//
// Entries are prepended on insert and mutated in place on resolution, so an
// entry keeps its position for the lifetime of the session. Every mutation is
// followed by a synchronous notification carrying a fresh snapshot.
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/wardrobe/internal/models"
)

// Handle addresses a single entry independently of its position.
type Handle struct {
	id uuid.UUID
}

func (h Handle) String() string {
	return h.id.String()
}

// IsZero reports whether h was never issued by a ledger.
func (h Handle) IsZero() bool {
	return h.id == uuid.Nil
}

// EventKind describes which mutation produced an Event
type EventKind string

const (
	EventInserted EventKind = "inserted"
	EventResolved EventKind = "resolved"
	EventFailed   EventKind = "failed"
)

// Event is delivered to subscribers after each mutation
type Event struct {
	Kind    EventKind
	Handle  Handle
	Entries []models.WardrobeEntry
}

// Subscriber receives ledger events. It must not mutate the ledger.
type Subscriber func(Event)

type entry struct {
	handle Handle
	value  models.WardrobeEntry
}

type subscription struct {
	id int
	fn Subscriber
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	entries []*entry // newest first
	index   map[Handle]*entry

	// notifyMu is held across a mutation and its delivery so events arrive
	// in mutation order. It is always taken before mu.
	notifyMu    sync.Mutex
	subMu       sync.Mutex
	subscribers []subscription
	nextSubID   int

	now func() time.Time
}

func New() *Ledger {
	return &Ledger{
		index: make(map[Handle]*entry),
		now:   time.Now,
	}
}

// InsertPending prepends a pending entry for image and returns its handle.
func (l *Ledger) InsertPending(image models.ImageDescriptor) Handle {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	h := newHandle()
	e := &entry{
		handle: h,
		value: models.WardrobeEntry{
			Handle:    h.String(),
			Image:     image,
			Status:    models.StatusPending,
			CreatedAt: l.now(),
		},
	}
	l.entries = append([]*entry{e}, l.entries...)
	l.index[h] = e
	slog.Debug("Entry inserted", "handle", h, "locator", image.Locator, "entries", len(l.entries))
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.publish(EventInserted, h, snap)
	return h
}

// Resolve moves a pending entry to complete.
func (l *Ledger) Resolve(h Handle, result models.AnalysisResult) error {
	return l.transition(h, EventResolved, func(v *models.WardrobeEntry) {
		v.Status = models.StatusComplete
		v.Result = result.Clone()
	})
}

// ResolveFailure moves a pending entry to failed. An empty message is
// replaced so that a failed entry always carries one.
func (l *Ledger) ResolveFailure(h Handle, message string) error {
	if message == "" {
		message = "Upload failed"
	}
	return l.transition(h, EventFailed, func(v *models.WardrobeEntry) {
		v.Status = models.StatusFailed
		v.ErrorMessage = message
	})
}

func (l *Ledger) transition(h Handle, kind EventKind, apply func(*models.WardrobeEntry)) error {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	e, ok := l.index[h]
	if !ok {
		l.mu.Unlock()
		return models.ErrUnknownHandle
	}
	if e.value.Status != models.StatusPending {
		status := e.value.Status
		l.mu.Unlock()
		slog.Error("Rejected second resolution of entry", "handle", h, "status", status, "attempt", kind)
		return models.ErrContractViolation
	}
	apply(&e.value)
	e.value.ResolvedAt = l.now()
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.publish(kind, h, snap)
	return nil
}

// publish must be called with notifyMu held and mu released, so subscribers
// may read the ledger.
func (l *Ledger) publish(kind EventKind, h Handle, snap []models.WardrobeEntry) {
	l.subMu.Lock()
	subs := make([]subscription, len(l.subscribers))
	copy(subs, l.subscribers)
	l.subMu.Unlock()

	for _, s := range subs {
		s.fn(Event{Kind: kind, Handle: h, Entries: snap})
	}
}

// Snapshot returns a copy of all entries, newest first.
func (l *Ledger) Snapshot() []models.WardrobeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() []models.WardrobeEntry {
	out := make([]models.WardrobeEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.value
		out[i].Result = e.value.Result.Clone()
	}
	return out
}

// Get returns a copy of the entry addressed by h.
func (l *Ledger) Get(h Handle) (models.WardrobeEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.index[h]
	if !ok {
		return models.WardrobeEntry{}, false
	}
	v := e.value
	v.Result = e.value.Result.Clone()
	return v, true
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe registers fn and returns a function that removes it.
func (l *Ledger) Subscribe(fn Subscriber) func() {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	l.subscribers = append(l.subscribers, subscription{id: id, fn: fn})

	return func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		for i, s := range l.subscribers {
			if s.id == id {
				l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
				return
			}
		}
	}
}

func newHandle() Handle {
	id, err := uuid.NewV7()
	if err != nil {
		return Handle{id: uuid.New()}
	}
	return Handle{id: id}
}
