package service

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
)

// DefaultNoteTTL is how long a purchase note lives after its last write
const DefaultNoteTTL = 6 * time.Second

type noteEntry struct {
	note       model.PurchaseNote
	generation uint64
	timer      *clock.Timer
}

// NoteBoard holds transient purchase notes keyed by (item, medication index).
// Every write restarts the key's expiry; an expiry only deletes the note it
// was scheduled for. Writes for a forgotten item are dropped.
type NoteBoard struct {
	clock clock.Clock
	ttl   time.Duration

	mu         sync.Mutex
	generation uint64
	notes      map[model.NoteKey]*noteEntry
	forgotten  map[string]struct{}
}

// NewNoteBoard creates a NoteBoard. A non-positive ttl selects DefaultNoteTTL.
func NewNoteBoard(clk clock.Clock, ttl time.Duration) *NoteBoard {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultNoteTTL
	}
	return &NoteBoard{
		clock:     clk,
		ttl:       ttl,
		notes:     make(map[model.NoteKey]*noteEntry),
		forgotten: make(map[string]struct{}),
	}
}

// Set writes message under key, replacing any previous note and restarting
// the key's expiry. It reports false when key belongs to a forgotten item.
func (b *NoteBoard) Set(key model.NoteKey, message string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, gone := b.forgotten[key.ItemID]; gone {
		return false
	}

	if prev, ok := b.notes[key]; ok {
		prev.timer.Stop()
	}

	b.generation++
	generation := b.generation
	b.notes[key] = &noteEntry{
		note: model.PurchaseNote{
			ItemID:    key.ItemID,
			Index:     key.Index,
			Message:   message,
			WrittenAt: b.clock.Now(),
		},
		generation: generation,
		timer: b.clock.AfterFunc(b.ttl, func() {
			b.expire(key, generation)
		}),
	}
	return true
}

func (b *NoteBoard) expire(key model.NoteKey, generation uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.notes[key]; ok && entry.generation == generation {
		delete(b.notes, key)
	}
}

// Get returns the note under key
func (b *NoteBoard) Get(key model.NoteKey) (model.PurchaseNote, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.notes[key]
	if !ok {
		return model.PurchaseNote{}, false
	}
	return entry.note, true
}

// ForItem returns the notes of one item ordered by medication index
func (b *NoteBoard) ForItem(itemID string) []model.PurchaseNote {
	b.mu.Lock()
	defer b.mu.Unlock()

	var notes []model.PurchaseNote
	for key, entry := range b.notes {
		if key.ItemID == itemID {
			notes = append(notes, entry.note)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Index < notes[j].Index })
	return notes
}

// Forget drops every note of itemID, cancels their expiry and rejects any
// later write for itemID. Item ids are never reused.
func (b *NoteBoard) Forget(itemID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forgotten[itemID] = struct{}{}

	for key, entry := range b.notes {
		if key.ItemID == itemID {
			entry.timer.Stop()
			delete(b.notes, key)
		}
	}
}

// Len returns the number of live notes
func (b *NoteBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notes)
}
