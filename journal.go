package main

import (
	"sync"

	"github.com/PixelParasite101/Packing-Lab/physics"
)

// journalAutoFlush is the number of merged registrations after which a
// batch is committed on its own.
const journalAutoFlush = 180

// MoveEntry is one committed body move
type MoveEntry struct {
	BodyID int          `json:"id" msgpack:"id"`
	From   physics.Vec2 `json:"from" msgpack:"from"`
	To     physics.Vec2 `json:"to" msgpack:"to"`
}

// MoveJournal collapses interactive drags into one entry per body
type MoveJournal struct {
	mu      sync.Mutex
	active  bool
	pending MoveEntry
	count   int
	history []MoveEntry
}

// NewMoveJournal returns an empty journal
func NewMoveJournal() *MoveJournal {
	return &MoveJournal{}
}

// RegisterMove records a step of a drag. Moves to the same coordinates are
// ignored and consecutive moves of one body merge into a single entry.
func (j *MoveJournal) RegisterMove(id int, from, to physics.Vec2) {
	if from == to {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.active || j.pending.BodyID != id {
		j.flushLocked()
		j.active = true
		j.pending = MoveEntry{BodyID: id, From: from, To: to}
		j.count = 0
	} else {
		j.pending.To = to
	}
	j.count++
	if j.count > journalAutoFlush {
		j.flushLocked()
	}
}

// Flush commits the pending batch, if any
func (j *MoveJournal) Flush() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.flushLocked()
}

func (j *MoveJournal) flushLocked() {
	if !j.active {
		return
	}
	if j.pending.From != j.pending.To {
		j.history = append(j.history, j.pending)
	}
	j.active = false
	j.pending = MoveEntry{}
	j.count = 0
}

// History returns the committed entries, oldest first
func (j *MoveJournal) History() []MoveEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]MoveEntry(nil), j.history...)
}

// Pending reports whether a batch is open
func (j *MoveJournal) Pending() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}
