// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package chash implements a concurrent, resizable open-addressing hash
// table keyed by a caller-supplied 64-bit hash with double hashing for
// collision resolution. It is a line-for-line translation of elfutils'
// dynamicsizehash_concurrent: readers and writers take a read lock, and a
// resize is driven cooperatively by whichever goroutine happens to trip
// the 90%-full threshold (it holds the lock exclusively while it runs)
// plus every other goroutine that shows up while the resize is in flight.
package chash

import (
	"sync"
	"sync/atomic"
)

const (
	stateEmpty     uint32 = 0
	stateInserting uint32 = 1
	stateFilled    uint32 = 2
)

const (
	noResizing uint32 = 0
	allocating uint32 = 1
	cleaning   uint32 = 2
	moving     uint32 = 3
)

const (
	stateIncrement = 4 // 1 << stateBits, stateBits == 2
	stateMask      = stateIncrement - 1
)

const (
	initBlockSize = 256
	moveBlockSize = 256
)

type entry[T any] struct {
	hashval uint64
	data    T
	state   atomic.Uint32
}

// Table is a concurrent hash table mapping uint64 hash values to T,
// disambiguating collisions with equal. The zero value is not usable;
// construct one with New.
type Table[T any] struct {
	equal func(a, b T) bool

	size    atomic.Uint64
	oldSize atomic.Uint64

	table    atomic.Pointer[[]entry[T]]
	oldTable atomic.Pointer[[]entry[T]]

	filled atomic.Uint64

	resizingState atomic.Uint32

	nextInitBlock        atomic.Uint64
	numInitializedBlocks atomic.Uint64
	nextMoveBlock        atomic.Uint64
	numMovedBlocks       atomic.Uint64

	resizeRWL sync.RWMutex
}

// New builds a table sized to hold at least initSize entries before its
// first resize. equal disambiguates two entries whose hash values
// collide; it must be consistent with however the caller computes hashes.
func New[T any](initSize uint64, equal func(a, b T) bool) *Table[T] {
	size := nextPrime(initSize)
	t := &Table[T]{equal: equal}
	t.size.Store(size)
	entries := make([]entry[T], size+1)
	t.table.Store(&entries)
	return t
}

// Close releases the table's backing storage. The table must not be used
// afterward.
func (t *Table[T]) Close() {
	t.table.Store(nil)
	t.oldTable.Store(nil)
}

// Len reports the approximate number of filled entries. It is racy with
// concurrent Insert calls by design, matching the original's atomic
// counter semantics.
func (t *Table[T]) Len() uint64 { return t.filled.Load() }

// Insert adds data under hval, resizing the table first if it has crossed
// the 90%-full threshold. It reports whether a new entry was created;
// false means an entry with the same hash and an equal value was already
// present.
func (t *Table[T]) Insert(hval uint64, data T) bool {
	if hval == 0 {
		hval = 1
	}
	incremented := false
	var filled uint64

	for {
		for !t.resizeRWL.TryRLock() {
			t.resizeWorker()
		}

		if !incremented {
			filled = t.filled.Add(1) - 1
			incremented = true
		} else {
			filled = t.filled.Load()
		}

		size := t.size.Load()
		if 100*filled > 90*size {
			state := t.resizingState.Load()
			if state == noResizing && t.resizingState.CompareAndSwap(noResizing, allocating) {
				// Master.
				t.resizeRWL.RUnlock()
				t.resizeRWL.Lock()
				t.resizeMaster()
				t.resizeRWL.Unlock()
			} else {
				// Worker.
				t.resizeRWL.RUnlock()
				t.resizeWorker()
			}
			continue
		}
		break
	}

	inserted := insertHelper(t.table.Load(), t.size.Load(), hval, data, t.equal)
	t.resizeRWL.RUnlock()
	return inserted
}

// Find looks up a value matching hval and equal(candidate, val). Zero
// hash values are folded to 1, as in the original: state 0 in a slot
// means EMPTY, so a real zero hash is indistinguishable from "unused".
func (t *Table[T]) Find(hval uint64, val T) (T, bool) {
	for !t.resizeRWL.TryRLock() {
		t.resizeWorker()
	}
	defer t.resizeRWL.RUnlock()

	if hval == 0 {
		hval = 1
	}
	entries := t.table.Load()
	idx := lookup(entries, t.size.Load(), hval, val, t.equal)
	if idx == 0 {
		var zero T
		return zero, false
	}
	return (*entries)[idx].data, true
}

// lookup finds the slot holding (hval, val). It returns 0 (the unused
// sentinel slot) when the probe chain hits an EMPTY slot, which
// terminates the search: a reader may only stop early at EMPTY, never at
// a mismatched FILLED slot.
func lookup[T any](entries *[]entry[T], size, hval uint64, val T, equal func(a, b T) bool) uint64 {
	tbl := *entries
	idx := primaryIndex(hval, size)

	state := tbl[idx].state.Load()
	if state == stateEmpty {
		return 0
	}
	for state == stateInserting {
		state = tbl[idx].state.Load()
	}
	if tbl[idx].hashval == hval && equal(tbl[idx].data, val) {
		return idx
	}

	hash := secondaryStep(hval, size)
	for {
		idx = stepIndex(idx, hash, size)
		state = tbl[idx].state.Load()
		if state == stateEmpty {
			return 0
		}
		for state == stateInserting {
			state = tbl[idx].state.Load()
		}
		if tbl[idx].hashval == hval && equal(tbl[idx].data, val) {
			return idx
		}
	}
}

func insertHelper[T any](entries *[]entry[T], size, hval uint64, data T, equal func(a, b T) bool) bool {
	tbl := *entries
	idx := primaryIndex(hval, size)

	if claimed, exists := tryClaim(tbl, idx, hval, data, equal); claimed {
		return true
	} else if exists {
		return false
	}

	hash := secondaryStep(hval, size)
	for {
		idx = stepIndex(idx, hash, size)
		claimed, exists := tryClaim(tbl, idx, hval, data, equal)
		if claimed {
			return true
		}
		if exists {
			return false
		}
	}
}

// tryClaim attempts to claim slot idx for (hval, data). It returns
// claimed=true if this call filled the slot, exists=true if the slot
// already holds an equal entry (search over, nothing inserted).
func tryClaim[T any](tbl []entry[T], idx, hval uint64, data T, equal func(a, b T) bool) (claimed, exists bool) {
	state := tbl[idx].state.Load()
	if state == stateEmpty {
		if tbl[idx].state.CompareAndSwap(stateEmpty, stateInserting) {
			tbl[idx].hashval = hval
			tbl[idx].data = data
			tbl[idx].state.Store(stateFilled)
			return true, false
		}
		// Lost the race; someone else is filling this slot now.
		state = tbl[idx].state.Load()
	}

	for state == stateInserting {
		state = tbl[idx].state.Load()
	}
	if tbl[idx].hashval == hval && equal(tbl[idx].data, data) {
		return false, true
	}
	return false, false
}

func primaryIndex(hval, size uint64) uint64 {
	if hval < size {
		return 1 + hval
	}
	return 1 + hval%size
}

func secondaryStep(hval, size uint64) uint64 {
	return 1 + hval%(size-2)
}

func stepIndex(idx, step, size uint64) uint64 {
	if idx <= step {
		return size + idx - step
	}
	return idx - step
}

func phaseOf(state uint32) uint32          { return state & stateMask }
func isIdlePhase(state uint32) bool        { return state&1 == 0 }
func activeWorkersOf(state uint32) uint32  { return state >> 2 }

// transitionPhase swaps the low 2 bits of state to the given phase
// without disturbing the active-worker count in the upper bits, retrying
// if a worker registers or deregisters concurrently.
func transitionPhase(state *atomic.Uint32, to uint32) {
	for {
		cur := state.Load()
		next := (cur &^ stateMask) | to
		if state.CompareAndSwap(cur, next) {
			return
		}
	}
}

func decrementWorkers(state *atomic.Uint32) {
	delta := int32(stateIncrement)
	state.Add(uint32(-delta))
}

func ceilDiv(a, b uint64) uint64 { return (a + b - 1) / b }

// resizeMaster owns the ALLOCATING -> MOVING -> CLEANING -> NO_RESIZING
// phase sequence. It is only ever run by the single goroutine whose
// Insert call won the CAS from NO_RESIZING to ALLOCATING.
func (t *Table[T]) resizeMaster() {
	oldEntries := t.table.Load()
	oldSize := t.size.Load()
	t.oldTable.Store(oldEntries)
	t.oldSize.Store(oldSize)

	newSize := nextPrime(oldSize * 2)
	newEntries := make([]entry[T], newSize+1)
	t.table.Store(&newEntries)
	t.size.Store(newSize)

	transitionPhase(&t.resizingState, moving)

	t.resizeHelper(true)

	transitionPhase(&t.resizingState, cleaning)

	for activeWorkersOf(t.resizingState.Load()) != 0 {
		// Spin until every worker that registered during MOVING has
		// deregistered; CLEANING keeps new workers from joining.
	}

	t.nextInitBlock.Store(0)
	t.numInitializedBlocks.Store(0)
	t.nextMoveBlock.Store(0)
	t.numMovedBlocks.Store(0)

	t.oldTable.Store(nil)
	t.resizingState.Store(noResizing)
}

// resizeWorker registers as a helper for an in-flight resize, waits for
// the new table to exist, does its share of resizeHelper's work, then
// deregisters. It is a no-op if no resize is in flight or the resize has
// already reached CLEANING.
func (t *Table[T]) resizeWorker() {
	state := t.resizingState.Load()
	if isIdlePhase(state) {
		return
	}

	state = t.resizingState.Add(stateIncrement) - stateIncrement
	if isIdlePhase(state) {
		decrementWorkers(&t.resizingState)
		return
	}

	for phaseOf(state) == allocating {
		state = t.resizingState.Load()
	}

	if phaseOf(state) == cleaning {
		decrementWorkers(&t.resizingState)
		return
	}

	t.resizeHelper(false)
	decrementWorkers(&t.resizingState)
}

// resizeHelper does this goroutine's share of zero-initializing the new
// table and moving filled entries over from the old one. Work is claimed
// in fixed-size blocks via two atomic counters so any number of
// goroutines can join without coordination beyond the counters
// themselves. The move phase only starts once every block of the
// initialization phase has been claimed and finished: insertHelper must
// never observe a slot that hasn't been reset yet.
func (t *Table[T]) resizeHelper(blocking bool) {
	oldSize := t.oldSize.Load()
	newSize := t.size.Load()
	numOldBlocks := ceilDiv(oldSize, moveBlockSize)
	numNewBlocks := ceilDiv(newSize, initBlockSize)

	newEntries := t.table.Load()

	var finishedInit uint64
	for {
		myBlock := t.nextInitBlock.Add(1) - 1
		if myBlock >= numNewBlocks {
			break
		}
		start := myBlock * initBlockSize
		end := start + initBlockSize
		if end > newSize {
			end = newSize
		}
		tbl := *newEntries
		for i := start + 1; i <= end; i++ {
			tbl[i].state.Store(stateEmpty)
		}
		finishedInit++
	}
	t.numInitializedBlocks.Add(finishedInit)
	for t.numInitializedBlocks.Load() != numNewBlocks {
		// Join barrier: nobody may move entries into the new table until
		// every block of it has been reset.
	}

	oldEntries := t.oldTable.Load()
	var finishedMove uint64
	for {
		myBlock := t.nextMoveBlock.Add(1) - 1
		if myBlock >= numOldBlocks {
			break
		}
		start := myBlock * moveBlockSize
		end := start + moveBlockSize
		if end > oldSize {
			end = oldSize
		}
		tbl := *oldEntries
		for i := start + 1; i <= end; i++ {
			if tbl[i].state.Load() != stateFilled {
				continue
			}
			insertHelper(newEntries, newSize, tbl[i].hashval, tbl[i].data, t.equal)
		}
		finishedMove++
	}
	t.numMovedBlocks.Add(finishedMove)

	if blocking {
		for t.numMovedBlocks.Load() != numOldBlocks {
			// Master waits for every worker's move-phase share to land
			// before advancing to CLEANING.
		}
	}
}

// nextPrime returns the smallest prime p >= n, with a floor of 5: a table
// must hold at least 5 slots (sentinel plus enough room that
// secondaryStep's size-2 modulus is never degenerate), and even numbers
// other than 2 are never prime.
func nextPrime(n uint64) uint64 {
	if n < 5 {
		n = 5
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
