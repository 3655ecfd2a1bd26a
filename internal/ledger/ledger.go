package ledger

import (
	"slices"
	"sync"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/samber/lo"
)

// Ledger records which chunk owns which buildings so that a building shared by overlapping chunks is built
// by exactly one of them.
//
// Claimed sets of distinct chunks are disjoint. The first chunk to claim a building keeps it until released.
type Ledger[C comparable] struct {
	mu     sync.Mutex
	chunks map[C]*roaring64.Bitmap
	union  *roaring64.Bitmap
}

func New[C comparable]() *Ledger[C] {
	return &Ledger[C]{
		chunks: make(map[C]*roaring64.Bitmap),
		union:  roaring64.New(),
	}
}

func toBits(id domain.BuildingID) uint64 {
	return uint64(id)
}

func fromBits(bits uint64) domain.BuildingID {
	return domain.BuildingID(bits)
}

// Claim records every candidate no other chunk has claimed as belonging to chunk and returns them in
// candidate order. Claiming for a chunk already in the ledger replaces its previous claim.
func (l *Ledger[C]) Claim(chunk C, candidates []domain.BuildingID) []domain.BuildingID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.releaseLocked(chunk)

	claimed := roaring64.New()
	ids := make([]domain.BuildingID, 0, len(candidates))
	for _, id := range candidates {
		bits := toBits(id)
		if l.union.Contains(bits) || claimed.Contains(bits) {
			continue
		}
		claimed.Add(bits)
		ids = append(ids, id)
	}

	l.chunks[chunk] = claimed
	l.union.Or(claimed)
	return ids
}

// Release frees the buildings claimed by chunk. Returns false if chunk had no claim.
func (l *Ledger[C]) Release(chunk C) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.releaseLocked(chunk)
}

func (l *Ledger[C]) releaseLocked(chunk C) bool {
	claimed, ok := l.chunks[chunk]
	if !ok {
		return false
	}
	// Claims are disjoint, so nothing else owns these
	l.union.AndNot(claimed)
	delete(l.chunks, chunk)
	return true
}

// Claimed returns the buildings owned by chunk in ascending id order
func (l *Ledger[C]) Claimed(chunk C) []domain.BuildingID {
	l.mu.Lock()
	defer l.mu.Unlock()

	claimed, ok := l.chunks[chunk]
	if !ok {
		return nil
	}

	ids := make([]domain.BuildingID, 0, claimed.GetCardinality())
	it := claimed.Iterator()
	for it.HasNext() {
		ids = append(ids, fromBits(it.Next()))
	}
	// Negative ids sort after positive ones in the bitmap
	slices.Sort(ids)
	return ids
}

// Owner returns the chunk that has claimed id
func (l *Ledger[C]) Owner(id domain.BuildingID) (C, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bits := toBits(id)
	if l.union.Contains(bits) {
		for chunk, claimed := range l.chunks {
			if claimed.Contains(bits) {
				return chunk, true
			}
		}
	}

	var empty C
	return empty, false
}

func (l *Ledger[C]) Chunks() []C {
	l.mu.Lock()
	defer l.mu.Unlock()

	return lo.Keys(l.chunks)
}

// Len is the number of chunks holding a claim
func (l *Ledger[C]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.chunks)
}

// ClaimedCount is the number of buildings claimed by any chunk
func (l *Ledger[C]) ClaimedCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.union.GetCardinality()
}
