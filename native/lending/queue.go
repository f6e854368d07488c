package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MatchingQueue registers users holding a position of one kind (pool-side or
// P2P-side) so the matching routines can pick counterparties largest-first.
//
// Members are bucketed by the bit length of their scaled balance: matching
// always drains the highest non-empty bucket and buckets are FIFO, so
// selection is deterministic and largest-first up to a factor of two, with
// O(1) match and O(1) update.
type MatchingQueue struct {
	buckets map[int]*queueBucket
	entries map[common.Address]*queueEntry
	highest int
}

type queueBucket struct {
	head *queueEntry
	tail *queueEntry
}

type queueEntry struct {
	user   common.Address
	bucket int
	prev   *queueEntry
	next   *queueEntry
}

func NewMatchingQueue() *MatchingQueue {
	return &MatchingQueue{
		buckets: make(map[int]*queueBucket),
		entries: make(map[common.Address]*queueEntry),
		highest: -1,
	}
}

// Len reports the number of registered users.
func (q *MatchingQueue) Len() int {
	return len(q.entries)
}

// Update registers, moves or removes the user according to their new scaled
// balance. A zero balance removes the membership; a bucket change re-appends
// at the tail of the new bucket.
func (q *MatchingQueue) Update(user common.Address, scaled *big.Int) {
	bucket := -1
	if scaled != nil && scaled.Sign() > 0 {
		bucket = scaled.BitLen()
	}
	entry, ok := q.entries[user]
	if ok {
		if entry.bucket == bucket {
			return
		}
		q.unlink(entry)
	}
	if bucket < 0 {
		delete(q.entries, user)
		return
	}
	if !ok {
		entry = &queueEntry{user: user}
		q.entries[user] = entry
	}
	entry.bucket = bucket
	entry.prev, entry.next = nil, nil
	b := q.buckets[bucket]
	if b == nil {
		b = &queueBucket{}
		q.buckets[bucket] = b
	}
	if b.tail == nil {
		b.head, b.tail = entry, entry
	} else {
		entry.prev = b.tail
		b.tail.next = entry
		b.tail = entry
	}
	if bucket > q.highest {
		q.highest = bucket
	}
}

// Remove drops the user from the queue regardless of balance. Used to skip
// dust positions whose scaled balance rounds to zero underlying.
func (q *MatchingQueue) Remove(user common.Address) {
	if entry, ok := q.entries[user]; ok {
		q.unlink(entry)
		delete(q.entries, user)
	}
}

// Match returns the next counterparty: the oldest member of the highest
// non-empty bucket. ok is false when the queue is empty.
func (q *MatchingQueue) Match() (common.Address, bool) {
	b := q.currentBucket()
	if b == nil {
		return common.Address{}, false
	}
	return b.head.user, true
}

func (q *MatchingQueue) currentBucket() *queueBucket {
	for q.highest >= 0 {
		if b := q.buckets[q.highest]; b != nil && b.head != nil {
			return b
		}
		delete(q.buckets, q.highest)
		q.highest--
	}
	return nil
}

func (q *MatchingQueue) unlink(entry *queueEntry) {
	b := q.buckets[entry.bucket]
	if b == nil {
		return
	}
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		b.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		b.tail = entry.prev
	}
	entry.prev, entry.next = nil, nil
}
