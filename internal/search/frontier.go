package search

import (
	"cmp"
	"slices"
)

// Entry is a frontier item: Node was ranked against Counterpart, the opposing
// frontier's representative at the time. Entries are never modified; a stale
// entry is popped and, if still useful, pushed again with a fresh rank.
type Entry struct {
	Rank        float64
	Node        string
	Counterpart string
}

// compareEntries orders by rank, then node, then counterpart, so equal ranks
// resolve deterministically.
func compareEntries(a, b Entry) int {
	if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Node, b.Node); c != 0 {
		return c
	}
	return cmp.Compare(a.Counterpart, b.Counterpart)
}

func descending(a, b Entry) int { return compareEntries(b, a) }

// Frontier is a min-priority queue of entries. It is kept as a slice sorted
// from worst to best, so Pop and Peek work at the tail and a batch of new
// entries is merged in a single linear pass.
type Frontier struct {
	entries []Entry
}

// Len returns the number of entries.
func (f *Frontier) Len() int { return len(f.entries) }

// Peek returns the best entry without removing it.
func (f *Frontier) Peek() (Entry, bool) {
	if len(f.entries) == 0 {
		return Entry{}, false
	}
	return f.entries[len(f.entries)-1], true
}

// Pop removes and returns the best entry.
func (f *Frontier) Pop() (Entry, bool) {
	e, ok := f.Peek()
	if ok {
		f.entries = f.entries[:len(f.entries)-1]
	}
	return e, ok
}

// Push inserts one entry.
func (f *Frontier) Push(e Entry) {
	i, _ := slices.BinarySearchFunc(f.entries, e, descending)
	f.entries = slices.Insert(f.entries, i, e)
}

// Merge inserts a batch of entries. The batch is sorted and then merged with
// the existing entries.
func (f *Frontier) Merge(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	batch = slices.Clone(batch)
	slices.SortFunc(batch, descending)
	if len(f.entries) == 0 {
		f.entries = batch
		return
	}

	merged := make([]Entry, 0, len(f.entries)+len(batch))
	i, j := 0, 0
	for i < len(f.entries) && j < len(batch) {
		if descending(f.entries[i], batch[j]) <= 0 {
			merged = append(merged, f.entries[i])
			i++
		} else {
			merged = append(merged, batch[j])
			j++
		}
	}
	merged = append(merged, f.entries[i:]...)
	merged = append(merged, batch[j:]...)
	f.entries = merged
}

// Entries returns the entries from best to worst.
func (f *Frontier) Entries() []Entry {
	out := slices.Clone(f.entries)
	slices.Reverse(out)
	return out
}
