package model

// SnapshotEntry is one leaf of a flattened tree.
type SnapshotEntry struct {
	Key  AggregationKey
	Leaf Leaf
}

// Snapshot is a flat, encodable copy of a Tree. Entries are in tree order so
// that rebuilding reproduces the same iteration order.
type Snapshot struct {
	RunID   string
	Source  string
	Entries []SnapshotEntry
}

// Snapshot flattens the tree into an independent copy.
func (t *Tree) Snapshot() Snapshot {
	s := Snapshot{Entries: make([]SnapshotEntry, 0, t.Len())}
	t.Walk(func(key AggregationKey, leaf *Leaf) {
		cp := Leaf{
			IPFlow:    leaf.IPFlow,
			BytesSent: append([]uint64(nil), leaf.BytesSent...),
			TimeUsed:  append([]uint64(nil), leaf.TimeUsed...),
			Node:      append([]string(nil), leaf.Node...),
			Card:      append([]string(nil), leaf.Card...),
			Timestamp: append([]string(nil), leaf.Timestamp...),
			SrcIP:     append([]string(nil), leaf.SrcIP...),
			DstIP:     append([]string(nil), leaf.DstIP...),
		}
		s.Entries = append(s.Entries, SnapshotEntry{Key: key, Leaf: cp})
	})
	return s
}

// TreeFromSnapshot rebuilds a tree from a snapshot.
func TreeFromSnapshot(s Snapshot) *Tree {
	t := NewTree()
	for i := range s.Entries {
		e := &s.Entries[i]
		leaf := t.Insert(e.Key)
		leaf.BytesSent = append(leaf.BytesSent, e.Leaf.BytesSent...)
		leaf.TimeUsed = append(leaf.TimeUsed, e.Leaf.TimeUsed...)
		leaf.Node = append(leaf.Node, e.Leaf.Node...)
		leaf.Card = append(leaf.Card, e.Leaf.Card...)
		leaf.Timestamp = append(leaf.Timestamp, e.Leaf.Timestamp...)
		leaf.SrcIP = append(leaf.SrcIP, e.Leaf.SrcIP...)
		leaf.DstIP = append(leaf.DstIP, e.Leaf.DstIP...)
	}
	return t
}
