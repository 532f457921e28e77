package model

import (
	"fmt"
	"math"
	"math/bits"
)

// index keeps children addressable by key while remembering insertion order.
type index[K comparable, V any] struct {
	order []V
	byKey map[K]V
}

func (ix *index[K, V]) get(k K) (V, bool) {
	v, ok := ix.byKey[k]
	return v, ok
}

func (ix *index[K, V]) getOrCreate(k K, mk func() V) V {
	if v, ok := ix.byKey[k]; ok {
		return v
	}
	if ix.byKey == nil {
		ix.byKey = make(map[K]V)
	}
	v := mk()
	ix.byKey[k] = v
	ix.order = append(ix.order, v)
	return v
}

// Leaf holds the per-line samples of one ip-flow. All slices have equal length.
type Leaf struct {
	IPFlow    IPFlow
	BytesSent []uint64
	TimeUsed  []uint64
	Node      []string
	Card      []string
	Timestamp []string
	SrcIP     []string
	DstIP     []string
}

// Append records one line's samples at the end of every sequence.
func (l *Leaf) Append(r *EventRecord) {
	l.BytesSent = append(l.BytesSent, r.Bytes)
	l.TimeUsed = append(l.TimeUsed, r.TimeNs)
	l.Node = append(l.Node, r.Node)
	l.Card = append(l.Card, r.Card)
	l.Timestamp = append(l.Timestamp, r.Timestamp)
	l.SrcIP = append(l.SrcIP, r.SrcIP)
	l.DstIP = append(l.DstIP, r.DstIP)
}

// Len returns the number of contributing lines.
func (l *Leaf) Len() int {
	return len(l.BytesSent)
}

// Totals returns the summed bytes and nanoseconds of the leaf. A sum that does
// not fit in uint64 saturates at math.MaxUint64 and sets overflow.
func (l *Leaf) Totals() (bytes, timeNs uint64, overflow bool) {
	for i := range l.BytesSent {
		var cb, ct uint64
		bytes, cb = bits.Add64(bytes, l.BytesSent[i], 0)
		if cb != 0 {
			bytes, overflow = math.MaxUint64, true
		}
		timeNs, ct = bits.Add64(timeNs, l.TimeUsed[i], 0)
		if ct != 0 {
			timeNs, overflow = math.MaxUint64, true
		}
	}
	return bytes, timeNs, overflow
}

// Sums returns the summed bytes and nanoseconds as floats. Unlike Totals it
// never wraps or saturates, which keeps rates right for very large counters.
func (l *Leaf) Sums() (bytes, timeNs float64) {
	for i := range l.BytesSent {
		bytes += float64(l.BytesSent[i])
		timeNs += float64(l.TimeUsed[i])
	}
	return bytes, timeNs
}

// FlowNode groups the ip-flows observed for one rank-flow.
type FlowNode struct {
	Flow    RankFlow
	ipFlows index[IPFlow, *Leaf]
}

// Leaves returns the ip-flow leaves in insertion order.
func (n *FlowNode) Leaves() []*Leaf { return n.ipFlows.order }

type ChannelNode struct {
	Channel string
	flows   index[RankFlow, *FlowNode]
}

// Flows returns the rank-flows of the channel in first-appearance order.
func (n *ChannelNode) Flows() []*FlowNode { return n.flows.order }

type RepetitionNode struct {
	FuncTimes string
	channels  index[string, *ChannelNode]
}

func (n *RepetitionNode) Channels() []*ChannelNode { return n.channels.order }

type FuncNode struct {
	Name        string
	repetitions index[string, *RepetitionNode]
}

func (n *FuncNode) Repetitions() []*RepetitionNode { return n.repetitions.order }

type GroupNode struct {
	Group string
	funcs index[string, *FuncNode]
}

func (n *GroupNode) Funcs() []*FuncNode { return n.funcs.order }

// Tree is the aggregation hierarchy
// group -> func -> func_times -> channel -> rank-flow -> ip-flow.
// Every level iterates in insertion order. It is not safe for concurrent mutation.
type Tree struct {
	groups index[string, *GroupNode]
	leaves int
}

func NewTree() *Tree {
	return &Tree{}
}

// Groups returns the group nodes in insertion order.
func (t *Tree) Groups() []*GroupNode { return t.groups.order }

// Len returns the number of leaves in the tree.
func (t *Tree) Len() int { return t.leaves }

// Insert returns the leaf for key, creating every missing level on the way down.
func (t *Tree) Insert(key AggregationKey) *Leaf {
	g := t.groups.getOrCreate(key.Group, func() *GroupNode { return &GroupNode{Group: key.Group} })
	f := g.funcs.getOrCreate(key.Func, func() *FuncNode { return &FuncNode{Name: key.Func} })
	r := f.repetitions.getOrCreate(key.FuncTimes, func() *RepetitionNode { return &RepetitionNode{FuncTimes: key.FuncTimes} })
	c := r.channels.getOrCreate(key.Channel, func() *ChannelNode { return &ChannelNode{Channel: key.Channel} })
	fl := c.flows.getOrCreate(key.Flow, func() *FlowNode { return &FlowNode{Flow: key.Flow} })
	return fl.ipFlows.getOrCreate(key.IPFlow, func() *Leaf {
		t.leaves++
		return &Leaf{IPFlow: key.IPFlow}
	})
}

// Lookup walks key down the tree without creating anything. The error names the
// first level that is missing.
func (t *Tree) Lookup(key AggregationKey) (*Leaf, error) {
	g, ok := t.groups.get(key.Group)
	if !ok {
		return nil, fmt.Errorf("missing level group for %s", key)
	}
	f, ok := g.funcs.get(key.Func)
	if !ok {
		return nil, fmt.Errorf("missing level func for %s", key)
	}
	r, ok := f.repetitions.get(key.FuncTimes)
	if !ok {
		return nil, fmt.Errorf("missing level func_times for %s", key)
	}
	c, ok := r.channels.get(key.Channel)
	if !ok {
		return nil, fmt.Errorf("missing level channel for %s", key)
	}
	fl, ok := c.flows.get(key.Flow)
	if !ok {
		return nil, fmt.Errorf("missing level flow for %s", key)
	}
	leaf, ok := fl.ipFlows.get(key.IPFlow)
	if !ok {
		return nil, fmt.Errorf("missing level ip_flow for %s", key)
	}
	return leaf, nil
}

// Walk visits every leaf in tree order.
func (t *Tree) Walk(fn func(key AggregationKey, leaf *Leaf)) {
	t.WalkBuckets(func(b BucketKey, c *ChannelNode) {
		for _, fl := range c.Flows() {
			for _, leaf := range fl.Leaves() {
				fn(AggregationKey{BucketKey: b, Flow: fl.Flow, IPFlow: leaf.IPFlow}, leaf)
			}
		}
	})
}

// WalkBuckets visits every channel node, i.e. every flow graph, in tree order.
func (t *Tree) WalkBuckets(fn func(b BucketKey, c *ChannelNode)) {
	for _, g := range t.Groups() {
		for _, f := range g.Funcs() {
			for _, r := range f.Repetitions() {
				for _, c := range r.Channels() {
					fn(BucketKey{Group: g.Group, Func: f.Name, FuncTimes: r.FuncTimes, Channel: c.Channel}, c)
				}
			}
		}
	}
}
