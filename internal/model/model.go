package model


// FuncType is the collective primitive code carried in the "func:" field of a trace line.
type FuncType int

const (
	FuncBroadcast FuncType = iota
	FuncReduce
	FuncAllGather
	FuncReduceScatter
	FuncAllReduce
	FuncSendRecv
	FuncSend
	FuncRecv
	NumFuncs
)

// UnknownFunc is the label used for codes outside the known enumeration.
const UnknownFunc = "Unknown"

// funcNames holds the labels the tracer itself prints (ncclFuncBroadcast, not Broadcast),
// so reports line up with the library's own logs.
var funcNames = map[FuncType]string{
	FuncBroadcast:     "ncclFuncBroadcast",
	FuncReduce:        "ncclFuncReduce",
	FuncAllGather:     "ncclFuncAllGather",
	FuncReduceScatter: "ncclFuncReduceScatter",
	FuncAllReduce:     "ncclFuncAllReduce",
	FuncSendRecv:      "ncclFuncSendRecv",
	FuncSend:          "ncclFuncSend",
	FuncRecv:          "ncclFuncRecv",
	NumFuncs:          "ncclNumFuncs",
}

// String returns the operation label, or UnknownFunc for unrecognized codes.
func (f FuncType) String() string {
	if name, ok := funcNames[f]; ok {
		return name
	}
	return UnknownFunc
}

// EventRecord holds the fields extracted from a single trace line.
// Group, ranks, channel and func_times keep the digits exactly as written:
// "01" and "1" are different keys.
type EventRecord struct {
	Node      string
	Card      string
	Timestamp string // opaque, never parsed as a time
	Group     string
	SrcRank   string
	DstRank   string
	Channel   string
	Func      FuncType
	FuncTimes string
	SrcIP     string
	DstIP     string
	Bytes     uint64
	TimeNs    uint64
}

// RankFlow is the logical sender/receiver pair of a transfer.
type RankFlow struct {
	Src string
	Dst string
}

func (r RankFlow) String() string {
	return r.Src + "->" + r.Dst
}

// IPFlow is the physical path of a transfer.
type IPFlow struct {
	Src string
	Dst string
}

func (f IPFlow) String() string {
	return f.Src + "->" + f.Dst
}

// BucketKey identifies one flow graph: a single channel of one repetition of an operation.
type BucketKey struct {
	Group     string
	Func      string
	FuncTimes string
	Channel   string
}

// AggregationKey is the full path from the tree root down to one leaf.
type AggregationKey struct {
	BucketKey
	Flow   RankFlow
	IPFlow IPFlow
}

// Key builds the aggregation path for a record.
func (r *EventRecord) Key() AggregationKey {
	return AggregationKey{
		BucketKey: BucketKey{
			Group:     r.Group,
			Func:      r.Func.String(),
			FuncTimes: r.FuncTimes,
			Channel:   r.Channel,
		},
		Flow:   RankFlow{Src: r.SrcRank, Dst: r.DstRank},
		IPFlow: IPFlow{Src: r.SrcIP, Dst: r.DstIP},
	}
}

func (k AggregationKey) String() string {
	return "group=" + k.Group +
		" func=" + k.Func +
		" func_times=" + k.FuncTimes +
		" channel=" + k.Channel +
		" flow=" + k.Flow.String() +
		" ip_flow=" + k.IPFlow.String()
}
