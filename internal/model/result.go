package model

import "time"

// LeafRate is the rate computed for a single aggregation leaf.
type LeafRate struct {
	Key        AggregationKey
	Samples    int
	TotalBytes uint64
	TotalTime  uint64
	// Overflow is set when a total saturated at math.MaxUint64.
	Overflow bool
	// Rate is (TotalBytes*8)/TotalTime in Gb/s, 0 when TotalTime is 0.
	Rate float64

	AvgBytes float64
	AvgTime  float64
	AvgRate  float64
}

// GroupRates holds the leaf rates of one communication group in tree order.
type GroupRates struct {
	Group  string
	Leaves []LeafRate
	Mean   float64
	// Min is nil when the group has no leaves.
	Min *LeafRate
}

// RateSummary is the output of the rate calculation across the whole run.
type RateSummary struct {
	Groups    []GroupRates
	Mean      float64
	Min       *LeafRate
	LeafCount int
}

// Cycle is a strongly connected component found in one flow graph.
type Cycle struct {
	Bucket BucketKey
	// Ranks are in the order they were popped from the SCC stack.
	Ranks []int
}

// RunStats summarizes what ingestion consumed and skipped.
type RunStats struct {
	FilesRead       int `json:"files_read"`
	FilesSkipped    int `json:"files_skipped"`
	LinesParsed     int `json:"lines_parsed"`
	LinesSkipped    int `json:"lines_skipped"`
	Inconsistencies int `json:"inconsistencies"`
}

// RunResult bundles everything one analysis run produced.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Source    string
	Rates     RateSummary
	Cycles    []Cycle
	Stats     RunStats
	Tree      *Tree
}
