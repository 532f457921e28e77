// Package rate reduces aggregation leaves to transmission-rate statistics.
package rate

import "Go2TraceSpectra/internal/model"

// Gbps converts bytes moved in ns nanoseconds to gigabits per second.
// Bits per nanosecond equals Gb/s. A zero duration yields 0.
func Gbps(bytes, ns float64) float64 {
	if ns <= 0 {
		return 0
	}
	return bytes * 8 / ns
}

// LeafRateOf computes the single rate of one leaf plus its per-sample averages.
// Rates come from float sums, so they stay right when the uint64 totals saturate.
func LeafRateOf(key model.AggregationKey, leaf *model.Leaf) model.LeafRate {
	totalBytes, totalTime, overflow := leaf.Totals()
	sumBytes, sumTime := leaf.Sums()
	lr := model.LeafRate{
		Key:        key,
		Samples:    leaf.Len(),
		TotalBytes: totalBytes,
		TotalTime:  totalTime,
		Overflow:   overflow,
		Rate:       Gbps(sumBytes, sumTime),
	}
	if lr.Samples > 0 {
		lr.AvgBytes = sumBytes / float64(lr.Samples)
		lr.AvgTime = sumTime / float64(lr.Samples)
		lr.AvgRate = Gbps(lr.AvgBytes, lr.AvgTime)
	}
	return lr
}

// NewGroupRates computes the mean and minimum of a group's leaf rates.
// Ties on the minimum keep the first leaf; an empty group has a nil Min.
func NewGroupRates(group string, leaves []model.LeafRate) model.GroupRates {
	g := model.GroupRates{Group: group, Leaves: leaves}
	g.Mean, g.Min = meanAndMin(leaves)
	return g
}

// Compute walks the tree once and returns per-group and global statistics.
func Compute(tree *model.Tree) model.RateSummary {
	var summary model.RateSummary
	var all []model.LeafRate
	var groups []string
	byGroup := make(map[string][]model.LeafRate)

	// Walk visits each group's leaves contiguously, in insertion order.
	tree.Walk(func(key model.AggregationKey, leaf *model.Leaf) {
		if _, seen := byGroup[key.Group]; !seen {
			groups = append(groups, key.Group)
		}
		lr := LeafRateOf(key, leaf)
		byGroup[key.Group] = append(byGroup[key.Group], lr)
		all = append(all, lr)
	})

	for _, g := range groups {
		summary.Groups = append(summary.Groups, NewGroupRates(g, byGroup[g]))
	}
	summary.LeafCount = len(all)
	summary.Mean, summary.Min = meanAndMin(all)
	return summary
}

func meanAndMin(leaves []model.LeafRate) (float64, *model.LeafRate) {
	if len(leaves) == 0 {
		return 0, nil
	}
	var sum float64
	minIdx := 0
	for i := range leaves {
		sum += leaves[i].Rate
		if leaves[i].Rate < leaves[minIdx].Rate {
			minIdx = i
		}
	}
	lowest := leaves[minIdx]
	return sum / float64(len(leaves)), &lowest
}
