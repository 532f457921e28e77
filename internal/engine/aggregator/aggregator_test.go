package aggregator

import (
	"Go2TraceSpectra/internal/model"
	"Go2TraceSpectra/pkg/logscan"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu           sync.Mutex
	skippedLines []string
	skipErrs     []error
	skippedFiles []string
	inconsistent int
	filesRead    map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{filesRead: make(map[string]int)}
}

func (s *recordingSink) LineSkipped(path string, lineNo int, line string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skippedLines = append(s.skippedLines, fmt.Sprintf("%s:%d", filepath.Base(path), lineNo))
	s.skipErrs = append(s.skipErrs, err)
}

func (s *recordingSink) FileSkipped(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skippedFiles = append(s.skippedFiles, filepath.Base(path))
}

func (s *recordingSink) Inconsistency(model.AggregationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inconsistent++
}

func (s *recordingSink) FileRead(path string, parsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filesRead[filepath.Base(path)] = parsed
}

func line(node string, group, src, dst, channel, fn, times int, srcIP, dstIP string, bytes, ns uint64) string {
	return fmt.Sprintf("%s:0:100: Group:%d, from rank %d to rank %d, channel_id:%d, func:%d,FuncTimes:%d, %s->%s send %d Bytes used %d nsec",
		node, group, src, dst, channel, fn, times, srcIP, dstIP, bytes, ns)
}

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func key(group, src, dst, channel int, fn model.FuncType, times int, srcIP, dstIP string) model.AggregationKey {
	return model.AggregationKey{
		BucketKey: model.BucketKey{Group: strconv.Itoa(group), Func: fn.String(), FuncTimes: strconv.Itoa(times), Channel: strconv.Itoa(channel)},
		Flow:      model.RankFlow{Src: strconv.Itoa(src), Dst: strconv.Itoa(dst)},
		IPFlow:    model.IPFlow{Src: srcIP, Dst: dstIP},
	}
}

func TestProcessReader_FoldsInFileOrder(t *testing.T) {
	sink := newRecordingSink()
	agg := New(sink, 1, 0)

	input := strings.Join([]string{
		line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 100, 10),
		"NCCL INFO something unrelated",
		line("b", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 300, 30),
		line("c", 0, 1, 2, 0, 4, 1, "10.0.0.2", "10.0.0.3", 50, 5),
		line("d", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 200, 20),
	}, "\n")
	require.NoError(t, agg.ProcessReader("mem.log", strings.NewReader(input)))

	tree := agg.Tree()
	assert.Equal(t, 2, tree.Len())

	leaf, err := tree.Lookup(key(0, 0, 1, 0, model.FuncAllReduce, 1, "10.0.0.1", "10.0.0.2"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 300, 200}, leaf.BytesSent)
	assert.Equal(t, []uint64{10, 30, 20}, leaf.TimeUsed)
	assert.Equal(t, []string{"a", "b", "d"}, leaf.Node)
	assert.Len(t, leaf.Card, 3)
	assert.Len(t, leaf.Timestamp, 3)
	assert.Len(t, leaf.SrcIP, 3)
	assert.Len(t, leaf.DstIP, 3)

	assert.Equal(t, []string{"mem.log:2"}, sink.skippedLines)
	assert.Equal(t, 4, sink.filesRead["mem.log"])
}

func TestProcessReader_MalformedNeverContributes(t *testing.T) {
	agg := New(nil, 1, 0)
	input := strings.Join([]string{
		strings.Replace(line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 100, 10), "10.0.0.1", "10.0.1", 1),
		strings.Replace(line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 100, 10), "send 100", "send x", 1),
		strings.Replace(line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 100, 10), "send 100", "send 99999999999999999999", 1),
		"garbage",
	}, "\n")
	require.NoError(t, agg.ProcessReader("bad.log", strings.NewReader(input)))
	assert.Equal(t, 0, agg.Tree().Len())
	assert.Empty(t, agg.Tree().Groups())
}

func TestProcessFiles_SkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	good := writeLog(t, dir, "a.log", line("a", 1, 0, 1, 2, 5, 3, "1.1.1.1", "2.2.2.2", 8, 1))
	asDir := filepath.Join(dir, "b.log")
	require.NoError(t, os.Mkdir(asDir, 0755))
	missing := filepath.Join(dir, "c.log")
	last := writeLog(t, dir, "d.log", line("d", 1, 0, 1, 2, 5, 3, "1.1.1.1", "2.2.2.2", 16, 1))

	sink := newRecordingSink()
	agg := New(sink, 4, 0)
	require.NoError(t, agg.ProcessFiles(context.Background(), []string{good, asDir, missing, last}))

	assert.ElementsMatch(t, []string{"b.log", "c.log"}, sink.skippedFiles)
	leaf, err := agg.Tree().Lookup(key(1, 0, 1, 2, model.FuncSendRecv, 3, "1.1.1.1", "2.2.2.2"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{8, 16}, leaf.BytesSent)
	assert.Equal(t, []string{"a", "d"}, leaf.Node)
}

func TestProcessFiles_OrderIndependentSums(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		var lines []string
		for j := 0; j < 20; j++ {
			lines = append(lines, line(fmt.Sprintf("n%d", i), j%2, j%4, (j+1)%4, j%3, 4, 1,
				"10.0.0.1", "10.0.0.2", uint64(100*(i+1)+j), uint64(10+j)))
		}
		paths = append(paths, writeLog(t, dir, fmt.Sprintf("f%d.log", i), lines...))
	}

	totals := func(order []string, workers int) map[model.AggregationKey][2]uint64 {
		agg := New(nil, workers, 0)
		require.NoError(t, agg.ProcessFiles(context.Background(), order))
		out := make(map[model.AggregationKey][2]uint64)
		agg.Tree().Walk(func(k model.AggregationKey, l *model.Leaf) {
			b, ns, _ := l.Totals()
			out[k] = [2]uint64{b, ns}
		})
		return out
	}

	reversed := make([]string, len(paths))
	for i, p := range paths {
		reversed[len(paths)-1-i] = p
	}
	assert.Equal(t, totals(paths, 1), totals(reversed, 3))
}

func TestProcessFiles_DeterministicAcrossWorkers(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 8; i++ {
		paths = append(paths, writeLog(t, dir, fmt.Sprintf("f%d.log", i),
			line(fmt.Sprintf("n%d", i), 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", uint64(i+1), 1),
			line(fmt.Sprintf("n%d", i), 0, i%3, 2, 0, 4, 1, "10.0.0.1", "10.0.0.3", uint64(i+1), 1),
		))
	}

	serial := New(nil, 1, 0)
	require.NoError(t, serial.ProcessFiles(context.Background(), paths))
	parallel := New(nil, 8, 0)
	require.NoError(t, parallel.ProcessFiles(context.Background(), paths))

	assert.Equal(t, serial.Tree().Snapshot(), parallel.Tree().Snapshot())
}

func TestProcessFiles_Canceled(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "a.log", line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := New(nil, 2, 0)
	err := agg.ProcessFiles(ctx, []string{path})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, agg.Tree().Len())
}

func TestAdd_FuncTimesAndChannelSeparateBuckets(t *testing.T) {
	agg := New(nil, 1, 0)
	for _, rec := range []*model.EventRecord{
		{Group: "0", SrcRank: "0", DstRank: "1", Channel: "0", Func: model.FuncAllReduce, FuncTimes: "1", SrcIP: "a", DstIP: "b", Bytes: 1, TimeNs: 1},
		{Group: "0", SrcRank: "0", DstRank: "1", Channel: "1", Func: model.FuncAllReduce, FuncTimes: "1", SrcIP: "a", DstIP: "b", Bytes: 1, TimeNs: 1},
		{Group: "0", SrcRank: "0", DstRank: "1", Channel: "0", Func: model.FuncAllReduce, FuncTimes: "2", SrcIP: "a", DstIP: "b", Bytes: 1, TimeNs: 1},
		{Group: "0", SrcRank: "0", DstRank: "1", Channel: "0", Func: model.FuncType(77), FuncTimes: "1", SrcIP: "a", DstIP: "b", Bytes: 1, TimeNs: 1},
	} {
		require.NoError(t, agg.Add(rec))
	}

	var buckets []model.BucketKey
	agg.Tree().WalkBuckets(func(b model.BucketKey, _ *model.ChannelNode) {
		buckets = append(buckets, b)
	})
	assert.Equal(t, []model.BucketKey{
		{Group: "0", Func: "ncclFuncAllReduce", FuncTimes: "1", Channel: "0"},
		{Group: "0", Func: "ncclFuncAllReduce", FuncTimes: "1", Channel: "1"},
		{Group: "0", Func: "ncclFuncAllReduce", FuncTimes: "2", Channel: "0"},
		{Group: "0", Func: "Unknown", FuncTimes: "1", Channel: "0"},
	}, buckets)
}

func TestProcessFiles_OverlongLineSkippedNotFile(t *testing.T) {
	dir := t.TempDir()
	first := line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 100, 10)
	last := line("a", 0, 0, 1, 0, 4, 1, "10.0.0.1", "10.0.0.2", 300, 30)
	junk := strings.Repeat("j", 2<<20)
	path := writeLog(t, dir, "big.log", first, junk, last)

	sink := newRecordingSink()
	agg := New(sink, 2, 0)
	require.NoError(t, agg.ProcessFiles(context.Background(), []string{path}))

	assert.Empty(t, sink.skippedFiles)
	assert.Equal(t, []string{"big.log:2"}, sink.skippedLines)
	require.Len(t, sink.skipErrs, 1)
	assert.ErrorIs(t, sink.skipErrs[0], logscan.ErrLineTooLong)
	assert.Equal(t, 2, sink.filesRead["big.log"])

	leaf, err := agg.Tree().Lookup(key(0, 0, 1, 0, model.FuncAllReduce, 1, "10.0.0.1", "10.0.0.2"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 300}, leaf.BytesSent)
}

func TestProcessReader_LeadingZeroKeysStayDistinct(t *testing.T) {
	agg := New(nil, 1, 0)
	input := strings.Join([]string{
		"n:0:1: Group:01, from rank 0 to rank 1, channel_id:0, func:4,FuncTimes:1, 10.0.0.1->10.0.0.2 send 100 Bytes used 10 nsec",
		"n:0:2: Group:1, from rank 0 to rank 1, channel_id:0, func:4,FuncTimes:1, 10.0.0.1->10.0.0.2 send 200 Bytes used 10 nsec",
	}, "\n")
	require.NoError(t, agg.ProcessReader("mem.log", strings.NewReader(input)))

	tree := agg.Tree()
	require.Len(t, tree.Groups(), 2)
	assert.Equal(t, "01", tree.Groups()[0].Group)
	assert.Equal(t, "1", tree.Groups()[1].Group)
	assert.Equal(t, 2, tree.Len())
}

func TestAdd_StructuralInconsistency(t *testing.T) {
	sink := newRecordingSink()
	agg := New(sink, 1, 0)
	broken := errors.New("channel node vanished")
	agg.lookup = func(model.AggregationKey) (*model.Leaf, error) { return nil, broken }

	rec := &model.EventRecord{Group: "0", SrcRank: "0", DstRank: "1", Channel: "0", Func: model.FuncAllReduce,
		FuncTimes: "1", SrcIP: "a", DstIP: "b", Bytes: 1, TimeNs: 1}
	err := agg.Add(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructural)
	assert.Contains(t, err.Error(), "channel node vanished")
	assert.Equal(t, 1, sink.inconsistent)

	leaf, lerr := agg.Tree().Lookup(rec.Key())
	require.NoError(t, lerr)
	assert.Equal(t, 0, leaf.Len())
}

func TestAdd_LookupReturnsOtherLeaf(t *testing.T) {
	sink := newRecordingSink()
	agg := New(sink, 1, 0)
	agg.lookup = func(model.AggregationKey) (*model.Leaf, error) { return &model.Leaf{}, nil }

	rec := &model.EventRecord{Group: "0", SrcRank: "0", DstRank: "1", Channel: "0", Func: model.FuncAllReduce,
		FuncTimes: "1", SrcIP: "a", DstIP: "b", Bytes: 1, TimeNs: 1}
	assert.ErrorIs(t, agg.Add(rec), ErrStructural)
	assert.Equal(t, 1, sink.inconsistent)
}
