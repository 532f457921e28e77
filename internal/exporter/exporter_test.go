package exporter

import (
	"Go2TraceSpectra/internal/engine/cycle"
	"Go2TraceSpectra/internal/engine/rate"
	"Go2TraceSpectra/internal/model"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// sampleRun has a 0->1->2->0 ring at 10, 30 and 20 Gb/s in group 1 and a
// single zero-time leaf in group 2.
func sampleRun(t *testing.T) *model.RunResult {
	t.Helper()
	tree := model.NewTree()
	add := func(group, src, dst string, bytes, ns uint64) {
		rec := &model.EventRecord{
			Node: "node01", Card: "card0", Timestamp: "1",
			Group: group, SrcRank: src, DstRank: dst, Channel: "0",
			Func: model.FuncAllReduce, FuncTimes: "3",
			SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Bytes: bytes, TimeNs: ns,
		}
		tree.Insert(rec.Key()).Append(rec)
	}
	add("1", "0", "1", 1250, 1000)
	add("1", "1", "2", 3750, 1000)
	add("1", "2", "0", 2500, 1000)
	add("2", "5", "6", 100, 0)

	return &model.RunResult{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:    "/logs",
		Rates:     rate.Compute(tree),
		Cycles:    cycle.Detect(tree),
		Stats:     model.RunStats{FilesRead: 2, LinesParsed: 4, LinesSkipped: 1},
		Tree:      tree,
	}
}

func TestGobExporter_RoundTrip(t *testing.T) {
	res := sampleRun(t)
	root := t.TempDir()

	exp := NewGobExporter(root)
	require.NoError(t, exp.Export(context.Background(), res))
	require.NoError(t, exp.Close())

	path := filepath.Join(root, "2025-01-02_03-04-05", "run-1", SnapshotFile)
	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, "/logs", snap.Source)
	require.Len(t, snap.Entries, 4)

	rebuilt := model.TreeFromSnapshot(snap)
	assert.Equal(t, res.Tree.Snapshot().Entries, rebuilt.Snapshot().Entries)
	assert.Equal(t, res.Rates, rate.Compute(rebuilt))
	assert.Equal(t, res.Cycles, cycle.Detect(rebuilt))
}

func TestGobExporter_NoTree(t *testing.T) {
	res := sampleRun(t)
	res.Tree = nil
	assert.Error(t, NewGobExporter(t.TempDir()).Export(context.Background(), res))
}

func TestLoadSnapshot_Errors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.gob"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.gob")
	require.NoError(t, os.WriteFile(bad, []byte("not gob"), 0644))
	_, err = LoadSnapshot(bad)
	assert.Error(t, err)
}

func TestJSONExporter(t *testing.T) {
	res := sampleRun(t)
	root := t.TempDir()
	require.NoError(t, NewJSONExporter(root).Export(context.Background(), res))

	data, err := os.ReadFile(filepath.Join(root, "2025-01-02_03-04-05", "run-1", SummaryFile))
	require.NoError(t, err)

	var got SummaryData
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "2025-01-02T03:04:05Z", got.Timestamp)
	assert.Equal(t, 4, got.TotalLeaves)
	assert.Equal(t, 1, got.TotalCycles)
	assert.Equal(t, 1, got.Stats.LinesSkipped)
	assert.InDelta(t, 15.0, got.GlobalMeanRate, 1e-9)
	require.NotNil(t, got.GlobalMinRate)
	assert.Equal(t, 0.0, *got.GlobalMinRate)
	assert.Contains(t, got.GlobalMinKey, "group=2")

	require.Len(t, got.Groups, 2)
	assert.Equal(t, "1", got.Groups[0].Group)
	assert.Equal(t, 3, got.Groups[0].Leaves)
	assert.InDelta(t, 20.0, got.Groups[0].MeanRate, 1e-9)
	require.NotNil(t, got.Groups[0].MinRate)
	assert.InDelta(t, 10.0, *got.Groups[0].MinRate, 1e-9)
}

func TestNewSummary_NoLeaves(t *testing.T) {
	s := NewSummary(&model.RunResult{RunID: "empty", Tree: model.NewTree()})
	assert.Nil(t, s.GlobalMinRate)
	assert.Empty(t, s.GlobalMinKey)
	assert.Empty(t, s.Groups)
}

func TestSQLiteExporter(t *testing.T) {
	res := sampleRun(t)
	path := filepath.Join(t.TempDir(), "db", "tracespectra.db")

	exp, err := NewSQLiteExporter(path)
	require.NoError(t, err)
	require.NoError(t, exp.Export(context.Background(), res))
	require.NoError(t, exp.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM leaf_rates WHERE run_id = ?`, "run-1").Scan(&n))
	assert.Equal(t, 4, n)

	var r float64
	require.NoError(t, db.QueryRow(`SELECT rate FROM leaf_rates WHERE src_rank = '1' AND dst_rank = '2'`).Scan(&r))
	assert.InDelta(t, 30.0, r, 1e-9)

	var ranks, fn string
	require.NoError(t, db.QueryRow(`SELECT ranks, func FROM flow_cycles WHERE group_id = '1'`).Scan(&ranks, &fn))
	assert.Equal(t, "2,1,0", ranks)
	assert.Equal(t, "ncclFuncAllReduce", fn)
}

func TestCycleMessage(t *testing.T) {
	res := sampleRun(t)
	require.Len(t, res.Cycles, 1)

	msg, err := CycleMessage(res, res.Cycles[0])
	require.NoError(t, err)

	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	var got structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &got))

	m := got.AsMap()
	assert.Equal(t, "run-1", m["run_id"])
	assert.Equal(t, "1", m["group"])
	assert.Equal(t, "ncclFuncAllReduce", m["func"])
	assert.Equal(t, "3", m["func_times"])
	assert.Equal(t, []any{float64(2), float64(1), float64(0)}, m["ranks"])
}

func TestSummaryMessage(t *testing.T) {
	res := sampleRun(t)
	msg, err := SummaryMessage(res)
	require.NoError(t, err)

	m := msg.AsMap()
	assert.Equal(t, "2025-01-02T03:04:05Z", m["started_at"])
	assert.Equal(t, float64(4), m["leaves"])
	assert.Equal(t, float64(1), m["lines_skipped"])
	assert.Contains(t, m, "global_min_rate_gbps")

	empty, err := SummaryMessage(&model.RunResult{})
	require.NoError(t, err)
	assert.NotContains(t, empty.AsMap(), "global_min_rate_gbps")
}

func TestPrometheusExporter(t *testing.T) {
	res := sampleRun(t)
	root := filepath.Join(t.TempDir(), "textfile")
	require.NoError(t, NewPrometheusExporter(root).Export(context.Background(), res))

	data, err := os.ReadFile(filepath.Join(root, TextfileName))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `tracespectra_group_mean_rate_gbps{group="1"} 20`)
	assert.Contains(t, out, `tracespectra_group_min_rate_gbps{group="1"} 10`)
	assert.Contains(t, out, `tracespectra_global_mean_rate_gbps 15`)
	assert.Contains(t, out, `tracespectra_global_min_rate_gbps 0`)
	assert.Contains(t, out, `tracespectra_cycles 1`)
	assert.Contains(t, out, `tracespectra_leaves 4`)
}

func TestNewRateRegistry_NoMinWhenEmpty(t *testing.T) {
	reg := NewRateRegistry(&model.RunResult{})
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "tracespectra_global_min_rate_gbps", f.GetName())
	}
}
