package report

import (
	"Go2TraceSpectra/internal/model"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafRate(group, src, dst string, rate float64) model.LeafRate {
	return model.LeafRate{
		Key: model.AggregationKey{
			BucketKey: model.BucketKey{Group: group, Func: "ncclFuncAllReduce", FuncTimes: "1", Channel: "0"},
			Flow:      model.RankFlow{Src: src, Dst: dst},
			IPFlow:    model.IPFlow{Src: "10.0.0.1", Dst: "10.0.0.2"},
		},
		Samples:  2,
		Rate:     rate,
		AvgBytes: 1536,
		AvgTime:  409.5,
		AvgRate:  rate,
	}
}

func TestRenderRates(t *testing.T) {
	slow := leafRate("0", "0", "1", 10)
	fast := leafRate("0", "1", "0", 30)
	s := model.RateSummary{
		Groups: []model.GroupRates{
			{Group: "0", Leaves: []model.LeafRate{slow, fast}, Mean: 20, Min: &slow},
			{Group: "7"},
		},
		Mean:      20,
		Min:       &slow,
		LeafCount: 2,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRates(&buf, s))

	want := `Group: 0
  Average Transmission Rate:
    Average Rate: 20.000000000 Gb/s
  Lowest Transmission Rate:
    Func: ncclFuncAllReduce, Func_times: 1, Channel: 0, Flow: 0->1, IP Flow: 10.0.0.1->10.0.0.2, Transmission Rate: 10.000000000 Gb/s

Group: 7
  Average Transmission Rate:
    Average Rate: 0.000000000 Gb/s
  Lowest Transmission Rate: Not available

Average Transmission Rate across the Network: 20.000000000 Gb/s
Overall Lowest Transmission Rate across the Network:
  Group: 0, Func: ncclFuncAllReduce, Func_times: 1, Channel: 0, Flow: 0->1, IP Flow: 10.0.0.1->10.0.0.2, Transmission Rate: 10.000000000 Gb/s

Detailed Data Structure:
Group: 0
    Func: ncclFuncAllReduce, Func_times: 1, Channel: 0, Flow: 0->1, IP Flow: 10.0.0.1->10.0.0.2
      Average Bytes Sent: 1536.0
      Average Time Used: 409.5
      Average Transmission Rate: 10.000000000 Gb/s
    Func: ncclFuncAllReduce, Func_times: 1, Channel: 0, Flow: 1->0, IP Flow: 10.0.0.1->10.0.0.2
      Average Bytes Sent: 1536.0
      Average Time Used: 409.5
      Average Transmission Rate: 30.000000000 Gb/s
Group: 7
`
	assert.Equal(t, want, buf.String())
}

func TestRenderRates_KeepsRawGroupText(t *testing.T) {
	padded := leafRate("01", "0", "1", 10)
	plain := leafRate("1", "0", "1", 20)
	s := model.RateSummary{
		Groups: []model.GroupRates{
			{Group: "01", Leaves: []model.LeafRate{padded}, Mean: 10, Min: &padded},
			{Group: "1", Leaves: []model.LeafRate{plain}, Mean: 20, Min: &plain},
		},
		Mean: 15,
		Min:  &padded,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRates(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "Group: 01\n")
	assert.Contains(t, out, "Group: 1\n")
	assert.Contains(t, out, "  Group: 01, Func: ncclFuncAllReduce,")
	assert.Equal(t, 2, strings.Count(out, "Group: 01\n"))
}

func TestRenderRates_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderRates(&buf, model.RateSummary{}))
	assert.Contains(t, buf.String(), "Average Transmission Rate across the Network: 0.000000000 Gb/s\n")
	assert.Contains(t, buf.String(), "Overall Lowest Transmission Rate across the Network:\n  Not available\n")
}

func TestRenderCycles(t *testing.T) {
	cycles := []model.Cycle{
		{Bucket: model.BucketKey{Group: "1", Func: "ncclFuncSendRecv", FuncTimes: "4", Channel: "2"}, Ranks: []int{3, 2, 1}},
		{Bucket: model.BucketKey{Group: "1", Func: "ncclFuncSendRecv", FuncTimes: "4", Channel: "3"}, Ranks: []int{5}},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderCycles(&buf, cycles))
	assert.Equal(t,
		"Detected cycle in group 1, func ncclFuncSendRecv, func_time 4, channel 2: 3 -> 2 -> 1\n"+
			"Detected cycle in group 1, func ncclFuncSendRecv, func_time 4, channel 3: 5\n",
		buf.String())
}

func TestWriteReports_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	ratePath := filepath.Join(dir, "out", "nested", "rates.txt")
	cyclePath := filepath.Join(dir, "out", "cycles.txt")

	require.NoError(t, WriteRateReport(ratePath, model.RateSummary{}))
	require.NoError(t, WriteCycleReport(cyclePath, nil))

	data, err := os.ReadFile(ratePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Detailed Data Structure:")

	data, err = os.ReadFile(cyclePath)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteAtomic_KeepsPreviousReportOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.txt")
	require.NoError(t, os.WriteFile(path, []byte("previous report\n"), 0644))

	boom := errors.New("boom")
	err := writeAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "half a rep")
		return boom
	})

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous report\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be cleaned up")
}

func TestWriteRateReport_UnwritableParent(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := WriteRateReport(filepath.Join(blocker, "rates.txt"), model.RateSummary{})
	var we *WriteError
	assert.ErrorAs(t, err, &we)
}
