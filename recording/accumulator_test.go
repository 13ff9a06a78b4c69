package recording

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/stream"
)

var testLabels = []string{"L-TIBI", "L-GAST", "L-RECT", "R-TIBI"}

func testAccumulator(t *testing.T, dir string, streaming func() bool) (*Accumulator, *stream.Session) {
	t.Helper()

	w, err := NewWriter(dir, false, nil)
	require.NoError(t, err)

	session := stream.NewSession()
	a, err := NewAccumulator(AccumulatorDeps{
		Channels:       4,
		SampleRate:     2000,
		Labels:         testLabels,
		Session:        session,
		Writer:         w,
		StreamingCheck: streaming,
	})
	require.NoError(t, err)
	return a, session
}

// readMatrix reads a saved trial back as rows of channels+1 columns
func readMatrix(t *testing.T, path string, cols int) [][]float64 {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Zero(t, len(raw)%(cols*8), "file size is a whole number of rows")

	rows := len(raw) / (cols * 8)
	matrix := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		matrix[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			bits := binary.LittleEndian.Uint64(raw[(r*cols+c)*8:])
			matrix[r][c] = math.Float64frombits(bits)
		}
	}
	return matrix
}

func TestStartSegmentRequiresStreaming(t *testing.T) {
	a, _ := testAccumulator(t, t.TempDir(), func() bool { return false })

	_, err := a.StartSegment()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotStreaming))
}

func TestStartSegmentTwice(t *testing.T) {
	a, _ := testAccumulator(t, t.TempDir(), nil)

	_, err := a.StartSegment()
	require.NoError(t, err)

	_, err = a.StartSegment()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyRecording))
}

func TestStopWithoutStart(t *testing.T) {
	a, _ := testAccumulator(t, t.TempDir(), nil)

	_, err := a.StopAndSave()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotRecording))
}

func TestEmptyTrialKeepsTrialNumber(t *testing.T) {
	a, session := testAccumulator(t, t.TempDir(), nil)

	trial, err := a.StartSegment()
	require.NoError(t, err)
	assert.Equal(t, 1, trial)

	_, err = a.StopAndSave()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoData))

	// A failed trial does not consume the number
	assert.Equal(t, 1, session.Trial())
	assert.False(t, a.Recording())
}

func TestUnevenChannelsTrimToShortest(t *testing.T) {
	dir := t.TempDir()
	a, _ := testAccumulator(t, dir, nil)

	_, err := a.StartSegment()
	require.NoError(t, err)

	counts := []int{120, 118, 119, 121}
	for ch, n := range counts {
		for i := 0; i < n; i++ {
			a.Record(ch, float64(ch*1000+i), time.Now())
		}
	}
	assert.Equal(t, counts, a.SampleCounts())

	result, err := a.StopAndSave()
	require.NoError(t, err)
	assert.Equal(t, 118, result.Samples)
	assert.Equal(t, 1, result.Trial)

	matrix := readMatrix(t, result.BinPath, 5)
	require.Len(t, matrix, 118)

	// Column 0 is the relative timestamp i/fs
	assert.Equal(t, 0.0, matrix[0][0])
	assert.InDelta(t, 117.0/2000.0, matrix[117][0], 1e-12)

	// Channel columns carry the first 118 samples of each channel
	for ch := 0; ch < 4; ch++ {
		assert.Equal(t, float64(ch*1000), matrix[0][ch+1])
		assert.Equal(t, float64(ch*1000+117), matrix[117][ch+1])
	}
}

func TestTrialNumberAdvancesOnlyOnSuccess(t *testing.T) {
	dir := t.TempDir()
	a, session := testAccumulator(t, dir, nil)

	for want := 1; want <= 3; want++ {
		trial, err := a.StartSegment()
		require.NoError(t, err)
		assert.Equal(t, want, trial)

		for ch := 0; ch < 4; ch++ {
			a.Record(ch, 1.0, time.Now())
		}
		result, err := a.StopAndSave()
		require.NoError(t, err)
		assert.Equal(t, want, result.Trial)
	}
	assert.Equal(t, 4, session.Trial())
}

func TestRecordIgnoredOutsideTrial(t *testing.T) {
	a, _ := testAccumulator(t, t.TempDir(), nil)

	a.Record(0, 1.0, time.Now())

	_, err := a.StartSegment()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, a.SampleCounts())
}

func TestRecordIgnoresUnknownChannels(t *testing.T) {
	a, _ := testAccumulator(t, t.TempDir(), nil)

	_, err := a.StartSegment()
	require.NoError(t, err)

	a.Record(-1, 1.0, time.Now())
	a.Record(4, 1.0, time.Now())
	assert.Equal(t, []int{0, 0, 0, 0}, a.SampleCounts())
}

func TestMetadataSidecar(t *testing.T) {
	dir := t.TempDir()
	a, session := testAccumulator(t, dir, nil)

	_, err := a.StartSegment()
	require.NoError(t, err)
	for ch := 0; ch < 4; ch++ {
		a.Record(ch, 0.25, time.Now())
	}

	result, err := a.StopAndSave()
	require.NoError(t, err)
	require.NotEmpty(t, result.MetaPath)

	raw, err := os.ReadFile(result.MetaPath)
	require.NoError(t, err)

	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, session.ID().String(), meta.SessionID)
	assert.Equal(t, []int{1, 2, 3, 4}, meta.ChannelNumbers)
	assert.Equal(t, 2000.0, meta.SampleRate)
	assert.Equal(t, 4, meta.TotalChannels)
	assert.Equal(t, testLabels, meta.MuscleLabels)
	assert.Equal(t, 1, meta.TrialNumber)
	assert.Equal(t, 1, meta.Samples)
	assert.Positive(t, meta.SegmentStartUnix)
}

func TestSegmentStartStampedByFirstSample(t *testing.T) {
	dir := t.TempDir()
	a, _ := testAccumulator(t, dir, nil)

	_, err := a.StartSegment()
	require.NoError(t, err)

	// An armed trial waits for data; the segment start comes from the
	// first sample that arrives, not from the arming time
	first := time.Now().Add(750 * time.Millisecond)
	for ch := 0; ch < 4; ch++ {
		a.Record(ch, 1.0, first.Add(time.Duration(ch)*time.Millisecond))
	}

	result, err := a.StopAndSave()
	require.NoError(t, err)

	raw, err := os.ReadFile(result.MetaPath)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))

	assert.InDelta(t, float64(first.UnixNano())/1e9, meta.SegmentStartUnix, 1e-6)
}

func TestFilenamesFollowTrialPattern(t *testing.T) {
	dir := t.TempDir()
	a, session := testAccumulator(t, dir, nil)

	_, err := a.StartSegment()
	require.NoError(t, err)
	for ch := 0; ch < 4; ch++ {
		a.Record(ch, 1.0, time.Now())
	}

	result, err := a.StopAndSave()
	require.NoError(t, err)

	stamp := session.StartTime().Format("20060102_150405")
	assert.Equal(t, filepath.Join(dir, stamp+"_Trl0001.bin"), result.BinPath)
	assert.Equal(t,
		filepath.Join(dir, "metadata", fmt.Sprintf("%s_METADATATrl0001.json", stamp)),
		result.MetaPath)
}
