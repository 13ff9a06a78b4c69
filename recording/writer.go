// Package recording accumulates conditioned samples while a trial is active
// and persists completed trials as binary matrices with metadata sidecars.
// The on-disk layout matches the downstream analysis tooling: a row-major
// float64 matrix of (samples, channels+1) with relative timestamps in the
// first column, and a metadata file per trial under metadata/.
package recording

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/c360/emgstream/errors"
)

const metadataDirName = "metadata"

// Metadata is the sidecar written next to every trial. Field names mirror
// the variables the analysis scripts expect.
type Metadata struct {
	SessionID        string   `json:"session_id"`
	ChannelNumbers   []int    `json:"emg_ch_number"`
	SampleRate       float64  `json:"fs"`
	TotalChannels    int      `json:"total_analog_in_ch"`
	MuscleLabels     []string `json:"musc_labels"`
	SessionDate      string   `json:"session_date"`
	SessionTime      string   `json:"session_time"`
	TrialNumber      int      `json:"trial_number"`
	SegmentStartUnix float64  `json:"segment_start_unix"`
	Samples          int      `json:"samples"`
}

// SaveResult describes a successfully persisted trial
type SaveResult struct {
	Trial    int    `json:"trial"`
	Samples  int    `json:"samples"`
	BinPath  string `json:"bin_path"`
	MetaPath string `json:"meta_path"`
	EDFPath  string `json:"edf_path,omitempty"`
}

// Writer persists trial matrices under a base directory
type Writer struct {
	dir      string
	writeEDF bool
	logger   *slog.Logger
}

// NewWriter creates a writer rooted at dir. Directories are created lazily
// on the first save.
func NewWriter(dir string, writeEDF bool, logger *slog.Logger) (*Writer, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Writer", "NewWriter", "directory validation")
	}
	if logger == nil {
		logger = slog.Default().With("component", "recording-writer")
	}
	return &Writer{dir: dir, writeEDF: writeEDF, logger: logger}, nil
}

// baseName builds the shared filename stem for a trial, e.g.
// 20260829_141502_Trl0003
func baseName(sessionStart time.Time, trial int) string {
	return fmt.Sprintf("%s_Trl%04d", sessionStart.Format("20060102_150405"), trial)
}

// WriteTrial persists one trial. channels holds per-channel sample slices
// already trimmed to equal length; the timestamp column is synthesized as
// i/fs so trials always start at t=0.
func (w *Writer) WriteTrial(channels [][]float64, meta Metadata, sessionStart time.Time) (*SaveResult, error) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, errors.WrapInvalid(errors.ErrNoData, "Writer", "WriteTrial", "data validation")
	}
	samples := len(channels[0])
	for ch, data := range channels {
		if len(data) != samples {
			return nil, errors.WrapInvalid(
				fmt.Errorf("channel %d has %d samples, expected %d", ch, len(data), samples),
				"Writer", "WriteTrial", "data validation")
		}
	}

	metaDir := filepath.Join(w.dir, metadataDirName)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "Writer", "WriteTrial", "directory creation")
	}

	base := baseName(sessionStart, meta.TrialNumber)
	binPath := filepath.Join(w.dir, base+".bin")
	metaPath := filepath.Join(metaDir,
		fmt.Sprintf("%s_METADATATrl%04d.json", sessionStart.Format("20060102_150405"), meta.TrialNumber))

	if err := w.writeBin(binPath, channels, samples, meta.SampleRate); err != nil {
		return nil, err
	}

	meta.Samples = samples
	if err := w.writeMetadata(metaPath, meta); err != nil {
		// The matrix is already on disk; metadata failure degrades but
		// does not lose the trial
		w.logger.Warn("Metadata sidecar write failed", "path", metaPath, "error", err)
		metaPath = ""
	}

	result := &SaveResult{
		Trial:    meta.TrialNumber,
		Samples:  samples,
		BinPath:  binPath,
		MetaPath: metaPath,
	}

	if w.writeEDF {
		edfPath := filepath.Join(w.dir, base+".edf")
		if err := writeEDF(edfPath, channels, meta, sessionStart); err != nil {
			w.logger.Warn("EDF export failed", "path", edfPath, "error", err)
		} else {
			result.EDFPath = edfPath
		}
	}

	w.logger.Info("Trial saved",
		"trial", meta.TrialNumber,
		"samples", samples,
		"channels", len(channels),
		"path", binPath)
	return result, nil
}

// writeBin writes the (samples, channels+1) float64 matrix row by row in
// little-endian order. Column 0 is the relative timestamp i/fs.
func (w *Writer) writeBin(path string, channels [][]float64, samples int, rate float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapFatal(err, "Writer", "writeBin", "file creation")
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<16)
	var cell [8]byte
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint64(cell[:], math.Float64bits(float64(i)/rate))
		if _, err := bw.Write(cell[:]); err != nil {
			return errors.WrapFatal(err, "Writer", "writeBin", "matrix write")
		}
		for _, data := range channels {
			binary.LittleEndian.PutUint64(cell[:], math.Float64bits(data[i]))
			if _, err := bw.Write(cell[:]); err != nil {
				return errors.WrapFatal(err, "Writer", "writeBin", "matrix write")
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.WrapFatal(err, "Writer", "writeBin", "flush")
	}
	return f.Sync()
}

func (w *Writer) writeMetadata(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Writer", "writeMetadata", "marshal")
	}
	return os.WriteFile(path, data, 0o644)
}
