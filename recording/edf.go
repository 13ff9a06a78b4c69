package recording

import (
	"fmt"
	"os"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/c360/emgstream/errors"
)

// writeEDF exports a trial as EDF for viewers that cannot read the raw
// matrix. Each data record holds one second of signal; the tail record is
// zero-padded.
func writeEDF(path string, channels [][]float64, meta Metadata, sessionStart time.Time) error {
	samplesPerRecord := int(meta.SampleRate)
	if samplesPerRecord < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("sample rate %v below 1 Hz", meta.SampleRate),
			"Writer", "writeEDF", "rate validation")
	}

	signals := make([]edf.SignalHeader, len(channels))
	for ch, data := range channels {
		pmin, pmax := physicalRange(data)
		label := fmt.Sprintf("Ch%d", ch)
		if ch < len(meta.MuscleLabels) {
			label = meta.MuscleLabels[ch]
		}
		signals[ch] = edf.SignalHeader{
			Label:             "EMG " + label,
			TransducerType:    "Surface electrode",
			PhysicalDimension: "V",
			PhysicalMin:       pmin,
			PhysicalMax:       pmax,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			Prefiltering:      "HP:0.5Hz N:60Hz rectified",
			SamplesPerRecord:  samplesPerRecord,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.WrapFatal(err, "Writer", "writeEDF", "file creation")
	}
	defer f.Close()

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		PatientID:          "X X X X",
		RecordingID:        fmt.Sprintf("Startdate %s Trl%04d", sessionStart.Format("02-Jan-2006"), meta.TrialNumber),
		StartTime:          sessionStart,
		DataRecordDuration: time.Second,
		SignalCount:        len(signals),
		Signals:            signals,
	})
	if err != nil {
		return errors.Wrap(err, "Writer", "writeEDF", "header write")
	}

	total := len(channels[0])
	for offset := 0; offset < total; offset += samplesPerRecord {
		record := make([][]float64, len(channels))
		for ch, data := range channels {
			chunk := make([]float64, samplesPerRecord)
			copy(chunk, data[offset:min(offset+samplesPerRecord, total)])
			record[ch] = chunk
		}
		if err := ew.WriteRecord(record); err != nil {
			return errors.Wrap(err, "Writer", "writeEDF", "record write")
		}
	}

	return ew.Close()
}

// physicalRange returns a non-degenerate physical min/max for a signal
func physicalRange(data []float64) (pmin, pmax float64) {
	pmin, pmax = data[0], data[0]
	for _, v := range data {
		if v < pmin {
			pmin = v
		}
		if v > pmax {
			pmax = v
		}
	}
	if pmin == pmax {
		pmax = pmin + 1
	}
	return pmin, pmax
}
