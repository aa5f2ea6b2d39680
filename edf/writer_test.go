package edf_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seizure-detection/edf"
)

func TestWriterRoundTrip(t *testing.T) {
	hdr := edf.Header{
		PatientID:      "Patient X",
		RecordingID:    "Recording 1",
		Start:          time.Date(2024, 1, 15, 14, 30, 5, 0, time.UTC),
		RecordDuration: 1,
		Signals: []edf.SignalInfo{
			{
				Label:             "EEG Fpz-Cz",
				TransducerType:    "AgAgCl electrode",
				PhysicalDimension: "uV",
				PhysicalMin:       -500,
				PhysicalMax:       500,
				DigitalMin:        -2048,
				DigitalMax:        2047,
				SamplesPerRecord:  256,
			},
		},
	}

	var buf bytes.Buffer
	ew, err := edf.NewWriter(&buf, hdr)
	require.NoError(t, err)

	// Write two data records with a recognizable ramp.
	record := make([]float64, 256)
	for i := range record {
		record[i] = float64(i)
	}
	require.NoError(t, ew.WriteRecord([][]float64{record}))

	for i := range record {
		record[i] = float64(i + 256)
	}
	require.NoError(t, ew.WriteRecord([][]float64{record}))

	// Close writes the header followed by the buffered records.
	require.NoError(t, ew.Close())

	rec, err := edf.Decode(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)

	assert.Equal(t, "0", rec.Header.Version)
	assert.Equal(t, "Patient X", rec.Header.PatientID)
	assert.Equal(t, 2, rec.Header.DataRecords)
	assert.True(t, rec.Header.Start.Equal(hdr.Start))

	require.Len(t, rec.Samples, 512)
	for i, sample := range rec.Samples {
		require.InDelta(t, float64(i), sample, 1.0)
	}
}

func TestNewWriterRejectsInvalidHeaders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(hdr *edf.Header)
	}{
		{
			name:   "no signals",
			mutate: func(hdr *edf.Header) { hdr.Signals = nil },
		},
		{
			name:   "zero record duration",
			mutate: func(hdr *edf.Header) { hdr.RecordDuration = 0 },
		},
		{
			name:   "zero samples per record",
			mutate: func(hdr *edf.Header) { hdr.Signals[0].SamplesPerRecord = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := testHeader(time.Time{})
			tt.mutate(&hdr)

			var buf bytes.Buffer
			_, err := edf.NewWriter(&buf, hdr)
			require.Error(t, err)
		})
	}
}

func TestWriteRecordValidatesShape(t *testing.T) {
	var buf bytes.Buffer
	ew, err := edf.NewWriter(&buf, testHeader(time.Time{}))
	require.NoError(t, err)

	// The header declares two signals.
	err = ew.WriteRecord([][]float64{{1, 2, 3, 4}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 signals")

	// The first signal declares 4 samples per record.
	err = ew.WriteRecord([][]float64{{1, 2, 3}, {5, 6}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 4 samples")
}

func TestWriterRejectsUseAfterClose(t *testing.T) {
	var buf bytes.Buffer
	ew, err := edf.NewWriter(&buf, testHeader(time.Time{}))
	require.NoError(t, err)
	require.NoError(t, ew.WriteRecord([][]float64{{1, 2, 3, 4}, {5, 6}}))
	require.NoError(t, ew.Close())

	require.Error(t, ew.WriteRecord([][]float64{{1, 2, 3, 4}, {5, 6}}))
	require.Error(t, ew.Close())
}

func TestWriterFractionalRecordDuration(t *testing.T) {
	hdr := testHeader(time.Time{})
	hdr.RecordDuration = 0.5

	raw := encodeRecording(t, hdr, [][][]float64{
		{{1, 2, 3, 4}, {5, 6}},
		{{7, 8, 9, 10}, {11, 12}},
	})

	rec, err := edf.Decode(bytes.NewReader(raw), 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, rec.Header.RecordDuration, 1e-12)
	assert.InDelta(t, 0.125, rec.Times[1], 1e-12)
	assert.InDelta(t, 0.875, rec.Times[7], 1e-12)
}
