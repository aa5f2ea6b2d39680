package edf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Writer produces minimal valid EDF streams, mainly for test fixtures and
// the demo uploader. Records are buffered in memory and flushed on Close,
// when the final record count is known, so the destination only needs to
// be an io.Writer.
type Writer struct {
	w       io.Writer
	hdr     Header
	records []byte
	count   int
	closed  bool
}

// NewWriter validates the header and prepares a writer. A zero Start is
// written as 'X'-padded clock fields, so files without a known recording
// clock round-trip through Decode.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	if len(hdr.Signals) == 0 {
		return nil, fmt.Errorf("header declares no signals")
	}
	if hdr.RecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration: %v", hdr.RecordDuration)
	}
	for i, sig := range hdr.Signals {
		if sig.SamplesPerRecord <= 0 {
			return nil, fmt.Errorf("signal %d declares %d samples per record", i, sig.SamplesPerRecord)
		}
	}
	if hdr.Version == "" {
		hdr.Version = "0"
	}
	return &Writer{w: w, hdr: hdr}, nil
}

// WriteRecord appends one data record. Every signal must supply exactly
// its declared SamplesPerRecord samples.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if ew.closed {
		return fmt.Errorf("writer already closed")
	}
	if len(signals) != len(ew.hdr.Signals) {
		return fmt.Errorf("expected %d signals, got %d", len(ew.hdr.Signals), len(signals))
	}

	var buf bytes.Buffer
	for i, sig := range ew.hdr.Signals {
		if len(signals[i]) != sig.SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, sig.SamplesPerRecord, len(signals[i]))
		}
		for _, sample := range signals[i] {
			digital := physicalToDigital(sample, sig)
			if err := binary.Write(&buf, binary.LittleEndian, digital); err != nil {
				return err
			}
		}
	}

	ew.records = append(ew.records, buf.Bytes()...)
	ew.count++
	return nil
}

// Close writes the header with the final record count followed by all
// buffered records.
func (ew *Writer) Close() error {
	if ew.closed {
		return fmt.Errorf("writer already closed")
	}
	ew.closed = true

	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if _, err := ew.w.Write(ew.records); err != nil {
		return fmt.Errorf("error writing data records: %w", err)
	}
	return nil
}

func (ew *Writer) writeHeader() error {
	var buf bytes.Buffer

	write := func(format string, args ...interface{}) {
		fmt.Fprintf(&buf, format, args...)
	}

	write("%-8s", ew.hdr.Version)
	write("%-80s", ew.hdr.PatientID)
	write("%-80s", ew.hdr.RecordingID)

	dateStr, timeStr := "X", "X"
	if !ew.hdr.Start.IsZero() {
		dateStr = ew.hdr.Start.Format(startDateLayout)
		timeStr = ew.hdr.Start.Format(startTimeLayout)
	}
	write("%-8s", dateStr)
	write("%-8s", timeStr)

	write("%-8d", fixedHeaderBytes+len(ew.hdr.Signals)*signalHeaderBytes)
	write("%-44s", "")
	write("%-8d", ew.count)
	write("%-8s", formatSeconds(ew.hdr.RecordDuration))
	write("%-4d", len(ew.hdr.Signals))

	for _, sig := range ew.hdr.Signals {
		write("%-16s", sig.Label)
	}
	for _, sig := range ew.hdr.Signals {
		write("%-80s", sig.TransducerType)
	}
	for _, sig := range ew.hdr.Signals {
		write("%-8s", sig.PhysicalDimension)
	}
	for _, sig := range ew.hdr.Signals {
		write("%s", formatPhysicalValue(sig.PhysicalMin))
	}
	for _, sig := range ew.hdr.Signals {
		write("%s", formatPhysicalValue(sig.PhysicalMax))
	}
	for _, sig := range ew.hdr.Signals {
		write("%-8d", sig.DigitalMin)
	}
	for _, sig := range ew.hdr.Signals {
		write("%-8d", sig.DigitalMax)
	}
	for _, sig := range ew.hdr.Signals {
		write("%-80s", sig.Prefiltering)
	}
	for _, sig := range ew.hdr.Signals {
		write("%-8d", sig.SamplesPerRecord)
	}
	for range ew.hdr.Signals {
		write("%-32s", "")
	}

	_, err := ew.w.Write(buf.Bytes())
	return err
}

func physicalToDigital(physical float64, sig SignalInfo) int16 {
	if sig.PhysicalMax == sig.PhysicalMin {
		return 0
	}
	digital := (physical-sig.PhysicalMin)*float64(sig.DigitalMax-sig.DigitalMin)/(sig.PhysicalMax-sig.PhysicalMin) + float64(sig.DigitalMin)
	return int16(digital)
}

// formatSeconds renders a record duration into the 8-character header
// field, keeping fractional durations intact where they fit.
func formatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for prec := 6; len(s) > 8 && prec >= 0; prec-- {
		s = strconv.FormatFloat(v, 'f', prec, 64)
	}
	return s
}

func formatPhysicalValue(val float64) string {
	s := fmt.Sprintf("%.2f", val)
	if len(s) > 8 {
		s = fmt.Sprintf("%.0f", val)
	}
	return fmt.Sprintf("%-8s", s)
}
