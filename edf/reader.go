package edf

// EDF (European Data Format) decoding for EEG uploads.
//
// An EDF file opens with a 256-byte fixed header followed by 256 bytes of
// subheader fields per signal, then a run of data records. Each record
// stores SamplesPerRecord little-endian int16 samples for every signal,
// one signal after another. Digital values map to physical units through
// the per-signal linear calibration declared in the subheaders.
//
// Decode consumes the stream strictly in order, so multipart upload bodies
// can be decoded without spooling them to disk first. The startdate and
// starttime fields may be unparsable (EDF+ pads them with 'X' when the
// recording clock is unknown); that yields a zero Start instead of an
// error, because the samples remain usable with relative timestamps.

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	fixedHeaderBytes  = 256
	signalHeaderBytes = 256

	startDateLayout = "02.01.06"
	startTimeLayout = "15.04.05"
)

// Header holds the parsed fixed header and per-signal subheaders.
type Header struct {
	Version        string
	PatientID      string
	RecordingID    string
	Start          time.Time // zero when the recording clock is unknown
	DataRecords    int       // -1 when the producer did not know the count
	RecordDuration float64   // seconds per data record, may be fractional
	Signals        []SignalInfo
}

// SignalInfo describes one signal of the recording.
type SignalInfo struct {
	Label             string
	TransducerType    string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
}

// Recording is one decoded channel together with its time base.
type Recording struct {
	Header  Header
	Samples []float64 // physical values of the chosen channel
	Times   []float64 // seconds since recording start, strictly increasing
}

// Decode reads an EDF stream and extracts the given channel as physical
// samples with per-sample time offsets. DataRecords == -1 in the header
// means the record count was unknown at write time; records are then read
// until the stream ends.
func Decode(r io.Reader, channel int) (*Recording, error) {
	reader := bufio.NewReader(r)

	hdr, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	if channel < 0 || channel >= len(hdr.Signals) {
		return nil, fmt.Errorf("channel %d out of range, file has %d signals", channel, len(hdr.Signals))
	}

	chosen := hdr.Signals[channel]
	if chosen.SamplesPerRecord <= 0 {
		return nil, fmt.Errorf("signal %d declares %d samples per record", channel, chosen.SamplesPerRecord)
	}

	recordSize := 0
	channelOffset := 0
	for i, sig := range hdr.Signals {
		if sig.SamplesPerRecord < 0 {
			return nil, fmt.Errorf("signal %d declares %d samples per record", i, sig.SamplesPerRecord)
		}
		if i < channel {
			channelOffset += sig.SamplesPerRecord * 2
		}
		recordSize += sig.SamplesPerRecord * 2
	}
	if recordSize == 0 {
		return nil, fmt.Errorf("data records are empty")
	}

	// Precompute the calibration. A degenerate digital range cannot be
	// calibrated, so those samples pass through as raw digital values.
	gain := 1.0
	offset := 0.0
	if chosen.DigitalMax != chosen.DigitalMin {
		gain = (chosen.PhysicalMax - chosen.PhysicalMin) / float64(chosen.DigitalMax-chosen.DigitalMin)
		offset = chosen.PhysicalMin - gain*float64(chosen.DigitalMin)
	}

	var samples []float64
	if hdr.DataRecords > 0 {
		samples = make([]float64, 0, hdr.DataRecords*chosen.SamplesPerRecord)
	}

	record := make([]byte, recordSize)
	for recordIndex := 0; hdr.DataRecords < 0 || recordIndex < hdr.DataRecords; recordIndex++ {
		if _, err := io.ReadFull(reader, record); err != nil {
			if hdr.DataRecords < 0 && err == io.EOF {
				break
			}
			return nil, fmt.Errorf("truncated data record %d: %w", recordIndex, err)
		}
		channelBytes := record[channelOffset : channelOffset+chosen.SamplesPerRecord*2]
		for i := 0; i < chosen.SamplesPerRecord; i++ {
			digital := int16(binary.LittleEndian.Uint16(channelBytes[i*2:]))
			samples = append(samples, gain*float64(digital)+offset)
		}
	}

	interval := hdr.RecordDuration / float64(chosen.SamplesPerRecord)
	times := make([]float64, len(samples))
	for i := range times {
		times[i] = float64(i) * interval
	}

	return &Recording{Header: *hdr, Samples: samples, Times: times}, nil
}

func readHeader(reader *bufio.Reader) (*Header, error) {
	b := make([]byte, fixedHeaderBytes)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := &Header{}
	hdr.Version = strings.TrimSpace(string(b[0:8]))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))
	hdr.Start = parseStartClock(
		strings.TrimSpace(string(b[168:176])),
		strings.TrimSpace(string(b[176:184])),
	)

	headerBytes, err := strconv.Atoi(strings.TrimSpace(string(b[184:192])))
	if err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}

	hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244])))
	if err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}

	hdr.RecordDuration, err = strconv.ParseFloat(strings.TrimSpace(string(b[244:252])), 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	if hdr.RecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration: %v", hdr.RecordDuration)
	}

	signalCount, err := strconv.Atoi(strings.TrimSpace(string(b[252:256])))
	if err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if signalCount <= 0 {
		return nil, fmt.Errorf("invalid signal count: %d", signalCount)
	}

	hdr.Signals = make([]SignalInfo, signalCount)
	if err := readSignalHeaders(reader, hdr.Signals); err != nil {
		return nil, err
	}

	// Some producers pad the header beyond the standard size; skip ahead
	// so record parsing starts at the declared offset.
	parsed := fixedHeaderBytes + signalCount*signalHeaderBytes
	if headerBytes > parsed {
		if _, err := io.CopyN(io.Discard, reader, int64(headerBytes-parsed)); err != nil {
			return nil, fmt.Errorf("error skipping header padding: %w", err)
		}
	}

	return hdr, nil
}

// parseStartClock combines the startdate and starttime fields. Fields an
// EDF+ writer filled with 'X' (or anything else unparsable) leave the
// clock unknown.
func parseStartClock(dateStr, timeStr string) time.Time {
	startDate, err := time.Parse(startDateLayout, dateStr)
	if err != nil {
		return time.Time{}
	}
	startTime, err := time.Parse(startTimeLayout, timeStr)
	if err != nil {
		return time.Time{}
	}
	return time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)
}

func readSignalHeaders(reader *bufio.Reader, signals []SignalInfo) error {
	readField := func(width int, assign func(i int, value string)) error {
		b := make([]byte, width)
		for i := range signals {
			if _, err := io.ReadFull(reader, b); err != nil {
				return fmt.Errorf("error reading signal headers: %w", err)
			}
			assign(i, strings.TrimSpace(string(b)))
		}
		return nil
	}

	fields := []struct {
		width  int
		assign func(i int, value string)
	}{
		{16, func(i int, v string) { signals[i].Label = v }},
		{80, func(i int, v string) { signals[i].TransducerType = v }},
		{8, func(i int, v string) { signals[i].PhysicalDimension = v }},
		{8, func(i int, v string) { signals[i].PhysicalMin = parseFloatField(v) }},
		{8, func(i int, v string) { signals[i].PhysicalMax = parseFloatField(v) }},
		{8, func(i int, v string) { signals[i].DigitalMin = parseIntField(v) }},
		{8, func(i int, v string) { signals[i].DigitalMax = parseIntField(v) }},
		{80, func(i int, v string) { signals[i].Prefiltering = v }},
		{8, func(i int, v string) { signals[i].SamplesPerRecord = parseIntField(v) }},
		{32, func(i int, v string) {}}, // reserved
	}

	for _, field := range fields {
		if err := readField(field.width, field.assign); err != nil {
			return err
		}
	}
	return nil
}

func parseFloatField(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseIntField(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
