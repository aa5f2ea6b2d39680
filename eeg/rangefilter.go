package eeg

import "time"

// FilterByRange restricts a recording to samples whose absolute timestamp
// falls inside [from, to]. Both bounds are inclusive and either may be nil.
// With no bounds the recording is returned unchanged. A bounded query
// against a recording without a clock matches nothing, since its samples
// cannot be placed on the absolute timeline.
func FilterByRange(rec Recording, from, to *time.Time) Recording {
	if from == nil && to == nil {
		return rec
	}
	out := rec
	out.Signal = nil
	out.Times = nil
	if !rec.HasClock() {
		return out
	}
	for i, offset := range rec.Times {
		t := rec.Start.Add(secondsToDuration(offset))
		if from != nil && t.Before(*from) {
			continue
		}
		if to != nil && t.After(*to) {
			break
		}
		out.Signal = append(out.Signal, rec.Signal[i])
		out.Times = append(out.Times, offset)
	}
	return out
}
