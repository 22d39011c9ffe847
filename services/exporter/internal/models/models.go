package models

import (
	"strconv"
	"time"
)

// AttractionID identifies an attraction as stored in trk_waitingtime.attr_id.
// Ids are carried as text so integer and string columns both work.
type AttractionID string

// Int returns the id as an integer when its text is already in canonical
// base-10 form. "007", "+5" and " 5" are not.
func (a AttractionID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(a), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(a) {
		return 0, false
	}
	return n, true
}

// Less orders ids numerically when both are integers and lexically otherwise.
// Integer ids sort before non-integer ids.
func (a AttractionID) Less(b AttractionID) bool {
	ai, aInt := a.Int()
	bi, bInt := b.Int()
	switch {
	case aInt && bInt:
		return ai < bi
	case aInt:
		return true
	case bInt:
		return false
	default:
		return a < b
	}
}

// MarshalJSON emits integer ids as JSON numbers and everything else as strings.
func (a AttractionID) MarshalJSON() ([]byte, error) {
	if _, ok := a.Int(); ok {
		return []byte(a), nil
	}
	return []byte(strconv.Quote(string(a))), nil
}

// WaitRecord is a single wait-time observation read from the store.
type WaitRecord struct {
	AttractionID AttractionID
	WaitMinutes  *int
	ObservedAt   time.Time
}

// SampledPoint is the latest observation kept for one 10-minute bucket.
type SampledPoint struct {
	WaitingMinutes int    `json:"waiting_minutes"`
	Timestamp      string `json:"timestamp"`

	observedAt time.Time
}

// NewSampledPoint builds a point; the timestamp string is rendered by the caller.
func NewSampledPoint(minutes int, observedAt time.Time, timestamp string) SampledPoint {
	return SampledPoint{WaitingMinutes: minutes, Timestamp: timestamp, observedAt: observedAt}
}

// ObservedAt returns the observation time the point was sampled from.
func (p SampledPoint) ObservedAt() time.Time {
	return p.observedAt
}

// AttractionSeries is one element of waiting_times.json.
type AttractionSeries struct {
	AttractionID   AttractionID   `json:"attr_id"`
	WaitingMinutes int            `json:"waiting_minutes"`
	UpdatedAt      *string        `json:"updated_at"`
	TimeSeries     []SampledPoint `json:"time_series"`
}

// FlatRecord is one element of data/waiting_times_YYYYMMDD.json.
type FlatRecord struct {
	AttractionID  string `json:"attr_id"`
	WaitingPeriod int    `json:"waitingperiod"`
	AtT           string `json:"at_t"`
}
