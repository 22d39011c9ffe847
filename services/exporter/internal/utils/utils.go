package utils

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/diary-app/waiting-times/services/exporter/internal/models"
)

const (
	// DateLayout is the accepted --date format.
	DateLayout = "2006-01-02"
	// BucketWidth is the downsampling granularity.
	BucketWidth = 10 * time.Minute

	timestampLayout      = "2006-01-02T15:04:05"
	timestampMicroLayout = "2006-01-02T15:04:05.000000"
)

// ErrInvalidDate is returned when a target date cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// ParseTargetDate parses a YYYY-MM-DD string as midnight in loc. An empty
// string selects today in loc, relative to now.
func ParseTargetDate(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		n := now.In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc), nil
	}
	d, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected YYYY-MM-DD, e.g. 2024-01-15", ErrInvalidDate, value)
	}
	return d, nil
}

// DayWindow returns the half-open range [start, end) covering the calendar
// day of date in its location.
func DayWindow(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// BucketIndex returns floor(epoch seconds / 600) for t.
func BucketIndex(t time.Time) int64 {
	secs := t.Unix()
	width := int64(BucketWidth / time.Second)
	idx := secs / width
	if secs%width != 0 && secs < 0 {
		idx--
	}
	return idx
}

type bucketKey struct {
	attraction models.AttractionID
	bucket     int64
}

// Downsample keeps the latest record per (attraction, bucket). When several
// records share the latest timestamp the first one in input order wins.
// The result preserves the input order of the surviving records.
func Downsample(records []models.WaitRecord) []models.WaitRecord {
	kept := make(map[bucketKey]int, len(records))
	order := make([]bucketKey, 0, len(records))
	for i, rec := range records {
		if rec.WaitMinutes == nil || rec.AttractionID == "" {
			continue
		}
		key := bucketKey{attraction: rec.AttractionID, bucket: BucketIndex(rec.ObservedAt)}
		prev, ok := kept[key]
		if !ok {
			kept[key] = i
			order = append(order, key)
			continue
		}
		if rec.ObservedAt.After(records[prev].ObservedAt) {
			kept[key] = i
		}
	}

	out := make([]models.WaitRecord, 0, len(order))
	for _, key := range order {
		out = append(out, records[kept[key]])
	}
	return out
}

// FormatTimestamp renders the wall clock of t without an offset, adding
// microseconds only when present.
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format(timestampMicroLayout)
	}
	return t.Format(timestampLayout)
}

// BuildSeries groups sampled records per attraction, sorts each series by
// time and the attractions by id.
func BuildSeries(records []models.WaitRecord) []models.AttractionSeries {
	groups := make(map[models.AttractionID][]models.SampledPoint)
	ids := make([]models.AttractionID, 0)
	for _, rec := range records {
		if rec.AttractionID == "" || rec.WaitMinutes == nil {
			continue
		}
		if _, ok := groups[rec.AttractionID]; !ok {
			ids = append(ids, rec.AttractionID)
		}
		groups[rec.AttractionID] = append(groups[rec.AttractionID],
			models.NewSampledPoint(*rec.WaitMinutes, rec.ObservedAt, FormatTimestamp(rec.ObservedAt)))
	}

	sort.SliceStable(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	series := make([]models.AttractionSeries, 0, len(ids))
	for _, id := range ids {
		points := groups[id]
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].ObservedAt().Before(points[j].ObservedAt())
		})
		series = append(series, NewAttractionSeries(id, points))
	}
	return series
}

// NewAttractionSeries derives the latest snapshot from the last point.
func NewAttractionSeries(id models.AttractionID, points []models.SampledPoint) models.AttractionSeries {
	s := models.AttractionSeries{AttractionID: id, TimeSeries: points}
	if s.TimeSeries == nil {
		s.TimeSeries = make([]models.SampledPoint, 0)
	}
	if n := len(s.TimeSeries); n > 0 {
		latest := s.TimeSeries[n-1]
		ts := latest.Timestamp
		s.WaitingMinutes = latest.WaitingMinutes
		s.UpdatedAt = &ts
	}
	return s
}

// Flatten expands every series into flat records, keeping attraction order
// and then time order. An empty series contributes one fallback record.
func Flatten(series []models.AttractionSeries) []models.FlatRecord {
	flat := make([]models.FlatRecord, 0)
	for _, s := range series {
		id := string(s.AttractionID)
		if len(s.TimeSeries) == 0 {
			at := ""
			if s.UpdatedAt != nil {
				at = *s.UpdatedAt
			}
			flat = append(flat, models.FlatRecord{AttractionID: id, WaitingPeriod: s.WaitingMinutes, AtT: at})
			continue
		}
		for _, p := range s.TimeSeries {
			flat = append(flat, models.FlatRecord{AttractionID: id, WaitingPeriod: p.WaitingMinutes, AtT: p.Timestamp})
		}
	}
	return flat
}

// CountPoints sums the time series lengths.
func CountPoints(series []models.AttractionSeries) int {
	total := 0
	for _, s := range series {
		total += len(s.TimeSeries)
	}
	return total
}
