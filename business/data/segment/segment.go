// Package segment turns scheduled trips into queryable time intervals. Every
// trip becomes an alternating run of dwell and motion segments covering
// exactly [first arrival, last arrival] on the service day timeline.
package segment

import (
	"log"
	"sort"
	"time"

	"github.com/nowtrain/traincast/business/data/timetable"
)

// bucketSeconds is the width of one index bucket. Five minutes keeps the
// per-bucket candidate count small without inflating the bucket array.
const bucketSeconds = 300

// Kind discriminates the two segment flavors.
type Kind int

const (
	// Dwell covers [arrival, departure) at one station.
	Dwell Kind = iota
	// Motion covers [departure, next arrival) between two stations.
	Motion
)

// String - Stringer interface for Kind
func (k Kind) String() string {
	if k == Dwell {
		return "dwell"
	}
	return "motion"
}

// Segment is one scheduled interval of a trip. Dwell segments carry
// StationID; motion segments carry FromStationID and ToStationID.
type Segment struct {
	Trip *timetable.Trip
	Kind Kind
	// StopIndex is the index of the stop a dwell belongs to, or of the
	// departure stop for a motion.
	StopIndex     int
	StationID     string
	FromStationID string
	ToStationID   string
	// Start and End are effective seconds. The interval is half open except
	// for the trip's final motion, which includes its end so coverage closes
	// at the last arrival.
	Start int
	End   int
	// Final marks the trip's last motion segment.
	Final bool
	// Invalid marks a motion whose scheduled duration is not positive. Such
	// segments are reported but never placed on the map.
	Invalid bool
}

// Contains reports whether the segment covers the given effective second. A
// zero-length dwell still covers its single instant so a train touching a
// station at arrival == departure is found stopped there.
func (s *Segment) Contains(effectiveSeconds int) bool {
	if s.Start <= effectiveSeconds && effectiveSeconds < s.End {
		return true
	}
	if s.Kind == Dwell {
		return s.Start == s.End && effectiveSeconds == s.Start
	}
	return s.Final && effectiveSeconds == s.End
}

// lineIndex holds one line's segments sorted by start second, with a bucket
// table mapping each bucketSeconds-wide window to the [lo, hi) slice of
// segments that can overlap it.
type lineIndex struct {
	segments []*Segment
	buckets  [][2]int
}

// Index answers "which trains are scheduled to be where" for every line.
type Index struct {
	lines    map[string]*lineIndex
	calendar *operatingCalendar
}

// NewIndex builds the per-line segment arrays and bucket tables from the
// loaded timetable.
func NewIndex(logger *log.Logger, store *timetable.Store) *Index {
	idx := &Index{
		lines:    make(map[string]*lineIndex),
		calendar: makeOperatingCalendar(),
	}
	total := 0
	for lineID, trips := range store.TripsByLine {
		li := buildLineIndex(trips)
		idx.lines[lineID] = li
		total += len(li.segments)
	}
	logger.Printf("segment index built: %d segments on %d lines", total, len(idx.lines))
	return idx
}

func buildLineIndex(trips []*timetable.Trip) *lineIndex {
	li := &lineIndex{}
	for _, trip := range trips {
		li.segments = append(li.segments, tripSegments(trip)...)
	}
	sort.Slice(li.segments, func(i, j int) bool {
		return li.segments[i].Start < li.segments[j].Start
	})

	maxEnd := 0
	for _, seg := range li.segments {
		if seg.End > maxEnd {
			maxEnd = seg.End
		}
	}
	li.buckets = make([][2]int, maxEnd/bucketSeconds+1)
	for b := range li.buckets {
		li.buckets[b] = [2]int{len(li.segments), 0}
	}
	for i, seg := range li.segments {
		for b := seg.Start / bucketSeconds; b <= seg.End/bucketSeconds; b++ {
			if i < li.buckets[b][0] {
				li.buckets[b][0] = i
			}
			if i+1 > li.buckets[b][1] {
				li.buckets[b][1] = i + 1
			}
		}
	}
	return li
}

// tripSegments expands one trip. Stops 0..n-2 each contribute a dwell and the
// motion to the next stop; the terminal stop contributes nothing, so coverage
// ends at the final arrival.
func tripSegments(trip *timetable.Trip) []*Segment {
	n := len(trip.Stops)
	segs := make([]*Segment, 0, 2*(n-1))
	for i := 0; i < n-1; i++ {
		from, to := trip.Stops[i], trip.Stops[i+1]
		segs = append(segs, &Segment{
			Trip:      trip,
			Kind:      Dwell,
			StopIndex: i,
			StationID: from.StationID,
			Start:     from.Arrival,
			End:       from.Departure,
		})
		segs = append(segs, &Segment{
			Trip:          trip,
			Kind:          Motion,
			StopIndex:     i,
			FromStationID: from.StationID,
			ToStationID:   to.StationID,
			Start:         from.Departure,
			End:           to.Arrival,
			Final:         i == n-2,
			Invalid:       to.Arrival <= from.Departure,
		})
	}
	return segs
}

// ServiceTypeOn returns the timetable calendar in effect on a service day.
func (x *Index) ServiceTypeOn(serviceDay time.Time) timetable.ServiceType {
	return x.calendar.serviceTypeOn(serviceDay)
}

// Segments returns a line's full segment array, sorted by start second.
func (x *Index) Segments(lineID string) []*Segment {
	li := x.lines[lineID]
	if li == nil {
		return nil
	}
	return li.segments
}

// TrainsAt returns the segment each scheduled train of the line occupies at
// the given effective second, at most one per trip. When a zero-length dwell
// and the following motion both cover the instant the dwell wins. Trips on a
// different calendar, or whose calendar could not be identified, are skipped.
func (x *Index) TrainsAt(lineID string, effectiveSeconds int, want timetable.ServiceType) []*Segment {
	li := x.lines[lineID]
	if li == nil || want == timetable.ServiceUnknown {
		return nil
	}
	b := effectiveSeconds / bucketSeconds
	if effectiveSeconds < 0 || b >= len(li.buckets) {
		return nil
	}
	lo, hi := li.buckets[b][0], li.buckets[b][1]
	if lo >= hi {
		// No segment overlaps this bucket.
		return nil
	}

	byTrip := make(map[*timetable.Trip]*Segment)
	var order []*timetable.Trip
	for _, seg := range li.segments[lo:hi] {
		if seg.Trip.ServiceType != want || !seg.Contains(effectiveSeconds) {
			continue
		}
		existing, ok := byTrip[seg.Trip]
		if !ok {
			byTrip[seg.Trip] = seg
			order = append(order, seg.Trip)
			continue
		}
		if existing.Kind == Motion && seg.Kind == Dwell {
			byTrip[seg.Trip] = seg
		}
	}

	result := make([]*Segment, 0, len(order))
	for _, trip := range order {
		result = append(result, byTrip[trip])
	}
	return result
}
