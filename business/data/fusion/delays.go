package fusion

import (
	"github.com/nowtrain/traincast/business/data/timetable"
)

const (
	// minOffsetSeconds is the largest early running considered plausible.
	minOffsetSeconds = -600
	// maxOffsetSeconds is the largest delay considered plausible.
	maxOffsetSeconds = 7200
)

// buildDelaySchedule turns one matched feed trip into a per-stop delay
// schedule. Stops the feed did not mention inherit the previous mentioned
// offset; stops before the first mentioned one take that first offset so an
// early or late train is adjusted along its whole run. Offsets are then kept
// monotone non-decreasing along the trip and clamped into the plausible
// range, which marks the schedule suspect.
func buildDelaySchedule(trip *timetable.Trip, ft *feedTrip) *DelaySchedule {
	n := len(trip.Stops)
	d := &DelaySchedule{
		Trip:       trip,
		FeedTripID: ft.TripID,
		Offsets:    make([]int, n),
		Skipped:    make([]bool, n),
		Canceled:   ft.Canceled,
	}
	if ft.Canceled {
		return d
	}

	mentioned := make([]bool, n)
	for u := range ft.Updates {
		stu := &ft.Updates[u]
		i := resolveStopIndex(trip, stu)
		if i < 0 {
			continue
		}
		if stu.Skipped {
			d.Skipped[i] = true
		}
		offset, ok := stopOffset(stu)
		if !ok {
			continue
		}
		d.Offsets[i] = offset
		mentioned[i] = true
	}

	forwardFill(d.Offsets, mentioned)

	// Delays do not recover across stops within a single update: a later
	// offset smaller than an earlier one is raised to it, keeping the offset
	// array monotone non-decreasing.
	for i := 1; i < n; i++ {
		if d.Offsets[i] < d.Offsets[i-1] {
			d.Offsets[i] = d.Offsets[i-1]
		}
	}

	for i := range d.Offsets {
		if d.Offsets[i] < minOffsetSeconds {
			d.Offsets[i] = minOffsetSeconds
			d.Suspect = true
		} else if d.Offsets[i] > maxOffsetSeconds {
			d.Offsets[i] = maxOffsetSeconds
			d.Suspect = true
		}
	}
	return d
}

// stopOffset picks the stop's delay, preferring arrival over departure.
func stopOffset(stu *feedStopTime) (int, bool) {
	if stu.ArrivalDelay != nil {
		return *stu.ArrivalDelay, true
	}
	if stu.DepartureDelay != nil {
		return *stu.DepartureDelay, true
	}
	return 0, false
}

// resolveStopIndex locates the feed stop within the trip, by stop id first
// and the one-based stop sequence as fallback.
func resolveStopIndex(trip *timetable.Trip, stu *feedStopTime) int {
	if stu.StopID != "" {
		for i := range trip.Stops {
			if stationMatches(trip.Stops[i].StationID, stu.StopID) {
				return i
			}
		}
	}
	if stu.StopSequence > 0 && int(stu.StopSequence) <= len(trip.Stops) {
		return int(stu.StopSequence) - 1
	}
	return -1
}

// forwardFill spreads mentioned offsets across the gaps: each unmentioned
// stop takes the nearest mentioned offset before it, and stops before the
// first mentioned one take the first.
func forwardFill(offsets []int, mentioned []bool) {
	first := -1
	for i, ok := range mentioned {
		if ok {
			first = i
			break
		}
	}
	if first < 0 {
		return
	}
	for i := 0; i < first; i++ {
		offsets[i] = offsets[first]
	}
	current := offsets[first]
	for i := first + 1; i < len(offsets); i++ {
		if mentioned[i] {
			current = offsets[i]
		} else {
			offsets[i] = current
		}
	}
}
