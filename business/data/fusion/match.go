package fusion

import (
	"log"
	"strconv"
	"strings"

	"github.com/nowtrain/traincast/business/data/catalog"
	"github.com/nowtrain/traincast/business/data/timetable"
)

// matchSlackSeconds is how far behind schedule a candidate trip may already
// be and still count as having the feed's next stop ahead of it.
const matchSlackSeconds = 600

// Matcher resolves feed trip identifiers to timetable trips by normalized
// train number.
type Matcher struct {
	log       *log.Logger
	cat       *catalog.Catalog
	byService map[timetable.ServiceType]map[string][]*timetable.Trip
}

// NewMatcher indexes every loaded trip by service type and normalized train
// number.
func NewMatcher(logger *log.Logger, cat *catalog.Catalog, store *timetable.Store) *Matcher {
	m := &Matcher{
		log:       logger,
		cat:       cat,
		byService: make(map[timetable.ServiceType]map[string][]*timetable.Trip),
	}
	for _, trip := range store.AllTrips() {
		if trip.ServiceType == timetable.ServiceUnknown {
			continue
		}
		numbers := m.byService[trip.ServiceType]
		if numbers == nil {
			numbers = make(map[string][]*timetable.Trip)
			m.byService[trip.ServiceType] = numbers
		}
		number := NormalizeTrainNumber(trip.Number)
		numbers[number] = append(numbers[number], trip)
	}
	return m
}

// Match finds the timetable trip a feed trip refers to. Ambiguity is broken
// by the feed's direction id (or, absent one, by train-number parity on loop
// lines), then by which candidate still has the feed's next stop ahead of it;
// a trip that stays ambiguous is dropped rather than guessed at.
func (m *Matcher) Match(ft *feedTrip, serviceType timetable.ServiceType, effectiveSeconds int) *timetable.Trip {
	numbers := m.byService[serviceType]
	if numbers == nil {
		return nil
	}
	candidates := numbers[NormalizeTrainNumber(ft.TripID)]
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	if ft.DirectionID != nil {
		filtered := filterByDirection(m.cat, candidates, *ft.DirectionID)
		if len(filtered) == 1 {
			return filtered[0]
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	} else {
		filtered := filterByNumberParity(m.cat, candidates, NormalizeTrainNumber(ft.TripID))
		if len(filtered) == 1 {
			return filtered[0]
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	if stopID := firstUpcomingStop(ft); stopID != "" {
		filtered := filterByUpcomingStop(candidates, stopID, effectiveSeconds)
		if len(filtered) == 1 {
			return filtered[0]
		}
	}

	m.log.Printf("feed trip %s stays ambiguous between %d timetable trips, dropping", ft.TripID, len(candidates))
	return nil
}

// filterByDirection keeps candidates whose timetable direction matches the
// feed's direction_id: 0 is the line's ascending direction, 1 descending.
func filterByDirection(cat *catalog.Catalog, candidates []*timetable.Trip, directionID uint32) []*timetable.Trip {
	var kept []*timetable.Trip
	for _, trip := range candidates {
		line := cat.Line(trip.LineID)
		if line == nil {
			continue
		}
		want := line.Ascending
		if directionID == 1 {
			want = line.Descending
		}
		if trip.Direction == want {
			kept = append(kept, trip)
		}
	}
	return kept
}

// filterByNumberParity keeps loop-line candidates whose direction follows the
// circular-service numbering convention: odd train numbers run the outer
// (ascending) loop, even numbers the inner (descending) loop. Candidates on
// ordinary lines are left for the upcoming-stop tiebreak.
func filterByNumberParity(cat *catalog.Catalog, candidates []*timetable.Trip, number string) []*timetable.Trip {
	digits := strings.TrimRightFunc(number, func(r rune) bool {
		return r < '0' || r > '9'
	})
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	var kept []*timetable.Trip
	for _, trip := range candidates {
		line := cat.Line(trip.LineID)
		if line == nil || !line.Loop {
			continue
		}
		want := line.Ascending
		if n%2 == 0 {
			want = line.Descending
		}
		if trip.Direction == want {
			kept = append(kept, trip)
		}
	}
	return kept
}

// firstUpcomingStop returns the first stop the feed still expects the train
// to serve.
func firstUpcomingStop(ft *feedTrip) string {
	for _, stu := range ft.Updates {
		if !stu.Skipped && stu.StopID != "" {
			return stu.StopID
		}
	}
	return ""
}

// filterByUpcomingStop keeps candidates that schedule the feed's next stop no
// further back than the slack window.
func filterByUpcomingStop(candidates []*timetable.Trip, stopID string, effectiveSeconds int) []*timetable.Trip {
	var kept []*timetable.Trip
	for _, trip := range candidates {
		for i := range trip.Stops {
			if !stationMatches(trip.Stops[i].StationID, stopID) {
				continue
			}
			if trip.Stops[i].Arrival >= effectiveSeconds-matchSlackSeconds {
				kept = append(kept, trip)
			}
			break
		}
	}
	return kept
}

// stationMatches accepts either the full station identifier or its trailing
// component, which is what most feeds carry as the GTFS stop id.
func stationMatches(stationID, stopID string) bool {
	return stationID == stopID || strings.HasSuffix(stationID, "."+stopID)
}
