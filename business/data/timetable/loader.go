package timetable

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nowtrain/traincast/business/data/catalog"
)

// tripJSON mirrors one entry of a per-line timetable file. The compact keys
// come from the upstream data dump.
type tripJSON struct {
	ID           string         `json:"id"`
	Number       string         `json:"n"`
	LineID       string         `json:"r"`
	TrainType    string         `json:"y"`
	Direction    string         `json:"d"`
	Origins      []string       `json:"os"`
	Destinations []string       `json:"ds"`
	StopTimes    []stopTimeJSON `json:"tt"`
}

type stopTimeJSON struct {
	StationID string `json:"s"`
	Arrival   string `json:"a"`
	Departure string `json:"d"`
}

// Store is the parsed timetable corpus, grouped by line.
type Store struct {
	TripsByLine map[string][]*Trip
}

// Trips returns the trips for one line.
func (s *Store) Trips(lineID string) []*Trip {
	return s.TripsByLine[lineID]
}

// AllTrips returns every loaded trip.
func (s *Store) AllTrips() []*Trip {
	var all []*Trip
	for _, trips := range s.TripsByLine {
		all = append(all, trips...)
	}
	return all
}

// Load reads every timetable file under dir/timetables for lines present in
// the catalog. Malformed trips are dropped with one diagnostic each; a
// missing file leaves the line without scheduled trains.
func Load(logger *log.Logger, dir string, cat *catalog.Catalog) (*Store, error) {
	store := &Store{TripsByLine: make(map[string][]*Trip)}

	pattern := filepath.Join(dir, "timetables", "*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &catalog.ErrDataLoad{File: pattern, Err: err}
	}
	if len(files) == 0 {
		return nil, &catalog.ErrDataLoad{File: pattern, Err: fmt.Errorf("no timetable files found")}
	}

	unknownSuffixes := make(map[string]bool)
	loaded, dropped := 0, 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &catalog.ErrDataLoad{File: file, Err: err}
		}
		var rawTrips []tripJSON
		if err = json.Unmarshal(data, &rawTrips); err != nil {
			return nil, &catalog.ErrDataLoad{File: file, Err: err}
		}
		for i := range rawTrips {
			trip, err := buildTrip(&rawTrips[i], cat, logger, unknownSuffixes)
			if err != nil {
				logger.Printf("dropping trip %s: %v", rawTrips[i].ID, err)
				dropped++
				continue
			}
			store.TripsByLine[trip.LineID] = append(store.TripsByLine[trip.LineID], trip)
			loaded++
		}
	}

	logger.Printf("timetable loaded: %d trips on %d lines (%d dropped)", loaded, len(store.TripsByLine), dropped)
	return store, nil
}

// buildTrip normalizes one raw trip and enforces the timetable invariants:
// strictly increasing stop times, arrival <= departure, known stations, and a
// contiguous traversal of the line's station order.
func buildTrip(raw *tripJSON, cat *catalog.Catalog, logger *log.Logger, unknownSuffixes map[string]bool) (*Trip, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("missing trip id")
	}
	line := cat.Line(raw.LineID)
	if line == nil {
		return nil, fmt.Errorf("unknown line %q", raw.LineID)
	}
	if len(raw.StopTimes) < 2 {
		return nil, fmt.Errorf("only %d stops", len(raw.StopTimes))
	}

	serviceType := ServiceTypeFromTripID(raw.ID)
	if serviceType == ServiceUnknown {
		suffix := raw.ID
		if idx := strings.LastIndex(raw.ID, "."); idx >= 0 {
			suffix = raw.ID[idx+1:]
		}
		if !unknownSuffixes[suffix] {
			unknownSuffixes[suffix] = true
			logger.Printf("trip id suffix %q matches no service type, tagging Unknown", suffix)
		}
	}

	baseID := raw.ID
	if serviceType != ServiceUnknown {
		baseID = raw.ID[:strings.LastIndex(raw.ID, ".")]
	}

	trip := &Trip{
		ID:           raw.ID,
		BaseID:       baseID,
		Number:       raw.Number,
		LineID:       raw.LineID,
		TrainType:    raw.TrainType,
		Direction:    raw.Direction,
		ServiceType:  serviceType,
		Origins:      raw.Origins,
		Destinations: raw.Destinations,
	}
	if trip.Number == "" {
		if idx := strings.LastIndex(baseID, "."); idx >= 0 {
			trip.Number = baseID[idx+1:]
		}
	}

	previous := -1
	for _, rawStop := range raw.StopTimes {
		if cat.Station(rawStop.StationID) == nil {
			return nil, fmt.Errorf("unknown station %q", rawStop.StationID)
		}
		arrival, departure, err := parseStopClock(rawStop)
		if err != nil {
			return nil, err
		}
		if arrival > departure {
			return nil, fmt.Errorf("arrival after departure at %s (%d > %d)", rawStop.StationID, arrival, departure)
		}
		if previous >= 0 && arrival < previous {
			return nil, fmt.Errorf("non-monotonic stop times at %s", rawStop.StationID)
		}
		previous = departure
		trip.Stops = append(trip.Stops, StopTime{
			StationID: rawStop.StationID,
			Arrival:   arrival,
			Departure: departure,
		})
	}

	if err := checkTraversal(trip, line); err != nil {
		return nil, err
	}
	return trip, nil
}

// parseStopClock fills a missing arrival or departure from its counterpart;
// upstream files write only "d" at origins and only "a" at terminals.
func parseStopClock(raw stopTimeJSON) (arrival, departure int, err error) {
	if raw.Arrival == "" && raw.Departure == "" {
		return 0, 0, fmt.Errorf("stop %s has neither arrival nor departure", raw.StationID)
	}
	if raw.Arrival != "" {
		arrival, err = ParseClock(raw.Arrival)
		if err != nil {
			return 0, 0, err
		}
	}
	if raw.Departure != "" {
		departure, err = ParseClock(raw.Departure)
		if err != nil {
			return 0, 0, err
		}
	}
	if raw.Arrival == "" {
		arrival = departure
	}
	if raw.Departure == "" {
		departure = arrival
	}
	return arrival, departure, nil
}

// checkTraversal rejects trips that teleport: the stop sequence must walk the
// line's station order one station at a time in a single direction, wrapping
// only on loop lines.
func checkTraversal(trip *Trip, line *catalog.Line) error {
	order := make(map[string]int, len(line.StationIDs))
	for i, id := range line.StationIDs {
		order[id] = i
	}
	n := len(line.StationIDs)

	indices := make([]int, len(trip.Stops))
	for i, stop := range trip.Stops {
		idx, ok := order[stop.StationID]
		if !ok {
			return fmt.Errorf("station %s is not on line %s", stop.StationID, line.ID)
		}
		indices[i] = idx
	}

	sign := 0
	for i := 1; i < len(indices); i++ {
		delta := indices[i] - indices[i-1]
		if line.Loop {
			// Normalize to the shorter signed walk around the ring.
			if delta > n/2 {
				delta -= n
			} else if delta < -n/2 {
				delta += n
			}
		}
		if delta == 0 {
			return fmt.Errorf("repeated station at stop %d (%s)", i, trip.Stops[i].StationID)
		}
		// Express services skip stations, so the step size is free; the
		// direction is not.
		current := 1
		if delta < 0 {
			current = -1
		}
		if sign == 0 {
			sign = current
		} else if current != sign {
			return fmt.Errorf("direction reversal at stop %d (%s)", i, trip.Stops[i].StationID)
		}
	}
	return nil
}
