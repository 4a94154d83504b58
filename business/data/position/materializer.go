package position

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/nowtrain/traincast/business/data/catalog"
	"github.com/nowtrain/traincast/business/data/fusion"
	"github.com/nowtrain/traincast/business/data/segment"
	"github.com/nowtrain/traincast/business/data/timetable"
)

// Materializer answers position queries. It is read-only on the catalog and
// segment index and takes one fused set snapshot per call.
type Materializer struct {
	log       *log.Logger
	cat       *catalog.Catalog
	index     *segment.Index
	publisher *fusion.Publisher
	location  *time.Location
}

// NewMaterializer builds a Materializer over the loaded data.
func NewMaterializer(logger *log.Logger,
	cat *catalog.Catalog,
	index *segment.Index,
	publisher *fusion.Publisher,
	location *time.Location) *Materializer {
	return &Materializer{
		log:       logger,
		cat:       cat,
		index:     index,
		publisher: publisher,
		location:  location,
	}
}

// FeedQuality summarizes the realtime layer for a whole response: stale when
// the fused set is old or degraded, good otherwise.
func (m *Materializer) FeedQuality(now time.Time) Quality {
	set := m.publisher.Current()
	if set != nil && (set.Stale(now) || set.Health == fusion.HealthDegraded) {
		return QualityStale
	}
	return QualityGood
}

// Positions returns one position for every train active on the line at the
// given instant, sorted by train number. The whole call reads a single fused
// set snapshot, so no result mixes delay data from two fusion cycles.
func (m *Materializer) Positions(ctx context.Context, lineID string, at time.Time) ([]Position, error) {
	line := m.cat.Line(lineID)
	if line == nil {
		return nil, ErrLineUnknown
	}

	local := at.In(m.location)
	serviceDay := timetable.ServiceDay(local)
	t := timetable.EffectiveSeconds(local)
	serviceType := m.index.ServiceTypeOn(serviceDay)

	set := m.publisher.Current()
	stale := set != nil && (set.Stale(time.Now()) || set.Health == fusion.HealthDegraded)

	candidates := m.gatherCandidates(line, t, serviceType, set)

	positions := make([]Position, 0, len(candidates))
	for _, trip := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		schedule := set.Schedule(trip.ID)
		if schedule != nil && schedule.Canceled {
			continue
		}
		pos, active := m.materialize(line, trip, schedule, t, stale)
		if active {
			positions = append(positions, pos)
		}
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].TrainNumber != positions[j].TrainNumber {
			return positions[i].TrainNumber < positions[j].TrainNumber
		}
		return positions[i].TripID < positions[j].TripID
	})
	return positions, nil
}

// gatherCandidates unions the trips scheduled to be active at t with the
// matched trips whose delay-adjusted window covers t, so a late-running train
// stays visible past its scheduled slot.
func (m *Materializer) gatherCandidates(line *catalog.Line,
	t int,
	serviceType timetable.ServiceType,
	set *fusion.FusedTripSet) []*timetable.Trip {

	seen := make(map[string]*timetable.Trip)
	var order []*timetable.Trip
	for _, seg := range m.index.TrainsAt(line.ID, t, serviceType) {
		if seen[seg.Trip.ID] == nil {
			seen[seg.Trip.ID] = seg.Trip
			order = append(order, seg.Trip)
		}
	}
	if set == nil {
		return order
	}
	for _, schedule := range set.Trips {
		trip := schedule.Trip
		if trip.LineID != line.ID || trip.ServiceType != serviceType || seen[trip.ID] != nil {
			continue
		}
		first := schedule.AdjustedArrival(0)
		last := schedule.AdjustedArrival(len(trip.Stops) - 1)
		if first <= t && t <= last {
			seen[trip.ID] = trip
			order = append(order, trip)
		}
	}
	return order
}

// materialize walks the trip's delay-adjusted stop times and places the train
// at t. A trip scheduled to be underway but still ahead of its adjusted first
// arrival is held stopped at its origin; one already past its adjusted last
// arrival reports unknown. Only a trip whose scheduled window misses t
// entirely returns false.
func (m *Materializer) materialize(line *catalog.Line,
	trip *timetable.Trip,
	schedule *fusion.DelaySchedule,
	t int,
	stale bool) (Position, bool) {

	n := len(trip.Stops)
	arrivals := make([]int, n)
	departures := make([]int, n)
	for i := 0; i < n; i++ {
		arrivals[i] = trip.Stops[i].Arrival
		departures[i] = trip.Stops[i].Departure
		if schedule != nil {
			arrivals[i] = schedule.AdjustedArrival(i)
			departures[i] = schedule.AdjustedDeparture(i)
		}
	}

	// Where the timetable writes a touch-and-go at an intermediate stop, the
	// station's rank dwell opens the stop back up, capped at the next arrival
	// so the run after it keeps positive duration where the schedule allows.
	for i := 1; i < n-1; i++ {
		if arrivals[i] != departures[i] {
			continue
		}
		if schedule != nil && schedule.Skipped[i] {
			continue
		}
		expanded := arrivals[i] + m.cat.DwellSeconds(trip.Stops[i].StationID)
		if expanded > arrivals[i+1] {
			expanded = arrivals[i+1]
		}
		departures[i] = expanded
	}

	base := Position{
		TrainNumber: fusion.NormalizeTrainNumber(trip.Number),
		TripID:      trip.ID,
		Line:        trip.LineID,
		Direction:   trip.Direction,
		Quality:     QualityGood,
	}
	if stale {
		base.Quality = QualityStale
	} else if schedule != nil && schedule.Suspect {
		base.Quality = QualitySuspect
	}

	ascending := trip.Direction == line.Ascending

	if t < arrivals[0] {
		if t < trip.Stops[0].Arrival {
			return Position{}, false
		}
		// Scheduled to be underway already, but the delay holds it at its
		// origin waiting to depart.
		pos := base
		pos.Status = StatusStopped
		pos.StationID = trip.Stops[0].StationID
		if schedule != nil {
			pos.Delay = schedule.Offsets[0]
		}
		m.projectStopped(line, trip, 0, ascending, &pos)
		return pos, true
	}
	if t > arrivals[n-1] {
		if t > trip.Stops[n-1].Arrival {
			return Position{}, false
		}
		// The adjusted stop times ran out before the scheduled window did, so
		// the feed no longer places the train anywhere.
		pos := base
		pos.Status = StatusUnknown
		pos.FromStationID = trip.Stops[0].StationID
		pos.ToStationID = trip.Stops[n-1].StationID
		return pos, true
	}

	for i := 0; i < n-1; i++ {
		dwellCovers := arrivals[i] <= t && t < departures[i] ||
			(arrivals[i] == departures[i] && t == arrivals[i])
		if dwellCovers {
			pos := base
			pos.Status = StatusStopped
			pos.StationID = trip.Stops[i].StationID
			if schedule != nil {
				pos.Delay = schedule.Offsets[i]
			}
			m.projectStopped(line, trip, i, ascending, &pos)
			return pos, true
		}

		final := i == n-2
		motionCovers := departures[i] <= t && t < arrivals[i+1] ||
			(final && t == arrivals[i+1])
		if !motionCovers {
			continue
		}
		pos := base
		pos.FromStationID = trip.Stops[i].StationID
		pos.ToStationID = trip.Stops[i+1].StationID
		if schedule != nil {
			pos.Delay = schedule.Offsets[i+1]
		}
		progress := 0.0
		if arrivals[i+1] > departures[i] {
			pos.Status = StatusRunning
			progress = float64(t-departures[i]) / float64(arrivals[i+1]-departures[i])
			if progress > 1 {
				progress = 1
			}
		} else {
			// A run with no duration is a timetable degeneracy; report it
			// rather than fabricate movement.
			pos.Status = StatusInvalid
			pos.Quality = QualityRejected
		}
		pos.Progress = &progress
		m.projectRunning(line, trip, i, progress, ascending, &pos)
		return pos, true
	}
	return Position{}, false
}

// projectStopped places a dwelling train on its station with the line's
// tangent bearing at the station anchor.
func (m *Materializer) projectStopped(line *catalog.Line,
	trip *timetable.Trip,
	stop int,
	ascending bool,
	pos *Position) {

	st := m.cat.Station(trip.Stops[stop].StationID)
	if st == nil {
		return
	}
	pos.Location.Lon = st.Lon
	pos.Location.Lat = st.Lat

	if line.Geometry != nil {
		if anchor, ok := line.Anchor(st.ID); ok {
			pos.Location.Bearing = line.Geometry.VertexBearing(anchor, ascending)
			return
		}
	}
	if next := m.cat.Station(trip.Stops[stop+1].StationID); next != nil {
		pos.Location.Bearing = catalog.BearingBetween(st.Lon, st.Lat, next.Lon, next.Lat)
	}
}

// projectRunning interpolates a moving train along the line shape by arc
// length, falling back to the straight line between the two stations when the
// shape or an anchor is missing.
func (m *Materializer) projectRunning(line *catalog.Line,
	trip *timetable.Trip,
	stop int,
	progress float64,
	ascending bool,
	pos *Position) {

	from := m.cat.Station(trip.Stops[stop].StationID)
	to := m.cat.Station(trip.Stops[stop+1].StationID)
	if from == nil || to == nil {
		return
	}

	if line.Geometry != nil {
		fromAnchor, okFrom := line.Anchor(from.ID)
		toAnchor, okTo := line.Anchor(to.ID)
		if okFrom && okTo {
			lon, lat, bearing := line.Geometry.PointBetween(fromAnchor, toAnchor, progress, line.Loop, ascending)
			pos.Location = Location{Lat: lat, Lon: lon, Bearing: bearing}
			return
		}
	}

	pos.Location.Lon = from.Lon + progress*(to.Lon-from.Lon)
	pos.Location.Lat = from.Lat + progress*(to.Lat-from.Lat)
	pos.Location.Bearing = catalog.BearingBetween(from.Lon, from.Lat, to.Lon, to.Lat)
}
