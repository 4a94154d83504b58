// Package catalog holds the static network description: lines, stations,
// per-line geometry, and the mutable station rank/dwell table.
package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrDataLoad wraps any failure reading or decoding the static input files.
// The service cannot start without them.
type ErrDataLoad struct {
	File string
	Err  error
}

func (e *ErrDataLoad) Error() string {
	return fmt.Sprintf("loading static data file %s: %v", e.File, e.Err)
}

func (e *ErrDataLoad) Unwrap() error { return e.Err }

// BoundingBox is the acceptable coordinate range for station positions.
type BoundingBox struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// DefaultBoundingBox covers the Japanese archipelago.
var DefaultBoundingBox = BoundingBox{LonMin: 122, LonMax: 154, LatMin: 20, LatMax: 46}

func (b BoundingBox) contains(lon, lat float64) bool {
	return lon >= b.LonMin && lon <= b.LonMax && lat >= b.LatMin && lat <= b.LatMax
}

// Line is one railway line. All fields are frozen after Load.
type Line struct {
	ID         string
	NameJa     string
	NameEn     string
	Color      string
	StationIDs []string
	// Ascending and Descending name the two running directions for the line,
	// for example "OuterLoop"/"InnerLoop" on loop lines or
	// "Outbound"/"Inbound" elsewhere.
	Ascending  string
	Descending string
	Loop       bool
	// Geometry is nil when the line's shape failed validation. Queries then
	// fall back to straight-line interpolation between station coordinates.
	Geometry *Geometry
	// anchors maps station id to the nearest vertex index on Geometry.
	anchors map[string]int
}

// Anchor returns the polyline vertex index used as the station's on-line
// position, or false when the station has no usable anchor.
func (l *Line) Anchor(stationID string) (int, bool) {
	idx, ok := l.anchors[stationID]
	return idx, ok
}

// Station is one station record. Coordinates are frozen after Load; rank and
// dwell are mutable through the admin surface and guarded by Catalog.mu.
type Station struct {
	ID     string
	LineID string
	NameJa string
	NameEn string
	Lon    float64
	Lat    float64

	rank  Rank
	dwell int
}

// Catalog is the loaded static network.
type Catalog struct {
	log      *log.Logger
	lines    map[string]*Line
	stations map[string]*Station
	ordered  []*Line

	// mu guards the mutable rank/dwell fields on stations.
	mu sync.RWMutex
}

// Load reads railways.json, stations.json and coordinates.json from dir and
// assembles the catalog. Station entries outside box are rejected with a
// diagnostic; a line shape with fewer than two usable coordinates leaves the
// line without geometry.
func Load(logger *log.Logger, dir string, box BoundingBox) (*Catalog, error) {
	c := &Catalog{
		log:      logger,
		lines:    make(map[string]*Line),
		stations: make(map[string]*Station),
	}

	var rawLines []railwayJSON
	if err := readJSONFile(filepath.Join(dir, "railways.json"), &rawLines); err != nil {
		return nil, err
	}
	var rawStations []stationJSON
	if err := readJSONFile(filepath.Join(dir, "stations.json"), &rawStations); err != nil {
		return nil, err
	}
	var rawCoords coordinatesJSON
	if err := readJSONFile(filepath.Join(dir, "coordinates.json"), &rawCoords); err != nil {
		return nil, err
	}

	for _, rl := range rawLines {
		if rl.ID == "" {
			continue
		}
		line := &Line{
			ID:         rl.ID,
			NameJa:     rl.Title.Ja,
			NameEn:     rl.Title.En,
			Color:      rl.Color,
			StationIDs: rl.Stations,
			Ascending:  rl.Ascending,
			Descending: rl.Descending,
			Loop:       rl.Loop,
			anchors:    make(map[string]int),
		}
		c.lines[line.ID] = line
		c.ordered = append(c.ordered, line)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })

	rejected := 0
	for _, rs := range rawStations {
		if rs.ID == "" || len(rs.Coord) < 2 {
			rejected++
			continue
		}
		lon, lat := rs.Coord[0], rs.Coord[1]
		if !box.contains(lon, lat) {
			logger.Printf("rejecting station %s: coordinate (%f, %f) outside bounding box", rs.ID, lon, lat)
			rejected++
			continue
		}
		st := &Station{
			ID:     rs.ID,
			LineID: rs.lineID(),
			NameJa: rs.Title.Ja,
			NameEn: rs.Title.En,
			Lon:    lon,
			Lat:    lat,
			rank:   RankB,
			dwell:  defaultDwellSeconds(RankB),
		}
		if rs.Rank != "" {
			if rank, ok := ParseRank(rs.Rank); ok {
				st.rank = rank
				st.dwell = defaultDwellSeconds(rank)
			} else {
				logger.Printf("station %s has unrecognized rank %q, keeping default", rs.ID, rs.Rank)
			}
		}
		if rs.DwellTime != nil && *rs.DwellTime >= 0 {
			st.dwell = *rs.DwellTime
		}
		c.stations[st.ID] = st
	}
	if rejected > 0 {
		logger.Printf("rejected %d station entries during load", rejected)
	}

	for _, rc := range rawCoords.Railways {
		line := c.lines[rc.ID]
		if line == nil {
			continue
		}
		geometry, err := stitchSublines(rc.Sublines)
		if err != nil {
			logger.Printf("line %s served without geometry: %v", line.ID, err)
			continue
		}
		line.Geometry = geometry
		if !line.Loop && geometry.closedWithin(loopCloseToleranceMeters) {
			line.Loop = true
		}
		c.buildAnchors(line)
	}

	logger.Printf("catalog loaded: %d lines, %d stations", len(c.lines), len(c.stations))
	return c, nil
}

// buildAnchors records, for every station on the line, the nearest vertex of
// the stitched polyline. Stations farther than anchorGuardMeters from the
// shape get no anchor and fall back to straight-line interpolation.
func (c *Catalog) buildAnchors(line *Line) {
	for _, stationID := range line.StationIDs {
		st := c.stations[stationID]
		if st == nil {
			continue
		}
		idx, meters := line.Geometry.nearestVertex(st.Lon, st.Lat)
		if meters > anchorGuardMeters {
			c.log.Printf("station %s is %.0fm from line %s shape, no anchor", stationID, meters, line.ID)
			continue
		}
		line.anchors[stationID] = idx
	}
}

// Line returns the line with id or nil.
func (c *Catalog) Line(id string) *Line {
	return c.lines[id]
}

// Lines returns all lines ordered by id.
func (c *Catalog) Lines() []*Line {
	return c.ordered
}

// Station returns the station with id or nil.
func (c *Catalog) Station(id string) *Station {
	return c.stations[id]
}

// LineStations returns the line's stations in traversal order, skipping ids
// that did not survive load validation.
func (c *Catalog) LineStations(lineID string) []*Station {
	line := c.lines[lineID]
	if line == nil {
		return nil
	}
	stations := make([]*Station, 0, len(line.StationIDs))
	for _, id := range line.StationIDs {
		if st := c.stations[id]; st != nil {
			stations = append(stations, st)
		}
	}
	return stations
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ErrDataLoad{File: path, Err: err}
	}
	if err = json.Unmarshal(data, v); err != nil {
		return &ErrDataLoad{File: path, Err: err}
	}
	return nil
}

type titleJSON struct {
	Ja string `json:"ja"`
	En string `json:"en"`
}

type railwayJSON struct {
	ID         string    `json:"id"`
	Title      titleJSON `json:"title"`
	Color      string    `json:"color"`
	Stations   []string  `json:"stations"`
	Ascending  string    `json:"ascending"`
	Descending string    `json:"descending"`
	Loop       bool      `json:"loop"`
}

type stationJSON struct {
	ID        string          `json:"id"`
	Railway   json.RawMessage `json:"railway"`
	Title     titleJSON       `json:"title"`
	Coord     []float64       `json:"coord"`
	Rank      string          `json:"rank"`
	DwellTime *int            `json:"dwell_time"`
}

// lineID handles the railway field being either a single id or a list; the
// first entry wins for stations shared between lines.
func (s *stationJSON) lineID() string {
	if len(s.Railway) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(s.Railway, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(s.Railway, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

type coordinatesJSON struct {
	Railways []railwayCoordsJSON `json:"railways"`
}

type railwayCoordsJSON struct {
	ID       string        `json:"id"`
	Sublines []sublineJSON `json:"sublines"`
}

type sublineJSON struct {
	Coords [][]float64 `json:"coords"`
}
