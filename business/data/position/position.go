// Package position materializes the current location of every active train on
// a line by combining the segment index with the latest fused delay set.
package position

import "errors"

// ErrLineUnknown reports a query for a line the catalog does not have.
var ErrLineUnknown = errors.New("unknown line")

// Status is where a train is relative to its schedule right now.
type Status string

const (
	// StatusStopped means the train is dwelling at a station.
	StatusStopped Status = "stopped"
	// StatusRunning means the train is between two stations.
	StatusRunning Status = "running"
	// StatusUnknown means the trip should be active but its adjusted stop
	// times no longer place it anywhere.
	StatusUnknown Status = "unknown"
	// StatusInvalid marks a timetable degeneracy, a run with no duration.
	StatusInvalid Status = "invalid"
)

// Quality tags how trustworthy a position's delay information is.
type Quality string

const (
	// QualityGood means fresh realtime data backed the position.
	QualityGood Quality = "good"
	// QualityStale means the fused set is older than two refresh periods.
	QualityStale Quality = "stale"
	// QualityRejected tags positions of invalid segments.
	QualityRejected Quality = "rejected"
	// QualitySuspect propagates a clamped delay schedule from fusion.
	QualitySuspect Quality = "suspect"
)

// Location is a geographic point with the train's heading.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Bearing float64 `json:"bearing"`
}

// Position is one train's materialized state at the query instant.
type Position struct {
	TrainNumber string `json:"train_number"`
	TripID      string `json:"trip_id"`
	Line        string `json:"line"`
	Direction   string `json:"direction"`
	Status      Status `json:"status"`
	// StationID is set while stopped.
	StationID string `json:"station_id,omitempty"`
	// FromStationID, ToStationID and Progress are set while running.
	FromStationID string   `json:"from_station_id,omitempty"`
	ToStationID   string   `json:"to_station_id,omitempty"`
	Progress      *float64 `json:"progress,omitempty"`
	Location      Location `json:"location"`
	Delay         int      `json:"delay"`
	Quality       Quality  `json:"quality"`
}
