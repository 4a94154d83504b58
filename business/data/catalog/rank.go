package catalog

import "fmt"

// Rank tags a station's operational importance. It drives the assumed dwell
// time where the timetable writes arrival == departure.
type Rank string

const (
	// RankS marks the largest terminals (Shinjuku, Tokyo, Shibuya, Ikebukuro).
	RankS Rank = "S"
	// RankA marks major stations.
	RankA Rank = "A"
	// RankB is the default for everything else.
	RankB Rank = "B"
)

// ParseRank validates a rank string.
func ParseRank(s string) (Rank, bool) {
	switch Rank(s) {
	case RankS, RankA, RankB:
		return Rank(s), true
	}
	return "", false
}

// defaultDwellSeconds is the assumed stop duration per rank when the station
// carries no explicit dwell_time.
func defaultDwellSeconds(r Rank) int {
	switch r {
	case RankS:
		return 50
	case RankA:
		return 35
	default:
		return 20
	}
}

// StationRank returns the station's current rank and dwell seconds. Unknown
// stations report the default rank.
func (c *Catalog) StationRank(stationID string) (Rank, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.stations[stationID]
	if st == nil {
		return RankB, defaultDwellSeconds(RankB)
	}
	return st.rank, st.dwell
}

// DwellSeconds returns the station's current dwell time.
func (c *Catalog) DwellSeconds(stationID string) int {
	_, dwell := c.StationRank(stationID)
	return dwell
}

// SetStationRank updates a station's rank and dwell time. It is the only
// write accepted on the catalog after load.
func (c *Catalog) SetStationRank(stationID string, rank Rank, dwellSeconds int) error {
	if _, ok := ParseRank(string(rank)); !ok {
		return fmt.Errorf("invalid rank %q", rank)
	}
	if dwellSeconds < 0 {
		return fmt.Errorf("dwell time must be non-negative, got %d", dwellSeconds)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stations[stationID]
	if st == nil {
		return fmt.Errorf("unknown station %q", stationID)
	}
	st.rank = rank
	st.dwell = dwellSeconds
	return nil
}
