package catalog

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// stationRankRow mirrors the station_rank table.
type stationRankRow struct {
	StationID string `db:"station_id"`
	Rank      string `db:"rank"`
	DwellTime int    `db:"dwell_time"`
}

// LoadRankOverrides applies persisted rank/dwell overrides on top of the
// defaults from stations.json. Rows referencing unknown stations are logged
// and skipped.
func (c *Catalog) LoadRankOverrides(db *sqlx.DB) error {
	var rows []stationRankRow
	err := db.Select(&rows, `select station_id, rank, dwell_time from station_rank`)
	if err != nil {
		return err
	}
	applied := 0
	for _, row := range rows {
		rank, ok := ParseRank(row.Rank)
		if !ok || row.DwellTime < 0 {
			c.log.Printf("skipping station_rank row for %s: rank=%q dwell=%d", row.StationID, row.Rank, row.DwellTime)
			continue
		}
		if err = c.SetStationRank(row.StationID, rank, row.DwellTime); err != nil {
			c.log.Printf("skipping station_rank row: %v", err)
			continue
		}
		applied++
	}
	c.log.Printf("applied %d station rank overrides", applied)
	return nil
}

// RecordStationRank persists one rank/dwell value, inserting or updating the
// station's row.
func RecordStationRank(db *sqlx.DB, log *log.Logger, stationID string, rank Rank, dwellSeconds int) error {
	statementString := "insert into station_rank ( " +
		"station_id, " +
		"rank, " +
		"dwell_time) " +
		"values (" +
		":station_id, " +
		":rank, " +
		":dwell_time) " +
		"on conflict (station_id) do update set " +
		"rank = excluded.rank, " +
		"dwell_time = excluded.dwell_time"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExec(statementString, stationRankRow{
		StationID: stationID,
		Rank:      string(rank),
		DwellTime: dwellSeconds,
	})
	if err != nil {
		log.Printf("error persisting rank for station %s: %v", stationID, err)
	}
	return err
}
