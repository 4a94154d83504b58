// Package trainapi serves the position query surface and the small admin and
// health endpoints over HTTP.
package trainapi

import (
	"context"
	"encoding/json"
	"errors"
	logger "log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	geojson "github.com/paulmach/go.geojson"

	"github.com/jmoiron/sqlx"
	"github.com/nowtrain/traincast/business/data/catalog"
	"github.com/nowtrain/traincast/business/data/fusion"
	"github.com/nowtrain/traincast/business/data/position"
)

// queryTimeout bounds the in-memory work of one position query.
const queryTimeout = 5 * time.Second

// webService holds what the handlers need to respond to requests.
type webService struct {
	log          *logger.Logger
	cat          *catalog.Catalog
	materializer *position.Materializer
	publisher    *fusion.Publisher
	// db persists admin rank edits; nil turns persistence off.
	db *sqlx.DB
}

// positionsResponse wraps one positions query result.
type positionsResponse struct {
	Positions []position.Position `json:"positions"`
	Timestamp string              `json:"timestamp"`
	Line      string              `json:"line"`
	Quality   position.Quality    `json:"quality"`
}

// servePositions answers GET /positions?line=<id>&at=<ISO8601?>.
func (ws *webService) servePositions(w http.ResponseWriter, r *http.Request) {
	lineID := r.FormValue("line")
	if lineID == "" {
		http.Error(w, "line parameter is required", http.StatusBadRequest)
		return
	}

	at := time.Now()
	if raw := r.FormValue("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "at must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		at = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	positions, err := ws.materializer.Positions(ctx, lineID, at)
	if err != nil {
		switch {
		case errors.Is(err, position.ErrLineUnknown):
			http.Error(w, "unknown line", http.StatusNotFound)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "query canceled", http.StatusServiceUnavailable)
		default:
			ws.log.Printf("error materializing positions for line %s: %v", lineID, err)
			http.Error(w, "Error serving request", http.StatusInternalServerError)
		}
		return
	}

	ws.writeJSON(w, &positionsResponse{
		Positions: positions,
		Timestamp: at.Format(time.RFC3339),
		Line:      lineID,
		Quality:   ws.materializer.FeedQuality(time.Now()),
	})
}

// lineResponse is one line's metadata.
type lineResponse struct {
	ID         string   `json:"id"`
	NameJa     string   `json:"name_ja"`
	NameEn     string   `json:"name_en"`
	Color      string   `json:"color"`
	Ascending  string   `json:"ascending"`
	Descending string   `json:"descending"`
	Loop       bool     `json:"loop"`
	Stations   []string `json:"stations,omitempty"`
}

func makeLineResponse(line *catalog.Line, withStations bool) *lineResponse {
	resp := &lineResponse{
		ID:         line.ID,
		NameJa:     line.NameJa,
		NameEn:     line.NameEn,
		Color:      line.Color,
		Ascending:  line.Ascending,
		Descending: line.Descending,
		Loop:       line.Loop,
	}
	if withStations {
		resp.Stations = line.StationIDs
	}
	return resp
}

// serveLines answers GET /lines.
func (ws *webService) serveLines(w http.ResponseWriter, _ *http.Request) {
	lines := ws.cat.Lines()
	resp := make([]*lineResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, makeLineResponse(line, false))
	}
	ws.writeJSON(w, resp)
}

// serveLine answers GET /lines/{id} with the station list included.
func (ws *webService) serveLine(w http.ResponseWriter, r *http.Request) {
	line := ws.cat.Line(mux.Vars(r)["id"])
	if line == nil {
		http.Error(w, "unknown line", http.StatusNotFound)
		return
	}
	ws.writeJSON(w, makeLineResponse(line, true))
}

// stationResponse is one station with its live rank and dwell values.
type stationResponse struct {
	ID        string  `json:"id"`
	NameJa    string  `json:"name_ja"`
	NameEn    string  `json:"name_en"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Rank      string  `json:"rank"`
	DwellTime int     `json:"dwell_time"`
}

// serveStations answers GET /stations?line=<id> in traversal order.
func (ws *webService) serveStations(w http.ResponseWriter, r *http.Request) {
	lineID := r.FormValue("line")
	if lineID == "" {
		http.Error(w, "line parameter is required", http.StatusBadRequest)
		return
	}
	if ws.cat.Line(lineID) == nil {
		http.Error(w, "unknown line", http.StatusNotFound)
		return
	}
	stations := ws.cat.LineStations(lineID)
	resp := make([]*stationResponse, 0, len(stations))
	for _, st := range stations {
		rank, dwell := ws.cat.StationRank(st.ID)
		resp = append(resp, &stationResponse{
			ID:        st.ID,
			NameJa:    st.NameJa,
			NameEn:    st.NameEn,
			Lon:       st.Lon,
			Lat:       st.Lat,
			Rank:      string(rank),
			DwellTime: dwell,
		})
	}
	ws.writeJSON(w, resp)
}

// serveShape answers GET /shape?line=<id> with the stitched polyline as a
// GeoJSON LineString feature.
func (ws *webService) serveShape(w http.ResponseWriter, r *http.Request) {
	lineID := r.FormValue("line")
	if lineID == "" {
		http.Error(w, "line parameter is required", http.StatusBadRequest)
		return
	}
	line := ws.cat.Line(lineID)
	if line == nil {
		http.Error(w, "unknown line", http.StatusNotFound)
		return
	}
	if line.Geometry == nil {
		http.Error(w, "line has no geometry", http.StatusNotFound)
		return
	}

	coords := make([][]float64, 0, len(line.Geometry.Vertices))
	for _, v := range line.Geometry.Vertices {
		coords = append(coords, []float64{v[0], v[1]})
	}
	feature := geojson.NewLineStringFeature(coords)
	feature.SetProperty("line", line.ID)
	feature.SetProperty("color", line.Color)
	ws.writeJSON(w, feature)
}

// rankRequest is the PUT /stations/{id}/rank body.
type rankRequest struct {
	Rank      string `json:"rank"`
	DwellTime int    `json:"dwell_time"`
}

// serveRankUpdate answers PUT /stations/{id}/rank. The edit is write-through:
// it takes effect on the next position query and is persisted when a database
// is configured.
func (ws *webService) serveRankUpdate(w http.ResponseWriter, r *http.Request) {
	stationID := mux.Vars(r)["id"]

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	rank, ok := catalog.ParseRank(req.Rank)
	if !ok {
		http.Error(w, "rank must be S, A or B", http.StatusBadRequest)
		return
	}
	if req.DwellTime < 0 {
		http.Error(w, "dwell_time must be non-negative", http.StatusBadRequest)
		return
	}

	if ws.cat.Station(stationID) == nil {
		http.Error(w, "unknown station", http.StatusNotFound)
		return
	}
	if err := ws.cat.SetStationRank(stationID, rank, req.DwellTime); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ws.log.Printf("station %s rank set to %s with dwell %d", stationID, rank, req.DwellTime)

	if ws.db != nil {
		// Persistence failure does not undo the in-memory edit.
		_ = catalog.RecordStationRank(ws.db, ws.log, stationID, rank, req.DwellTime)
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthResponse reports feed health for load balancer probes.
type healthResponse struct {
	Status        string `json:"status"`
	FeedTimestamp uint64 `json:"feed_timestamp,omitempty"`
	FetchedAt     string `json:"fetched_at,omitempty"`
}

// serveHealth answers GET /health.
func (ws *webService) serveHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: fusion.HealthOK.String()}
	if set := ws.publisher.Current(); set != nil {
		resp.Status = set.Health.String()
		resp.FeedTimestamp = set.FeedTimestamp
		resp.FetchedAt = set.FetchedAt.Format(time.RFC3339)
	}
	ws.writeJSON(w, resp)
}

// writeJSON marshals v to the response with the JSON content type.
func (ws *webService) writeJSON(w http.ResponseWriter, v interface{}) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		ws.log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		ws.log.Printf("Error writing json response: %s", err)
	}
}
