package trainapi

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/nowtrain/traincast/business/data/catalog"
	"github.com/nowtrain/traincast/business/data/fusion"
	"github.com/nowtrain/traincast/business/data/position"
	"github.com/nowtrain/traincast/business/data/segment"
	"github.com/nowtrain/traincast/business/data/timetable"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TRAINAPI_TEST : ", log.LstdFlags)
}

// makeTestHandler wires the full service over a small static fixture and
// returns the router ready for httptest requests.
func makeTestHandler(t *testing.T) (http.Handler, *fusion.Publisher) {
	t.Helper()
	cat, materializer, publisher := makeTestComponents(t)
	srv := createServer(testLogger(), cat, materializer, publisher, nil, "https://trains.example", 0)
	return srv.Handler, publisher
}

// makeTestComponents loads the static fixture and builds the service pieces.
func makeTestComponents(t *testing.T) (*catalog.Catalog, *position.Materializer, *fusion.Publisher) {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"railways.json": `[
			{
				"id": "JR-East.TestLine",
				"title": {"ja": "テスト線", "en": "Test Line"},
				"color": "#80C241",
				"stations": ["JR-East.TestLine.A", "JR-East.TestLine.B"],
				"ascending": "Outbound",
				"descending": "Inbound"
			}
		]`,
		"stations.json": `[
			{"id": "JR-East.TestLine.A", "railway": "JR-East.TestLine", "title": {"en": "A"}, "coord": [139.700, 35.690]},
			{"id": "JR-East.TestLine.B", "railway": "JR-East.TestLine", "title": {"en": "B"}, "coord": [139.710, 35.690]}
		]`,
		"coordinates.json": `{
			"railways": [
				{
					"id": "JR-East.TestLine",
					"sublines": [{"coords": [[139.700, 35.690], [139.710, 35.690]]}]
				}
			]
		}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "timetables"), 0o755); err != nil {
		t.Fatalf("creating timetables dir: %v", err)
	}
	timetableJSON := `[
		{
			"id": "JR-East.TestLine.406H.Weekday", "n": "406H", "r": "JR-East.TestLine", "d": "Outbound",
			"tt": [
				{"s": "JR-East.TestLine.A", "d": "09:00"},
				{"s": "JR-East.TestLine.B", "a": "09:05"}
			]
		}
	]`
	if err := os.WriteFile(filepath.Join(dir, "timetables", "testline.json"), []byte(timetableJSON), 0o644); err != nil {
		t.Fatalf("writing timetable fixture: %v", err)
	}

	cat, err := catalog.Load(testLogger(), dir, catalog.DefaultBoundingBox)
	if err != nil {
		t.Fatalf("catalog.Load() error: %v", err)
	}
	store, err := timetable.Load(testLogger(), dir, cat)
	if err != nil {
		t.Fatalf("timetable.Load() error: %v", err)
	}
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}

	publisher := fusion.NewPublisher()
	index := segment.NewIndex(testLogger(), store)
	materializer := position.NewMaterializer(testLogger(), cat, index, publisher, tokyo)
	return cat, materializer, publisher
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func Test_servePositions(t *testing.T) {
	is := is.New(t)
	handler, _ := makeTestHandler(t)

	// A weekday instant mid-run, pinned with the at parameter.
	rec := doRequest(t, handler, http.MethodGet,
		"/positions?line=JR-East.TestLine&at=2026-08-24T09:02:30%2B09:00", "")
	is.Equal(rec.Code, http.StatusOK)
	is.Equal(rec.Header().Get("Access-Control-Allow-Origin"), "https://trains.example")

	var resp struct {
		Positions []position.Position `json:"positions"`
		Line      string              `json:"line"`
		Quality   string              `json:"quality"`
	}
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &resp))
	is.Equal(resp.Line, "JR-East.TestLine")
	is.Equal(resp.Quality, "good")
	is.Equal(len(resp.Positions), 1)
	is.Equal(resp.Positions[0].TrainNumber, "406H")
	is.Equal(string(resp.Positions[0].Status), "running")
}

func Test_servePositions_errors(t *testing.T) {
	handler, _ := makeTestHandler(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "missing line", target: "/positions", want: http.StatusBadRequest},
		{name: "unknown line", target: "/positions?line=JR-East.Nowhere", want: http.StatusNotFound},
		{name: "bad at value", target: "/positions?line=JR-East.TestLine&at=yesterday", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodGet, tt.target, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func Test_serveLines(t *testing.T) {
	is := is.New(t)
	handler, _ := makeTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/lines", "")
	is.Equal(rec.Code, http.StatusOK)

	var lines []lineResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &lines))
	is.Equal(len(lines), 1)
	is.Equal(lines[0].ID, "JR-East.TestLine")
	is.Equal(lines[0].NameEn, "Test Line")
	is.Equal(len(lines[0].Stations), 0)

	rec = doRequest(t, handler, http.MethodGet, "/lines/JR-East.TestLine", "")
	is.Equal(rec.Code, http.StatusOK)
	var line lineResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &line))
	is.Equal(len(line.Stations), 2)

	rec = doRequest(t, handler, http.MethodGet, "/lines/JR-East.Nowhere", "")
	is.Equal(rec.Code, http.StatusNotFound)
}

func Test_serveStations(t *testing.T) {
	is := is.New(t)
	handler, _ := makeTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/stations?line=JR-East.TestLine", "")
	is.Equal(rec.Code, http.StatusOK)

	var stations []stationResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &stations))
	is.Equal(len(stations), 2)
	is.Equal(stations[0].ID, "JR-East.TestLine.A")
	is.Equal(stations[0].Rank, "B")
	is.Equal(stations[0].DwellTime, 20)
}

func Test_serveShape(t *testing.T) {
	is := is.New(t)
	handler, _ := makeTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/shape?line=JR-East.TestLine", "")
	is.Equal(rec.Code, http.StatusOK)

	var feature struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &feature))
	is.Equal(feature.Type, "Feature")
	is.Equal(feature.Geometry.Type, "LineString")
	is.Equal(len(feature.Geometry.Coordinates), 2)
}

func Test_serveRankUpdate(t *testing.T) {
	is := is.New(t)
	handler, _ := makeTestHandler(t)

	rec := doRequest(t, handler, http.MethodPut,
		"/stations/JR-East.TestLine.A/rank", `{"rank": "S", "dwell_time": 45}`)
	is.Equal(rec.Code, http.StatusNoContent)

	// Write-through: the next stations read reflects the edit.
	rec = doRequest(t, handler, http.MethodGet, "/stations?line=JR-East.TestLine", "")
	var stations []stationResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &stations))
	is.Equal(stations[0].Rank, "S")
	is.Equal(stations[0].DwellTime, 45)
}

func Test_serveRankUpdate_errors(t *testing.T) {
	handler, _ := makeTestHandler(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "unknown station", target: "/stations/JR-East.TestLine.Nowhere/rank", body: `{"rank": "A", "dwell_time": 30}`, want: http.StatusNotFound},
		{name: "invalid rank", target: "/stations/JR-East.TestLine.A/rank", body: `{"rank": "Z", "dwell_time": 30}`, want: http.StatusBadRequest},
		{name: "negative dwell", target: "/stations/JR-East.TestLine.A/rank", body: `{"rank": "A", "dwell_time": -1}`, want: http.StatusBadRequest},
		{name: "malformed body", target: "/stations/JR-East.TestLine.A/rank", body: `{`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPut, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func Test_serveHealth(t *testing.T) {
	is := is.New(t)
	handler, publisher := makeTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	is.Equal(rec.Code, http.StatusOK)

	var health healthResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &health))
	is.Equal(health.Status, "ok")

	publisher.Publish(&fusion.FusedTripSet{
		FetchedAt:     time.Now(),
		FeedTimestamp: 1756000000,
		Health:        fusion.HealthDegraded,
		Trips:         map[string]*fusion.DelaySchedule{},
	})
	rec = doRequest(t, handler, http.MethodGet, "/health", "")
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &health))
	is.Equal(health.Status, "degraded")
	is.Equal(health.FeedTimestamp, uint64(1756000000))
}

func Test_RunWebService_shutdown(t *testing.T) {
	cat, materializer, publisher := makeTestComponents(t)

	var wg sync.WaitGroup
	shutdown := make(chan bool)
	done := make(chan struct{})
	go func() {
		RunWebService(testLogger(), &wg, cat, materializer, publisher, nil, "", 0, shutdown)
		close(done)
	}()

	// Give the listener a moment to come up, then signal shutdown. The drain
	// timeout starts at the signal, so the service must return promptly.
	time.Sleep(50 * time.Millisecond)
	shutdown <- true
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("web service did not stop on shutdown signal")
	}
	wg.Wait()
}

func Test_corsPreflight(t *testing.T) {
	is := is.New(t)
	handler, _ := makeTestHandler(t)

	rec := doRequest(t, handler, http.MethodOptions, "/positions", "")
	is.Equal(rec.Code, http.StatusNoContent)
	is.Equal(rec.Header().Get("Access-Control-Allow-Origin"), "https://trains.example")
}
