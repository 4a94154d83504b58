package timetable

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/nowtrain/traincast/business/data/catalog"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TIMETABLE_TEST : ", log.LstdFlags)
}

func Test_ParseClock(t *testing.T) {
	tests := []struct {
		name    string
		clock   string
		want    int
		wantErr bool
	}{
		{name: "plain morning", clock: "09:30", want: 9*3600 + 30*60},
		{name: "service day start", clock: "04:00", want: 4 * 3600},
		{name: "past midnight", clock: "25:10", want: 25*3600 + 10*60},
		{name: "small hours belong to previous day", clock: "00:12", want: 12*60 + SecondsPerDay},
		{name: "last instant before rollover", clock: "03:59", want: 3*3600 + 59*60 + SecondsPerDay},
		{name: "missing minute", clock: "09", wantErr: true},
		{name: "bad minute", clock: "09:61", wantErr: true},
		{name: "not numeric", clock: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.clock)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseClock(%q) expected error", tt.clock)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) error: %v", tt.clock, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.clock, got, tt.want)
			}
		})
	}
}

func Test_ServiceDayAndEffectiveSeconds(t *testing.T) {
	is := is.New(t)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	is.NoErr(err)

	// 10:30 belongs to the same calendar day.
	at := time.Date(2026, 8, 24, 10, 30, 0, 0, tokyo)
	is.Equal(ServiceDay(at), time.Date(2026, 8, 24, 0, 0, 0, 0, tokyo))
	is.Equal(EffectiveSeconds(at), 10*3600+30*60)

	// 01:15 still belongs to the previous service day.
	at = time.Date(2026, 8, 25, 1, 15, 0, 0, tokyo)
	is.Equal(ServiceDay(at), time.Date(2026, 8, 24, 0, 0, 0, 0, tokyo))
	is.Equal(EffectiveSeconds(at), SecondsPerDay+3600+15*60)

	// 04:00 sharp starts the new service day.
	at = time.Date(2026, 8, 25, 4, 0, 0, 0, tokyo)
	is.Equal(ServiceDay(at), time.Date(2026, 8, 25, 0, 0, 0, 0, tokyo))
	is.Equal(EffectiveSeconds(at), 4*3600)
}

func Test_ServiceTypeFromTripID(t *testing.T) {
	tests := []struct {
		tripID string
		want   ServiceType
	}{
		{tripID: "JR-East.TestLine.400G.Weekday", want: ServiceWeekday},
		{tripID: "JR-East.TestLine.400G.SaturdayHoliday", want: ServiceSaturdayHoliday},
		{tripID: "JR-East.TestLine.400G.Saturday", want: ServiceSaturdayHoliday},
		{tripID: "JR-East.TestLine.400G.Holiday", want: ServiceSaturdayHoliday},
		{tripID: "JR-East.TestLine.400G.Special", want: ServiceUnknown},
		{tripID: "nodots", want: ServiceUnknown},
	}
	for _, tt := range tests {
		if got := ServiceTypeFromTripID(tt.tripID); got != tt.want {
			t.Errorf("ServiceTypeFromTripID(%q) = %v, want %v", tt.tripID, got, tt.want)
		}
	}
}

// writeTimetableNetwork builds the catalog fixture plus a timetable directory
// holding the given trips JSON.
func writeTimetableNetwork(t *testing.T, tripsJSON string) (string, *catalog.Catalog) {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"railways.json": `[
			{
				"id": "JR-East.TestLine",
				"title": {"ja": "テスト線", "en": "Test Line"},
				"stations": ["JR-East.TestLine.A", "JR-East.TestLine.B", "JR-East.TestLine.C"],
				"ascending": "Outbound",
				"descending": "Inbound"
			}
		]`,
		"stations.json": `[
			{"id": "JR-East.TestLine.A", "railway": "JR-East.TestLine", "coord": [139.700, 35.690]},
			{"id": "JR-East.TestLine.B", "railway": "JR-East.TestLine", "coord": [139.710, 35.690]},
			{"id": "JR-East.TestLine.C", "railway": "JR-East.TestLine", "coord": [139.720, 35.690]}
		]`,
		"coordinates.json": `{"railways": []}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}

	if err := os.Mkdir(filepath.Join(dir, "timetables"), 0o755); err != nil {
		t.Fatalf("creating timetables dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "timetables", "testline.json"), []byte(tripsJSON), 0o644); err != nil {
		t.Fatalf("writing timetable fixture: %v", err)
	}

	cat, err := catalog.Load(testLogger(), dir, catalog.DefaultBoundingBox)
	if err != nil {
		t.Fatalf("catalog.Load() error: %v", err)
	}
	return dir, cat
}

func Test_Load(t *testing.T) {
	is := is.New(t)

	dir, cat := writeTimetableNetwork(t, `[
		{
			"id": "JR-East.TestLine.400G.Weekday",
			"n": "400G",
			"r": "JR-East.TestLine",
			"y": "JR-East.Local",
			"d": "Outbound",
			"os": ["JR-East.TestLine.A"],
			"ds": ["JR-East.TestLine.C"],
			"tt": [
				{"s": "JR-East.TestLine.A", "d": "09:00"},
				{"s": "JR-East.TestLine.B", "a": "09:05", "d": "09:06"},
				{"s": "JR-East.TestLine.C", "a": "09:11"}
			]
		}
	]`)

	store, err := Load(testLogger(), dir, cat)
	is.NoErr(err)

	trips := store.Trips("JR-East.TestLine")
	is.Equal(len(trips), 1)

	trip := trips[0]
	is.Equal(trip.Number, "400G")
	is.Equal(trip.BaseID, "JR-East.TestLine.400G")
	is.Equal(trip.ServiceType, ServiceWeekday)
	is.Equal(len(trip.Stops), 3)

	// Missing counterpart clock values are filled in.
	is.Equal(trip.Stops[0].Arrival, trip.Stops[0].Departure)
	is.Equal(trip.Stops[2].Arrival, trip.Stops[2].Departure)
	is.Equal(trip.FirstArrival(), 9*3600)
	is.Equal(trip.LastArrival(), 9*3600+11*60)
}

func Test_Load_dropsMalformedTrips(t *testing.T) {
	tests := []struct {
		name string
		trip string
	}{
		{
			name: "non-monotonic stop times",
			trip: `{
				"id": "JR-East.TestLine.401G.Weekday", "n": "401G", "r": "JR-East.TestLine", "d": "Outbound",
				"tt": [
					{"s": "JR-East.TestLine.A", "d": "09:10"},
					{"s": "JR-East.TestLine.B", "a": "09:05"},
					{"s": "JR-East.TestLine.C", "a": "09:20"}
				]
			}`,
		},
		{
			name: "arrival after departure",
			trip: `{
				"id": "JR-East.TestLine.402G.Weekday", "n": "402G", "r": "JR-East.TestLine", "d": "Outbound",
				"tt": [
					{"s": "JR-East.TestLine.A", "d": "09:00"},
					{"s": "JR-East.TestLine.B", "a": "09:06", "d": "09:05"},
					{"s": "JR-East.TestLine.C", "a": "09:11"}
				]
			}`,
		},
		{
			name: "unknown station",
			trip: `{
				"id": "JR-East.TestLine.403G.Weekday", "n": "403G", "r": "JR-East.TestLine", "d": "Outbound",
				"tt": [
					{"s": "JR-East.TestLine.A", "d": "09:00"},
					{"s": "JR-East.TestLine.Nowhere", "a": "09:05"},
					{"s": "JR-East.TestLine.C", "a": "09:11"}
				]
			}`,
		},
		{
			name: "direction reversal",
			trip: `{
				"id": "JR-East.TestLine.404G.Weekday", "n": "404G", "r": "JR-East.TestLine", "d": "Outbound",
				"tt": [
					{"s": "JR-East.TestLine.B", "d": "09:00"},
					{"s": "JR-East.TestLine.C", "a": "09:05", "d": "09:06"},
					{"s": "JR-East.TestLine.A", "a": "09:15"}
				]
			}`,
		},
		{
			name: "single stop",
			trip: `{
				"id": "JR-East.TestLine.405G.Weekday", "n": "405G", "r": "JR-East.TestLine", "d": "Outbound",
				"tt": [{"s": "JR-East.TestLine.A", "d": "09:00"}]
			}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, cat := writeTimetableNetwork(t, "["+tt.trip+"]")
			store, err := Load(testLogger(), dir, cat)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if got := len(store.Trips("JR-East.TestLine")); got != 0 {
				t.Errorf("malformed trip survived load, got %d trips", got)
			}
		})
	}
}

func Test_Load_expressServiceSkipsStations(t *testing.T) {
	is := is.New(t)

	dir, cat := writeTimetableNetwork(t, `[
		{
			"id": "JR-East.TestLine.500M.Weekday", "n": "500M", "r": "JR-East.TestLine", "d": "Outbound",
			"tt": [
				{"s": "JR-East.TestLine.A", "d": "10:00"},
				{"s": "JR-East.TestLine.C", "a": "10:08"}
			]
		}
	]`)

	store, err := Load(testLogger(), dir, cat)
	is.NoErr(err)
	is.Equal(len(store.Trips("JR-East.TestLine")), 1)
}

func Test_Load_missingTimetables(t *testing.T) {
	_, cat := writeTimetableNetwork(t, "[]")
	if _, err := Load(testLogger(), t.TempDir(), cat); err == nil {
		t.Fatal("expected error when no timetable files exist")
	}
}
