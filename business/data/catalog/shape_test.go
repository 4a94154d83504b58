package catalog

import (
	"math"
	"testing"

	"github.com/matryer/is"
)

func makeSubline(coords ...[2]float64) sublineJSON {
	sub := sublineJSON{}
	for _, c := range coords {
		sub.Coords = append(sub.Coords, []float64{c[0], c[1]})
	}
	return sub
}

func Test_stitchSublines_orientationInvariant(t *testing.T) {
	is := is.New(t)

	forward := []sublineJSON{
		makeSubline([2]float64{139.700, 35.690}, [2]float64{139.705, 35.690}, [2]float64{139.710, 35.690}),
		makeSubline([2]float64{139.710, 35.690}, [2]float64{139.715, 35.690}, [2]float64{139.720, 35.690}),
	}
	// Same shape with the second subline stored in the opposite direction.
	reversed := []sublineJSON{
		forward[0],
		makeSubline([2]float64{139.720, 35.690}, [2]float64{139.715, 35.690}, [2]float64{139.710, 35.690}),
	}

	a, err := stitchSublines(forward)
	is.NoErr(err)
	b, err := stitchSublines(reversed)
	is.NoErr(err)

	is.Equal(len(a.Vertices), len(b.Vertices))
	for i := range a.Vertices {
		is.Equal(a.Vertices[i], b.Vertices[i])
	}
}

func Test_stitchSublines_rejectsDegenerateShape(t *testing.T) {
	_, err := stitchSublines([]sublineJSON{makeSubline([2]float64{139.700, 35.690})})
	if err == nil {
		t.Fatal("expected error for single-coordinate shape")
	}
}

func Test_haversineMeters(t *testing.T) {
	got := haversineMeters([2]float64{139.700, 35.690}, [2]float64{139.710, 35.690})
	want := 904.0 // one hundredth of a degree of longitude at this latitude
	if math.Abs(got-want) > 10 {
		t.Errorf("haversineMeters() = %f, want about %f", got, want)
	}
}

func Test_PointBetween(t *testing.T) {
	geometry, err := stitchSublines([]sublineJSON{
		makeSubline([2]float64{139.700, 35.690}, [2]float64{139.705, 35.690}, [2]float64{139.710, 35.690}),
	})
	if err != nil {
		t.Fatalf("stitchSublines() error: %v", err)
	}

	tests := []struct {
		name        string
		from        int
		to          int
		progress    float64
		wantLon     float64
		wantBearing float64
	}{
		{
			name:        "midway ascending",
			from:        0,
			to:          2,
			progress:    0.5,
			wantLon:     139.705,
			wantBearing: 90,
		},
		{
			name:        "midway descending reverses bearing",
			from:        2,
			to:          0,
			progress:    0.5,
			wantLon:     139.705,
			wantBearing: 270,
		},
		{
			name:        "progress clamped at destination",
			from:        0,
			to:          2,
			progress:    1.5,
			wantLon:     139.710,
			wantBearing: 90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lon, lat, bearing := geometry.PointBetween(tt.from, tt.to, tt.progress, false, tt.to > tt.from)
			if math.Abs(lon-tt.wantLon) > 0.0001 {
				t.Errorf("lon = %f, want %f", lon, tt.wantLon)
			}
			if math.Abs(lat-35.690) > 0.0001 {
				t.Errorf("lat = %f, want 35.690", lat)
			}
			if math.Abs(bearing-tt.wantBearing) > 1.5 {
				t.Errorf("bearing = %f, want about %f", bearing, tt.wantBearing)
			}
		})
	}
}

func Test_PointBetween_loopWraparound(t *testing.T) {
	// A small ring near the equator, open between the last and first vertex.
	geometry, err := stitchSublines([]sublineJSON{
		makeSubline([2]float64{0, 0}, [2]float64{0.01, 0}, [2]float64{0.01, 0.01}, [2]float64{0, 0.01}),
	})
	if err != nil {
		t.Fatalf("stitchSublines() error: %v", err)
	}

	// Ascending from the last vertex back to the first walks the closing run
	// instead of traversing the whole polyline backwards.
	lon, lat, _ := geometry.PointBetween(3, 0, 0.5, true, true)
	if math.Abs(lon-0) > 0.0001 || math.Abs(lat-0.005) > 0.0001 {
		t.Errorf("wraparound midpoint = (%f, %f), want (0, 0.005)", lon, lat)
	}

	// Descending from the first vertex to the last walks the closing run the
	// other way.
	lon, lat, _ = geometry.PointBetween(0, 3, 0.5, true, false)
	if math.Abs(lon-0) > 0.0001 || math.Abs(lat-0.005) > 0.0001 {
		t.Errorf("descending wraparound midpoint = (%f, %f), want (0, 0.005)", lon, lat)
	}
}
