package catalog

import (
	"fmt"
	"math"
)

const (
	// anchorGuardMeters is the maximum distance between a station and its
	// nearest shape vertex before the station is considered off-line.
	anchorGuardMeters = 500.0
	// loopCloseToleranceMeters closes a polyline into a loop when its
	// endpoints are this close.
	loopCloseToleranceMeters = 100.0

	earthRadiusMeters = 6371000.0
)

// Geometry is a stitched line polyline with cumulative arc lengths.
type Geometry struct {
	// Vertices are (lon, lat) pairs in traversal order.
	Vertices [][2]float64
	// Cumulative[i] is the arc length in meters from vertex 0 to vertex i.
	Cumulative []float64
}

// stitchSublines joins the ordered sublines into one continuous polyline.
// A subline may be stored in either direction; it is reversed when its last
// point is closer to the previous subline's end than its first point.
func stitchSublines(sublines []sublineJSON) (*Geometry, error) {
	var merged [][2]float64
	var previousEnd *[2]float64

	for _, sub := range sublines {
		coords := make([][2]float64, 0, len(sub.Coords))
		for _, c := range sub.Coords {
			if len(c) < 2 {
				continue
			}
			coords = append(coords, [2]float64{c[0], c[1]})
		}
		if len(coords) == 0 {
			continue
		}

		if previousEnd != nil {
			first := coords[0]
			last := coords[len(coords)-1]
			distToFirst := squaredDistance(*previousEnd, first)
			distToLast := squaredDistance(*previousEnd, last)
			if distToLast < distToFirst {
				reverse(coords)
			}
		}

		merged = append(merged, coords...)
		end := merged[len(merged)-1]
		previousEnd = &end
	}

	if len(merged) < 2 {
		return nil, fmt.Errorf("shape has %d coordinates, need at least 2", len(merged))
	}

	cumulative := make([]float64, len(merged))
	for i := 1; i < len(merged); i++ {
		cumulative[i] = cumulative[i-1] + haversineMeters(merged[i-1], merged[i])
	}

	return &Geometry{Vertices: merged, Cumulative: cumulative}, nil
}

func reverse(coords [][2]float64) {
	for i, j := 0, len(coords)-1; i < j; i, j = i+1, j-1 {
		coords[i], coords[j] = coords[j], coords[i]
	}
}

func squaredDistance(a, b [2]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}

// haversineMeters returns the great-circle distance between two (lon, lat)
// vertices.
func haversineMeters(a, b [2]float64) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := (b[1] - a[1]) * math.Pi / 180
	dLon := (b[0] - a[0]) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingBetween returns the compass bearing from one coordinate to another,
// for callers interpolating without line geometry.
func BearingBetween(fromLon, fromLat, toLon, toLat float64) float64 {
	return initialBearingDegrees([2]float64{fromLon, fromLat}, [2]float64{toLon, toLat})
}

// initialBearingDegrees returns the compass bearing from a to b in [0, 360).
func initialBearingDegrees(a, b [2]float64) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLon := (b[0] - a[0]) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

func (g *Geometry) closedWithin(meters float64) bool {
	return haversineMeters(g.Vertices[0], g.Vertices[len(g.Vertices)-1]) <= meters
}

// TotalLength is the arc length of the polyline, including the closing run
// back to vertex 0 for loops when wrap is requested by callers.
func (g *Geometry) TotalLength() float64 {
	return g.Cumulative[len(g.Cumulative)-1]
}

// closingLength is the distance from the last vertex back to the first.
func (g *Geometry) closingLength() float64 {
	return haversineMeters(g.Vertices[len(g.Vertices)-1], g.Vertices[0])
}

// nearestVertex returns the index of the vertex closest to (lon, lat) and its
// distance in meters.
func (g *Geometry) nearestVertex(lon, lat float64) (int, float64) {
	target := [2]float64{lon, lat}
	best := 0
	bestSq := math.Inf(1)
	for i, v := range g.Vertices {
		if sq := squaredDistance(v, target); sq < bestSq {
			bestSq = sq
			best = i
		}
	}
	return best, haversineMeters(g.Vertices[best], target)
}

// PointBetween interpolates by arc length between the anchor vertices from and
// to at progress in [0, 1], returning the interpolated (lon, lat) and the
// bearing of the polyline at that point oriented in travel direction.
//
// On loop lines the walk wraps around the polyline end following the line's
// ascending orientation when ascending is true, descending otherwise. On open
// lines the anchor order alone determines travel direction.
func (g *Geometry) PointBetween(from, to int, progress float64, loop, ascending bool) (lon, lat, bearing float64) {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	if !loop || (ascending && to > from) || (!ascending && to < from) {
		// No wrap needed: interpolate directly on the cumulative array. A
		// descending walk is a negative span; bearing comes out reversed.
		target := g.Cumulative[from] + progress*(g.Cumulative[to]-g.Cumulative[from])
		forward := g.Cumulative[to] >= g.Cumulative[from]
		return g.pointAt(target, forward)
	}

	ringLength := g.TotalLength() + g.closingLength()
	if ascending {
		span := g.Cumulative[to] - g.Cumulative[from]
		if span <= 0 {
			span += ringLength
		}
		target := math.Mod(g.Cumulative[from]+progress*span, ringLength)
		return g.pointAt(target, true)
	}
	span := g.Cumulative[from] - g.Cumulative[to]
	if span <= 0 {
		span += ringLength
	}
	target := math.Mod(g.Cumulative[from]-progress*span+ringLength, ringLength)
	return g.pointAt(target, false)
}

// VertexBearing returns the tangent direction at vertex idx, oriented with the
// polyline when ascending is true and against it otherwise.
func (g *Geometry) VertexBearing(idx int, ascending bool) float64 {
	next := idx + 1
	if next >= len(g.Vertices) {
		next = idx
		idx = idx - 1
		if idx < 0 {
			return 0
		}
	}
	bearing := initialBearingDegrees(g.Vertices[idx], g.Vertices[next])
	if !ascending {
		bearing = math.Mod(bearing+180, 360)
	}
	return bearing
}

// pointAt locates the point at arc distance target from vertex 0. target past
// the last vertex walks the closing run of a loop back toward vertex 0.
// forward orients the returned bearing with the polyline direction.
func (g *Geometry) pointAt(target float64, forward bool) (lon, lat, bearing float64) {
	last := len(g.Vertices) - 1
	if target <= 0 {
		v := g.Vertices[0]
		return v[0], v[1], g.segmentBearing(0, forward)
	}
	if target >= g.Cumulative[last] {
		over := target - g.Cumulative[last]
		closing := g.closingLength()
		if closing <= 0 || over <= 0 {
			v := g.Vertices[last]
			return v[0], v[1], g.segmentBearing(last-1, forward)
		}
		// On the closing run of a loop.
		ratio := over / closing
		if ratio > 1 {
			ratio = 1
		}
		a, b := g.Vertices[last], g.Vertices[0]
		lon = a[0] + (b[0]-a[0])*ratio
		lat = a[1] + (b[1]-a[1])*ratio
		bearing = initialBearingDegrees(a, b)
		if !forward {
			bearing = math.Mod(bearing+180, 360)
		}
		return lon, lat, bearing
	}

	// Binary search for the segment containing target.
	lo, hi := 0, last
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if g.Cumulative[mid] <= target {
			lo = mid
		} else {
			hi = mid
		}
	}

	segLen := g.Cumulative[lo+1] - g.Cumulative[lo]
	a, b := g.Vertices[lo], g.Vertices[lo+1]
	if segLen <= 0 {
		return a[0], a[1], g.segmentBearing(lo, forward)
	}
	ratio := (target - g.Cumulative[lo]) / segLen
	lon = a[0] + (b[0]-a[0])*ratio
	lat = a[1] + (b[1]-a[1])*ratio
	return lon, lat, g.segmentBearing(lo, forward)
}

func (g *Geometry) segmentBearing(segIdx int, forward bool) float64 {
	if segIdx < 0 {
		segIdx = 0
	}
	if segIdx >= len(g.Vertices)-1 {
		segIdx = len(g.Vertices) - 2
	}
	bearing := initialBearingDegrees(g.Vertices[segIdx], g.Vertices[segIdx+1])
	if !forward {
		bearing = math.Mod(bearing+180, 360)
	}
	return bearing
}
