package fusion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincast_fusion_fetch_failures_total",
		Help: "Trip update feed fetches that failed or did not decode.",
	})
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincast_fusion_cycles_total",
		Help: "Completed fusion cycles.",
	})
	unmatchedTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincast_fusion_unmatched_trips_total",
		Help: "Feed trips that matched no timetable trip.",
	})
	suspectSchedulesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traincast_fusion_suspect_schedules_total",
		Help: "Delay schedules with offsets clamped into the plausible range.",
	})
	fusedTrips = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "traincast_fusion_fused_trips",
		Help: "Trips carrying realtime delay schedules in the current set.",
	})
)
