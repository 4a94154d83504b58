// Package fusion matches realtime GTFS-RT trip updates against the scheduled
// timetable and publishes an immutable set of per-trip delay schedules.
package fusion

import (
	"sync/atomic"
	"time"

	"github.com/nowtrain/traincast/business/data/timetable"
)

// Health reports how trustworthy the current fused set is.
type Health int

const (
	// HealthOK means the feed is being fetched and fused normally.
	HealthOK Health = iota
	// HealthDegraded means several consecutive fetches failed; the set still
	// carries the last good delay schedules.
	HealthDegraded
)

// String - Stringer interface for Health
func (h Health) String() string {
	if h == HealthDegraded {
		return "degraded"
	}
	return "ok"
}

// DelaySchedule carries one matched trip's realtime adjustment: a delay
// offset in seconds for every scheduled stop.
type DelaySchedule struct {
	Trip       *timetable.Trip
	FeedTripID string
	// Offsets holds one delay per stop, forward filled between the stops the
	// feed mentioned.
	Offsets []int
	// Skipped marks stops the feed reported as passed without stopping.
	Skipped []bool
	// Suspect is set when an offset had to be clamped into the plausible
	// range. Positions from a suspect schedule are tagged so downstream
	// consumers can discount them.
	Suspect bool
	// Canceled marks trips the feed withdrew for the day.
	Canceled bool
}

// AdjustedArrival is the stop's scheduled arrival plus its delay offset.
func (d *DelaySchedule) AdjustedArrival(i int) int {
	return d.Trip.Stops[i].Arrival + d.Offsets[i]
}

// AdjustedDeparture is the stop's scheduled departure plus its delay offset.
// A skipped stop departs the moment it arrives.
func (d *DelaySchedule) AdjustedDeparture(i int) int {
	if d.Skipped[i] {
		return d.AdjustedArrival(i)
	}
	return d.Trip.Stops[i].Departure + d.Offsets[i]
}

// FusedTripSet is one immutable fusion result. Readers get the whole set from
// the Publisher and never see a partially updated cycle.
type FusedTripSet struct {
	FetchedAt     time.Time
	FeedTimestamp uint64
	// Trips is keyed by the timetable trip ID.
	Trips           map[string]*DelaySchedule
	Health          Health
	RefreshInterval time.Duration
	Unmatched       int
}

// Schedule returns the delay schedule fused for a trip, or nil when the feed
// said nothing about it.
func (f *FusedTripSet) Schedule(tripID string) *DelaySchedule {
	if f == nil {
		return nil
	}
	return f.Trips[tripID]
}

// Stale reports whether the set is older than two refresh intervals, the
// point at which positions derived from it are tagged stale.
func (f *FusedTripSet) Stale(now time.Time) bool {
	if f == nil || f.RefreshInterval <= 0 {
		return false
	}
	return now.Sub(f.FetchedAt) > 2*f.RefreshInterval
}

// Publisher hands complete FusedTripSets from the fusion loop to concurrent
// readers with a single atomic swap.
type Publisher struct {
	value atomic.Value
}

// NewPublisher builds an empty Publisher. Current returns nil until the first
// cycle publishes.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish replaces the current set.
func (p *Publisher) Publish(set *FusedTripSet) {
	p.value.Store(set)
}

// Current returns the latest published set, or nil before the first cycle.
func (p *Publisher) Current() *FusedTripSet {
	set, _ := p.value.Load().(*FusedTripSet)
	return set
}
