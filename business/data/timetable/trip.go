// Package timetable loads the per-line trip corpus and normalizes its stop
// times onto the service-day timeline.
package timetable

import "strings"

// ServiceType selects which operating calendar a trip runs on.
type ServiceType int

const (
	// ServiceUnknown tags trips whose identifier suffix matched no known
	// calendar. They are never served.
	ServiceUnknown ServiceType = iota
	ServiceWeekday
	ServiceSaturdayHoliday
)

// String - Stringer interface for ServiceType
func (s ServiceType) String() string {
	switch s {
	case ServiceWeekday:
		return "Weekday"
	case ServiceSaturdayHoliday:
		return "SaturdayHoliday"
	}
	return "Unknown"
}

// serviceTypeSuffixes is the fixed table mapping trip-id suffixes to service
// types. Upstream data uses both "Holiday" and "SaturdayHoliday" spellings.
var serviceTypeSuffixes = map[string]ServiceType{
	"Weekday":         ServiceWeekday,
	"SaturdayHoliday": ServiceSaturdayHoliday,
	"Saturday":        ServiceSaturdayHoliday,
	"Holiday":         ServiceSaturdayHoliday,
}

// ServiceTypeFromTripID infers the service type from the trip id's final
// dot-separated component, e.g. "JR-East.Yamanote.400G.Weekday".
func ServiceTypeFromTripID(tripID string) ServiceType {
	idx := strings.LastIndex(tripID, ".")
	if idx < 0 {
		return ServiceUnknown
	}
	if st, ok := serviceTypeSuffixes[tripID[idx+1:]]; ok {
		return st
	}
	return ServiceUnknown
}

// StopTime is one scheduled stop. Times are effective seconds on the service
// day timeline.
type StopTime struct {
	StationID string
	Arrival   int
	Departure int
}

// Trip is one scheduled train run.
type Trip struct {
	// ID is the full timetable identifier including the calendar suffix,
	// e.g. "JR-East.Yamanote.400G.Weekday".
	ID string
	// BaseID is the identifier without the calendar suffix.
	BaseID string
	// Number is the operational train number, e.g. "400G".
	Number string
	LineID string
	// TrainType is the service class, e.g. "JR-East.Local".
	TrainType string
	// Direction is one of the line's two direction names.
	Direction   string
	ServiceType ServiceType
	// Origins and Destinations keep every listed terminal; splitting trips
	// carry several destinations but only the first drives segments.
	Origins      []string
	Destinations []string
	Stops        []StopTime
}

// FirstArrival is the trip's first scheduled arrival.
func (t *Trip) FirstArrival() int {
	return t.Stops[0].Arrival
}

// LastArrival is the trip's final scheduled arrival; segment coverage ends
// here.
func (t *Trip) LastArrival() int {
	return t.Stops[len(t.Stops)-1].Arrival
}
