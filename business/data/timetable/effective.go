package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// serviceDayStartHour is the hour at which a new service day begins. Trains
// between midnight and 04:00 belong to the previous service day.
const serviceDayStartHour = 4

// SecondsPerDay shifts past-midnight clock values into the previous service
// day's timeline.
const SecondsPerDay = 86400

// ParseClock converts an "HH:MM" timetable value to effective seconds within
// a service day. Hours of 24 and above are legal and simply exceed 86400.
// Hours below 4 belong to the previous service day and are shifted forward a
// day so a trip's times stay monotonic across midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 {
		return 0, fmt.Errorf("malformed hour in clock value %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("malformed minute in clock value %q", s)
	}
	seconds := hour*3600 + minute*60
	if hour < serviceDayStartHour {
		seconds += SecondsPerDay
	}
	return seconds, nil
}

// ServiceDay returns midnight of the service day covering t: the calendar day
// itself from 04:00, the previous day before that.
func ServiceDay(t time.Time) time.Time {
	if t.Hour() < serviceDayStartHour {
		t = t.AddDate(0, 0, -1)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EffectiveSeconds converts a wall-clock instant to seconds on its service
// day's timeline. Instants between midnight and 04:00 land at 86400+.
func EffectiveSeconds(t time.Time) int {
	day := ServiceDay(t)
	return int(t.Sub(day) / time.Second)
}
