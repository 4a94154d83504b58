package segment

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/jp"

	"github.com/nowtrain/traincast/business/data/timetable"
)

// operatingCalendar decides which timetable calendar a service day runs on.
// JR observes the national holiday schedule, so a weekday holiday runs the
// Saturday/holiday timetable.
type operatingCalendar struct {
	calendar *cal.BusinessCalendar
}

func makeOperatingCalendar() *operatingCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(jp.Holidays...)
	return &operatingCalendar{calendar: calendar}
}

// serviceTypeOn returns the service type in effect on the given service day.
func (o *operatingCalendar) serviceTypeOn(serviceDay time.Time) timetable.ServiceType {
	switch serviceDay.Weekday() {
	case time.Saturday, time.Sunday:
		return timetable.ServiceSaturdayHoliday
	}
	_, observed, _ := o.calendar.IsHoliday(serviceDay)
	if observed {
		return timetable.ServiceSaturdayHoliday
	}
	return timetable.ServiceWeekday
}
