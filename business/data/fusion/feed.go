package fusion

import (
	"fmt"
	"time"

	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/nowtrain/traincast/foundation/httpclient"
)

// FeedConfig identifies the GTFS-RT trip update endpoint and its credential.
type FeedConfig struct {
	URL         string
	APIKeyParam string
	APIKey      string
	Timeout     time.Duration
}

// feedStopTime is one stop time update read from the feed. Delays are
// seconds; a nil pointer means the field was absent.
type feedStopTime struct {
	StopID         string
	StopSequence   uint32
	ArrivalDelay   *int
	DepartureDelay *int
	Skipped        bool
}

// feedTrip is one trip update read from the feed.
type feedTrip struct {
	TripID       string
	RouteID      string
	DirectionID  *uint32
	Canceled     bool
	Updates      []feedStopTime
	SkippedStops int
}

// feedSnapshot holds everything taken from one feed fetch.
type feedSnapshot struct {
	Timestamp uint64
	Trips     []feedTrip
}

// fetchSnapshot pulls the trip update feed and loads it into non-protocol
// buffer objects. Changes to the GTFS-realtime protocol or generated code can
// be handled here and not elsewhere in the program.
func fetchSnapshot(feed FeedConfig) (*feedSnapshot, error) {
	body, err := httpclient.GetWithKey(feed.URL, feed.APIKeyParam, feed.APIKey, feed.Timeout)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

func decodeSnapshot(body []byte) (*feedSnapshot, error) {
	feedMessage := gtfsrtproto.FeedMessage{}
	if err := proto.Unmarshal(body, &feedMessage); err != nil {
		return nil, fmt.Errorf("unable to unmarshal FeedMessage: %w", err)
	}

	snapshot := &feedSnapshot{
		Timestamp: feedMessage.GetHeader().GetTimestamp(),
	}
	for _, entity := range feedMessage.Entity {
		update := entity.TripUpdate
		if update == nil || update.Trip == nil || update.Trip.GetTripId() == "" {
			continue
		}
		trip := feedTrip{
			TripID:      update.Trip.GetTripId(),
			RouteID:     update.Trip.GetRouteId(),
			DirectionID: update.Trip.DirectionId,
		}

		switch update.Trip.GetScheduleRelationship() {
		case gtfsrtproto.TripDescriptor_SCHEDULED:
		case gtfsrtproto.TripDescriptor_CANCELED:
			trip.Canceled = true
			snapshot.Trips = append(snapshot.Trips, trip)
			continue
		default:
			// Added, unscheduled and duplicated trips have no timetable
			// counterpart to fuse with.
			continue
		}

		for _, stu := range update.GetStopTimeUpdate() {
			st := feedStopTime{
				StopID:       stu.GetStopId(),
				StopSequence: stu.GetStopSequence(),
			}
			if stu.GetScheduleRelationship() == gtfsrtproto.TripUpdate_StopTimeUpdate_SKIPPED {
				st.Skipped = true
				trip.SkippedStops++
			}
			if stu.Arrival != nil && stu.Arrival.Delay != nil {
				delay := int(stu.Arrival.GetDelay())
				st.ArrivalDelay = &delay
			}
			if stu.Departure != nil && stu.Departure.Delay != nil {
				delay := int(stu.Departure.GetDelay())
				st.DepartureDelay = &delay
			}
			trip.Updates = append(trip.Updates, st)
		}
		snapshot.Trips = append(snapshot.Trips, trip)
	}
	return snapshot, nil
}
