package fusion

import (
	"log"
	"os"
	"time"

	"github.com/nowtrain/traincast/business/data/segment"
	"github.com/nowtrain/traincast/business/data/timetable"
)

// degradedAfterFailures is how many consecutive fetch failures mark the
// published set degraded. The last good delay schedules stay available.
const degradedAfterFailures = 5

// RunFusionLoop fetches the trip update feed every refresh interval, fuses it
// with the timetable and publishes the result until a shutdown signal
// arrives.
func RunFusionLoop(log *log.Logger,
	feed FeedConfig,
	refresh time.Duration,
	location *time.Location,
	matcher *Matcher,
	index *segment.Index,
	publisher *Publisher,
	summaries *SummaryPublisher,
	shutdownSignal chan os.Signal) error {

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //sleep for zero seconds the first time

	consecutiveFailures := 0
	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			return nil
		case <-sleepChan:
			break
		}

		//set default sleep for next loop in the event of an error after continue statements
		sleep = refresh

		// mark the time we start working
		start := time.Now()
		now := start.In(location)

		snapshot, err := fetchSnapshot(feed)
		if err != nil {
			log.Printf("error attempting to get trip updates. error:%v\n", err)
			fetchFailuresTotal.Inc()
			consecutiveFailures++
			if consecutiveFailures == degradedAfterFailures {
				publishDegraded(log, publisher, refresh)
			}
			continue
		}
		consecutiveFailures = 0

		previous := publisher.Current()
		if previous != nil && previous.Health == HealthOK &&
			snapshot.Timestamp != 0 && snapshot.Timestamp <= previous.FeedTimestamp {
			log.Printf("feed timestamp %d is not newer than %d, keeping previous set",
				snapshot.Timestamp, previous.FeedTimestamp)
			continue
		}

		serviceType := index.ServiceTypeOn(timetable.ServiceDay(now))
		set := fuseSnapshot(matcher, snapshot, serviceType, timetable.EffectiveSeconds(now))
		set.FetchedAt = start
		set.RefreshInterval = refresh
		publisher.Publish(set)

		cyclesTotal.Inc()
		fusedTrips.Set(float64(len(set.Trips)))
		summaries.publish(summarize(set))

		log.Printf("fused %d trips (%d unmatched) from feed timestamp %d\n",
			len(set.Trips), set.Unmatched, set.FeedTimestamp)

		// attempt to run the loop every refresh interval by subtracting the time it took to perform the work
		workTook := time.Now().Sub(start)
		if workTook >= refresh {
			sleep = time.Duration(0)
		} else {
			sleep = refresh - workTook
		}

	}
}

// fuseSnapshot matches every feed trip and builds its delay schedule.
func fuseSnapshot(matcher *Matcher,
	snapshot *feedSnapshot,
	serviceType timetable.ServiceType,
	effectiveSeconds int) *FusedTripSet {

	set := &FusedTripSet{
		FeedTimestamp: snapshot.Timestamp,
		Trips:         make(map[string]*DelaySchedule),
		Health:        HealthOK,
	}
	for i := range snapshot.Trips {
		ft := &snapshot.Trips[i]
		trip := matcher.Match(ft, serviceType, effectiveSeconds)
		if trip == nil {
			set.Unmatched++
			unmatchedTripsTotal.Inc()
			continue
		}
		schedule := buildDelaySchedule(trip, ft)
		if schedule.Suspect {
			suspectSchedulesTotal.Inc()
		}
		set.Trips[trip.ID] = schedule
	}
	return set
}

// publishDegraded republishes the previous set marked degraded, or an empty
// degraded set when nothing was ever fused.
func publishDegraded(log *log.Logger, publisher *Publisher, refresh time.Duration) {
	previous := publisher.Current()
	degraded := &FusedTripSet{
		FetchedAt:       time.Now(),
		Trips:           make(map[string]*DelaySchedule),
		Health:          HealthDegraded,
		RefreshInterval: refresh,
	}
	if previous != nil {
		degraded.FeedTimestamp = previous.FeedTimestamp
		degraded.FetchedAt = previous.FetchedAt
		degraded.Trips = previous.Trips
	}
	log.Printf("marking fused trip set degraded after %d consecutive fetch failures", degradedAfterFailures)
	publisher.Publish(degraded)
}

// summarize builds the NATS cycle summary for a published set.
func summarize(set *FusedTripSet) *CycleSummary {
	summary := &CycleSummary{
		FetchedAt:     set.FetchedAt,
		FeedTimestamp: set.FeedTimestamp,
		Unmatched:     set.Unmatched,
		Health:        set.Health.String(),
	}
	for _, schedule := range set.Trips {
		summary.Matched++
		if schedule.Canceled {
			summary.Canceled++
		}
		if schedule.Suspect {
			summary.Suspect++
		}
	}
	return summary
}
