package fusion

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// fusionCycleSubject is the NATS subject cycle summaries go out on.
const fusionCycleSubject = "traincast.fusion-cycle"

// CycleSummary describes one fusion cycle for downstream consumers.
type CycleSummary struct {
	FetchedAt     time.Time `json:"fetched_at"`
	FeedTimestamp uint64    `json:"feed_timestamp"`
	Matched       int       `json:"matched"`
	Unmatched     int       `json:"unmatched"`
	Canceled      int       `json:"canceled"`
	Suspect       int       `json:"suspect"`
	Health        string    `json:"health"`
}

// SummaryPublisher sends cycle summaries over NATS. A nil connection turns
// publishing off.
type SummaryPublisher struct {
	log            *log.Logger
	natsConnection *nats.Conn
}

// MakeSummaryPublisher creates SummaryPublisher.
func MakeSummaryPublisher(log *log.Logger, natsConnection *nats.Conn) *SummaryPublisher {
	return &SummaryPublisher{
		log:            log,
		natsConnection: natsConnection,
	}
}

// publish sends one CycleSummary over NATS.
func (s *SummaryPublisher) publish(summary *CycleSummary) {
	if s.natsConnection == nil {
		return
	}
	jsonData, err := json.Marshal(summary)
	if err != nil {
		s.log.Printf("failed to marshal CycleSummary in SummaryPublisher.publish, error:%v", err)
		return
	}
	err = s.natsConnection.Publish(fusionCycleSubject, jsonData)
	if err != nil {
		s.log.Printf("failed to send CycleSummary in SummaryPublisher.publish, error:%v", err)
	}
}
