// Package heartbeat publishes a periodic liveness message so bus
// consumers and the MQTT side can tell a silent monitor from a dead
// process.
package heartbeat

import (
	"context"
	"time"

	"cellstack-go/bus"
)

// Topic is where beats are published, retained.
func Topic() bus.Topic { return bus.T("bms", "heartbeat") }

// Beat is one liveness message.
type Beat struct {
	Seq uint64 `json:"seq"`
	TS  int64  `json:"ts_ns"`
}

// DefaultInterval is used when Service.Interval is zero.
const DefaultInterval = 5 * time.Second

// Service emits beats until its context is cancelled.
type Service struct {
	B        *bus.Bus
	Interval time.Duration
}

// Run blocks until ctx is done, publishing one beat immediately and
// then one per interval.
func (s *Service) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var seq uint64
	s.publish(&seq)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.publish(&seq)
		}
	}
}

func (s *Service) publish(seq *uint64) {
	*seq++
	s.B.Publish(&bus.Message{
		Topic:    Topic(),
		Payload:  Beat{Seq: *seq, TS: time.Now().UnixNano()},
		Retained: true,
	})
}
