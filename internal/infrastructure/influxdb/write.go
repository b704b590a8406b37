package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tally-core/internal/infrastructure/database"
)

// Measurement names.
const (
	measurementCounter = "counter"
	measurementActor   = "database_actor"
)

// StatsSource is anything that can report database actor statistics.
type StatsSource interface {
	Stats() database.Stats
}

// WriteCounter records a committed counter value. source names the surface
// that caused the change, e.g. "api" or "mqtt".
func (c *Client) WriteCounter(key string, value uint32, source string) {
	c.writePoint(measurementCounter,
		map[string]string{"key": key, "source": source},
		map[string]any{"value": int64(value)},
		time.Now(),
	)
}

// WriteActorStats records one snapshot of the database actor.
func (c *Client) WriteActorStats(s database.Stats) {
	c.writePoint(measurementActor,
		nil,
		map[string]any{
			"readers":           s.Readers,
			"write_queue_depth": s.WriteQueueDepth,
			"read_queue_depth":  s.ReadQueueDepth,
			"queue_capacity":    s.QueueCapacity,
			"writes":            s.Writes,
			"reads":             s.Reads,
			"failures":          s.Failures,
		},
		time.Now(),
	)
}

// ReportStats writes src.Stats() every interval until ctx is done.
func (c *Client) ReportStats(ctx context.Context, interval time.Duration, src StatsSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.WriteActorStats(src.Stats())
		}
	}
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(measurement, tags, fields, time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
