package influxdb

import (
	"context"
	"fmt"
	"time"
)

// maxHistoryPoints caps the samples returned by one history query.
const maxHistoryPoints = 1000

// CounterSample is one recorded value of a counter.
type CounterSample struct {
	Time   time.Time `json:"time"`
	Value  uint32    `json:"value"`
	Source string    `json:"source"`
}

// CounterHistory returns the values recorded for key over the last since,
// oldest first, at most maxHistoryPoints of them.
func (c *Client) CounterHistory(ctx context.Context, key string, since time.Duration) ([]CounterSample, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if since < time.Second {
		return nil, fmt.Errorf("history range must be at least one second")
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q and r._field == "value" and r.key == %q)
  |> keep(columns: ["_time", "_value", "source"])
  |> group()
  |> sort(columns: ["_time"])
  |> limit(n: %d)`,
		c.cfg.Bucket, int64(since/time.Second), measurementCounter, key, maxHistoryPoints)

	result, err := c.client.QueryAPI(c.cfg.Org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying counter history: %w", err)
	}
	defer result.Close()

	var samples []CounterSample
	for result.Next() {
		rec := result.Record()
		value, ok := rec.Value().(int64)
		if !ok || value < 0 {
			continue
		}
		source, _ := rec.ValueByKey("source").(string) //nolint:errcheck // missing tag reads as ""
		samples = append(samples, CounterSample{
			Time:   rec.Time(),
			Value:  uint32(value), //nolint:gosec // recorded from a uint32
			Source: source,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading counter history: %w", err)
	}
	return samples, nil
}
