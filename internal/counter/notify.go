package counter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/tally-core/internal/infrastructure/logging"
	"github.com/nerrad567/tally-core/internal/infrastructure/mqtt"
)

// EventCounterUpdated is the websocket channel carrying counter changes.
const EventCounterUpdated = "counter.updated"

// MQTTClient is the subset of the MQTT client used for counter state.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
}

// WSHub is the interface for broadcasting websocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// TSDB is the interface for recording counter values as time series.
type TSDB interface {
	WriteCounter(key string, value uint32, source string)
}

// statePayload is the retained body of tally/state/counter/{key}.
type statePayload struct {
	Value     uint32 `json:"value"`
	Source    Source `json:"source"`
	UpdatedAt string `json:"updated_at"`
}

// StatePublisher mirrors every counter to its retained MQTT state topic.
// A deleted counter clears the retained message.
type StatePublisher struct {
	client MQTTClient
	logger *logging.Logger
}

// NewStatePublisher creates a StatePublisher. A nil logger discards output.
func NewStatePublisher(client MQTTClient, logger *logging.Logger) *StatePublisher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StatePublisher{client: client, logger: logger}
}

// CounterChanged implements Notifier.
func (p *StatePublisher) CounterChanged(_ context.Context, change Change) {
	var payload []byte
	if !change.Deleted {
		var err error
		payload, err = json.Marshal(statePayload{
			Value:     change.Value,
			Source:    change.Source,
			UpdatedAt: change.At.Format(time.RFC3339Nano),
		})
		if err != nil {
			p.logger.Error("encoding counter state", "error", err)
			return
		}
	}

	topic := mqtt.Topics{}.CounterState(change.Key.String())
	if err := p.client.PublishRetained(topic, payload); err != nil {
		p.logger.Warn("publishing counter state failed", "topic", topic, "error", err)
	}
}

// Broadcaster forwards changes to websocket clients subscribed to
// counter.updated.
type Broadcaster struct {
	hub WSHub
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(hub WSHub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// CounterChanged implements Notifier.
func (b *Broadcaster) CounterChanged(_ context.Context, change Change) {
	b.hub.Broadcast(EventCounterUpdated, change)
}

// Recorder writes every committed value to the time-series database.
// Deletions are not recorded.
type Recorder struct {
	tsdb TSDB
}

// NewRecorder creates a Recorder.
func NewRecorder(tsdb TSDB) *Recorder {
	return &Recorder{tsdb: tsdb}
}

// CounterChanged implements Notifier.
func (r *Recorder) CounterChanged(_ context.Context, change Change) {
	if change.Deleted {
		return
	}
	r.tsdb.WriteCounter(change.Key.String(), change.Value, string(change.Source))
}
