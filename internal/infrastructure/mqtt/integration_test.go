//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
// Run with:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func connectBroker(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	c, err := Connect(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_CounterCommandRoundtrip(t *testing.T) {
	pub := connectBroker(t, "tally-int-pub")
	sub := connectBroker(t, "tally-int-sub")

	type delivery struct{ key, payload string }
	received := make(chan delivery, 1)
	var once sync.Once

	require.NoError(t, sub.Subscribe(Topics{}.AllCounterCommands(), 1, func(topic string, payload []byte) error {
		key, ok := CounterKeyFromTopic(topic)
		if ok {
			once.Do(func() { received <- delivery{key, string(payload)} })
		}
		return nil
	}))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, pub.Publish(Topics{}.CounterCommand("int-key"), []byte(`{"increment":1}`), 1, false))

	select {
	case d := <-received:
		assert.Equal(t, "int-key", d.key)
		assert.JSONEq(t, `{"increment":1}`, d.payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for command")
	}
}

func TestIntegration_RetainedState(t *testing.T) {
	pub := connectBroker(t, "tally-int-state-pub")
	topic := Topics{}.CounterState("int-retained")
	require.NoError(t, pub.PublishRetained(topic, []byte("42")))

	// A late subscriber still receives the retained value.
	sub := connectBroker(t, "tally-int-state-sub")
	received := make(chan string, 1)
	require.NoError(t, sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- string(payload):
		default:
		}
		return nil
	}))

	select {
	case v := <-received:
		assert.Equal(t, "42", v)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for retained state")
	}

	// Clear the retained message.
	require.NoError(t, pub.PublishRetained(topic, nil))
}
