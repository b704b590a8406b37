// Package mqtt connects Tally Core to an MQTT broker.
//
// Tally publishes each counter's value as a retained message on
// tally/state/counter/{key} and accepts commands on
// tally/command/counter/{key}. The broker is optional; when it is disabled
// the rest of the service runs unchanged.
//
// The client wraps paho.mqtt.golang and adds:
//   - Auto-reconnect with subscriptions restored on every connect
//   - A retained online/offline status with a Last Will for crashes
//   - Input validation and bounded waits on every broker round trip
//   - Panic recovery around message handlers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCounterCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        key, _ := mqtt.CounterKeyFromTopic(topic)
//	        return handle(key, payload)
//	    })
package mqtt
