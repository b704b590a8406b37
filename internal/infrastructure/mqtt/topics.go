package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Tally MQTT hierarchy.
//
// Counter topics use the scheme tally/{kind}/counter/{key}.
const (
	// TopicPrefix is the root of every Tally topic.
	TopicPrefix = "tally"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tally/system"
)

// Topics provides builders for Tally MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.CounterState("e2268234-9d3d-4ab2-9b68-ec6088f8074b")
//	// Returns: "tally/state/counter/e2268234-9d3d-4ab2-9b68-ec6088f8074b"
type Topics struct{}

// CounterState returns the retained topic carrying a counter's current value.
//
// Example: tally/state/counter/{key}
func (Topics) CounterState(key string) string {
	return fmt.Sprintf("%s/state/counter/%s", TopicPrefix, key)
}

// CounterCommand returns the topic on which a counter accepts set and
// increment commands.
//
// Example: tally/command/counter/{key}
func (Topics) CounterCommand(key string) string {
	return fmt.Sprintf("%s/command/counter/%s", TopicPrefix, key)
}

// AllCounterCommands returns a pattern matching every counter command.
//
// Pattern: tally/command/counter/+
func (Topics) AllCounterCommands() string {
	return fmt.Sprintf("%s/command/counter/+", TopicPrefix)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: tally/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllTopics returns a pattern matching all Tally topics.
//
// Pattern: tally/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// CounterKeyFromTopic extracts {key} from a counter state or command topic.
// It reports false for any other topic.
func CounterKeyFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] != "counter" || parts[3] == "" {
		return "", false
	}
	switch parts[1] {
	case "state", "command":
		return parts[3], true
	default:
		return "", false
	}
}
