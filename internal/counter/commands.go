package counter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tally-core/internal/infrastructure/logging"
	"github.com/nerrad567/tally-core/internal/infrastructure/mqtt"
)

// commandTimeout bounds how long a command waits for the writer.
const commandTimeout = 5 * time.Second

// Subscriber is the subset of the MQTT client used to receive commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Command is the body of tally/command/counter/{key}. Exactly one field must
// be set.
type Command struct {
	Set       *uint32 `json:"set,omitempty"`
	Increment *uint32 `json:"increment,omitempty"`
}

// CommandListener applies MQTT commands to counters.
type CommandListener struct {
	service *Service
	sub     Subscriber
	qos     byte
	logger  *logging.Logger
}

// NewCommandListener creates a listener. It does nothing until Start.
func NewCommandListener(service *Service, sub Subscriber, qos byte, logger *logging.Logger) *CommandListener {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CommandListener{service: service, sub: sub, qos: qos, logger: logger}
}

// Start subscribes to every counter command topic.
func (l *CommandListener) Start() error {
	topic := mqtt.Topics{}.AllCounterCommands()
	if err := l.sub.Subscribe(topic, l.qos, l.handle); err != nil {
		return fmt.Errorf("subscribing to counter commands: %w", err)
	}
	l.logger.Info("listening for counter commands", "topic", topic)
	return nil
}

// Stop unsubscribes from counter commands.
func (l *CommandListener) Stop() error {
	return l.sub.Unsubscribe(mqtt.Topics{}.AllCounterCommands())
}

// handle is the MQTT message handler. Errors are logged by the MQTT client.
func (l *CommandListener) handle(topic string, payload []byte) error {
	rawKey, ok := mqtt.CounterKeyFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}
	key, err := uuid.Parse(rawKey)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidKey, rawKey)
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if cmd.Set != nil {
		err = l.service.Set(ctx, key, *cmd.Set, SourceMQTT)
	} else {
		_, err = l.service.Increment(ctx, key, *cmd.Increment, SourceMQTT)
	}
	if err != nil {
		return fmt.Errorf("applying command to counter %s: %w", key, err)
	}
	return nil
}

// ParseCommand decodes and validates a command payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if (cmd.Set == nil) == (cmd.Increment == nil) {
		return Command{}, ErrInvalidCommand
	}
	if cmd.Increment != nil && *cmd.Increment == 0 {
		return Command{}, ErrInvalidIncrement
	}
	return cmd, nil
}
