package mqtt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/berfenger/frostems/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

// Entity kinds as they appear in topics. Switches enable controllers, numbers
// set the power of fixed power controllers.
const (
	kindBridge       = "bridge"
	kindSensor       = "sensor"
	kindBinarySensor = "binary_sensor"
	kindSwitch       = "switch"
	kindNumber       = "number"

	actionSwitch = "command"
	actionNumber = "set"
)

var ErrNotACommand = errors.New("not a controller command")

// Topics lays out every frostems topic under one base topic:
//
//	<base>/bridge/state
//	<base>/<kind>/<entity>/state
//	<base>/switch/<controller>_enabled/command
//	<base>/number/<controller>_power/set
type Topics struct {
	Base    string
	command *regexp.Regexp
}

func NewTopics(base string) Topics {
	return Topics{
		Base: base,
		command: regexp.MustCompile(fmt.Sprintf("^%s/(%s|%s)/([a-zA-Z0-9_]+)/(%s|%s)$",
			regexp.QuoteMeta(base), kindSwitch, kindNumber, actionSwitch, actionNumber)),
	}
}

func (t Topics) BridgeStateTopic() string {
	return fmt.Sprintf("%s/%s/state", t.Base, kindBridge)
}

func (t Topics) SensorStateTopic(sensorId string) string {
	return t.state(kindSensor, sensorId)
}

func (t Topics) BinarySensorStateTopic(sensorId string) string {
	return t.state(kindBinarySensor, sensorId)
}

func (t Topics) SwitchStateTopic(switchId string) string {
	return t.state(kindSwitch, switchId)
}

func (t Topics) SwitchCommandTopic(switchId string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Base, kindSwitch, switchId, actionSwitch)
}

func (t Topics) InputNumberStateTopic(id string) string {
	return t.state(kindNumber, id)
}

func (t Topics) InputNumberCommandTopic(id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Base, kindNumber, id, actionNumber)
}

// commandFilter subscribes to everything below the base topic. Our own state
// messages come back too and are dropped by the parser.
func (t Topics) commandFilter() string {
	return fmt.Sprintf("%s/#", t.Base)
}

func (t Topics) state(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.Base, kind, id)
}

// ParsedMQTTCommand is a switch or number command for one entity. Command is
// the entity kind.
type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Param    string
	Payload  string
}

// Parse extracts a controller command from a topic and its payload. Number
// payloads must parse as a float.
func (t Topics) Parse(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	m := t.command.FindStringSubmatch(topic)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotACommand, topic)
	}
	kind, entity, action := m[1], m[2], m[3]
	if (kind == kindSwitch) != (action == actionSwitch) {
		return nil, fmt.Errorf("%w: %s", ErrNotACommand, topic)
	}
	if kind == kindNumber {
		if _, err := strconv.ParseFloat(string(payload), 64); err != nil {
			return nil, fmt.Errorf("number %s: %w", entity, err)
		}
	}
	return &ParsedMQTTCommand{
		DeviceId: entity,
		Command:  kind,
		Payload:  string(payload),
	}, nil
}

// ClientId derives the broker client id from the process instance id.
func ClientId(instanceId uuid.UUID) string {
	return fmt.Sprintf("frostems_%s", instanceId.String()[0:8])
}

// OptsFromConfig sets the broker, credentials and a retained last will that
// marks the bridge offline.
func OptsFromConfig(cfg *config.Config, instanceId uuid.UUID) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(ClientId(instanceId))
	// the supervisor restarts the actor instead
	opts.SetAutoReconnect(false)
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = NewTopics(cfg.MQTT.BaseTopic).BridgeStateTopic()
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		Topics:         NewTopics(cfg.MQTT.BaseTopic),
		client:         mqtt.NewClient(opts),
		discoveryTopic: cfg.MQTT.HADiscoveryTopic,
	}
}

// MQTTClient wraps paho with continuation style calls, so actors can turn
// the outcome into a message to themselves.
type MQTTClient struct {
	Topics
	client         mqtt.Client
	discoveryTopic string
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return c.Parse(msg.Topic(), msg.Payload())
}

// HADiscoveryPrefix is the topic Home Assistant listens on for discovery messages.
func (c *MQTTClient) HADiscoveryPrefix() string {
	return c.discoveryTopic
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	await(c.client.Connect(), "connect", continuation, timeout)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	await(c.client.Publish(topic, qos, retain, payload), "publish", continuation, timeout)
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	await(c.client.Subscribe(topic, qos, handler), "subscribe", continuation, timeout)
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandFilter(), 1, handler, continuation, timeout)
}

// await reports the token outcome to continuation from its own goroutine.
func await(token mqtt.Token, op string, continuation func(error), timeout time.Duration) {
	go func() {
		if !token.WaitTimeout(timeout) {
			continuation(fmt.Errorf("MQTT %s timed out", op))
			return
		}
		continuation(token.Error())
	}()
}
