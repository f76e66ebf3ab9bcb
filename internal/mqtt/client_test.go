package mqtt

import (
	"testing"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsParseCommand(t *testing.T) {

	require := require.New(t)

	topics := NewTopics("loremTopic")

	cmd, err := topics.Parse("loremTopic/switch/my_device/command", []byte("on"))
	require.NoError(err)
	require.Equal("my_device", cmd.DeviceId, "device extract")
	require.Equal("switch", cmd.Command)

	cmd, err = topics.Parse("loremTopic/number/number_name/set", []byte("12.5"))
	require.NoError(err)
	require.Equal("number_name", cmd.DeviceId, "number_id extract")
	require.Equal("number", cmd.Command)
}

func TestTopicsParseCommandFail(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("loremTopic")

	for _, topic := range []string{
		"loremTopic/switch/my_device/state",
		"loremTopic/switch/number_name/set",
		"loremTopic/number/number_name/command",
		"other/loremTopic/switch/my_device/command",
		"loremTopicX/switch/my_device/command",
	} {
		_, err := topics.Parse(topic, []byte("on"))
		assert.ErrorIs(err, ErrNotACommand, topic)
	}
}

func TestTopicsQuoteBase(t *testing.T) {

	require := require.New(t)

	topics := NewTopics("a.b")
	_, err := topics.Parse("axb/switch/x/command", []byte("on"))
	require.ErrorIs(err, ErrNotACommand)

	_, err = topics.Parse("a.b/switch/x/command", []byte("on"))
	require.NoError(err)
	require.Equal("a.b/bridge/state", topics.BridgeStateTopic())
	require.Equal("a.b/#", topics.commandFilter())
}

type testMessage struct {
	topic   string
	payload string
}

func (m testMessage) Duplicate() bool   { return false }
func (m testMessage) Qos() byte         { return 1 }
func (m testMessage) Retained() bool    { return false }
func (m testMessage) Topic() string     { return m.topic }
func (m testMessage) MessageID() uint16 { return 0 }
func (m testMessage) Payload() []byte   { return []byte(m.payload) }
func (m testMessage) Ack()              {}

func testClient() *MQTTClient {
	cfg := &config.Config{MQTT: config.MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "frostems", HADiscoveryTopic: "ha"}}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg, uuid.New()), nil, nil)
}

func TestParseMQTTCommand(t *testing.T) {

	require := require.New(t)

	c := testClient()

	cmd, err := c.ParseMQTTCommand(testMessage{topic: "frostems/switch/charge_enabled/command", payload: "on"})
	require.NoError(err)
	require.Equal("charge_enabled", cmd.DeviceId)
	require.Equal("switch", cmd.Command)
	require.Equal("on", cmd.Payload)

	cmd, err = c.ParseMQTTCommand(testMessage{topic: "frostems/number/fix_power/set", payload: "-1500"})
	require.NoError(err)
	require.Equal("fix_power", cmd.DeviceId)
	require.Equal("number", cmd.Command)

	_, err = c.ParseMQTTCommand(testMessage{topic: "frostems/number/fix_power/set", payload: "lots"})
	require.Error(err)

	_, err = c.ParseMQTTCommand(testMessage{topic: "frostems/sensor/ess0_soc/state", payload: "50"})
	require.Error(err)
}

func TestClientId(t *testing.T) {

	require := require.New(t)

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.Equal("frostems_6ba7b810", ClientId(id))

	cfg := &config.Config{MQTT: config.MQTTConfig{Host: "broker", Port: 1883, BaseTopic: "site"}}
	opts := OptsFromConfig(cfg, id)
	require.Equal("frostems_6ba7b810", opts.ClientID)
	require.Equal("site/bridge/state", opts.WillTopic)
	require.Equal([]byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
}

func TestHADiscoveryMessages(t *testing.T) {

	require := require.New(t)

	c := testClient()
	bridge := domain.BridgeDevice("frostems")

	sensors := domain.BridgeSensors(bridge)
	state := GenericSensorToHADiscoveryMessage(c, sensors[0])
	require.Equal("frostems/bridge/state", state.StateTopic)
	require.Equal(MQTT_PAYLOAD_ONLINE, state.PayloadOn)

	var fault domain.GenericSensor
	for _, s := range sensors {
		if s.Id == domain.SENSOR_ID_SOLVER_FAULT {
			fault = s
		}
	}
	msg := GenericSensorToHADiscoveryMessage(c, fault)
	require.Equal("frostems/binary_sensor/solver_fault/state", msg.StateTopic)
	require.Equal(MQTT_PAYLOAD_ON, msg.PayloadOn)
	require.Equal(MQTT_PAYLOAD_OFF, msg.PayloadOff)
	require.Equal("ha/binary_sensor/"+bridge.Id+"/solver_fault/config", HADiscoverySensorTopic(c.HADiscoveryPrefix(), fault))

	sw := domain.ControllerSwitches(bridge, []string{"charge"})[0]
	swMsg := GenericSwitchToHADiscoveryMessage(c, sw)
	require.Equal("frostems/switch/charge_enabled/command", swMsg.CommandTopic)
	require.Equal("frostems/switch/charge_enabled/state", swMsg.StateTopic)
	require.Equal("ha/switch/"+bridge.Id+"/charge_enabled/config", HADiscoverySwitchTopic(c.HADiscoveryPrefix(), sw))

	num := domain.ControllerPowerInputNumber(bridge, "fix", -5000, 5000, 1000)
	numMsg := GenericInputNumberToHADiscoveryMessage(c, num)
	require.Equal("frostems/number/fix_power/set", numMsg.CommandTopic)
	require.EqualValues(-5000, numMsg.Min)
	require.EqualValues(1000, numMsg.InitialValue)
}
