package actor

import (
	"testing"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/util"
	"github.com/berfenger/frostems/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {
	require := require.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	context := as.Root

	es := &eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, es, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp, ok := result.(domain.ActorHealthResponse)
	require.True(ok)
	require.True(resp.Healthy)
	require.Equal(domain.ACTOR_ID_MQTT, resp.Id)

	es.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_CYCLE_ACTUAL_TIME,
		},
		Value: 245,
	})
	es.Publish(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_SOLVER_FAULT,
		},
		Value: false,
	})
	// not a sensor update
	es.Publish("ignored")

	require.Eventually(func() bool {
		res, err := context.RequestFuture(pid, PublishedCountRequest{}, time.Second).Result()
		return err == nil && res.(PublishedCountResponse).Count == 2
	}, 2*time.Second, 20*time.Millisecond)

	discovery := domain.PublishDiscoveryRequest{
		Sensors: domain.BridgeSensors(domain.BridgeDevice(cfg.MQTT.BaseTopic)),
	}
	result, err = context.RequestFuture(pid, discovery, time.Second).Result()
	require.NoError(err)
	_, ok = result.(domain.PublishDiscoveryResponse)
	require.True(ok)

	result, err = context.RequestFuture(pid, PublishedCountRequest{}, time.Second).Result()
	require.NoError(err)
	require.Equal(len(discovery.Sensors), result.(PublishedCountResponse).Discovery)

	context.Stop(pid)
}
