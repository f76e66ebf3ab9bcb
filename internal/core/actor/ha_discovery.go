package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// fallback range of the power input of a controller whose ess limits are not
// known before the first read
const defaultControllerPowerRange = 10000

type HADiscoveryActor struct {
	config            *config.Config
	behavior          actor.Behavior
	stash             *actorutil.Stash
	cycleActor        *actor.PID
	mqttActor         *actor.PID
	cycleActorHealthy bool
	mqttActorHealthy  bool
	healthyRecv       int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, cycleActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:     config,
		cycleActor: cycleActor,
		mqttActor:  mqttActor,
		behavior:   actor.NewBehavior(),
		stash:      &actorutil.Stash{},
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check cycle and MQTT actor healthy
		state.healthyRecv = 0
		state.cycleActorHealthy = false
		state.mqttActorHealthy = false
		// Cycle Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cycleActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_CYCLE,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_CYCLE:
				state.cycleActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		} else if msg.Id == domain.ACTOR_ID_CYCLE && msg.State != "" {
			// a solver fault does not prevent discovery
			state.cycleActorHealthy = true
		}
		if state.healthyRecv == 2 {

			if state.cycleActorHealthy && state.mqttActorHealthy {
				// Ask cycle actor for the controllers
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cycleActor, domain.GetControllersRequest{}, 2*time.Second), func(err error) any {
					return domain.GetControllersResponse{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					}
				})
				state.behavior.Become(state.WaitingInfoReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Cycle Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@done PublishDiscoveryResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Info("hadiscovery@done published")
		}
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetControllersResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetControllersResponse", zap.Int("controllers", len(msg.Controllers)))

		sensors, switches, inputNumbers := DiscoveryEntities(state.config, msg.Controllers)

		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			ActorRequestMixIn: domain.ActorRequestMixIn{
				ReplyToRef: (*domain.ActorRef)(ctx.Self()),
			},
			Sensors:      sensors,
			Switches:     switches,
			InputNumbers: inputNumbers,
		})
		state.behavior.Become(state.Done)

	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// DiscoveryEntities lists everything announced to Home Assistant: bridge
// diagnostics, one device per physical ess and meter, and the controller
// switches and power inputs.
func DiscoveryEntities(cfg *config.Config, controllers []domain.ControllerInfo) ([]domain.GenericSensor, []domain.GenericSwitch, []domain.GenericInputNumber) {
	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch
	var inputNumbers []domain.GenericInputNumber

	bridgeDevice := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	for _, ess := range cfg.Ess {
		if ess.Kind == config.EssKindCluster {
			continue
		}
		essDevice := domain.EssDevice(bridgeDevice, ess.Id)
		essSensors := domain.EssSensors(essDevice, ess.Id, essInverterIds(ess))
		for i := range essSensors {
			if i > 0 {
				essSensors[i].Device = domain.IdDevice(essDevice)
			}
			sensors = append(sensors, essSensors[i])
		}
	}

	for _, meter := range cfg.Meters {
		meterDevice := domain.MeterDevice(bridgeDevice, meter.Id)
		sensors = append(sensors, domain.MeterSensors(meterDevice, meter.Id)...)
	}

	var ids []string
	for _, c := range controllers {
		ids = append(ids, c.Id)
	}
	switches = append(switches, domain.ControllerSwitches(domain.IdDevice(bridgeDevice), ids)...)

	for _, c := range cfg.Controllers {
		if c.Type != config.ControllerFixActivePower {
			continue
		}
		limit := controllerPowerRange(cfg, c.Ess)
		inputNumbers = append(inputNumbers, domain.ControllerPowerInputNumber(domain.IdDevice(bridgeDevice), c.Id, -limit, limit, c.Power))
	}

	return sensors, switches, inputNumbers
}

func essInverterIds(ess config.EssConfig) []domain.InverterId {
	if ess.Kind == config.EssKindAsymmetric {
		ids := make([]domain.InverterId, 0, len(domain.ThreePhases))
		for _, p := range domain.ThreePhases {
			ids = append(ids, domain.InverterId{EssId: ess.Id, Phase: p})
		}
		return ids
	}
	return []domain.InverterId{{EssId: ess.Id, Phase: domain.PhaseAll}}
}

// controllerPowerRange sums the apparent power of every simulated inverter
// behind essId.
func controllerPowerRange(cfg *config.Config, essId string) int {
	ess, ok := cfg.FindEss(essId)
	if !ok {
		return defaultControllerPowerRange
	}
	members := []string{essId}
	if ess.Kind == config.EssKindCluster {
		members = ess.Members
	}
	total := 0
	for _, id := range members {
		m, ok := cfg.FindEss(id)
		if !ok || m.Driver != config.DriverSimulator {
			return defaultControllerPowerRange
		}
		total += m.Simulator.MaxApparentPower * len(essInverterIds(m))
	}
	if total <= 0 {
		return defaultControllerPowerRange
	}
	return total
}
