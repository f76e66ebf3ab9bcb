package actor

import (
	"fmt"

	"github.com/berfenger/frostems/internal/core/cycle"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/events"
	"github.com/berfenger/frostems/internal/core/service"
	. "github.com/berfenger/frostems/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// CycleActor drives the cycle engine from a timer and serializes controller
// commands with the cycles.
type CycleActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	engine      *cycle.Engine
	engineCtx   *service.EngineContext
	eventStream *eventstream.EventStream
	last        domain.CycleStats
	cancelTick  scheduler.CancelFunc

	logger *zap.Logger
}

type cycleTick struct {
}

func NewCycleActor(engine *cycle.Engine, engineCtx *service.EngineContext, eventStream *eventstream.EventStream, logger *zap.Logger) *CycleActor {
	act := &CycleActor{
		engine:      engine,
		engineCtx:   engineCtx,
		eventStream: eventStream,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_CYCLE, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CycleStartingState{
		actor: act,
	})
	return act
}

func (state *CycleActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type CycleStartingState struct {
	ActorState
	actor *CycleActor
}

func (state CycleStartingState) Name() string {
	return "starting"
}

func (state CycleStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("cycle@starting started",
			zap.Duration("cycleTime", state.actor.engine.ConfiguredCycleTime()))

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.publish(events.ControllerSwitchesUpdateEvents(state.actor.engineCtx.Controllers()))
		for _, c := range state.actor.engineCtx.Controllers() {
			if ctrl, ok := state.actor.engineCtx.Controller(c.Id); ok {
				if fix, ok := ctrl.(*service.FixActivePower); ok {
					state.actor.eventStream.Publish(events.ControllerPowerUpdateEvent(c.Id, fix.Power()))
				}
			}
		}

		// first cycle runs right away
		ctx.Send(ctx.Self(), cycleTick{})
		state.actor.Become(CycleRunningState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("cycle@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Running state

type CycleRunningState struct {
	ActorState
	actor *CycleActor
}

func (state CycleRunningState) Name() string {
	return "running"
}

func (state CycleRunningState) Receive(ctx actor.Context) {
	state.actor.receive(ctx, state.Name(), true)
}

// Fault state: cycles keep running on the previous solution until the solver
// recovers.

type CycleFaultState struct {
	ActorState
	actor *CycleActor
}

func (state CycleFaultState) Name() string {
	return "fault"
}

func (state CycleFaultState) Receive(ctx actor.Context) {
	state.actor.receive(ctx, state.Name(), false)
}

func (state *CycleActor) receive(ctx actor.Context, name string, healthy bool) {
	switch msg := ctx.Message().(type) {
	case cycleTick:
		state.iterate(ctx, name)
	case domain.ActorHealthRequest:
		state.logger.Debug("cycle@" + name + ": ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CYCLE,
			Healthy: healthy,
			State:   name,
		})
	case domain.SetControllerEnabledRequest:
		state.logger.Debug("cycle@"+name+": SetControllerEnabledRequest",
			zap.String("controller", msg.Controller()), zap.Bool("enabled", msg.Enabled))
		changed, err := state.engineCtx.SetControllerEnabled(msg.Controller(), msg.Enabled)
		if err != nil {
			state.logger.Warn("cycle@"+name+": SetControllerEnabledRequest error", zap.Error(err))
		} else {
			state.eventStream.Publish(events.ControllerSwitchUpdateEvent(msg.Controller(), msg.Enabled))
		}
		ForRequest(msg).Respond(ctx, domain.SetControllerEnabledResponse{
			ControllerResponseMixIn: domain.ControllerResponseMixIn{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			},
			Changed: changed,
		})
	case domain.SetControllerPowerRequest:
		state.logger.Debug("cycle@"+name+": SetControllerPowerRequest",
			zap.String("controller", msg.Controller()), zap.Int("power", msg.Power))
		power, err := state.engineCtx.SetControllerPower(msg.Controller(), msg.Power)
		if err != nil {
			state.logger.Warn("cycle@"+name+": SetControllerPowerRequest error", zap.Error(err))
		} else {
			state.eventStream.Publish(events.ControllerPowerUpdateEvent(msg.Controller(), power))
		}
		ForRequest(msg).Respond(ctx, domain.SetControllerPowerResponse{
			ControllerResponseMixIn: domain.ControllerResponseMixIn{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			},
			Power: power,
		})
	case domain.GetCycleStatsRequest:
		ForRequest(msg).Respond(ctx, domain.GetCycleStatsResponse{
			Stats:       state.last,
			Solution:    state.engineCtx.Solution(),
			SolverFault: state.engineCtx.SolverFault(),
		})
	case domain.GetControllersRequest:
		ForRequest(msg).Respond(ctx, domain.GetControllersResponse{
			Controllers: state.engineCtx.Controllers(),
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("cycle@"+name+": recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CycleActor) iterate(ctx actor.Context, from string) {
	stats := state.engine.Iterate()
	state.last = stats
	fault := state.engineCtx.SolverFault()

	state.publish(events.CycleStatsToUpdateEvents(stats, fault))
	state.publish(events.MeasurementsToUpdateEvents(state.engineCtx.Image()))
	state.publish(events.SolutionToUpdateEvents(state.engineCtx.Solution()))

	// schedule next tick
	state.cancelTick = state.scheduler.RequestOnce(state.engine.NextDelay(stats), ctx.Self(), cycleTick{})

	switch {
	case fault && from != "fault":
		state.logger.Warn("cycle@" + from + ": solver fault")
		state.Become(CycleFaultState{
			actor: state,
		})
	case !fault && from == "fault":
		state.logger.Info("cycle@fault: solver recovered")
		state.Become(CycleRunningState{
			actor: state,
		})
	}
}

func (state *CycleActor) publish(evs []any) {
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}

func (state *CycleActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
