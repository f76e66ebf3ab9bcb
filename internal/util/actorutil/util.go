package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a switch or number command onto a controller request.
// Commands for unknown entities map to nil.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ControllerRequest, error) {
	switch cmd.Command {
	case "switch":
		id, ok := domain.ControllerFromSwitchId(cmd.DeviceId)
		if !ok {
			return nil, nil
		}
		switch cmd.Payload {
		case mqtt.MQTT_PAYLOAD_ON, mqtt.MQTT_PAYLOAD_OFF:
		default:
			return nil, fmt.Errorf("invalid switch payload %q", cmd.Payload)
		}
		return domain.SetControllerEnabledRequest{
			ControllerRequestMixIn: domain.ControllerRequestMixIn{ControllerId: id},
			Enabled:                cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case "number":
		id, ok := domain.ControllerFromInputNumberId(cmd.DeviceId)
		if !ok {
			return nil, nil
		}
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		return domain.SetControllerPowerRequest{
			ControllerRequestMixIn: domain.ControllerRequestMixIn{ControllerId: id},
			Power:                  int(value),
		}, nil
	}
	return nil, nil
}
