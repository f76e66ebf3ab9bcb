package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/frostems/internal/adapter/actor"
	"github.com/berfenger/frostems/internal/adapter/bridge"
	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/actor"
	"github.com/berfenger/frostems/internal/core/cycle"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/service"
	"github.com/berfenger/frostems/internal/server"
	"github.com/berfenger/frostems/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {

	// load and print config
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	instanceId := uuid.New()
	logger.Info("starting frostems", zap.String("version", versioninfo.Short()), zap.String("instance", instanceId.String()))

	// devices and engine
	bridges, err := bridge.NewBridges(cfg, logger)
	if err != nil {
		logger.Error("bridge setup failed", zap.Error(err))
		return
	}
	engineCtx, err := service.NewEngineContextFromConfig(cfg, bridges, logger)
	if err != nil {
		logger.Error("engine setup failed", zap.Error(err))
		return
	}
	engine := cycle.NewEngine(time.Duration(cfg.Cycle.CycleTimeMillis)*time.Millisecond, engineCtx, engineCtx.Bridges(), logger)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, cycleActorProvider(engine, engineCtx, logger), mqttActorProvider(cfg, instanceId, logger), logger)
	})
	pid, err := root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, b := range bridges {
		group.Go(func() error {
			return b.Start(groupCtx)
		})
	}

	apiServer := server.NewServer(*cfg, root, pid)
	group.Go(func() error {
		err := apiServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down gracefully, press Ctrl+C again to force")
		stop()

		// the server has 5 seconds to finish the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}

	// stop cycles before handing the batteries back
	root.StopFuture(pid).Wait()
	for _, b := range bridges {
		if err := b.Close(); err != nil {
			logger.Warn("bridge close failed", zap.String("bridge", b.Id()), zap.Error(err))
		}
	}
	as.Shutdown()
	logger.Info("graceful shutdown complete")
}

func cycleActorProvider(engine *cycle.Engine, engineCtx *service.EngineContext, logger *zap.Logger) actor.CycleActorProvider {
	return func(es *eventstream.EventStream) *actor.CycleActor {
		return actor.NewCycleActor(engine, engineCtx, es, logger)
	}
}

func mqttActorProvider(cfg *config.Config, instanceId uuid.UUID, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, instanceId, es, logger)
	}
}
