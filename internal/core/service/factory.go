package service

import (
	"fmt"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/internal/core/power"
	"go.uber.org/zap"
)

// NewController builds a built-in controller from its configuration.
func NewController(cfg config.ControllerConfig, topology power.Topology, logger *zap.Logger) (port.Controller, error) {
	phase, err := domain.ParsePhase(cfg.Phase)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", cfg.Id, err)
	}
	switch cfg.Type {
	case config.ControllerFixActivePower:
		return NewFixActivePower(cfg.Id, cfg.Ess, phase, cfg.Power), nil
	case config.ControllerLimitActivePower:
		return NewLimitActivePower(cfg.Id, cfg.Ess, phase, cfg.MinPower, cfg.MaxPower), nil
	case config.ControllerBalancing:
		return NewBalancing(cfg.Id, cfg.Ess, cfg.Meter, phase, topology), nil
	case config.ControllerForceCharge:
		logic := &ForceChargeLogic{
			StartPowerThreshold:     cfg.StartPowerThreshold,
			MaxRatePowerIncrease:    cfg.MaxRatePowerIncrease,
			PowerImportSafetyMargin: cfg.SafetyMarginPower,
			MaxImportPower:          cfg.MaxImportPower,
			Logger:                  logger.With(zap.String("controller", cfg.Id)),
		}
		return NewForceCharge(cfg.Id, cfg.Ess, cfg.Meter, cfg.TargetSoc, topology, logic), nil
	}
	return nil, fmt.Errorf("controller %s: unknown type %q", cfg.Id, cfg.Type)
}

// RegisterControllers builds every configured controller and registers it in
// configuration order.
func RegisterControllers(engine *EngineContext, cfgs []config.ControllerConfig, logger *zap.Logger) error {
	for _, c := range cfgs {
		ctrl, err := NewController(c, engine.topology, logger)
		if err != nil {
			return err
		}
		engine.Register(ctrl, c.IsEnabled())
	}
	return nil
}

// NewSolverFromConfig maps the solver section of the configuration.
func NewSolverFromConfig(cfg config.SolverConfig, logger *zap.Logger) (*power.Solver, error) {
	strategy, err := power.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return power.NewSolver(power.SolverConfig{
		Strategy:           strategy,
		ApparentPowerEdges: cfg.ApparentPowerEdges,
		MaxIterations:      cfg.MaxIterations,
	}, logger.With(zap.String("component", "solver"))), nil
}

// NewEngineContextFromConfig wires the solver, the topology and every
// configured controller around the given bridges.
func NewEngineContextFromConfig(cfg *config.Config, bridges []port.DeviceBridge, logger *zap.Logger) (*EngineContext, error) {
	solver, err := NewSolverFromConfig(cfg.Solver, logger)
	if err != nil {
		return nil, err
	}
	engine := NewEngineContext(power.NewTopology(cfg.Clusters()), solver, bridges, logger)
	if err := RegisterControllers(engine, cfg.Controllers, logger); err != nil {
		return nil, err
	}
	return engine, nil
}
