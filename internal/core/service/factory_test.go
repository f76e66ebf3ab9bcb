package service

import (
	"testing"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEngineContextFromConfig(t *testing.T) {
	require := require.New(t)

	cfg := util.LoadTestConfig()
	e, err := NewEngineContextFromConfig(&cfg, nil, zap.NewNop())
	require.NoError(err)

	require.Equal([]domain.ControllerInfo{
		{Id: "limit", Kind: "limit_active_power", Enabled: true},
		{Id: "balancing", Kind: "balancing", Enabled: true},
		{Id: "fix", Kind: "fix_active_power", Enabled: false},
		{Id: "charge", Kind: "force_charge", Enabled: false},
	}, e.Controllers())

	cfg.Solver.Strategy = "fastest"
	_, err = NewEngineContextFromConfig(&cfg, nil, zap.NewNop())
	require.Error(err)
}
