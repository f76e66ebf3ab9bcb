package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, healthy bool) *Server {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)

	master := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetCycleStatsRequest:
			solution := domain.NewSolution()
			solution.Setpoints[domain.InverterId{EssId: "ess0"}] = domain.Setpoint{ActivePower: 1200, ReactivePower: -100}
			ctx.Respond(domain.GetCycleStatsResponse{
				Stats: domain.CycleStats{
					Iteration:   7,
					ActualCycle: 1500 * time.Millisecond,
				},
				Solution: solution,
			})
		}
	}))

	cfg := util.LoadTestConfig()
	return &Server{port: cfg.Port, rootContext: as.Root, masterActor: master}
}

func TestHealthCheckHandler(t *testing.T) {
	require := require.New(t)

	for _, healthy := range []bool{true, false} {
		handler := newTestServer(t, healthy).RegisterRoutes()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
		if healthy {
			require.Equal(http.StatusOK, rec.Code)
			require.Equal("health_check: OK", rec.Body.String())
		} else {
			require.Equal(http.StatusServiceUnavailable, rec.Code)
		}
	}
}

func TestCycleHandler(t *testing.T) {
	require := require.New(t)

	handler := newTestServer(t, true).RegisterRoutes()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cycle", nil))
	require.Equal(http.StatusOK, rec.Code)

	var view cycleView
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(uint64(7), view.Iteration)
	require.Equal(1500.0, view.ActualMillis)
	require.False(view.SolverFault)
	require.Equal([]setpointView{{Inverter: "ess0", ActivePower: 1200, ReactivePower: -100}}, view.Setpoints)
}
