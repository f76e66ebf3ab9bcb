package server

import (
	"net/http"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type setpointView struct {
	Inverter      string `json:"inverter"`
	ActivePower   int    `json:"active_power"`
	ReactivePower int    `json:"reactive_power"`
}

type cycleView struct {
	Iteration       uint64         `json:"iteration"`
	RequiredMillis  float64        `json:"required_ms"`
	ActualMillis    float64        `json:"actual_ms"`
	MaxBridgeMillis float64        `json:"max_bridge_ms"`
	SolverFault     bool           `json:"solver_fault"`
	Error           string         `json:"error,omitempty"`
	Setpoints       []setpointView `json:"setpoints"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/cycle", s.CycleHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// CycleHandler reports the last cycle and the setpoints it wrote.
func (s *Server) CycleHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetCycleStatsRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetCycleStatsResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, response.GetResponseError().Error())
	}

	view := cycleView{
		Iteration:       response.Stats.Iteration,
		RequiredMillis:  millis(response.Stats.RequiredTime),
		ActualMillis:    millis(response.Stats.ActualCycle),
		MaxBridgeMillis: millis(response.Stats.MaxBridge),
		SolverFault:     response.SolverFault,
		Setpoints:       []setpointView{},
	}
	if response.Stats.Err != nil {
		view.Error = response.Stats.Err.Error()
	}
	for _, id := range response.Solution.Ids() {
		sp := response.Solution.Setpoints[id]
		view.Setpoints = append(view.Setpoints, setpointView{
			Inverter:      id.String(),
			ActivePower:   sp.ActivePower,
			ReactivePower: sp.ReactivePower,
		})
	}
	return c.JSON(http.StatusOK, view)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
