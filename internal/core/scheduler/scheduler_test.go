package scheduler

import (
	"errors"
	"testing"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/internal/core/power"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type funcController struct {
	id  string
	run func(sink port.ConstraintSink) error
}

func (c funcController) Id() string {
	return c.id
}

func (c funcController) Run(_ domain.Measurements, sink port.ConstraintSink) error {
	return c.run(sink)
}

func submitting(id string, value int) funcController {
	return funcController{id: id, run: func(sink port.ConstraintSink) error {
		_, err := sink.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.LessOrEquals, value, id)
		return err
	}}
}

func newRegistry() *power.Registry {
	r := power.NewRegistry(power.NewTopology(nil), zap.NewNop())
	inv, _ := domain.NewInverter(domain.InverterId{EssId: "ess0"}, -5000, 5000, -5000, 5000, 5000)
	r.SetInverters([]domain.Inverter{inv})
	return r
}

func ids(ctrls []port.Controller) []string {
	var res []string
	for _, c := range ctrls {
		res = append(res, c.Id())
	}
	return res
}

func TestSchedulerKeepsInsertionOrder(t *testing.T) {
	require := require.New(t)

	s := New(zap.NewNop())
	s.Add(submitting("b", 1000))
	s.Add(submitting("a", 2000))
	s.Add(submitting("c", 3000))
	require.Equal([]string{"b", "a", "c"}, ids(s.Controllers()))

	require.True(s.Remove("a"))
	require.False(s.Remove("a"))
	require.Equal([]string{"b", "c"}, ids(s.Controllers()))
}

func TestSchedulerDuplicateIdOverwrites(t *testing.T) {
	require := require.New(t)

	s := New(zap.NewNop())
	s.Add(submitting("a", 1000))
	s.Add(submitting("b", 2000))
	s.Add(submitting("a", 4000))
	require.Equal([]string{"a", "b"}, ids(s.Controllers()))

	registry := newRegistry()
	require.Empty(s.Execute(domain.Measurements{}, registry))
	snapshot := registry.Snapshot()
	require.Len(snapshot, 2)
	require.Equal(4000, snapshot[0].Value)
}

func TestSchedulerSnapshotIsImmutable(t *testing.T) {
	require := require.New(t)

	s := New(zap.NewNop())
	s.Add(submitting("a", 1000))
	snapshot := s.Controllers()
	s.Add(submitting("b", 1000))
	require.Len(snapshot, 1)
	require.Len(s.Controllers(), 2)
}

func TestSchedulerIsolatesFailingControllers(t *testing.T) {
	require := require.New(t)

	boom := errors.New("boom")
	s := New(zap.NewNop())
	s.Add(funcController{id: "panics", run: func(port.ConstraintSink) error { panic("bad controller") }})
	s.Add(submitting("first", 1000))
	s.Add(funcController{id: "fails", run: func(port.ConstraintSink) error { return boom }})
	s.Add(submitting("loose", 9000000))
	s.Add(funcController{id: "rejected", run: func(sink port.ConstraintSink) error {
		_, err := sink.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.Equals, 9000, "rejected")
		return err
	}})
	s.Add(submitting("last", 2000))

	registry := newRegistry()
	failures := s.Execute(domain.Measurements{}, registry)
	require.Len(failures, 3)

	var ctrlErr *domain.ControllerFailureError
	require.ErrorAs(failures[0], &ctrlErr)
	require.Equal("panics", ctrlErr.ControllerId)
	require.ErrorIs(failures[1], boom)
	require.ErrorIs(failures[1], domain.ErrControllerFailure)
	require.ErrorIs(failures[2], domain.ErrInfeasibleConstraint)

	var owners []string
	for _, c := range registry.Snapshot() {
		owners = append(owners, c.Owner)
	}
	require.Equal([]string{"first", "loose", "last"}, owners)
}

func TestSchedulerClearsRegistry(t *testing.T) {
	require := require.New(t)

	s := New(zap.NewNop())
	s.Add(submitting("a", 1000))
	registry := newRegistry()
	s.Execute(domain.Measurements{}, registry)
	s.Execute(domain.Measurements{}, registry)
	require.Len(registry.Snapshot(), 1)

	s.Remove("a")
	s.Execute(domain.Measurements{}, registry)
	require.Empty(registry.Snapshot())
}
