// Package scheduler owns the active controllers and runs them once per cycle.
package scheduler

import (
	"fmt"
	"slices"
	"sync"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"go.uber.org/zap"
)

// Scheduler runs controllers in insertion order. Replacing a controller keeps
// its position.
type Scheduler struct {
	mu          sync.RWMutex
	controllers map[string]port.Controller
	order       []string
	logger      *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		controllers: map[string]port.Controller{},
		logger:      logger.With(zap.String("component", "scheduler")),
	}
}

func (s *Scheduler) Add(controller port.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := controller.Id()
	if _, ok := s.controllers[id]; !ok {
		s.order = append(s.order, id)
	}
	s.controllers[id] = controller
}

// Remove returns false when no controller with that id is active.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controllers[id]; !ok {
		return false
	}
	delete(s.controllers, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return true
}

func (s *Scheduler) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.controllers[id]
	return ok
}

// Controllers returns an ordered copy of the active controllers.
func (s *Scheduler) Controllers() []port.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]port.Controller, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.controllers[id])
	}
	return res
}

// Execute clears the registry and runs every controller once. Failing
// controllers are skipped for this cycle and reported in the result.
func (s *Scheduler) Execute(image domain.Measurements, registry port.ConstraintRegistry) []error {
	registry.Clear()
	var failures []error
	for _, ctrl := range s.Controllers() {
		if err := s.run(ctrl, image, registry); err != nil {
			s.logger.Warn("scheduler@execute controller failed", zap.String("controller", ctrl.Id()), zap.Error(err))
			failures = append(failures, err)
		}
	}
	return failures
}

func (s *Scheduler) run(ctrl port.Controller, image domain.Measurements, sink port.ConstraintSink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.ControllerFailureError{ControllerId: ctrl.Id(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if cerr := ctrl.Run(image, sink); cerr != nil {
		return &domain.ControllerFailureError{ControllerId: ctrl.Id(), Cause: cerr}
	}
	return nil
}
