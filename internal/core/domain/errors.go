package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInfeasibleConstraint = errors.New("infeasible constraint")
	ErrUnsolvable           = errors.New("power distribution unsolvable")
	ErrControllerFailure    = errors.New("controller failure")
	ErrNoInverter           = errors.New("no inverter matches constraint target")
)

type InfeasibleConstraintError struct {
	Constraint PowerConstraint
	Min        int
	Max        int
}

func (e *InfeasibleConstraintError) Error() string {
	return fmt.Sprintf("%s: owner %q requested %s %s %s %d on %s, reachable range is [%d, %d]",
		ErrInfeasibleConstraint, e.Constraint.Owner, e.Constraint.Pwr, e.Constraint.Phase,
		e.Constraint.Relationship, e.Constraint.Value, e.Constraint.EssId, e.Min, e.Max)
}

func (e *InfeasibleConstraintError) Unwrap() error {
	return ErrInfeasibleConstraint
}

type ControllerFailureError struct {
	ControllerId string
	Cause        error
}

func (e *ControllerFailureError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrControllerFailure, e.ControllerId, e.Cause)
}

func (e *ControllerFailureError) Unwrap() []error {
	return []error{ErrControllerFailure, e.Cause}
}
