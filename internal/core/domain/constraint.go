package domain

import (
	"errors"
	"fmt"
)

// PowerConstraint is a single request from a controller. Constraints live for
// one cycle only.
type PowerConstraint struct {
	EssId        string
	Phase        Phase
	Pwr          Pwr
	Relationship Relationship
	Value        int
	Owner        string
	Validated    bool
}

func NewPowerConstraint(essId string, phase Phase, pwr Pwr, relationship Relationship, value int, owner string) (PowerConstraint, error) {
	c := PowerConstraint{
		EssId:        essId,
		Phase:        phase,
		Pwr:          pwr,
		Relationship: relationship,
		Value:        value,
		Owner:        owner,
	}
	switch {
	case essId == "":
		return c, errors.New("constraint: empty ess id")
	case !phase.Valid():
		return c, fmt.Errorf("constraint: invalid phase %d", int(phase))
	case !pwr.Valid():
		return c, fmt.Errorf("constraint: invalid power type %d", int(pwr))
	case !relationship.Valid():
		return c, fmt.Errorf("constraint: invalid relationship %d", int(relationship))
	}
	return c, nil
}

func (c PowerConstraint) String() string {
	return fmt.Sprintf("[%s] %s %s %s %s %d", c.Owner, c.EssId, c.Phase, c.Pwr, c.Relationship, c.Value)
}
