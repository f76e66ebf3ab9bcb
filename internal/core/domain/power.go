package domain

import (
	"fmt"
	"strings"
)

// Phase identifies a whole ESS (ALL) or one phase of a three-phase ESS.
type Phase int

const (
	PhaseAll Phase = iota
	PhaseL1
	PhaseL2
	PhaseL3
)

var ThreePhases = []Phase{PhaseL1, PhaseL2, PhaseL3}

func (p Phase) String() string {
	switch p {
	case PhaseAll:
		return "ALL"
	case PhaseL1:
		return "L1"
	case PhaseL2:
		return "L2"
	case PhaseL3:
		return "L3"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

func (p Phase) Valid() bool {
	return p >= PhaseAll && p <= PhaseL3
}

func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return PhaseAll, nil
	case "L1":
		return PhaseL1, nil
	case "L2":
		return PhaseL2, nil
	case "L3":
		return PhaseL3, nil
	}
	return PhaseAll, fmt.Errorf("unknown phase %q", s)
}

// Pwr is the power type a constraint applies to.
type Pwr int

const (
	PwrActive Pwr = iota
	PwrReactive
)

func (p Pwr) String() string {
	switch p {
	case PwrActive:
		return "ACTIVE"
	case PwrReactive:
		return "REACTIVE"
	default:
		return fmt.Sprintf("Pwr(%d)", int(p))
	}
}

func (p Pwr) Valid() bool {
	return p == PwrActive || p == PwrReactive
}

type Relationship int

const (
	Equals Relationship = iota
	GreaterOrEquals
	LessOrEquals
)

func (r Relationship) String() string {
	switch r {
	case Equals:
		return "EQUALS"
	case GreaterOrEquals:
		return "GREATER_OR_EQUALS"
	case LessOrEquals:
		return "LESS_OR_EQUALS"
	default:
		return fmt.Sprintf("Relationship(%d)", int(r))
	}
}

func (r Relationship) Valid() bool {
	return r >= Equals && r <= LessOrEquals
}

// Allows reports whether value satisfies the relationship against a range [min, max]
// of reachable values.
func (r Relationship) Allows(value, min, max int) bool {
	switch r {
	case Equals:
		return value >= min && value <= max
	case GreaterOrEquals:
		return value <= max
	case LessOrEquals:
		return value >= min
	}
	return false
}

// TargetDirection is derived from the net sign of the requested active power.
// Positive power is discharge.
type TargetDirection int

const (
	KeepZero TargetDirection = iota
	Charge
	Discharge
)

func (d TargetDirection) String() string {
	switch d {
	case KeepZero:
		return "KEEP_ZERO"
	case Charge:
		return "CHARGE"
	case Discharge:
		return "DISCHARGE"
	default:
		return fmt.Sprintf("TargetDirection(%d)", int(d))
	}
}

func TargetDirectionOf(netActivePower int) TargetDirection {
	switch {
	case netActivePower > 0:
		return Discharge
	case netActivePower < 0:
		return Charge
	default:
		return KeepZero
	}
}
