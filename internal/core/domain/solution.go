package domain

import (
	"slices"
	"time"
)

type Setpoint struct {
	ActivePower   int
	ReactivePower int
}

// Solution maps every inverter to its setpoint for one cycle.
type Solution struct {
	Setpoints map[InverterId]Setpoint
	Direction TargetDirection
	// Disabled lists the inverters forced to zero by the reduction heuristic.
	Disabled []InverterId
}

func NewSolution() Solution {
	return Solution{Setpoints: map[InverterId]Setpoint{}}
}

func (s Solution) Get(id InverterId) Setpoint {
	if s.Setpoints == nil {
		return Setpoint{}
	}
	return s.Setpoints[id]
}

func (s Solution) Ids() []InverterId {
	ids := make([]InverterId, 0, len(s.Setpoints))
	for id := range s.Setpoints {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareInverterIds)
	return ids
}

// ForEss returns the setpoints belonging to the given ess ids.
func (s Solution) ForEss(essIds ...string) map[InverterId]Setpoint {
	res := map[InverterId]Setpoint{}
	for id, sp := range s.Setpoints {
		if slices.Contains(essIds, id.EssId) {
			res[id] = sp
		}
	}
	return res
}

func (s Solution) TotalActivePower() int {
	total := 0
	for _, sp := range s.Setpoints {
		total += sp.ActivePower
	}
	return total
}

func (s Solution) IsEmpty() bool {
	return len(s.Setpoints) == 0
}

type MeterState struct {
	Id string
	// ActivePower is positive when importing from the grid.
	ActivePower int
}

// Measurements is the read-only snapshot a bridge commits between cycles.
type Measurements struct {
	Inverters []InverterState
	Meters    []MeterState
	Timestamp time.Time
}

func (m Measurements) Inverter(id InverterId) (InverterState, bool) {
	for _, inv := range m.Inverters {
		if inv.Id == id {
			return inv, true
		}
	}
	return InverterState{}, false
}

func (m Measurements) Ess(essId string) []InverterState {
	var res []InverterState
	for _, inv := range m.Inverters {
		if inv.Id.EssId == essId {
			res = append(res, inv)
		}
	}
	return res
}

func (m Measurements) Meter(id string) (MeterState, bool) {
	for _, meter := range m.Meters {
		if meter.Id == id {
			return meter, true
		}
	}
	return MeterState{}, false
}

func (m Measurements) Capabilities() []Inverter {
	res := make([]Inverter, len(m.Inverters))
	for i := range m.Inverters {
		res[i] = m.Inverters[i].Inverter
	}
	return res
}

// Merge combines snapshots of several bridges, sorted by id.
func Merge(snapshots ...Measurements) Measurements {
	var res Measurements
	for _, s := range snapshots {
		res.Inverters = append(res.Inverters, s.Inverters...)
		res.Meters = append(res.Meters, s.Meters...)
		if s.Timestamp.After(res.Timestamp) {
			res.Timestamp = s.Timestamp
		}
	}
	slices.SortFunc(res.Inverters, func(a, b InverterState) int {
		return CompareInverterIds(a.Id, b.Id)
	})
	slices.SortFunc(res.Meters, func(a, b MeterState) int {
		if a.Id < b.Id {
			return -1
		} else if a.Id > b.Id {
			return 1
		}
		return 0
	})
	return res
}

func CompareInverterIds(a, b InverterId) int {
	if a.Less(b) {
		return -1
	}
	if b.Less(a) {
		return 1
	}
	return 0
}
