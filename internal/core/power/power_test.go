package power

import (
	"github.com/berfenger/frostems/internal/core/domain"
)

func symmetric(essId string, soc float64, minP, maxP, minQ, maxQ, maxS int) domain.InverterState {
	return domain.InverterState{
		Inverter: domain.Inverter{
			Id:               domain.InverterId{EssId: essId, Phase: domain.PhaseAll},
			MinActivePower:   minP,
			MaxActivePower:   maxP,
			MinReactivePower: minQ,
			MaxReactivePower: maxQ,
			MaxApparentPower: maxS,
		},
		Soc:      soc,
		SocKnown: true,
	}
}

func asymmetric(essId string, soc float64, limit int) []domain.InverterState {
	var res []domain.InverterState
	for _, ph := range domain.ThreePhases {
		res = append(res, domain.InverterState{
			Inverter: domain.Inverter{
				Id:               domain.InverterId{EssId: essId, Phase: ph},
				MinActivePower:   -limit,
				MaxActivePower:   limit,
				MinReactivePower: -limit,
				MaxReactivePower: limit,
				MaxApparentPower: limit,
			},
			Soc:      soc,
			SocKnown: true,
		})
	}
	return res
}

func capabilities(states []domain.InverterState) []domain.Inverter {
	res := make([]domain.Inverter, len(states))
	for i := range states {
		res[i] = states[i].Inverter
	}
	return res
}

func constraint(essId string, phase domain.Phase, pwr domain.Pwr, rel domain.Relationship, value int) domain.PowerConstraint {
	c, err := domain.NewPowerConstraint(essId, phase, pwr, rel, value, "test")
	if err != nil {
		panic(err)
	}
	c.Validated = true
	return c
}

func id(essId string, phase domain.Phase) domain.InverterId {
	return domain.InverterId{EssId: essId, Phase: phase}
}
