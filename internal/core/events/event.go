package events

import (
	"time"

	. "github.com/berfenger/frostems/internal/core/domain"
)

func CycleStatsToUpdateEvents(stats CycleStats, solverFault bool) []any {
	var events []any

	// Cycle timing
	events = append(events, durationEvent(SENSOR_ID_CYCLE_REQUIRED_TIME, stats.RequiredTime))
	events = append(events, durationEvent(SENSOR_ID_CYCLE_ACTUAL_TIME, stats.ActualCycle))
	events = append(events, durationEvent(SENSOR_ID_CYCLE_MAX_BRIDGE_TIME, stats.MaxBridge))
	// Solver fault
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SOLVER_FAULT,
		},
		Value: solverFault,
	})

	return events
}

func durationEvent(id string, d time.Duration) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    float64(d.Microseconds()) / 1000,
		Decimals: 1,
	}
}

// SolutionToUpdateEvents emits both setpoints of every inverter, ordered by id.
func SolutionToUpdateEvents(solution Solution) []any {
	var events []any
	for _, id := range solution.Ids() {
		sp := solution.Setpoints[id]
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: ActiveSetpointSensorId(id),
			},
			Value: float64(sp.ActivePower),
		})
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: ReactiveSetpointSensorId(id),
			},
			Value: float64(sp.ReactivePower),
		})
	}
	return events
}

// MeasurementsToUpdateEvents emits the state of charge of every ess and the
// power of every meter. The SoC of an asymmetric ess is the mean of its phases.
func MeasurementsToUpdateEvents(image Measurements) []any {
	var events []any

	var essIds []string
	soc := map[string][]float64{}
	for _, inv := range image.Inverters {
		if _, ok := soc[inv.Id.EssId]; !ok {
			essIds = append(essIds, inv.Id.EssId)
			soc[inv.Id.EssId] = nil
		}
		if inv.SocKnown {
			soc[inv.Id.EssId] = append(soc[inv.Id.EssId], inv.Soc)
		}
	}
	for _, essId := range essIds {
		values := soc[essId]
		if len(values) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SocSensorId(essId),
			},
			Value:    sum / float64(len(values)),
			Decimals: 1,
		})
	}

	for _, meter := range image.Meters {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: MeterPowerSensorId(meter.Id),
			},
			Value: float64(meter.ActivePower),
		})
	}

	return events
}

func ControllerSwitchesUpdateEvents(controllers []ControllerInfo) []any {
	var events []any
	for _, c := range controllers {
		events = append(events, ControllerSwitchUpdateEvent(c.Id, c.Enabled))
	}
	return events
}

func ControllerSwitchUpdateEvent(controllerId string, enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ControllerSwitchId(controllerId),
		},
		Value: enabled,
	}
}

func ControllerPowerUpdateEvent(controllerId string, power int) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: ControllerInputNumberId(controllerId),
		},
		Value: float64(power),
	}
}
