package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_CYCLE_REQUIRED_TIME   = "cycle_required_time"
	SENSOR_ID_CYCLE_ACTUAL_TIME     = "cycle_actual_time"
	SENSOR_ID_CYCLE_MAX_BRIDGE_TIME = "cycle_max_bridge_time"
	SENSOR_ID_SOLVER_FAULT          = "solver_fault"
	SENSOR_SUFFIX_ACTIVE_SETPOINT   = "_active_power_setpoint"
	SENSOR_SUFFIX_REACTIVE_SETPOINT = "_reactive_power_setpoint"
	SENSOR_SUFFIX_SOC               = "_soc"
	SENSOR_SUFFIX_ACTIVE_POWER      = "_active_power"
	SWITCH_SUFFIX_ENABLED           = "_enabled"
	INPUT_NUMBER_SUFFIX_POWER       = "_power"
	STATE_CLASS_MEASUREMENT         = "measurement"
	DEVICE_CLASS_BATTERY            = "battery"
	DEVICE_CLASS_DURATION           = "duration"
	DEVICE_CLASS_POWER              = "power"
	DEVICE_CLASS_REACTIVE_POWER     = "reactive_power"
	DEVICE_CLASS_CONNECTIVITY       = "connectivity"
	DEVICE_CLASS_PROBLEM            = "problem"
	ENTITY_CLASS_DIAGNOSTIC         = "diagnostic"
	ENTITY_CLASS_CONFIG             = "config"
	SENSOR_TYPE_SENSOR              = "sensor"
	SENSOR_TYPE_BINARY              = "binary_sensor"
	INPUT_NUMBER_MODE_BOX           = "box"
	INPUT_NUMBER_MODE_SLIDER        = "slider"
)

func ActiveSetpointSensorId(id InverterId) string {
	return id.SensorKey() + SENSOR_SUFFIX_ACTIVE_SETPOINT
}

func ReactiveSetpointSensorId(id InverterId) string {
	return id.SensorKey() + SENSOR_SUFFIX_REACTIVE_SETPOINT
}

func SocSensorId(essId string) string {
	return essId + SENSOR_SUFFIX_SOC
}

func MeterPowerSensorId(meterId string) string {
	return meterId + SENSOR_SUFFIX_ACTIVE_POWER
}

func ControllerSwitchId(controllerId string) string {
	return controllerId + SWITCH_SUFFIX_ENABLED
}

func ControllerInputNumberId(controllerId string) string {
	return controllerId + INPUT_NUMBER_SUFFIX_POWER
}

// ControllerFromSwitchId returns the controller behind an enable switch id.
func ControllerFromSwitchId(switchId string) (string, bool) {
	id, ok := strings.CutSuffix(switchId, SWITCH_SUFFIX_ENABLED)
	return id, ok && id != ""
}

func ControllerFromInputNumberId(numberId string) (string, bool) {
	id, ok := strings.CutSuffix(numberId, INPUT_NUMBER_SUFFIX_POWER)
	return id, ok && id != ""
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("frostems_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "FrostEMS",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("FrostEMS %s", md5HashShort(baseTopic)),
	}
}

func EssDevice(bridge Device, essId string) Device {
	return Device{
		Id:        fmt.Sprintf("frostems_ess_%s", md5HashShort(bridge.Id+essId)),
		Model:     "ESS",
		Name:      fmt.Sprintf("ESS %s", essId),
		ViaDevice: bridge.Id,
	}
}

func MeterDevice(bridge Device, meterId string) Device {
	return Device{
		Id:        fmt.Sprintf("frostems_meter_%s", md5HashShort(bridge.Id+meterId)),
		Model:     "Meter",
		Name:      fmt.Sprintf("Meter %s", meterId),
		ViaDevice: bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	sensors = append(sensors, cycleTimeSensor(bridgeDevice, SENSOR_ID_CYCLE_REQUIRED_TIME, "Cycle required time"))
	sensors = append(sensors, cycleTimeSensor(bridgeDevice, SENSOR_ID_CYCLE_ACTUAL_TIME, "Cycle time"))
	sensors = append(sensors, cycleTimeSensor(bridgeDevice, SENSOR_ID_CYCLE_MAX_BRIDGE_TIME, "Slowest bridge time"))

	// Solver fault
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_SOLVER_FAULT,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Solver fault",
		DeviceClass:    DEVICE_CLASS_PROBLEM,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_SOLVER_FAULT),
	})

	return sensors
}

func cycleTimeSensor(device Device, id, name string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UnitOfMeasurement: "ms",
		Icon:              "mdi:timer-outline",
		UniqueId:          uniqueId(device.Id, id),
	}
}

// EssSensors lists the state of charge of an ess and the setpoints of its inverters.
func EssSensors(essDevice Device, essId string, inverters []InverterId) []GenericSensor {

	var sensors []GenericSensor

	socId := SocSensorId(essId)
	sensors = append(sensors, GenericSensor{
		Device:            essDevice,
		Id:                socId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "State of charge",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(essDevice.Id, socId),
	})

	for _, inv := range inverters {
		suffix := ""
		if inv.Phase != PhaseAll {
			suffix = " " + inv.Phase.String()
		}
		activeId := ActiveSetpointSensorId(inv)
		sensors = append(sensors, GenericSensor{
			Device:            essDevice,
			Id:                activeId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Active power setpoint" + suffix,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			UniqueId:          uniqueId(essDevice.Id, activeId),
		})
		reactiveId := ReactiveSetpointSensorId(inv)
		sensors = append(sensors, GenericSensor{
			Device:            essDevice,
			Id:                reactiveId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Reactive power setpoint" + suffix,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_REACTIVE_POWER,
			UnitOfMeasurement: "var",
			EnabledByDefault:  optionalBool(false),
			UniqueId:          uniqueId(essDevice.Id, reactiveId),
		})
	}

	return sensors
}

func MeterSensors(meterDevice Device, meterId string) []GenericSensor {
	id := MeterPowerSensorId(meterId)
	return []GenericSensor{{
		Device:            meterDevice,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:transmission-tower",
		UniqueId:          uniqueId(meterDevice.Id, id),
	}}
}

func ControllerSwitches(bridgeDevice Device, controllerIds []string) []GenericSwitch {

	var switches []GenericSwitch

	for _, ctrl := range controllerIds {
		id := ControllerSwitchId(ctrl)
		switches = append(switches, GenericSwitch{
			Device:   bridgeDevice,
			Id:       id,
			Name:     fmt.Sprintf("Controller %s", ctrl),
			UniqueId: uniqueId(bridgeDevice.Id, id),
			Icon:     "mdi:tune-variant",
		})
	}

	return switches
}

func ControllerPowerInputNumber(bridgeDevice Device, controllerId string, min, max, initial int) GenericInputNumber {
	id := ControllerInputNumberId(controllerId)
	return GenericInputNumber{
		Device:       bridgeDevice,
		Id:           id,
		Name:         fmt.Sprintf("Controller %s power", controllerId),
		UniqueId:     uniqueId(bridgeDevice.Id, id),
		Icon:         "mdi:flash",
		Max:          float64(max),
		Min:          float64(min),
		Step:         100,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: float64(initial),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
