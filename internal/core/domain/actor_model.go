package domain

import "time"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_CYCLE        = "cycle"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// CycleStats describes one finished iteration of the cycle engine.
type CycleStats struct {
	Iteration    uint64
	Start        time.Time
	RequiredTime time.Duration
	MaxBridge    time.Duration
	ActualCycle  time.Duration
	Err          error
}

type GetCycleStatsRequest struct {
	ActorRequestMixIn
}

type GetCycleStatsResponse struct {
	ActorResponseMixIn
	Stats       CycleStats
	Solution    Solution
	SolverFault bool
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
