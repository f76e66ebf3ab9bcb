package domain

import "fmt"

// ControllerRequest

type ControllerRequest interface {
	ActorRequest
	ControllerCommand() string
	Controller() string
}

type ControllerRequestMixIn struct {
	ActorRequestMixIn
	ControllerId string
}

func (r ControllerRequestMixIn) Controller() string {
	return r.ControllerId
}

// ControllerResponse

type ControllerResponse interface {
	ActorResponse
	ControllerResponse() string
}

type ControllerResponseMixIn struct {
	ActorResponseMixIn
}

func (r ControllerResponseMixIn) ControllerResponse() string {
	return fmt.Sprintf("%T", r)
}

// Controller commands

type SetControllerEnabledRequest struct {
	ControllerRequestMixIn
	Enabled bool
}

func (r SetControllerEnabledRequest) ControllerCommand() string {
	return "enable"
}

type SetControllerEnabledResponse struct {
	ControllerResponseMixIn
	Changed bool
}

// SetControllerPowerRequest changes the requested power of a fixed power controller.
type SetControllerPowerRequest struct {
	ControllerRequestMixIn
	Power int
}

func (r SetControllerPowerRequest) ControllerCommand() string {
	return "power"
}

type SetControllerPowerResponse struct {
	ControllerResponseMixIn
	Power int
}

type GetControllersRequest struct {
	ActorRequestMixIn
}

type ControllerInfo struct {
	Id      string
	Kind    string
	Enabled bool
}

type GetControllersResponse struct {
	ActorResponseMixIn
	Controllers []ControllerInfo
}

// ensure interface compliance
var _ ControllerRequest = (*SetControllerEnabledRequest)(nil)
var _ ControllerRequest = (*SetControllerPowerRequest)(nil)
