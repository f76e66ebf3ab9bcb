package port

import (
	"context"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
)

// ConstraintSink is the submission side of the power constraint registry.
type ConstraintSink interface {
	Submit(essId string, phase domain.Phase, pwr domain.Pwr, relationship domain.Relationship, value int, owner string) (domain.PowerConstraint, error)
	Bounds(essId string, phase domain.Phase, pwr domain.Pwr) (int, int, error)
}

type ConstraintRegistry interface {
	ConstraintSink
	Clear()
}

// Controller is invoked once per cycle with the last committed measurements.
// Its only side effects are submissions to the sink.
type Controller interface {
	Id() string
	Run(image domain.Measurements, sink ConstraintSink) error
}

// Bridge reports how long its device I/O took recently.
type Bridge interface {
	Id() string
	RequiredCycleTime() time.Duration
}

type MeasurementSource interface {
	Snapshot() domain.Measurements
}

type SetpointWriter interface {
	// ApplySetpoints hands the setpoints over without waiting for the device.
	ApplySetpoints(setpoints map[domain.InverterId]domain.Setpoint) error
	EssIds() []string
}

// DeviceBridge is a device driver running its own worker.
type DeviceBridge interface {
	Bridge
	MeasurementSource
	SetpointWriter
	Start(ctx context.Context) error
	Close() error
}
