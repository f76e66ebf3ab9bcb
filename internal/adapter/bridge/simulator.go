package bridge

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/domain"
)

// soc band at either end where the simulated limits ramp down to zero
const derateSocBand = 10.0

// Site connects simulated storages and meters: every meter sees the house load
// minus what the storages deliver.
type Site struct {
	mu      sync.Mutex
	outputs map[string]int
}

func NewSite() *Site {
	return &Site{outputs: map[string]int{}}
}

func (s *Site) report(essId string, watts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[essId] = watts
}

// Output is the total active power delivered by the storages.
func (s *Site) Output() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, w := range s.outputs {
		total += w
	}
	return total
}

type Clock func() time.Time

// SimulatedEss integrates its state of charge over the setpoints it holds.
type SimulatedEss struct {
	id     string
	phases []domain.Phase
	cfg    config.SimulatorEssConfig
	site   *Site
	now    Clock

	mu        sync.Mutex
	soc       float64
	setpoints map[domain.Phase]domain.Setpoint
	updated   time.Time
}

func NewSimulatedEss(ess config.EssConfig, site *Site, now Clock) *SimulatedEss {
	phases := []domain.Phase{domain.PhaseAll}
	if ess.Kind == config.EssKindAsymmetric {
		phases = domain.ThreePhases
	}
	if now == nil {
		now = time.Now
	}
	return &SimulatedEss{
		id:        ess.Id,
		phases:    phases,
		cfg:       ess.Simulator,
		site:      site,
		now:       now,
		soc:       ess.Simulator.Soc,
		setpoints: map[domain.Phase]domain.Setpoint{},
	}
}

func (sim *SimulatedEss) Open() error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.updated = sim.now()
	return nil
}

func (sim *SimulatedEss) Close() error {
	return nil
}

func (sim *SimulatedEss) Read() (domain.Measurements, error) {
	if sim.cfg.LatencyMillis > 0 {
		time.Sleep(time.Duration(sim.cfg.LatencyMillis) * time.Millisecond)
	}
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.integrate()

	res := domain.Measurements{Timestamp: sim.updated}
	for _, phase := range sim.phases {
		inv := sim.capabilities(phase)
		sp := sim.actual(inv, sim.setpoints[phase])
		res.Inverters = append(res.Inverters, domain.InverterState{
			Inverter:      inv,
			Soc:           sim.soc,
			SocKnown:      true,
			ActivePower:   sp.ActivePower,
			ReactivePower: sp.ReactivePower,
		})
	}
	return res, nil
}

func (sim *SimulatedEss) Write(setpoints map[domain.InverterId]domain.Setpoint) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.integrate()
	for id, sp := range setpoints {
		if id.EssId != sim.id || !sim.hasPhase(id.Phase) {
			return fmt.Errorf("simulator %s: unknown inverter %s", sim.id, id)
		}
		sim.setpoints[id.Phase] = sp
	}
	sim.reportOutput()
	return nil
}

// Soc is the current simulated state of charge.
func (sim *SimulatedEss) Soc() float64 {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.soc
}

func (sim *SimulatedEss) hasPhase(phase domain.Phase) bool {
	for _, p := range sim.phases {
		if p == phase {
			return true
		}
	}
	return false
}

// capabilities derates the charge limit near full and the discharge limit
// near empty.
func (sim *SimulatedEss) capabilities(phase domain.Phase) domain.Inverter {
	discharge := float64(sim.cfg.MaxDischargePower) * math.Min(1, sim.soc/derateSocBand)
	charge := float64(sim.cfg.MaxChargePower) * math.Min(1, (100-sim.soc)/derateSocBand)
	return domain.Inverter{
		Id:               domain.InverterId{EssId: sim.id, Phase: phase},
		MinActivePower:   -int(math.Max(0, charge)),
		MaxActivePower:   int(math.Max(0, discharge)),
		MinReactivePower: -sim.cfg.MaxReactivePower,
		MaxReactivePower: sim.cfg.MaxReactivePower,
		MaxApparentPower: sim.cfg.MaxApparentPower,
	}
}

// actual is what the inverter really delivers for a setpoint.
func (sim *SimulatedEss) actual(inv domain.Inverter, sp domain.Setpoint) domain.Setpoint {
	res := domain.Setpoint{
		ActivePower:   min(max(sp.ActivePower, inv.MinActivePower), inv.MaxActivePower),
		ReactivePower: min(max(sp.ReactivePower, inv.MinReactivePower), inv.MaxReactivePower),
	}
	s := math.Hypot(float64(res.ActivePower), float64(res.ReactivePower))
	if limit := float64(inv.MaxApparentPower); s > limit && s > 0 {
		k := limit / s
		res.ActivePower = int(float64(res.ActivePower) * k)
		res.ReactivePower = int(float64(res.ReactivePower) * k)
	}
	return res
}

func (sim *SimulatedEss) integrate() {
	now := sim.now()
	if sim.updated.IsZero() {
		sim.updated = now
		return
	}
	hours := now.Sub(sim.updated).Hours()
	sim.updated = now
	if hours <= 0 || sim.cfg.CapacityWh <= 0 {
		return
	}
	delivered := 0
	for _, phase := range sim.phases {
		delivered += sim.actual(sim.capabilities(phase), sim.setpoints[phase]).ActivePower
	}
	sim.soc -= float64(delivered) * hours / float64(sim.cfg.CapacityWh) * 100
	sim.soc = math.Min(100, math.Max(0, sim.soc))
	sim.reportOutput()
}

func (sim *SimulatedEss) reportOutput() {
	if sim.site == nil {
		return
	}
	delivered := 0
	for _, phase := range sim.phases {
		delivered += sim.actual(sim.capabilities(phase), sim.setpoints[phase]).ActivePower
	}
	sim.site.report(sim.id, delivered)
}

// SimulatedMeter reports the grid exchange of a Site.
type SimulatedMeter struct {
	id   string
	site *Site

	mu        sync.Mutex
	houseLoad int
}

func NewSimulatedMeter(meter config.MeterConfig, site *Site) *SimulatedMeter {
	return &SimulatedMeter{
		id:        meter.Id,
		site:      site,
		houseLoad: meter.Simulator.ActivePower,
	}
}

func (sim *SimulatedMeter) Open() error {
	return nil
}

func (sim *SimulatedMeter) Close() error {
	return nil
}

func (sim *SimulatedMeter) SetHouseLoad(watts int) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.houseLoad = watts
}

func (sim *SimulatedMeter) Read() (domain.Measurements, error) {
	sim.mu.Lock()
	load := sim.houseLoad
	sim.mu.Unlock()
	grid := load
	if sim.site != nil {
		grid -= sim.site.Output()
	}
	return domain.Measurements{
		Meters:    []domain.MeterState{{Id: sim.id, ActivePower: grid}},
		Timestamp: time.Now(),
	}, nil
}

func (sim *SimulatedMeter) Write(setpoints map[domain.InverterId]domain.Setpoint) error {
	if len(setpoints) > 0 {
		return fmt.Errorf("meter %s: setpoints not supported", sim.id)
	}
	return nil
}
