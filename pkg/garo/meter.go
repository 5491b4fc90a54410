package garo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/evctl/garo-ctrl-tool/pkg/timemock"
)

// MeterStatus is the normalized reading of the load-balancing energy meter.
type MeterStatus struct {
	Serial string
	Type   string
	// Phase currents in ampere.
	Phase1Current float64
	Phase2Current float64
	Phase3Current float64
	// Power is the total power in watt, rounded to the nearest 10.
	Power int
	// AccEnergyKWh is the accumulated energy in kWh, rounded to 1 decimal.
	AccEnergyKWh float64
}

type meterDoc struct {
	MeterSerial   *json.Number `json:"meterSerial"`
	Type          *string      `json:"type"`
	Phase1Current *float64     `json:"phase1Current"`
	Phase2Current *float64     `json:"phase2Current"`
	Phase3Current *float64     `json:"phase3Current"`
	AccEnergy     *float64     `json:"accEnergy"`
}

// ParseMeterStatus normalizes a raw meterinfo document.
func ParseMeterStatus(data []byte) (*MeterStatus, error) {
	var doc meterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse meterinfo document: %w", err)
	}

	var e docErr
	s := MeterStatus{
		Serial:        need(&e, doc.MeterSerial, "meterSerial").String(),
		Type:          need(&e, doc.Type, "type"),
		Phase1Current: need(&e, doc.Phase1Current, "phase1Current") / currentDivider,
		Phase2Current: need(&e, doc.Phase2Current, "phase2Current") / currentDivider,
		Phase3Current: need(&e, doc.Phase3Current, "phase3Current") / currentDivider,
	}
	accEnergy := need(&e, doc.AccEnergy, "accEnergy")
	if e.err != nil {
		return nil, e.err
	}

	current := s.Phase1Current + s.Phase2Current + s.Phase3Current
	s.Power = int(math.Round(current*lineVoltage/10) * 10)
	s.AccEnergyKWh = math.Round(accEnergy/1000*10) / 10

	return &s, nil
}

// Meter polls the load-balancing energy meter through the charger, on its
// own throttle window independent of the device status polling. Built by
// Client.Init when the device reports metering.
type Meter struct {
	c      *Client
	action string

	mu        sync.RWMutex
	id        string
	status    *MeterStatus
	lastFetch time.Time
}

// Update refreshes the cached meter status, at most once per update
// interval. Calls inside the window return nil without touching the device.
func (m *Meter) Update(ctx context.Context) error {
	m.c.opMu.Lock()
	defer m.c.opMu.Unlock()
	m.mu.RLock()
	last := m.lastFetch
	m.mu.RUnlock()
	if m.c.withinThrottleWindow(last) {
		return nil
	}
	return m.update(ctx)
}

// init fetches the first reading and derives the meter identifier from its
// serial. The caller holds the client's opMu.
func (m *Meter) init(ctx context.Context) error {
	if err := m.update(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.id = "garo_" + m.status.Serial
	m.mu.Unlock()
	return nil
}

func (m *Meter) update(ctx context.Context) error {
	data, err := m.c.fetch(ctx, m.action, true)
	if err != nil {
		return fmt.Errorf("failed to read %v from %v: %w", m.action, m.c.Host, err)
	}
	status, err := ParseMeterStatus(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.status = status
	m.lastFetch = timemock.Now()
	m.mu.Unlock()
	return nil
}

// Status returns the last successfully parsed meter status.
func (m *Meter) Status() *MeterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ID returns the stable identifier derived from the meter serial.
func (m *Meter) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// DisplayName returns the device name suffixed with " meter".
func (m *Meter) DisplayName() string {
	return m.c.DisplayName() + " meter"
}
