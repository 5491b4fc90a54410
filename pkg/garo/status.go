package garo

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	// maxSanePower is the highest plausible charging power in watt. The
	// device reports garbage above this while faulting, mapped to 0.
	maxSanePower = 32000
	// maxEnergyDrop is the largest backward jump of the accumulated energy
	// counter that is accepted as real. Bigger drops are transient glitches
	// and the previous corrected value is retained.
	maxEnergyDrop = 500000
)

// Status is the full device status, replaced wholesale on every successful
// poll.
type Status struct {
	Mode                Mode
	Temperature         float64
	CurrentLimit        float64
	FactoryCurrentLimit float64
	SwitchCurrentLimit  float64
	PowerMode           string
	Main                ChargerStatus
	// Twin is set only for dual-charger devices.
	Twin *ChargerStatus
}

// ChargerStatus is the normalized status of a single charging connector.
type ChargerStatus struct {
	Connector    ConnectorState
	ChargeStatus string
	NrOfPhases   int
	// ChargingCurrent is ampere, never negative.
	ChargingCurrent float64
	PilotLevel      float64
	MinCurrentLimit float64
	// ChargingPower is watt, clamped to [0, maxSanePower].
	ChargingPower float64
	// AccEnergy is the accumulated energy counter in Wh, glitch corrected
	// against the previous poll.
	AccEnergy         float64
	SessionEnergy     float64
	SessionStartValue float64
	SessionStartTime  float64
	SessionDuration   time.Duration
	LoadBalanced      bool
	Phase             int
	CableLockMode     int
	DipSwitchSettings int
}

// AccEnergyKWh returns the accumulated energy counter in kWh.
func (s ChargerStatus) AccEnergyKWh() float64 {
	return s.AccEnergy / 1000
}

// EnergyBaseline holds the last corrected accumulated-energy counter per
// charger. A nil entry means no previous reading exists and the raw value is
// taken as-is.
type EnergyBaseline struct {
	Main *float64
	Twin *float64
}

type chargerDoc struct {
	Connector              *string  `json:"connector"`
	ChargeStatus           *string  `json:"chargeStatus"`
	NrOfPhases             *int     `json:"nrOfPhases"`
	CurrentChargingCurrent *float64 `json:"currentChargingCurrent"`
	PilotLevel             *float64 `json:"pilotLevel"`
	MinCurrentLimit        *float64 `json:"minCurrentLimit"`
	CurrentChargingPower   *float64 `json:"currentChargingPower"`
	AccEnergy              *float64 `json:"accEnergy"`
	AccSessionEnergy       *float64 `json:"accSessionEnergy"`
	SessionStartValue      *float64 `json:"sessionStartValue"`
	SessionStartTime       *float64 `json:"sessionStartTime"`
	AccSessionMillis       *float64 `json:"accSessionMillis"`
	LoadBalanced           *bool    `json:"loadBalanced"`
	Phase                  *int     `json:"phase"`
	CableLockMode          *int     `json:"cableLockMode"`
	DipSwitchSettings      *int     `json:"dipSwitchSettings"`
}

type statusDoc struct {
	Mode                *string  `json:"mode"`
	CurrentTemperature  *float64 `json:"currentTemperature"`
	CurrentLimit        *float64 `json:"currentLimit"`
	FactoryCurrentLimit *float64 `json:"factoryCurrentLimit"`
	SwitchCurrentLimit  *float64 `json:"switchCurrentLimit"`
	PowerMode           *string  `json:"powerMode"`

	MainCharger *chargerDoc `json:"mainCharger"`
	TwinCharger *chargerDoc `json:"twinCharger"`
	// Single-charger firmware reports the charger fields at the top level.
	chargerDoc
}

// docErr collects the first missing-field error while a document is picked
// apart, so parse functions read as one struct literal.
type docErr struct {
	err error
}

func need[T any](e *docErr, p *T, name string) T {
	if p == nil {
		if e.err == nil {
			e.err = fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		var zero T
		return zero
	}
	return *p
}

// ParseStatus normalizes a raw status document. prev carries the last
// corrected energy counters for the rollback correction; see EnergyBaseline.
func ParseStatus(data []byte, prev EnergyBaseline) (*Status, error) {
	var doc statusDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse status document: %w", err)
	}

	var e docErr
	s := Status{
		Mode:                deviceMode(need(&e, doc.Mode, "mode")),
		Temperature:         need(&e, doc.CurrentTemperature, "currentTemperature"),
		CurrentLimit:        need(&e, doc.CurrentLimit, "currentLimit"),
		FactoryCurrentLimit: need(&e, doc.FactoryCurrentLimit, "factoryCurrentLimit"),
		SwitchCurrentLimit:  need(&e, doc.SwitchCurrentLimit, "switchCurrentLimit"),
		PowerMode:           need(&e, doc.PowerMode, "powerMode"),
	}
	if e.err != nil {
		return nil, e.err
	}

	mainDoc := &doc.chargerDoc
	if doc.MainCharger != nil {
		mainDoc = doc.MainCharger
	}
	main, err := parseCharger(mainDoc, prev.Main)
	if err != nil {
		return nil, fmt.Errorf("mainCharger: %w", err)
	}
	s.Main = *main

	if doc.TwinCharger != nil {
		twin, err := parseCharger(doc.TwinCharger, prev.Twin)
		if err != nil {
			return nil, fmt.Errorf("twinCharger: %w", err)
		}
		s.Twin = twin
	}

	return &s, nil
}

func parseCharger(doc *chargerDoc, prevAccEnergy *float64) (*ChargerStatus, error) {
	var e docErr
	s := ChargerStatus{
		Connector:         connectorState(need(&e, doc.Connector, "connector")),
		ChargeStatus:      need(&e, doc.ChargeStatus, "chargeStatus"),
		NrOfPhases:        need(&e, doc.NrOfPhases, "nrOfPhases"),
		ChargingCurrent:   math.Max(0, need(&e, doc.CurrentChargingCurrent, "currentChargingCurrent")/1000),
		PilotLevel:        need(&e, doc.PilotLevel, "pilotLevel"),
		MinCurrentLimit:   need(&e, doc.MinCurrentLimit, "minCurrentLimit"),
		ChargingPower:     clampPower(need(&e, doc.CurrentChargingPower, "currentChargingPower")),
		AccEnergy:         correctEnergy(need(&e, doc.AccEnergy, "accEnergy"), prevAccEnergy),
		SessionEnergy:     need(&e, doc.AccSessionEnergy, "accSessionEnergy"),
		SessionStartValue: need(&e, doc.SessionStartValue, "sessionStartValue"),
		SessionStartTime:  need(&e, doc.SessionStartTime, "sessionStartTime"),
		SessionDuration: time.Duration(
			need(&e, doc.AccSessionMillis, "accSessionMillis")) * time.Millisecond,
		CableLockMode:     need(&e, doc.CableLockMode, "cableLockMode"),
		DipSwitchSettings: need(&e, doc.DipSwitchSettings, "dipSwitchSettings"),
	}
	if e.err != nil {
		return nil, e.err
	}
	// The load-balancing fields are absent on devices without that feature.
	if doc.LoadBalanced != nil {
		s.LoadBalanced = *doc.LoadBalanced
	}
	if doc.Phase != nil {
		s.Phase = *doc.Phase
	}
	return &s, nil
}

func clampPower(watt float64) float64 {
	if watt < 0 || watt > maxSanePower {
		return 0
	}
	return watt
}

func correctEnergy(reading float64, prev *float64) float64 {
	if prev != nil && *prev-reading > maxEnergyDrop {
		return *prev
	}
	return reading
}
