// Package garo implements a client for the local REST API of Garo wallbox
// charging stations. It polls device configuration and status, normalizes the
// vendor JSON into typed values and issues control commands (charging mode,
// current limit). Two firmware generations with different port/path schemes
// are supported transparently.
package garo

import (
	"fmt"
	"strings"
)

const (
	// lineVoltage is the assumed phase voltage for power derivation.
	lineVoltage = 230
	// currentDivider scales the raw phase-current readings of the
	// load-balancing meter to ampere.
	currentDivider = 10
)

// Mode is the charging mode of the wallbox.
type Mode string

const (
	ModeOn      Mode = "ALWAYS_ON"
	ModeOff     Mode = "ALWAYS_OFF"
	ModeSchema  Mode = "SCHEMA"
	ModeUnknown Mode = "UNKNOWN"
)

// ParseMode maps user input to a settable Mode. It accepts the wire value as
// well as the short forms on/off/schema.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(s) {
	case "ON", string(ModeOn):
		return ModeOn, nil
	case "OFF", string(ModeOff):
		return ModeOff, nil
	case string(ModeSchema):
		return ModeSchema, nil
	}
	return ModeUnknown, fmt.Errorf("not a charging mode: %q", s)
}

// deviceMode maps a wire value to a Mode. Values from unknown firmware map to
// ModeUnknown instead of failing the whole status parse.
func deviceMode(s string) Mode {
	switch Mode(s) {
	case ModeOn, ModeOff, ModeSchema:
		return Mode(s)
	}
	return ModeUnknown
}

// ConnectorState is the state of a charging connector.
type ConnectorState string

const (
	StateChanging            ConnectorState = "CHANGING"
	StateNotConnected        ConnectorState = "NOT_CONNECTED"
	StateConnected           ConnectorState = "CONNECTED"
	StateSearchComm          ConnectorState = "SEARCH_COMM"
	StateRCDFault            ConnectorState = "RCD_FAULT"
	StateCharging            ConnectorState = "CHARGING"
	StateChargingPaused      ConnectorState = "CHARGING_PAUSED"
	StateChargingFinished    ConnectorState = "CHARGING_FINISHED"
	StateChargingCancelled   ConnectorState = "CHARGING_CANCELLED"
	StateDisabled            ConnectorState = "DISABLED"
	StateOverheat            ConnectorState = "OVERHEAT"
	StateCriticalTemperature ConnectorState = "CRITICAL_TEMPERATURE"
	StateInitialization      ConnectorState = "INITIALIZATION"
	StateCableFault          ConnectorState = "CABLE_FAULT"
	StateLockFault           ConnectorState = "LOCK_FAULT"
	StateContactorFault      ConnectorState = "CONTACTOR_FAULT"
	StateVentFault           ConnectorState = "VENT_FAULT"
	StateDCError             ConnectorState = "DC_ERROR"
	StateUnknown             ConnectorState = "UNKNOWN"
	StateUnavailable         ConnectorState = "UNAVAILABLE"
)

var stateDescriptions = map[ConnectorState]string{
	StateChanging:            "Changing...",
	StateNotConnected:        "Vehicle not connected",
	StateConnected:           "Vehicle connected",
	StateSearchComm:          "Vehicle connected",
	StateRCDFault:            "RCD fault",
	StateCharging:            "Charging",
	StateChargingPaused:      "Charging paused",
	StateChargingFinished:    "Charging finished",
	StateChargingCancelled:   "Charging cancelled",
	StateDisabled:            "Charging disabled",
	StateOverheat:            "Overtemperature, charging temporarily restricted to 6A",
	StateCriticalTemperature: "Overtemperature, charging cancelled",
	StateInitialization:      "Charger starting...",
	StateCableFault:          "Cable fault",
	StateLockFault:           "Lock fault",
	StateContactorFault:      "Contactor fault",
	StateVentFault:           "Ventilation required",
	StateDCError:             "DC error",
	StateUnavailable:         "Unavailable",
}

// connectorState maps a wire value to a ConnectorState. Values from unknown
// firmware map to StateUnknown instead of failing the whole status parse.
func connectorState(s string) ConnectorState {
	if _, ok := stateDescriptions[ConnectorState(s)]; ok {
		return ConnectorState(s)
	}
	return StateUnknown
}

// Description returns a human readable text for the connector state.
func (s ConnectorState) Description() string {
	if d, ok := stateDescriptions[s]; ok {
		return d
	}
	return "Unknown"
}

// productModels maps Garo product ids to model names. Ids not in this table
// fail the device-info parse so unknown hardware is surfaced instead of
// silently mislabelled.
var productModels = map[int]string{
	119: "CLS",
	121: "GLB DIN",
	181: "GLB+ DIN",
	191: "GLB T274",
	241: "GLB+ T274",
	242: "GLB+ T274 GNI4",
	365: "GLB+ R T2FV",
	367: "GLB R T2FV",
	369: "GLB+ R T274",
	371: "GLB R T274",
	425: "GTB R T2FV",
	427: "GTB R T274",
	429: "GTB+ R T2FV",
	431: "GTB+ R T274",
	511: "GTC R T2FV",
	513: "GTC R T274",
	515: "GTC+ R T2FV",
	517: "GTC+ R T274",
	601: "LS4 T2FV",
	603: "LS4 T274",
}

// Meter path variants for the load-balancing meter endpoint. The device
// config reports which one applies via the *LoadBalanced flags.
const (
	meterPathLocal    = "local"
	meterPathGroup    = "group"
	meterPathGroup101 = "group101"
)
