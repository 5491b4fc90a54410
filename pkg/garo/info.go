package garo

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DeviceInfo is built once from the config document during Init and only
// refreshed on an explicit re-Init.
type DeviceInfo struct {
	Serial             string
	ProductID          int
	Model              string
	MaxChargeCurrent   float64
	WarningTemperature float64
	CutoffTemperature  float64
	// Chargers is 1 or 2 depending on whether a twin charger is attached.
	Chargers int
	// MeterPath selects the load-balancing meter endpoint variant, empty
	// when the device reports no metering.
	MeterPath string
}

type infoDoc struct {
	SerialNumber       *json.Number       `json:"serialNumber"`
	ProductID          *json.Number       `json:"productId"`
	MaxChargeCurrent   *float64           `json:"maxChargeCurrent"`
	WarningTemperature *float64           `json:"warningTemperature"`
	CutoffTemperature  *float64           `json:"cutoffTemperature"`
	SlaveList          *[]json.RawMessage `json:"slaveList"`

	LocalLoadBalanced    bool `json:"localLoadBalanced"`
	GroupLoadBalanced    bool `json:"groupLoadBalanced"`
	GroupLoadBalanced101 bool `json:"groupLoadBalanced101"`
}

// ParseDeviceInfo normalizes a raw config document into DeviceInfo.
func ParseDeviceInfo(data []byte) (*DeviceInfo, error) {
	var doc infoDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config document: %w", err)
	}

	var e docErr
	info := DeviceInfo{
		Serial:             need(&e, doc.SerialNumber, "serialNumber").String(),
		MaxChargeCurrent:   need(&e, doc.MaxChargeCurrent, "maxChargeCurrent"),
		WarningTemperature: need(&e, doc.WarningTemperature, "warningTemperature"),
		CutoffTemperature:  need(&e, doc.CutoffTemperature, "cutoffTemperature"),
		Chargers:           len(need(&e, doc.SlaveList, "slaveList")),
	}
	productID := need(&e, doc.ProductID, "productId")
	if e.err != nil {
		return nil, e.err
	}

	pid, err := strconv.Atoi(productID.String())
	if err != nil {
		return nil, fmt.Errorf("productId is not an integer: %w", err)
	}
	model, ok := productModels[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, pid)
	}
	info.ProductID = pid
	info.Model = model

	switch {
	case doc.LocalLoadBalanced:
		info.MeterPath = meterPathLocal
	case doc.GroupLoadBalanced:
		info.MeterPath = meterPathGroup
	case doc.GroupLoadBalanced101:
		info.MeterPath = meterPathGroup101
	}

	return &info, nil
}
