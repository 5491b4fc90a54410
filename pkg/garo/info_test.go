package garo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configFields() map[string]any {
	return map[string]any{
		"serialNumber":            1234567,
		"productId":               241,
		"maxChargeCurrent":        32,
		"warningTemperature":      55,
		"cutoffTemperature":       65,
		"slaveList":               []any{map[string]any{}},
		"reducedCurrentIntervals": []any{},
	}
}

func TestParseDeviceInfo(t *testing.T) {
	info, err := ParseDeviceInfo(marshal(t, configFields()))
	require.NoError(t, err)

	assert.Equal(t, "1234567", info.Serial)
	assert.Equal(t, 241, info.ProductID)
	assert.Equal(t, "GLB+ T274", info.Model)
	assert.Equal(t, 32.0, info.MaxChargeCurrent)
	assert.Equal(t, 55.0, info.WarningTemperature)
	assert.Equal(t, 65.0, info.CutoffTemperature)
	assert.Equal(t, 1, info.Chargers)
	assert.Equal(t, "", info.MeterPath)
}

func TestParseDeviceInfoTwinCharger(t *testing.T) {
	doc := configFields()
	doc["slaveList"] = []any{map[string]any{}, map[string]any{}}

	info, err := ParseDeviceInfo(marshal(t, doc))
	require.NoError(t, err)
	assert.Equal(t, 2, info.Chargers)
}

func TestParseDeviceInfoMeterPaths(t *testing.T) {
	for flag, want := range map[string]string{
		"localLoadBalanced":    meterPathLocal,
		"groupLoadBalanced":    meterPathGroup,
		"groupLoadBalanced101": meterPathGroup101,
	} {
		doc := configFields()
		doc[flag] = true

		info, err := ParseDeviceInfo(marshal(t, doc))
		require.NoError(t, err)
		assert.Equal(t, want, info.MeterPath, flag)
	}
}

func TestParseDeviceInfoUnknownProduct(t *testing.T) {
	doc := configFields()
	doc["productId"] = 9999

	info, err := ParseDeviceInfo(marshal(t, doc))
	require.Error(t, err)
	assert.Nil(t, info)
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestParseDeviceInfoMissingField(t *testing.T) {
	for _, field := range []string{
		"serialNumber", "productId", "maxChargeCurrent",
		"warningTemperature", "cutoffTemperature", "slaveList",
	} {
		doc := configFields()
		delete(doc, field)

		_, err := ParseDeviceInfo(marshal(t, doc))
		require.Error(t, err, field)
		assert.ErrorIs(t, err, ErrMissingField, field)
	}
}
