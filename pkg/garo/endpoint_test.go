package garo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEndpointURL(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t,
		"http://charger:8080/servlet/rest/chargebox/status?_=1700000000123",
		endpointURL(profileCurrent, "charger", "status", true, now))
	assert.Equal(t,
		"http://charger:8080/servlet/rest/chargebox/mode/ALWAYS_ON",
		endpointURL(profileCurrent, "charger", "mode/ALWAYS_ON", false, now))
	assert.Equal(t,
		"http://charger:2222/rest/chargebox/config?_=1700000000123",
		endpointURL(profileLegacy, "charger", "config", true, now))
	assert.Equal(t,
		"http://charger:2222/rest/chargebox/mode",
		endpointURL(profileLegacy, "charger", "mode", false, now))
	// undetected clients probe the current scheme first
	assert.Equal(t,
		"http://192.0.2.1:8080/servlet/rest/chargebox/status?_=1700000000123",
		endpointURL(profileUnknown, "192.0.2.1", "status", true, now))
}
