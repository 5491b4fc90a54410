package garo

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// profile selects one of the two known REST path/port schemes. Firmware
// before v1.3.1 serves a bare path on port 2222, later firmware a servlet
// path on port 8080. Detection happens once per client, see Client.fetch.
type profile int

const (
	profileUnknown profile = iota
	profileCurrent
	profileLegacy
)

// endpointURL builds the request URL for an action. Polled reads carry a
// millisecond timestamp query to defeat intermediate caching; commands and
// one-off reads do not.
func endpointURL(p profile, host, action string, cacheBust bool, now time.Time) string {
	u := url.URL{Scheme: "http"}
	if p == profileLegacy {
		u.Host = net.JoinHostPort(host, "2222")
		u.Path = "/rest/chargebox/" + action
	} else {
		u.Host = net.JoinHostPort(host, "8080")
		u.Path = "/servlet/rest/chargebox/" + action
	}
	if cacheBust {
		u.RawQuery = "_=" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	return u.String()
}
