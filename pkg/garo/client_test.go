package garo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evctl/garo-ctrl-tool/pkg/timemock"
)

// rewriteTransport forwards every request to the test server no matter which
// host:port the client computed, so both api profiles land on the same
// handler. The handler tells the profiles apart by path.
type rewriteTransport struct {
	host string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(req)
}

// fakeDevice emulates the two REST generations of a wallbox.
type fakeDevice struct {
	t          *testing.T
	legacyOnly bool
	allBroken  bool
	withMeter  bool

	mu             sync.Mutex
	servletHits    int
	statusGETs     int
	meterGETs      int
	lastPostAction string
	lastPostBody   string
	lastConfigPost map[string]any
}

func (d *fakeDevice) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()

		path := r.URL.Path
		if strings.HasPrefix(path, "/servlet/rest/chargebox/") {
			d.servletHits++
			if d.legacyOnly || d.allBroken {
				http.NotFound(w, r)
				return
			}
			path = strings.TrimPrefix(path, "/servlet/rest/chargebox/")
		} else if strings.HasPrefix(path, "/rest/chargebox/") {
			if d.allBroken {
				http.NotFound(w, r)
				return
			}
			path = strings.TrimPrefix(path, "/rest/chargebox/")
		} else {
			http.NotFound(w, r)
			return
		}

		if r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			require.NoError(d.t, err)
			d.lastPostAction = path
			d.lastPostBody = string(body)
			if path == "config" {
				require.NoError(d.t, json.Unmarshal(body, &d.lastConfigPost))
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		switch {
		case path == "config":
			doc := configFields()
			if d.withMeter {
				doc["localLoadBalanced"] = true
			}
			require.NoError(d.t, json.NewEncoder(w).Encode(doc))
		case path == "status":
			d.statusGETs++
			doc := statusFields()
			for k, v := range chargerFields() {
				doc[k] = v
			}
			require.NoError(d.t, json.NewEncoder(w).Encode(doc))
		case strings.HasPrefix(path, "meterinfo/"):
			d.meterGETs++
			require.NoError(d.t, json.NewEncoder(w).Encode(meterFields()))
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestClient(t *testing.T, d *fakeDevice) *Client {
	t.Helper()
	d.t = t
	server := httptest.NewServer(d.handler())
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	return &Client{
		Host: "device-under-test",
		HTTP: &http.Client{Transport: rewriteTransport{host: u.Host}},
	}
}

func TestClientInitWithMeter(t *testing.T) {
	restore := timemock.Freeze(time.Now())
	defer restore()

	d := &fakeDevice{withMeter: true}
	c := newTestClient(t, d)
	require.NoError(t, c.Init(context.Background()))

	info := c.Info()
	require.NotNil(t, info)
	assert.Equal(t, "GLB+ T274", info.Model)
	assert.Equal(t, "garo_1234567", c.ID())
	assert.Equal(t, "GLB+ T274 (device-under-test)", c.DisplayName())

	require.NotNil(t, c.Status())
	assert.Equal(t, StateCharging, c.Status().Main.Connector)

	m := c.Meter()
	require.NotNil(t, m)
	assert.Equal(t, "garo_987654", m.ID())
	assert.Equal(t, "GLB+ T274 (device-under-test) meter", m.DisplayName())
	require.NotNil(t, m.Status())
	assert.Equal(t, 3590, m.Status().Power)

	assert.Equal(t, []struct{ Name, ID string }{{"Main Charger", "main_charger"}}, c.Chargers())
}

func TestClientUpdateThrottled(t *testing.T) {
	start := time.Now()
	restore := timemock.Freeze(start)
	defer restore()

	d := &fakeDevice{}
	c := newTestClient(t, d)
	require.NoError(t, c.Init(context.Background()))
	assert.Nil(t, c.Meter())
	assert.Equal(t, 1, d.statusGETs)

	// inside the window both calls are no-ops
	require.NoError(t, c.Update(context.Background()))
	require.NoError(t, c.Update(context.Background()))
	assert.Equal(t, 1, d.statusGETs)

	timemock.Freeze(start.Add(31 * time.Second))
	require.NoError(t, c.Update(context.Background()))
	assert.Equal(t, 2, d.statusGETs)
}

func TestMeterUpdateThrottledIndependently(t *testing.T) {
	start := time.Now()
	restore := timemock.Freeze(start)
	defer restore()

	d := &fakeDevice{withMeter: true}
	c := newTestClient(t, d)
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 1, d.meterGETs)

	m := c.Meter()
	require.NoError(t, m.Update(context.Background()))
	assert.Equal(t, 1, d.meterGETs)

	timemock.Freeze(start.Add(31 * time.Second))
	require.NoError(t, m.Update(context.Background()))
	assert.Equal(t, 2, d.meterGETs)
}

func TestClientLegacyFallback(t *testing.T) {
	start := time.Now()
	restore := timemock.Freeze(start)
	defer restore()

	d := &fakeDevice{legacyOnly: true}
	c := newTestClient(t, d)
	require.NoError(t, c.Init(context.Background()))

	// exactly one probe of the current profile, then pinned to legacy
	assert.Equal(t, 1, d.servletHits)
	assert.Equal(t, profileLegacy, c.profile())

	timemock.Freeze(start.Add(31 * time.Second))
	require.NoError(t, c.Update(context.Background()))
	assert.Equal(t, 1, d.servletHits)

	// legacy mode command is a POST of the raw mode to the "mode" action
	require.NoError(t, c.SetMode(context.Background(), ModeOff))
	assert.Equal(t, "mode", d.lastPostAction)
	assert.Equal(t, "ALWAYS_OFF", d.lastPostBody)
}

func TestClientBothProfilesFail(t *testing.T) {
	d := &fakeDevice{allBroken: true}
	c := newTestClient(t, d)

	err := c.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBothProfilesFailed)
	// the flip to legacy is terminal, the current profile is not probed again
	assert.Equal(t, profileLegacy, c.profile())
	assert.Nil(t, c.Status())
}

func TestClientSetModeForcesRefresh(t *testing.T) {
	restore := timemock.Freeze(time.Now())
	defer restore()

	d := &fakeDevice{}
	c := newTestClient(t, d)
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 1, d.statusGETs)

	require.NoError(t, c.SetMode(context.Background(), ModeOn))
	assert.Equal(t, "mode/ALWAYS_ON", d.lastPostAction)
	assert.Equal(t, "", d.lastPostBody)
	// refresh happened although the throttle window had not elapsed
	assert.Equal(t, 2, d.statusGETs)

	assert.Error(t, c.SetMode(context.Background(), ModeUnknown))
	assert.Error(t, c.SetMode(context.Background(), Mode("SIDEWAYS")))
}

func TestClientSetCurrentLimit(t *testing.T) {
	restore := timemock.Freeze(time.Now())
	defer restore()

	d := &fakeDevice{}
	c := newTestClient(t, d)
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 1, d.statusGETs)

	require.NoError(t, c.SetCurrentLimit(context.Background(), 16))
	assert.Equal(t, "config", d.lastPostAction)
	assert.Equal(t, 2, d.statusGETs)

	require.NotNil(t, d.lastConfigPost)
	assert.Equal(t, []any{map[string]any{
		"chargeLimit": "16",
		"schemaId":    float64(1),
		"start":       "00:00:00",
		"stop":        "24:00:00",
		"weekday":     float64(8),
	}}, d.lastConfigPost["reducedCurrentIntervals"])
	// unrelated config keys are written back untouched
	assert.Equal(t, float64(1234567), d.lastConfigPost["serialNumber"])

	assert.Error(t, c.SetCurrentLimit(context.Background(), 0))
	assert.Error(t, c.SetCurrentLimit(context.Background(), -6))
}
