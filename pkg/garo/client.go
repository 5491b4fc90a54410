package garo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/evctl/garo-ctrl-tool/pkg/timemock"
)

// DefaultUpdateInterval is the minimum time between two status fetches of
// the same client. Update calls inside the window are no-ops.
const DefaultUpdateInterval = 30 * time.Second

const contentTypeJSON = "application/json; charset=utf-8"

// Client talks to one wallbox. The zero value is not usable, set at least
// Host; methods are safe for concurrent use.
type Client struct {
	// HTTP is the transport session, nil means http.DefaultClient. Set a
	// Timeout on it to bound requests in addition to ctx.
	HTTP *http.Client
	Host string
	// Name overrides the display name derived from model and host.
	Name string
	// UpdateInterval overrides DefaultUpdateInterval when positive.
	UpdateInterval time.Duration

	// opMu serializes fetches and commands so the throttle check and the
	// status replacement are atomic and command-triggered refreshes do not
	// interleave with scheduled ones.
	opMu sync.Mutex

	mu         sync.RWMutex
	prof       profile
	info       *DeviceInfo
	status     *Status
	meter      *Meter
	id         string
	name       string
	lastFetch  time.Time
	prevEnergy EnergyBaseline
}

// Init fetches the device info, detecting the API profile on the way,
// prepares the meter sub-client when the device reports load-balancing
// metering and performs one initial status poll.
func (c *Client) Init(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	data, err := c.fetch(ctx, "config", true)
	if err != nil {
		return fmt.Errorf("failed to read config from %v: %w", c.Host, err)
	}
	info, err := ParseDeviceInfo(data)
	if err != nil {
		return err
	}

	name := c.Name
	if name == "" {
		name = fmt.Sprintf("%s (%s)", info.Model, c.Host)
	}

	c.mu.Lock()
	c.info = info
	c.id = "garo_" + info.Serial
	c.name = name
	c.meter = nil
	c.mu.Unlock()

	if info.MeterPath != "" {
		m := &Meter{c: c, action: "meterinfo/" + info.MeterPath}
		if err := m.init(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		c.meter = m
		c.mu.Unlock()
	}

	return c.update(ctx)
}

// Update refreshes the cached status, at most once per update interval.
// Calls inside the window return nil without touching the device.
func (c *Client) Update(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.withinThrottleWindow(c.lastFetchTime()) {
		return nil
	}
	return c.update(ctx)
}

// SetMode switches the charging mode and forces a status refresh, bypassing
// the throttle window so the change is visible immediately.
func (c *Client) SetMode(ctx context.Context, mode Mode) error {
	switch mode {
	case ModeOn, ModeOff, ModeSchema:
	default:
		return fmt.Errorf("cannot set mode %q", mode)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	var err error
	if c.profile() == profileLegacy {
		err = c.post(ctx, "mode", []byte(mode))
	} else {
		err = c.post(ctx, "mode/"+string(mode), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to set mode %v: %w", mode, err)
	}
	return c.update(ctx)
}

// SetCurrentLimit rewrites the reduced-current schedule to a single
// all-day/all-week entry pinned to limit ampere and forces a status refresh.
// The config is read, modified and written back; concurrent external config
// changes lose (last write wins).
func (c *Client) SetCurrentLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("current limit must be positive, got %v", limit)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	data, err := c.fetch(ctx, "config", true)
	if err != nil {
		return fmt.Errorf("failed to read config from %v: %w", c.Host, err)
	}
	var conf map[string]json.RawMessage
	if err := json.Unmarshal(data, &conf); err != nil {
		return fmt.Errorf("failed to parse config document: %w", err)
	}

	intervals, err := json.Marshal([]reducedCurrentInterval{{
		ChargeLimit: strconv.Itoa(limit),
		SchemaID:    1,
		Start:       "00:00:00",
		Stop:        "24:00:00",
		Weekday:     8,
	}})
	if err != nil {
		return err
	}
	conf["reducedCurrentIntervals"] = intervals

	body, err := json.Marshal(conf)
	if err != nil {
		return err
	}
	if err := c.post(ctx, "config", body); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return c.update(ctx)
}

type reducedCurrentInterval struct {
	ChargeLimit string `json:"chargeLimit"`
	SchemaID    int    `json:"schemaId"`
	Start       string `json:"start"`
	Stop        string `json:"stop"`
	Weekday     int    `json:"weekday"`
}

// Status returns the last successfully parsed status, nil before the first
// poll completed.
func (c *Client) Status() *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Info returns the device info fetched during Init, nil before that.
func (c *Client) Info() *DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// ID returns the stable identifier derived from the serial number.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// DisplayName returns the configured name or "{model} ({host})".
func (c *Client) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Meter returns the load-balancing meter sub-client, nil when the device
// reports no metering.
func (c *Client) Meter() *Meter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meter
}

// Chargers lists display name and id of the connectors present.
func (c *Client) Chargers() []struct{ Name, ID string } {
	all := []struct{ Name, ID string }{
		{"Main Charger", "main_charger"},
		{"Twin Charger", "twin_charger"},
	}
	info := c.Info()
	if info == nil || info.Chargers >= len(all) {
		return all
	}
	return all[:info.Chargers]
}

// update fetches and replaces the status. Callers hold opMu.
func (c *Client) update(ctx context.Context) error {
	data, err := c.fetch(ctx, "status", true)
	if err != nil {
		return fmt.Errorf("failed to read status from %v: %w", c.Host, err)
	}

	c.mu.RLock()
	prev := c.prevEnergy
	c.mu.RUnlock()

	status, err := ParseStatus(data, prev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.status = status
	main := status.Main.AccEnergy
	c.prevEnergy.Main = &main
	if status.Twin != nil {
		twin := status.Twin.AccEnergy
		c.prevEnergy.Twin = &twin
	}
	c.lastFetch = timemock.Now()
	c.mu.Unlock()

	return nil
}

// fetch runs a GET against the detected profile. While the profile is still
// undetected a non-2xx response triggers a single retry against the legacy
// profile; the outcome of that first request pins the profile for the
// client's lifetime. Transport and timeout errors never flip the profile.
func (c *Client) fetch(ctx context.Context, action string, cacheBust bool) ([]byte, error) {
	prof := c.profile()
	if prof == profileUnknown {
		prof = profileCurrent
	}

	data, err := c.get(ctx, prof, action, cacheBust)
	switch {
	case err == nil:
		c.setProfile(prof)
		return data, nil
	case c.profile() != profileUnknown:
		return nil, err
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return nil, err
	}

	// The flip is terminal, even when the retry below fails as well: the
	// client never oscillates back to probing the current profile.
	slog.Info("switching to pre v1.3.1 endpoint", slog.String("host", c.Host))
	c.setProfile(profileLegacy)

	data, legacyErr := c.get(ctx, profileLegacy, action, cacheBust)
	if legacyErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrBothProfilesFailed, legacyErr)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, prof profile, action string, cacheBust bool) ([]byte, error) {
	url := endpointURL(prof, c.Host, action, cacheBust, timemock.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to construct request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to read from charger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	// we expect no valid response larger than 1mb
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed reading response body: %w", err)
	}
	return data, nil
}

// post issues a command against the already detected profile. The response
// body is discarded.
func (c *Client) post(ctx context.Context, action string, body []byte) error {
	prof := c.profile()
	if prof == profileUnknown {
		prof = profileCurrent
	}
	url := endpointURL(prof, c.Host, action, false, timemock.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to construct request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to write to charger: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) profile() profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prof
}

func (c *Client) setProfile(p profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prof == profileUnknown {
		c.prof = p
	}
}

func (c *Client) lastFetchTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFetch
}

func (c *Client) withinThrottleWindow(last time.Time) bool {
	interval := c.UpdateInterval
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return !last.IsZero() && timemock.Now().Sub(last) < interval
}
