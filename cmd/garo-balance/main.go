package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bsm/openmetrics"
	"github.com/felixge/pidctrl"

	"github.com/evctl/garo-ctrl-tool/cmd"
	"github.com/evctl/garo-ctrl-tool/pkg/backoff"
	"github.com/evctl/garo-ctrl-tool/pkg/garo"
	"github.com/evctl/garo-ctrl-tool/pkg/ringbuf"
	"github.com/evctl/garo-ctrl-tool/pkg/timemock"
)

var (
	metricMeterPower = openmetrics.DefaultRegistry().Gauge(openmetrics.Desc{
		Name:   "garo_meter_power",
		Unit:   "watt",
		Help:   "Power readings from the load-balancing meter",
		Labels: []string{"phase"},
	})
	metricMeterEnergy = openmetrics.DefaultRegistry().Gauge(openmetrics.Desc{
		Name: "garo_meter_energy",
		Unit: "kwh",
		Help: "Accumulated energy of the load-balancing meter",
	})
	metricChargeLimit = openmetrics.DefaultRegistry().Gauge(openmetrics.Desc{
		Name: "garo_charge_limit",
		Unit: "ampere",
		Help: "The current limit written to the wallbox",
	})
	metricChargingPower = openmetrics.DefaultRegistry().Gauge(openmetrics.Desc{
		Name: "garo_charging_power",
		Unit: "watt",
		Help: "Charging power reported by the main charger",
	})
)

var (
	flagMaxPower = flag.Float64("maxPower", 17250,
		"Maximum total power in watt the house connection may draw (25A three-phase by default)")
	flagMinLimit = flag.Int("minLimit", 6, "Lowest charge current limit in ampere")
	flagInterval = flag.Duration("interval", 30*time.Second, "Control loop interval")
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := cmd.CommonInit(ctx)

	meter := client.Meter()
	if meter == nil {
		slog.Error("wallbox reports no load-balancing meter, nothing to balance")
		os.Exit(1)
	}
	maxLimit := *flagMinLimit
	if info := client.Info(); int(info.MaxChargeCurrent) > maxLimit {
		maxLimit = int(info.MaxChargeCurrent)
	}
	slog.Info("balancing",
		slog.String("device", client.DisplayName()),
		slog.String("meter", meter.ID()),
		slog.Float64("maxPower", *flagMaxPower),
		slog.Int("minLimit", *flagMinLimit),
		slog.Int("maxLimit", maxLimit))

	var measurement Measurement

	wg := sync.WaitGroup{}
	childCtx, childCtxCancel := context.WithCancel(ctx)
	defer childCtxCancel()

	// meter go-routine feeds the shared measurement
	wg.Add(1)
	go func() {
		defer func() {
			childCtxCancel()
			slog.Debug("meter go-routine done")
			wg.Done()
		}()
		if err := readMeter(childCtx, client, meter, &measurement); err != nil {
			slog.Error("meter reader failed", slog.Any("err", err))
		}
	}()

	pidC := pidctrl.NewPIDController(0.005, 0.002, 0)
	pidC.SetOutputLimits(float64(*flagMinLimit), float64(maxLimit))
	pidC.Set(*flagMaxPower)

	var (
		lastUpdateAt time.Time
		lastLimit    int
	)
controlLoop:
	for {
		select {
		case <-childCtx.Done():
			break controlLoop
		case <-timemock.After(*flagInterval):
		}

		power, valid := measurement.Get()
		if !valid {
			slog.Info("no meter measurement, holding current limit")
			continue
		}

		if lastUpdateAt.IsZero() {
			lastUpdateAt = timemock.Now()
		}
		out := pidC.UpdateDuration(power, timemock.Now().Sub(lastUpdateAt))
		lastUpdateAt = timemock.Now()

		limit := limitStep(out, *flagMinLimit, maxLimit)
		if limit == lastLimit {
			continue
		}
		if err := client.SetCurrentLimit(childCtx, limit); err != nil {
			slog.Error("failed to set current limit", slog.Int("limit", limit), slog.Any("err", err))
			continue
		}
		lastLimit = limit
		metricChargeLimit.With().Set(float64(limit))
		if s := client.Status(); s != nil {
			metricChargingPower.With().Set(s.Main.ChargingPower)
		}
		slog.Info("current limit written", slog.Int("limit", limit), slog.Float64("meterPower", power))
	}

	childCtxCancel()
	slog.Info("wait for go-routines")
	wg.Wait()
}

// readMeter polls the meter, smooths the total power and publishes it to the
// shared measurement. Blocks until ctx is cancelled or retries are exhausted.
func readMeter(ctx context.Context, client *garo.Client, meter *garo.Meter, measurement *Measurement) error {
	readInterval := client.UpdateInterval
	if readInterval <= 0 {
		readInterval = garo.DefaultUpdateInterval
	}
	b := backoff.NewExponentialBackoff(readInterval, readInterval*50)

	buf := ringbuf.NewRingbuf(5)
	retry := 0
	wait := time.Duration(0)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timemock.After(wait):
		}

		if err := meter.Update(ctx); err != nil {
			retry++
			measurement.SetInvalid()
			var next bool
			wait, next = b.Next(retry)
			if !next {
				return fmt.Errorf("meter out of retries: %w", err)
			}
			slog.Error("failed to read meter, retry", slog.Duration("wait", wait), slog.Any("err", err))
			continue
		}
		retry = 0
		wait = readInterval

		s := meter.Status()
		buf.Add(float64(s.Power))
		mean := buf.Mean()
		measurement.Set(mean)

		metricMeterPower.With("total").Set(float64(s.Power))
		metricMeterPower.With("totalMean").Set(mean)
		metricMeterPower.With("phase1").Set(s.Phase1Current * 230)
		metricMeterPower.With("phase2").Set(s.Phase2Current * 230)
		metricMeterPower.With("phase3").Set(s.Phase3Current * 230)
		metricMeterEnergy.With().Set(s.AccEnergyKWh)
	}
}
