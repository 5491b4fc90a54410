package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/evctl/garo-ctrl-tool/pkg/garo"
)

type c struct {
	command string
	args    int
	fun     func(ctx context.Context, client *garo.Client, args ...string) error
	help    string
}

var commands []c

func init() {
	commands = []c{
		{
			command: "help",
			args:    0,
			help:    "help display this help",
			fun:     func(context.Context, *garo.Client, ...string) error { help(); return nil },
		},
		{
			command: "info",
			args:    0,
			help:    "info print the device information fetched at startup",
			fun: func(ctx context.Context, client *garo.Client, args ...string) error {
				info := client.Info()
				fmt.Printf("Serial:             %v\n", info.Serial)
				fmt.Printf("Model:              %v (product id %v)\n", info.Model, info.ProductID)
				fmt.Printf("Max charge current: %vA\n", info.MaxChargeCurrent)
				fmt.Printf("Temperature:        warn %v°C cutoff %v°C\n",
					info.WarningTemperature, info.CutoffTemperature)
				fmt.Printf("Chargers:           %v\n", info.Chargers)
				if info.MeterPath != "" {
					fmt.Printf("Load balancing:     meterinfo/%v\n", info.MeterPath)
				}
				return nil
			},
		},
		{
			command: "status",
			args:    0,
			help:    "status refresh (throttled) and print the charger status",
			fun: func(ctx context.Context, client *garo.Client, args ...string) error {
				if err := client.Update(ctx); err != nil {
					return err
				}
				s := client.Status()
				fmt.Printf("Mode:          %v\n", s.Mode)
				fmt.Printf("Temperature:   %v°C\n", s.Temperature)
				fmt.Printf("Current limit: %vA (factory %vA, switch %vA)\n",
					s.CurrentLimit, s.FactoryCurrentLimit, s.SwitchCurrentLimit)
				fmt.Printf("Power mode:    %v\n", s.PowerMode)
				printCharger("Main Charger", &s.Main)
				if s.Twin != nil {
					printCharger("Twin Charger", s.Twin)
				}
				return nil
			},
		},
		{
			command: "meter",
			args:    0,
			help:    "meter refresh (throttled) and print the load-balancing meter status",
			fun: func(ctx context.Context, client *garo.Client, args ...string) error {
				m := client.Meter()
				if m == nil {
					return fmt.Errorf("device reports no load-balancing meter")
				}
				if err := m.Update(ctx); err != nil {
					return err
				}
				s := m.Status()
				fmt.Printf("Meter:    %v (serial %v)\n", s.Type, s.Serial)
				fmt.Printf("Currents: %vA / %vA / %vA\n",
					s.Phase1Current, s.Phase2Current, s.Phase3Current)
				fmt.Printf("Power:    %vW\n", s.Power)
				fmt.Printf("Energy:   %vkWh\n", s.AccEnergyKWh)
				return nil
			},
		},
		{
			command: "mode",
			args:    1,
			help:    "mode on|off|schema set the charging mode",
			fun: func(ctx context.Context, client *garo.Client, args ...string) error {
				mode, err := garo.ParseMode(args[0])
				if err != nil {
					return err
				}
				if err := client.SetMode(ctx, mode); err != nil {
					return err
				}
				fmt.Printf("mode set to %v\n", client.Status().Mode)
				return nil
			},
		},
		{
			command: "limit",
			args:    1,
			help:    "limit <ampere> set the charging current limit",
			fun: func(ctx context.Context, client *garo.Client, args ...string) error {
				limit, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid argument format")
				}
				if err := client.SetCurrentLimit(ctx, limit); err != nil {
					return err
				}
				fmt.Printf("current limit set to %vA\n", client.Status().CurrentLimit)
				return nil
			},
		},
	}
}

func printCharger(name string, s *garo.ChargerStatus) {
	fmt.Printf("%v:\n", name)
	fmt.Printf("  State:    %v (%v)\n", s.Connector, s.Connector.Description())
	fmt.Printf("  Charging: %vA %vW on %v phase(s), pilot %v\n",
		s.ChargingCurrent, s.ChargingPower, s.NrOfPhases, s.PilotLevel)
	fmt.Printf("  Energy:   %vkWh total, %vWh this session (%v)\n",
		s.AccEnergyKWh(), s.SessionEnergy, s.SessionDuration)
	if s.LoadBalanced {
		fmt.Printf("  Load balanced on phase %v\n", s.Phase)
	}
}
