// sim/satellites_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"testing"
	"time"

	"github.com/standoff-sim/standoff/math"
)

func satTestSession(t *testing.T) (*GameSession, *Building) {
	t.Helper()
	s := newTestSession(t, loadTestCatalog(t), 1)

	s.PostCommand(PlaceBuildingCommand{Player: "p1", Kind: BuildingSatelliteFacility,
		Position: math.MakePoint2LL(28, -80)})
	tickOnce(s)
	facility := findBuilding(s, "p1", BuildingSatelliteFacility)
	if facility == nil {
		t.Fatal("no facility")
	}
	return s, facility
}

func TestSatelliteLaunch(t *testing.T) {
	s, facility := satTestSession(t)

	// Gated out during placement.
	if _, err := s.launchSatellite("p1", facility.Id, 45); err != ErrNotInDefconWindow {
		t.Fatalf("launch at DEFCON 5: got %v, want ErrNotInDefconWindow", err)
	}

	s.PostCommand(DebugCommand{Player: "p1", Command: "set_defcon", Value: 4})
	tickOnce(s)

	stock := facility.SatelliteStock
	s.PostCommand(LaunchSatelliteCommand{Player: "p1", FacilityId: facility.Id, Inclination: 120})
	tickOnce(s)

	if len(s.Satellites) != 1 {
		t.Fatalf("%d satellites, want 1", len(s.Satellites))
	}
	if facility.SatelliteStock != stock-1 {
		t.Errorf("stock %d, want %d", facility.SatelliteStock, stock-1)
	}

	var sat *Satellite
	for _, v := range s.Satellites {
		sat = v
	}
	if sat.InclinationDeg != s.catalog.Satellite.MaxInclinationDeg {
		t.Errorf("inclination %f not clamped to %f", sat.InclinationDeg, s.catalog.Satellite.MaxInclinationDeg)
	}

	// Second launch trips the cooldown.
	if _, err := s.launchSatellite("p1", facility.Id, 45); err != ErrSatelliteCooldown {
		t.Errorf("got %v, want ErrSatelliteCooldown", err)
	}

	// The orbit moves the ground track.
	start := sat.GroundPosition
	s.Step(time.Minute)
	if sat.GroundPosition == start {
		t.Error("ground position unchanged after a minute in orbit")
	}
	if sat.Progress <= 0 || sat.Progress >= 1 {
		t.Errorf("orbit progress %f outside (0, 1)", sat.Progress)
	}

	// A full period returns it home, within a tick of rounding.
	s.Step(time.Duration(sat.OrbitalPeriodMs)*time.Millisecond - time.Minute)
	if d := math.KMDistance2LL(sat.GroundPosition, start); d > 500 {
		t.Errorf("after one period the ground track is %f km from its start", d)
	}
}

func TestSatelliteVisionRequiresLink(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	// Enemy silo deep in Siberia, far from any of p1's radar coverage.
	s.Buildings["silo-e"] = &Building{
		Id: "silo-e", OwnerId: "p2", Type: BuildingSilo,
		Position: math.MakePoint2LL(55, 100), Mode: SiloModeDefend,
	}

	// A satellite overhead but with no ground link sees it, and can't
	// report it.
	s.Satellites["sat-1"] = &Satellite{
		Id: "sat-1", OwnerId: "p1", OrbitalPeriodMs: s.catalog.Satellite.OrbitalPeriodMs,
		OrbitalAltitudeKm: s.catalog.Satellite.AltitudeKm,
		GroundPosition:    math.MakePoint2LL(55, 101),
		Health:            100,
	}
	vis := s.visibilityFor("p1")
	if vis.buildings["silo-e"] {
		t.Fatal("satellite with no ground link relayed its picture")
	}

	// A friendly radar under the satellite closes the link. Its own range
	// is too short to cover the silo, so only the relay can.
	s.Buildings["radar-h"] = &Building{
		Id: "radar-h", OwnerId: "p1", Type: BuildingRadar,
		Position: math.MakePoint2LL(54, 100.5),
		RangeKm:  50, Active: true,
	}
	vis = s.visibilityFor("p1")
	if !vis.buildings["silo-e"] {
		t.Error("linked satellite failed to reveal the silo")
	}
}

func TestDamageSatellite(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)
	sub := s.Subscribe()

	sat := &Satellite{Id: "sat-1", OwnerId: "p1", Health: 100,
		OrbitalPeriodMs: s.catalog.Satellite.OrbitalPeriodMs}
	s.Satellites[sat.Id] = sat

	s.damageSatellite(sat, 40)
	if sat.Destroyed || sat.Health != 60 {
		t.Fatalf("health %d destroyed %v after partial damage", sat.Health, sat.Destroyed)
	}
	s.damageSatellite(sat, 80)
	if !sat.Destroyed || sat.Health != 0 {
		t.Fatalf("health %d destroyed %v after lethal damage", sat.Health, sat.Destroyed)
	}
	if got := eventsOfType(sub.Get(), SatelliteDestroyedEvent); len(got) != 1 {
		t.Errorf("%d satellite_destroyed events, want 1", len(got))
	}

	s.updateSatellites()
	if len(s.Satellites) != 0 {
		t.Error("destroyed satellite not removed")
	}
}
