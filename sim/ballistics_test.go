// sim/ballistics_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"testing"
	"time"

	"github.com/standoff-sim/standoff/math"
)

func TestMinimumFlightDuration(t *testing.T) {
	cat := loadTestCatalog(t)
	s := newTestSession(t, cat, 1)

	// Geographically adjacent launch and target.
	m := s.spawnICBM("p1", "", math.MakePoint2LL(41, -104), math.MakePoint2LL(41.1, -104.1))
	if m.FlightDurationMs != cat.Missile.MinFlightMs {
		t.Errorf("flight duration %d ms, want floor %d ms", m.FlightDurationMs, cat.Missile.MinFlightMs)
	}
}

func TestApexAltitudeGrowsWithDistance(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	// ~140 km hop: below the 9-degree arc floor, so the minimum apex.
	short := s.spawnICBM("p1", "", math.MakePoint2LL(41, -104), math.MakePoint2LL(42.25, -104))
	if short.ApexAltitudeKm != 75 {
		t.Errorf("short-range apex %.1f km, want 75", short.ApexAltitudeKm)
	}

	// Intercontinental shot spans well over 60 degrees of arc: full apex.
	long := s.spawnICBM("p1", "", math.MakePoint2LL(41, -104), math.MakePoint2LL(55.75, 37.6))
	if long.ApexAltitudeKm != 500 {
		t.Errorf("intercontinental apex %.1f km, want 500", long.ApexAltitudeKm)
	}
	if long.ApexAltitudeKm <= short.ApexAltitudeKm {
		t.Errorf("apex does not grow with distance: %.1f vs %.1f",
			short.ApexAltitudeKm, long.ApexAltitudeKm)
	}
}

func TestRailSearchWindow(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	launch := math.MakePoint2LL(55.75, 37.6)
	target := math.MakePoint2LL(38.9, -77.0)
	m := s.spawnICBM("p2", "", launch, target)

	// Near the end of the window there is no reachable point left.
	m.Progress = 0.84
	pos, _ := m.PositionAt(0.86)
	if rail := s.planInterceptRail(pos, m); rail != nil {
		t.Errorf("got rail at progress %f inside the terminal margin", rail.progress)
	}

	m.Progress = 0.95
	if rail := s.planInterceptRail(pos, m); rail != nil {
		t.Error("got rail for target past the intercept window")
	}

	// From halfway along the path, a silo sitting under it can intercept.
	m.Progress = 0.5
	under, _ := m.PositionAt(0.51)
	rail := s.planInterceptRail(under, m)
	if rail == nil {
		t.Fatal("no rail from directly beneath the flight path")
	}
	if rail.progress <= m.Progress || rail.progress > s.catalog.Interceptor.WindowMax {
		t.Errorf("intercept progress %f outside (%f, %f]",
			rail.progress, m.Progress, s.catalog.Interceptor.WindowMax)
	}
	// Earliest reachable point: within fuel and ahead of the target.
	if rail.flight > time.Duration(s.catalog.Interceptor.FuelSeconds)*time.Second {
		t.Errorf("rail flight %v exceeds fuel", rail.flight)
	}
}

func TestInterceptionHit(t *testing.T) {
	cat := loadTestCatalog(t)
	// Make the roll a certainty so the scenario is seed-independent, and
	// hold DEFCON 1 open for the whole intercontinental flight.
	cat.Interceptor.BaseMidcourse = 1
	cat.Interceptor.ClampMax = 1
	cat.Interceptor.Variance = 0
	cat.Defcon.DurationsMs[1] = (8 * time.Hour).Milliseconds()
	s := newTestSession(t, cat, 4)
	sub := s.Subscribe()

	s.PostCommand(DebugCommand{Player: "p1", Command: "set_defcon", Value: 1})
	tickOnce(s)

	// Long-duration enemy shot.
	launch := math.MakePoint2LL(55.75, 37.6)
	target := math.MakePoint2LL(38.9, -77.0)
	icbm := s.spawnICBM("p2", "", launch, target)

	for icbm.Progress < 0.5 {
		s.Step(10 * time.Second)
	}

	// Defense battery parked just ahead on the flight path, with a radar
	// alongside to hold the track.
	ahead, _ := icbm.PositionAt(math.Min(icbm.Progress+0.015, 0.8))
	s.Buildings["silo-d"] = &Building{
		Id: "silo-d", OwnerId: "p1", Type: BuildingSilo, Position: ahead,
		Mode: SiloModeDefend, InterceptorAmmo: 2,
	}
	s.Buildings["radar-d"] = &Building{
		Id: "radar-d", OwnerId: "p1", Type: BuildingRadar, Position: ahead,
		RangeKm: cat.Buildings.RadarRangeKm, Active: true,
	}

	s.PostCommand(ManualInterceptCommand{Player: "p1", TargetMissileId: icbm.Id,
		SiloIds: []string{"silo-d"}})
	tickOnce(s)

	if s.Buildings["silo-d"].InterceptorAmmo != 1 {
		t.Fatalf("interceptor ammo %d, want 1", s.Buildings["silo-d"].InterceptorAmmo)
	}

	for range 3000 {
		tickOnce(s)
		if len(s.Missiles) == 0 {
			break
		}
	}

	hits := eventsOfType(sub.Get(), InterceptionEvent)
	if len(hits) != 1 {
		t.Fatalf("%d interception events, want 1", len(hits))
	}
	if hits[0].TargetId != icbm.Id {
		t.Errorf("intercepted %s, want %s", hits[0].TargetId, icbm.Id)
	}
	if len(s.Missiles) != 0 {
		t.Errorf("%d missiles still in flight after interception", len(s.Missiles))
	}
}

func TestInterceptNeedsDefendMode(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	icbm := s.spawnICBM("p2", "", math.MakePoint2LL(55.75, 37.6), math.MakePoint2LL(38.9, -77.0))
	icbm.Progress = 0.5
	pos, _ := icbm.PositionAt(0.51)

	s.Buildings["silo-a"] = &Building{
		Id: "silo-a", OwnerId: "p1", Type: BuildingSilo, Position: pos,
		Mode: SiloModeAttack, InterceptorAmmo: 2,
	}
	if _, err := s.launchInterceptor("p1", "silo-a", icbm); err != ErrSiloWrongMode {
		t.Errorf("got %v, want ErrSiloWrongMode", err)
	}
}

func TestDetonationDamage(t *testing.T) {
	cat := loadTestCatalog(t)
	s := newTestSession(t, cat, 1)
	sub := s.Subscribe()

	moscow := s.Cities["moscow"]
	newYork := s.Cities["new_york"]
	popBefore := moscow.Population
	nyBefore := newYork.Population
	p2Before := s.Players["p2"].PopulationRemaining

	m := s.spawnICBM("p1", "", math.MakePoint2LL(41, -104), moscow.Position)
	m.Progress = 1
	s.detonate(m)

	if moscow.Population >= popBefore {
		t.Fatalf("moscow population %d not reduced from %d", moscow.Population, popBefore)
	}
	casualties := popBefore - moscow.Population
	want := int(float64(popBefore) * cat.Missile.DamageCoeff)
	if casualties != want {
		t.Errorf("ground-zero casualties %d, want %d", casualties, want)
	}

	// The blast radius is 1.2 degrees of arc; a city an ocean away must be
	// untouched.
	if newYork.Population != nyBefore {
		t.Errorf("new_york population %d changed by a strike on moscow, want %d",
			newYork.Population, nyBefore)
	}
	for _, b := range s.Buildings {
		if b.Destroyed && math.Degrees(math.AngularDistance(m.TargetGeo, b.Position)) > cat.Missile.BlastRadiusDeg {
			t.Errorf("building %s destroyed outside the blast radius", b.Id)
		}
	}

	if s.Players["p1"].Score != s.Players["p1"].EnemyKills {
		t.Errorf("score %d != kills %d", s.Players["p1"].Score, s.Players["p1"].EnemyKills)
	}
	lost := p2Before - s.Players["p2"].PopulationRemaining
	if lost != s.Players["p2"].PopulationLost {
		t.Errorf("defender lost %d but bookkeeping says %d", lost, s.Players["p2"].PopulationLost)
	}

	hitEvents := eventsOfType(sub.Get(), CityHitEvent)
	if len(hitEvents) == 0 {
		t.Error("no city_hit events")
	}
	for _, ev := range hitEvents {
		if ev.TargetId == "moscow" && ev.Amount != casualties {
			t.Errorf("city_hit amount %d, want %d", ev.Amount, casualties)
		}
	}
}

func TestGuidanceLossGrace(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	icbm := s.spawnICBM("p2", "", math.MakePoint2LL(55.75, 37.6), math.MakePoint2LL(38.9, -77.0))
	icbm.Progress = 0.4
	icbm.CurrentGeo, icbm.CurrentAltKm = icbm.PositionAt(icbm.Progress)

	interceptor := &Missile{
		Id: "i-test", OwnerId: "p1", Kind: MissileInterceptor,
		TargetMissileId: icbm.Id, HasGuidance: true, Status: MissileActive,
		FlightDurationMs: 60000, FuelSeconds: 120,
	}

	grace := time.Duration(s.catalog.Interceptor.GuidanceGraceMs) * time.Millisecond

	// No radars at all: the grace period runs down and guidance drops.
	s.updateGuidance(interceptor, grace)
	if !interceptor.HasGuidance {
		t.Fatal("guidance dropped immediately, want grace period")
	}
	s.SimTime = s.SimTime.Add(grace)
	s.updateGuidance(interceptor, grace)
	if interceptor.HasGuidance {
		t.Fatal("guidance survived past the grace period")
	}
}
