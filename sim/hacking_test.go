// sim/hacking_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"slices"
	"testing"
	"time"

	"github.com/standoff-sim/standoff/math"
)

func TestShortestRoute(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	route := s.shortestRoute("ashburn", "moscow_ix")
	if route == nil {
		t.Fatal("no route ashburn -> moscow_ix")
	}
	if route[0] != "ashburn" || route[len(route)-1] != "moscow_ix" {
		t.Errorf("route endpoints wrong: %v", route)
	}
	if len(route) != 4 {
		t.Errorf("route %v has %d hops, want 4 nodes", route, len(route))
	}
	for i := 1; i < len(route); i++ {
		if !slices.Contains(s.netAdj[route[i-1]], route[i]) {
			t.Errorf("route step %s -> %s is not a link", route[i-1], route[i])
		}
	}

	// Second query comes from the cache and must agree.
	again := s.shortestRoute("ashburn", "moscow_ix")
	if !slices.Equal(route, again) {
		t.Errorf("cached route differs: %v vs %v", route, again)
	}

	if r := s.shortestRoute("ashburn", "ashburn"); len(r) != 1 {
		t.Errorf("self route %v, want single node", r)
	}
}

func hackTestSession(t *testing.T) (*GameSession, *Building) {
	t.Helper()
	s := newTestSession(t, loadTestCatalog(t), 1)

	s.PostCommand(PlaceBuildingCommand{Player: "p1", Kind: BuildingRadar,
		Position: math.MakePoint2LL(48, -100)})
	s.PostCommand(PlaceBuildingCommand{Player: "p2", Kind: BuildingRadar,
		Position: math.MakePoint2LL(56, 40)})
	tickOnce(s)

	target := findBuilding(s, "p2", BuildingRadar)
	if target == nil {
		t.Fatal("no target radar")
	}
	return s, target
}

func TestHackLifecycle(t *testing.T) {
	s, target := hackTestSession(t)
	sub := s.Subscribe()

	s.PostCommand(HackStartCommand{Player: "p1", TargetId: target.Id, HackType: "blind_radar"})
	tickOnce(s)

	if len(s.Hacks) != 1 {
		t.Fatalf("%d hacks, want 1", len(s.Hacks))
	}
	var hack *HackingTrace
	for _, h := range s.Hacks {
		hack = h
	}
	if hack.Status != HackRouting {
		t.Errorf("status %q, want routing", hack.Status)
	}
	if len(hack.RouteNodeIds) < 2 {
		t.Errorf("route %v too short", hack.RouteNodeIds)
	}

	// A duplicate attempt against the same target and effect is refused.
	s.PostCommand(HackStartCommand{Player: "p1", TargetId: target.Id, HackType: "blind_radar"})
	tickOnce(s)
	if len(s.Hacks) != 1 {
		t.Fatalf("duplicate hack accepted")
	}

	// blind_radar completes in 45s of simulated time.
	s.Step(50 * time.Second)

	if len(s.Hacks) != 0 {
		t.Fatalf("hack still live after completion window")
	}
	if !s.compromiseActive(target.Id, "blind_radar") {
		t.Fatal("no blind_radar compromise on target")
	}

	events := sub.Get()
	if got := eventsOfType(events, HackCompleteEvent); len(got) != 1 || got[0].ToPlayer != "p1" {
		t.Errorf("hack_complete events: %+v", got)
	}
	if got := eventsOfType(events, SystemCompromisedEvent); len(got) != 1 || got[0].ToPlayer != "p2" {
		t.Errorf("system_compromised events: %+v", got)
	}
	if got := eventsOfType(events, IntrusionAlertEvent); len(got) != 1 || got[0].ToPlayer != "p2" {
		t.Errorf("intrusion_alert events: %+v", got)
	}

	// A blinded radar contributes nothing to tracking or fog of war.
	if ids := s.trackingRadars("p2", target.Position, 0); len(ids) != 0 {
		t.Errorf("blinded radar still tracking: %v", ids)
	}

	// The effect expires after its TTL.
	ttl := time.Duration(s.catalog.Hacking.Types["blind_radar"].EffectTTLMs) * time.Millisecond
	s.SimTime = s.SimTime.Add(ttl)
	s.expireCompromises()
	if s.compromiseActive(target.Id, "blind_radar") {
		t.Error("compromise survived its TTL")
	}
}

func TestHackTraced(t *testing.T) {
	s, target := hackTestSession(t)
	sub := s.Subscribe()

	h, err := s.startHack("p1", target.Id, "blind_radar", nil)
	if err != nil {
		t.Fatal(err)
	}
	h.Status = HackActive
	h.TraceProgress = 0.999
	h.Progress = 0.1 // far from done when the trace lands

	tickOnce(s)

	if len(s.Hacks) != 0 {
		t.Fatal("traced hack still live")
	}
	if s.compromiseActive(target.Id, "blind_radar") {
		t.Error("compromise applied despite trace")
	}

	traced := eventsOfType(sub.Get(), HackTracedEvent)
	if len(traced) != 2 {
		t.Fatalf("%d hack_traced events, want 2 (defender and attacker)", len(traced))
	}
	var defenderSaw bool
	for _, ev := range traced {
		if ev.ToPlayer == "p2" && ev.Player == "p1" {
			defenderSaw = true
		}
	}
	if !defenderSaw {
		t.Error("defender notification does not name the attacker")
	}
}

func TestHackDisconnectAndPurge(t *testing.T) {
	s, target := hackTestSession(t)

	h, err := s.startHack("p1", target.Id, "delay_silo", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.disconnectHack("p2", h.Id); err != ErrNotAuthorized {
		t.Errorf("foreign disconnect: got %v, want ErrNotAuthorized", err)
	}
	if err := s.disconnectHack("p1", h.Id); err != nil {
		t.Errorf("disconnect failed: %v", err)
	}
	if len(s.Hacks) != 0 {
		t.Error("hack still live after disconnect")
	}

	s.Compromises[target.Id] = &Compromise{
		BuildingId: target.Id, HackType: "blind_radar", AttackerId: "p1",
		ExpiresAt: s.SimTime.Add(time.Minute),
	}
	if err := s.purgeCompromise("p1", target.Id); err != ErrNotAuthorized {
		t.Errorf("foreign purge: got %v, want ErrNotAuthorized", err)
	}
	if err := s.purgeCompromise("p2", target.Id); err != nil {
		t.Errorf("purge failed: %v", err)
	}
	if _, ok := s.Compromises[target.Id]; ok {
		t.Error("compromise survived purge")
	}
}

func TestHackScanVisibility(t *testing.T) {
	s, _ := hackTestSession(t)

	// Nothing is revealed at DEFCON 5.
	revealed, err := s.HackScan("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(revealed) != 0 {
		t.Fatalf("scan revealed %d buildings at DEFCON 5", len(revealed))
	}

	s.PostCommand(DebugCommand{Player: "p1", Command: "set_defcon", Value: 3})
	tickOnce(s)

	revealed, err = s.HackScan("p1")
	if err != nil {
		t.Fatal(err)
	}
	limit := s.catalog.Hacking.ScanVisibility[3]
	perOwner := make(map[PlayerId]int)
	for _, b := range revealed {
		if b.OwnerId == "p1" {
			t.Errorf("scan returned own building %s", b.Id)
		}
		perOwner[b.OwnerId]++
	}
	for owner, n := range perOwner {
		if n > limit {
			t.Errorf("scan revealed %d of %s's buildings, limit %d", n, owner, limit)
		}
	}
}

func TestDelaySiloBlocksLaunch(t *testing.T) {
	s := newTestSession(t, loadTestCatalog(t), 1)

	s.PostCommand(PlaceBuildingCommand{Player: "p1", Kind: BuildingSilo,
		Position: math.MakePoint2LL(41, -104)})
	tickOnce(s)
	silo := findBuilding(s, "p1", BuildingSilo)
	silo.Mode = SiloModeAttack

	s.PostCommand(DebugCommand{Player: "p1", Command: "set_defcon", Value: 1})
	tickOnce(s)

	s.Compromises[silo.Id] = &Compromise{
		BuildingId: silo.Id, HackType: "delay_silo", AttackerId: "p2",
		ExpiresAt: s.SimTime.Add(time.Minute),
	}

	if _, err := s.launchMissile("p1", silo.Id, math.MakePoint2LL(55.75, 37.6)); err != ErrSiloCompromised {
		t.Errorf("got %v, want ErrSiloCompromised", err)
	}
}
