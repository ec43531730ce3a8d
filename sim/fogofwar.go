// sim/fogofwar.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/util"
)

// visibilitySet is the per-recipient fog-of-war result for one tick:
// entity ids the recipient is allowed to see. Cities are always visible
// and don't appear here.
type visibilitySet struct {
	buildings  map[string]bool
	missiles   map[string]bool
	satellites map[string]bool
}

// sensor is a radar or relay-linked satellite contributing coverage.
type sensor struct {
	position math.Point2LL
	rangeKm  float64
	isRadar  bool
}

// visibilityFor derives the recipient's visibility set: everything they
// own, plus foreign entities covered by an owned radar (whose horizon
// reaches the target's altitude) or by an owned satellite with a
// communication path back to ground.
func (s *GameSession) visibilityFor(pid PlayerId) visibilitySet {
	vis := visibilitySet{
		buildings:  make(map[string]bool),
		missiles:   make(map[string]bool),
		satellites: make(map[string]bool),
	}

	sensors := s.playerSensors(pid)
	covered := func(pos math.Point2LL, altKm float64) bool {
		for _, sn := range sensors {
			r := sn.rangeKm
			if sn.isRadar && altKm > 0 {
				r += math.RadarHorizonKm(altKm)
			}
			if math.KMDistance2LL(sn.position, pos) <= r {
				return true
			}
		}
		return false
	}

	// A completed reveal hack exposes the victim's entire building set
	// to the attacker while the effect lasts.
	revealedOwners := make(map[PlayerId]bool)
	for id, c := range s.Compromises {
		if c.HackType == "reveal_buildings" && c.AttackerId == pid && s.SimTime.Before(c.ExpiresAt) {
			if b, ok := s.Buildings[id]; ok {
				revealedOwners[b.OwnerId] = true
			}
		}
	}

	for id, b := range s.Buildings {
		if b.OwnerId == pid || revealedOwners[b.OwnerId] || covered(b.Position, 0) {
			vis.buildings[id] = true
		}
	}
	for id, m := range s.Missiles {
		if m.OwnerId == pid || covered(m.CurrentGeo, m.CurrentAltKm) {
			vis.missiles[id] = true
		}
	}
	for id, sat := range s.Satellites {
		if sat.OwnerId == pid || covered(sat.GroundPosition, sat.OrbitalAltitudeKm) {
			vis.satellites[id] = true
		}
	}
	return vis
}

// playerSensors collects the player's working radars and any satellites
// that can get their picture down: either directly over a friendly radar
// or through one relay satellite that is.
func (s *GameSession) playerSensors(pid PlayerId) []sensor {
	var sensors []sensor
	var radars []*Building
	for _, b := range s.sortedBuildings() {
		if b.OwnerId != pid || b.Type != BuildingRadar || b.Destroyed || !b.Active {
			continue
		}
		if s.compromiseActive(b.Id, "blind_radar") {
			continue
		}
		radars = append(radars, b)
		sensors = append(sensors, sensor{position: b.Position, rangeKm: b.RangeKm, isRadar: true})
	}

	relayKm := s.catalog.Satellite.RelayRangeKm
	visionKm := s.catalog.Satellite.VisionRangeKm

	directLink := func(sat *Satellite) bool {
		for _, r := range radars {
			if math.KMDistance2LL(sat.GroundPosition, r.Position) <= relayKm {
				return true
			}
		}
		return false
	}

	var direct, unlinked []*Satellite
	for _, id := range util.SortedMapKeys(s.Satellites) {
		sat := s.Satellites[id]
		if sat.OwnerId != pid || sat.Destroyed {
			continue
		}
		if directLink(sat) {
			direct = append(direct, sat)
		} else {
			unlinked = append(unlinked, sat)
		}
	}

	linked := direct
	// One relay hop: an unlinked satellite counts if it can reach a
	// directly linked one.
	for _, sat := range unlinked {
		for _, relay := range direct {
			if math.KMDistance2LL(sat.GroundPosition, relay.GroundPosition) <= relayKm {
				linked = append(linked, sat)
				break
			}
		}
	}

	for _, sat := range linked {
		sensors = append(sensors, sensor{position: sat.GroundPosition, rangeKm: visionKm})
	}
	return sensors
}
