// sim/delta.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"reflect"

	"github.com/standoff-sim/standoff/util"

	"github.com/brunoga/deep"
)

// GameDelta is one tick's worth of changes as seen by one recipient:
// entities that appeared or changed inside their visibility set, ids
// that left it, and the ordered events generated since their last delta.
type GameDelta struct {
	Tick        int64 `json:"tick"`
	TimestampMs int64 `json:"timestamp"`

	Events []Event `json:"events,omitempty"`

	BuildingUpdates     []Building  `json:"buildingUpdates,omitempty"`
	MissileUpdates      []Missile   `json:"missileUpdates,omitempty"`
	RemovedMissileIds   []string    `json:"removedMissileIds,omitempty"`
	SatelliteUpdates    []Satellite `json:"satelliteUpdates,omitempty"`
	RemovedSatelliteIds []string    `json:"removedSatelliteIds,omitempty"`
}

// StateUpdate is a complete view of the session for one recipient; it
// backs game_start and the full snapshots late joiners receive.
type StateUpdate struct {
	Tick        int64 `json:"tick"`
	TimestampMs int64 `json:"timestamp"`

	DefconLevel       int   `json:"defconLevel"`
	DefconMsRemaining int64 `json:"defconMsRemaining"`
	GameSpeed         int   `json:"gameSpeed"`
	GameOver          bool  `json:"gameOver,omitempty"`

	Players     map[PlayerId]*Player  `json:"players"`
	Territories map[string]*Territory `json:"territories"`
	Cities      map[string]*City      `json:"cities"`
	Buildings   []Building            `json:"buildings"`
	Missiles    []Missile             `json:"missiles"`
	Satellites  []Satellite           `json:"satellites"`
}

// recipientState tracks what has already been emitted to one player so
// the next delta can be computed against it.
type recipientState struct {
	sub            *EventsSubscription
	prevBuildings  map[string]Building
	prevMissiles   map[string]Missile
	prevSatellites map[string]Satellite
}

func (s *GameSession) recipientFor(pid PlayerId) *recipientState {
	r, ok := s.recipients[pid]
	if !ok {
		r = &recipientState{
			sub:            s.eventStream.Subscribe(),
			prevBuildings:  make(map[string]Building),
			prevMissiles:   make(map[string]Missile),
			prevSatellites: make(map[string]Satellite),
		}
		s.recipients[pid] = r
	}
	return r
}

// GetStateUpdate returns the recipient's full fog-filtered snapshot.
func (s *GameSession) GetStateUpdate(pid PlayerId) StateUpdate {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	vis := s.visibilityFor(pid)

	update := StateUpdate{
		Tick:              s.Tick,
		TimestampMs:       s.SimTime.UnixMilli(),
		DefconLevel:       s.DefconLevel,
		DefconMsRemaining: s.DefconRemaining.Milliseconds(),
		GameSpeed:         s.GameSpeed,
		GameOver:          s.GameOver,
		Players:           s.Players,
		Territories:       s.Territories,
		Cities:            s.Cities,
	}
	for _, b := range s.sortedBuildings() {
		if vis.buildings[b.Id] {
			update.Buildings = append(update.Buildings, *b)
		}
	}
	for _, m := range s.sortedMissiles() {
		if vis.missiles[m.Id] {
			update.Missiles = append(update.Missiles, *m)
		}
	}
	for _, id := range util.SortedMapKeys(s.Satellites) {
		if vis.satellites[id] {
			update.Satellites = append(update.Satellites, *s.Satellites[id])
		}
	}

	// The copy protects against mutation between this returning and the
	// update being marshaled for the wire.
	return deep.MustCopy(update)
}

// GetDelta computes the recipient's delta since their previous call. The
// first call returns everything visible. Events are delivered exactly
// once and in posting order.
func (s *GameSession) GetDelta(pid PlayerId) GameDelta {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	r := s.recipientFor(pid)
	vis := s.visibilityFor(pid)

	delta := GameDelta{
		Tick:        s.Tick,
		TimestampMs: s.SimTime.UnixMilli(),
	}

	for _, ev := range r.sub.Get() {
		if s.eventVisible(ev, pid, vis) {
			delta.Events = append(delta.Events, ev)
		}
	}

	seenBuildings := make(map[string]bool)
	for _, b := range s.sortedBuildings() {
		if !vis.buildings[b.Id] {
			continue
		}
		seenBuildings[b.Id] = true
		if prev, ok := r.prevBuildings[b.Id]; !ok || !reflect.DeepEqual(prev, *b) {
			cp := deep.MustCopy(*b)
			delta.BuildingUpdates = append(delta.BuildingUpdates, cp)
			r.prevBuildings[b.Id] = cp
		}
	}
	for id := range r.prevBuildings {
		// Out-of-sight buildings are simply dropped from tracking; the
		// client keeps its last known picture of them.
		if !seenBuildings[id] {
			delete(r.prevBuildings, id)
		}
	}

	seenMissiles := make(map[string]bool)
	for _, m := range s.sortedMissiles() {
		if !vis.missiles[m.Id] {
			continue
		}
		seenMissiles[m.Id] = true
		prev, known := r.prevMissiles[m.Id]
		if !known && m.OwnerId != pid {
			// First sight of a foreign missile.
			delta.Events = append(delta.Events, Event{
				Type:     LaunchDetectedEvent,
				Tick:     s.Tick,
				Player:   m.OwnerId,
				EntityId: m.Id,
				Position: m.CurrentGeo,
			})
		}
		if !known || !reflect.DeepEqual(prev, *m) {
			cp := deep.MustCopy(*m)
			delta.MissileUpdates = append(delta.MissileUpdates, cp)
			r.prevMissiles[m.Id] = cp
		}
	}
	for id := range util.SortedMap(r.prevMissiles) {
		if !seenMissiles[id] {
			delta.RemovedMissileIds = append(delta.RemovedMissileIds, id)
			delete(r.prevMissiles, id)
		}
	}

	seenSatellites := make(map[string]bool)
	for _, id := range util.SortedMapKeys(s.Satellites) {
		if !vis.satellites[id] {
			continue
		}
		seenSatellites[id] = true
		sat := s.Satellites[id]
		if prev, ok := r.prevSatellites[id]; !ok || !reflect.DeepEqual(prev, *sat) {
			cp := deep.MustCopy(*sat)
			delta.SatelliteUpdates = append(delta.SatelliteUpdates, cp)
			r.prevSatellites[id] = cp
		}
	}
	for id := range util.SortedMap(r.prevSatellites) {
		if !seenSatellites[id] {
			delta.RemovedSatelliteIds = append(delta.RemovedSatelliteIds, id)
			delete(r.prevSatellites, id)
		}
	}

	return delta
}

// eventVisible applies per-recipient event filtering: targeted events go
// only to their target; global events go to everyone; entity-scoped
// events require the entity (or its position) to be visible.
func (s *GameSession) eventVisible(ev Event, pid PlayerId, vis visibilitySet) bool {
	if ev.ToPlayer != "" {
		return ev.ToPlayer == pid
	}

	switch ev.Type {
	case DefconChangeEvent, GameEndEvent, CityHitEvent:
		// Cities are always visible; everyone sees the strike.
		return true
	case MissileLaunchEvent:
		// The launch flash is the owner's; others learn of the missile
		// through launch_detected when it enters their picture.
		return ev.Player == pid
	case BuildingDestroyedEvent:
		return ev.Player == pid || PlayerId(ev.TargetId) == pid || vis.buildings[ev.EntityId]
	case InterceptionEvent:
		return ev.Player == pid || vis.missiles[ev.EntityId] || vis.missiles[ev.TargetId]
	case SatelliteLaunchEvent, SatelliteDestroyedEvent:
		return ev.Player == pid || vis.satellites[ev.EntityId]
	default:
		return true
	}
}

// DropRecipient releases the delta bookkeeping for a departed player.
func (s *GameSession) DropRecipient(pid PlayerId) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	if r, ok := s.recipients[pid]; ok {
		r.sub.Unsubscribe()
		delete(s.recipients, pid)
	}
}
