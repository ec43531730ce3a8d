// sim/hacking.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"slices"
	"time"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/util"

	"github.com/brunoga/deep"
)

func buildNetworkAdjacency(cat *catalog.Catalog) map[string][]string {
	adj := make(map[string][]string)
	for _, link := range cat.Network.Links {
		adj[link[0]] = append(adj[link[0]], link[1])
		adj[link[1]] = append(adj[link[1]], link[0])
	}
	// Stable neighbor order keeps route finding deterministic.
	for _, neighbors := range adj {
		slices.Sort(neighbors)
	}
	return adj
}

type routeKey struct {
	from, to string
}

// shortestRoute finds a minimum-hop path through the hacking network.
// Routes over the static graph never change, so results are kept in a
// bounded LRU cache shared by all players in the session.
func (s *GameSession) shortestRoute(from, to string) []string {
	if route, ok := s.routeCache.Get(routeKey{from, to}); ok {
		return route
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 && prev[to] == "" && to != from {
		n := queue[0]
		queue = queue[1:]
		for _, m := range s.netAdj[n] {
			if _, seen := prev[m]; !seen {
				prev[m] = n
				queue = append(queue, m)
			}
		}
	}

	if _, ok := prev[to]; !ok {
		return nil
	}
	var route []string
	for n := to; n != ""; n = prev[n] {
		route = append(route, n)
	}
	slices.Reverse(route)

	s.routeCache.Add(routeKey{from, to}, route)
	return route
}

// validRoute reports whether the given node sequence is a connected path
// in the network.
func (s *GameSession) validRoute(route []string) bool {
	if len(route) == 0 {
		return false
	}
	for i, n := range route {
		if _, ok := s.catalog.Network.Nodes[n]; !ok {
			return false
		}
		if i > 0 && !slices.Contains(s.netAdj[route[i-1]], n) {
			return false
		}
	}
	return true
}

// sourceNodeFor picks the network node a player's hacks originate from:
// the node nearest their first surviving building, or their territory's
// first starting position if nothing stands.
func (s *GameSession) sourceNodeFor(pid PlayerId) *catalog.HackingNode {
	var origin math.Point2LL
	found := false
	for _, b := range s.sortedBuildings() {
		if b.OwnerId == pid && !b.Destroyed {
			origin, found = b.Position, true
			break
		}
	}
	if !found {
		p, ok := s.Players[pid]
		if !ok {
			return nil
		}
		terr := s.catalog.Territories[p.TerritoryId]
		if terr == nil || len(terr.StartingPositions) == 0 {
			return nil
		}
		origin = terr.StartingPositions[0].Position
	}
	return s.catalog.NearestNode(origin)
}

func (s *GameSession) startHack(pid PlayerId, targetId, hackType string, route []string) (*HackingTrace, error) {
	if _, ok := s.catalog.Hacking.Types[hackType]; !ok {
		return nil, ErrUnknownHackType
	}
	target, ok := s.Buildings[targetId]
	if !ok || target.Destroyed {
		return nil, ErrNoSuchBuilding
	}
	if target.OwnerId == pid {
		return nil, ErrNotAuthorized
	}

	// One hack with a given effect per attacker and target at a time.
	for _, h := range s.Hacks {
		if h.AttackerPlayerId == pid && h.TargetBuildingId == targetId && h.HackType == hackType {
			return nil, ErrTargetAlreadyHacked
		}
	}

	if len(route) == 0 {
		src := s.sourceNodeFor(pid)
		dst := s.catalog.NearestNode(target.Position)
		if src == nil || dst == nil {
			return nil, ErrInvalidRoute
		}
		route = s.shortestRoute(src.Id, dst.Id)
		if route == nil {
			return nil, ErrInvalidRoute
		}
	} else if !s.validRoute(route) {
		return nil, ErrInvalidRoute
	}

	h := &HackingTrace{
		Id:               s.makeEntityId("h"),
		AttackerPlayerId: pid,
		TargetBuildingId: targetId,
		HackType:         hackType,
		Status:           HackRouting,
		RouteNodeIds:     slices.Clone(route),
	}
	s.Hacks[h.Id] = h

	s.lg.Debug("hack started", slog.String("attacker", string(pid)),
		slog.String("target", targetId), slog.String("type", hackType),
		slog.Int("route_len", len(route)))
	return h, nil
}

func (s *GameSession) disconnectHack(pid PlayerId, hackId string) error {
	h, ok := s.Hacks[hackId]
	if !ok {
		return ErrNoSuchHack
	}
	if h.AttackerPlayerId != pid {
		return ErrNotAuthorized
	}

	delete(s.Hacks, hackId)
	s.postEvent(Event{
		Type:     HackDisconnectedEvent,
		ToPlayer: pid,
		EntityId: hackId,
	})
	return nil
}

func (s *GameSession) purgeCompromise(pid PlayerId, targetId string) error {
	b, ok := s.Buildings[targetId]
	if !ok {
		return ErrNoSuchBuilding
	}
	if b.OwnerId != pid {
		return ErrNotAuthorized
	}
	delete(s.Compromises, targetId)
	return nil
}

// HackScan reveals a slice of each enemy's buildings; how many is a
// function of the current DEFCON level. The result goes to the requester
// only and is not folded into their fog-of-war set.
func (s *GameSession) HackScan(pid PlayerId) ([]Building, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if _, ok := s.Players[pid]; !ok {
		return nil, ErrNoSuchPlayer
	}

	n := s.catalog.Hacking.ScanVisibility[s.DefconLevel]
	if n <= 0 {
		return nil, nil
	}

	perPlayer := make(map[PlayerId]int)
	var revealed []Building
	for _, b := range s.sortedBuildings() {
		if b.OwnerId == pid || b.Destroyed || perPlayer[b.OwnerId] >= n {
			continue
		}
		perPlayer[b.OwnerId]++
		revealed = append(revealed, deep.MustCopy(*b))
	}
	return revealed, nil
}

// TraceReport describes one intrusion from the defender's side; the
// attacker's identity is withheld until the trace completes.
type TraceReport struct {
	HackId           string   `json:"hackId"`
	TargetBuildingId string   `json:"targetBuildingId"`
	HackType         string   `json:"hackType"`
	TraceProgress    float64  `json:"traceProgress"`
	AttackerPlayerId PlayerId `json:"attackerPlayerId,omitempty"`
}

// HackTraceReport lists the intrusions currently running against the
// player's buildings that have accrued any trace progress.
func (s *GameSession) HackTraceReport(pid PlayerId) []TraceReport {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	var reports []TraceReport
	for _, id := range util.SortedMapKeys(s.Hacks) {
		h := s.Hacks[id]
		target, ok := s.Buildings[h.TargetBuildingId]
		if !ok || target.OwnerId != pid || h.TraceProgress <= 0 {
			continue
		}
		r := TraceReport{
			HackId:           h.Id,
			TargetBuildingId: h.TargetBuildingId,
			HackType:         h.HackType,
			TraceProgress:    h.TraceProgress,
		}
		if h.Status == HackTraced {
			r.AttackerPlayerId = h.AttackerPlayerId
		}
		reports = append(reports, r)
	}
	return reports
}

// tracePerSec scales the baseline trace rate down for longer routes;
// deep routes are slower to trace but also slower to pay off.
func (s *GameSession) tracePerSec(routeLen int) float64 {
	cfg := s.catalog.Hacking
	rate := cfg.TraceBasePerSec * float64(6-routeLen) / 5
	return math.Max(rate, cfg.TraceMinPerSec)
}

func (s *GameSession) updateHacking(dt time.Duration) {
	dtSec := dt.Seconds()

	for _, id := range util.SortedMapKeys(s.Hacks) {
		h := s.Hacks[id]

		target, ok := s.Buildings[h.TargetBuildingId]
		if !ok || target.Destroyed {
			delete(s.Hacks, id)
			continue
		}

		if h.Status == HackRouting {
			h.Status = HackActive
			continue
		}
		if h.Status != HackActive {
			continue
		}

		cfg := s.catalog.Hacking.Types[h.HackType]
		prevStep := int(h.Progress * 20)
		h.Progress = math.Clamp(h.Progress+cfg.ProgressPerSec*dtSec, 0, 1)
		h.TraceProgress = math.Clamp(h.TraceProgress+s.tracePerSec(len(h.RouteNodeIds))*dtSec, 0, 1)

		// The defender learns something is probing them as soon as the
		// trace starts accruing, but not who.
		if h.TraceProgress > 0 && !h.AlertSent {
			h.AlertSent = true
			s.postEvent(Event{
				Type:     IntrusionAlertEvent,
				ToPlayer: target.OwnerId,
				EntityId: h.Id,
				TargetId: h.TargetBuildingId,
			})
		}

		if h.TraceProgress >= 1 {
			h.Status = HackTraced
			s.lg.Info("hack traced", slog.String("attacker", string(h.AttackerPlayerId)),
				slog.String("target", h.TargetBuildingId))
			s.postEvent(Event{
				Type:     HackTracedEvent,
				ToPlayer: target.OwnerId,
				Player:   h.AttackerPlayerId,
				EntityId: h.Id,
				TargetId: h.TargetBuildingId,
			})
			s.postEvent(Event{
				Type:     HackTracedEvent,
				ToPlayer: h.AttackerPlayerId,
				EntityId: h.Id,
			})
			delete(s.Hacks, id)
			continue
		}

		if h.Progress >= 1 {
			h.Status = HackComplete
			s.Compromises[h.TargetBuildingId] = &Compromise{
				BuildingId: h.TargetBuildingId,
				HackType:   h.HackType,
				AttackerId: h.AttackerPlayerId,
				ExpiresAt:  s.SimTime.Add(time.Duration(cfg.EffectTTLMs) * time.Millisecond),
			}

			s.lg.Info("hack complete", slog.String("attacker", string(h.AttackerPlayerId)),
				slog.String("target", h.TargetBuildingId), slog.String("type", h.HackType))
			s.postEvent(Event{
				Type:     HackCompleteEvent,
				ToPlayer: h.AttackerPlayerId,
				EntityId: h.Id,
				TargetId: h.TargetBuildingId,
				HackType: h.HackType,
			})
			s.postEvent(Event{
				Type:     SystemCompromisedEvent,
				ToPlayer: target.OwnerId,
				TargetId: h.TargetBuildingId,
				HackType: h.HackType,
			})
			delete(s.Hacks, id)
			continue
		}

		// Coarse progress reports to the attacker at 5% steps.
		if int(h.Progress*20) != prevStep {
			s.postEvent(Event{
				Type:     HackProgressEvent,
				ToPlayer: h.AttackerPlayerId,
				EntityId: h.Id,
				Progress: h.Progress,
			})
		}
	}
}
