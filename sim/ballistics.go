// sim/ballistics.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	"github.com/standoff-sim/standoff/math"
)

// railSearchStep is the progress increment used when searching the
// target's future path for a reachable intercept point.
const railSearchStep = 0.01

func (s *GameSession) launchMissile(pid PlayerId, siloId string, target math.Point2LL) (*Missile, error) {
	silo, ok := s.Buildings[siloId]
	if !ok || silo.Type != BuildingSilo || silo.Destroyed {
		return nil, ErrNoSuchBuilding
	}
	if silo.OwnerId != pid {
		return nil, ErrNotAuthorized
	}
	if s.DefconLevel != 1 {
		return nil, ErrNotInDefconWindow
	}
	if silo.Mode != SiloModeAttack {
		return nil, ErrSiloWrongMode
	}
	if silo.MissileAmmo <= 0 {
		return nil, ErrNoAmmo
	}
	if s.compromiseActive(siloId, "delay_silo") {
		return nil, ErrSiloCompromised
	}

	silo.MissileAmmo--
	silo.LastFireTime = s.SimTime

	m := s.spawnICBM(pid, siloId, silo.Position, target)
	return m, nil
}

func (s *GameSession) spawnICBM(pid PlayerId, siloId string, launch, target math.Point2LL) *Missile {
	cfg := s.catalog.Missile

	angularDeg := math.Degrees(math.AngularDistance(launch, target))
	distKm := math.KMDistance2LL(launch, target)
	flight := time.Duration(distKm/cfg.SpeedKmH*3600) * time.Second
	// Keep even point-blank shots on screen long enough to react to.
	flight = max(flight, time.Duration(cfg.MinFlightMs)*time.Millisecond)

	m := &Missile{
		Id:               s.makeEntityId("m"),
		OwnerId:          pid,
		Kind:             MissileICBM,
		LaunchGeo:        launch,
		TargetGeo:        target,
		CurrentGeo:       launch,
		LaunchTick:       s.Tick,
		FlightDurationMs: flight.Milliseconds(),
		ApexAltitudeKm:   math.ApexAltitudeKm(angularDeg),
		SourceSiloId:     siloId,
	}
	s.Missiles[m.Id] = m

	s.lg.Info("missile launch", slog.String("player", string(pid)),
		slog.String("missile", m.Id), slog.Duration("flight", flight))
	s.postEvent(Event{
		Type:     MissileLaunchEvent,
		Player:   pid,
		EntityId: m.Id,
		Position: launch,
	})
	return m
}

///////////////////////////////////////////////////////////////////////////
// Interception

// interceptRail is a computed launch-to-intercept trajectory.
type interceptRail struct {
	endGeo   math.Point2LL
	endAltKm float64
	flight   time.Duration
	progress float64 // target progress at the intercept point
}

// planInterceptRail searches the target's future path for the earliest
// point the interceptor can reach in time. Intercepts are confined to
// the window portion of the target's arc and must lie ahead of its
// current progress; returns nil if no point qualifies.
func (s *GameSession) planInterceptRail(from math.Point2LL, target *Missile) *interceptRail {
	cfg := s.catalog.Interceptor

	pStart := max(cfg.WindowMin, target.Progress+railSearchStep)
	for p := pStart; p <= cfg.WindowMax; p += railSearchStep {
		pos, alt := target.PositionAt(p)
		arrival := target.TimeToProgress(p)

		distKm := math.KMDistance2LL(from, pos)
		travel := time.Duration(distKm/cfg.SpeedKmH*3600) * time.Second

		if travel <= arrival && arrival <= time.Duration(cfg.FuelSeconds)*time.Second {
			return &interceptRail{endGeo: pos, endAltKm: alt, flight: arrival, progress: p}
		}
	}
	return nil
}

func (s *GameSession) manualIntercept(pid PlayerId, targetMissileId string, siloIds []string) error {
	target, ok := s.Missiles[targetMissileId]
	if !ok {
		return s.interceptSatellite(pid, targetMissileId, siloIds)
	}
	if target.Kind != MissileICBM || target.Intercepted || target.Detonated {
		return ErrNoSuchMissile
	}

	var lastErr error
	launched := 0
	for _, siloId := range siloIds {
		if _, err := s.launchInterceptor(pid, siloId, target); err != nil {
			lastErr = err
		} else {
			launched++
		}
	}
	if launched == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (s *GameSession) launchInterceptor(pid PlayerId, siloId string, target *Missile) (*Missile, error) {
	silo, ok := s.Buildings[siloId]
	if !ok || silo.Type != BuildingSilo || silo.Destroyed {
		return nil, ErrNoSuchBuilding
	}
	if silo.OwnerId != pid {
		return nil, ErrNotAuthorized
	}
	if silo.Mode != SiloModeDefend {
		return nil, ErrSiloWrongMode
	}
	if silo.InterceptorAmmo <= 0 {
		return nil, ErrNoAmmo
	}
	if s.compromiseActive(siloId, "delay_silo") {
		return nil, ErrSiloCompromised
	}

	rail := s.planInterceptRail(silo.Position, target)
	if rail == nil {
		return nil, ErrNoInterceptSolution
	}

	silo.InterceptorAmmo--
	silo.LastFireTime = s.SimTime

	cfg := s.catalog.Interceptor
	m := &Missile{
		Id:               s.makeEntityId("i"),
		OwnerId:          pid,
		Kind:             MissileInterceptor,
		LaunchGeo:        silo.Position,
		TargetGeo:        rail.endGeo,
		CurrentGeo:       silo.Position,
		LaunchTick:       s.Tick,
		FlightDurationMs: rail.flight.Milliseconds(),
		ApexAltitudeKm:   rail.endAltKm,
		SourceSiloId:     siloId,
		TargetMissileId:  target.Id,
		RailStartGeo:     silo.Position,
		RailEndGeo:       rail.endGeo,
		RailEndAltKm:     rail.endAltKm,
		FuelSeconds:      cfg.FuelSeconds,
		HasGuidance:      true,
		Status:           MissileActive,
	}
	s.Missiles[m.Id] = m

	s.lg.Info("interceptor launch", slog.String("player", string(pid)),
		slog.String("interceptor", m.Id), slog.String("target", target.Id),
		slog.Duration("flight", rail.flight))
	s.postEvent(Event{
		Type:     MissileLaunchEvent,
		Player:   pid,
		EntityId: m.Id,
		TargetId: target.Id,
		Position: silo.Position,
	})
	return m, nil
}

// InterceptOption describes one silo's ability to engage a missile; it
// backs the intercept info query.
type InterceptOption struct {
	SiloId            string  `json:"siloId"`
	Feasible          bool    `json:"feasible"`
	HitProbability    float64 `json:"hitProbability,omitempty"`
	InterceptProgress float64 `json:"interceptProgress,omitempty"`
}

// RequestInterceptInfo reports, for each of the player's defense silos,
// whether an intercept of the given missile is feasible and the estimated
// hit probability. Estimates omit the random variance term.
func (s *GameSession) RequestInterceptInfo(pid PlayerId, targetMissileId string) ([]InterceptOption, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	target, ok := s.Missiles[targetMissileId]
	if !ok || target.Kind != MissileICBM {
		return nil, ErrNoSuchMissile
	}

	var options []InterceptOption
	for _, silo := range s.sortedBuildings() {
		if silo.OwnerId != pid || silo.Type != BuildingSilo || silo.Destroyed ||
			silo.Mode != SiloModeDefend || silo.InterceptorAmmo <= 0 {
			continue
		}

		opt := InterceptOption{SiloId: silo.Id}
		if rail := s.planInterceptRail(silo.Position, target); rail != nil {
			opt.Feasible = true
			opt.InterceptProgress = rail.progress

			pos, alt := target.PositionAt(rail.progress)
			radars := s.trackingRadars(pid, pos, alt)
			fuelFrac := 1 - rail.flight.Seconds()/s.catalog.Interceptor.FuelSeconds
			opt.HitProbability = s.interceptProbability(target, rail.progress, len(radars), fuelFrac, 0)
		}
		options = append(options, opt)
	}
	return options, nil
}

// interceptProbability evaluates the hit model at the given target
// progress. variance is the pre-rolled random offset, zero for estimates.
func (s *GameSession) interceptProbability(target *Missile, progress float64, nRadars int, fuelFrac, variance float64) float64 {
	cfg := s.catalog.Interceptor

	var base float64
	boost, reentry := target.phaseFractions()
	switch {
	case progress < boost:
		base = cfg.BaseBoost
	case progress > 1-reentry:
		base = cfg.BaseReentry
	default:
		base = cfg.BaseMidcourse
	}

	p := base
	if nRadars > 1 {
		p += math.Min(cfg.MaxRadarBonus, float64(nRadars-1)*cfg.PerRadarBonus)
	}
	if fuelFrac < cfg.LowFuelFraction {
		p -= cfg.LowFuelPenalty
	}
	p += variance

	return math.Clamp(p, cfg.ClampMin, cfg.ClampMax)
}

// trackingRadars returns the ids of the player's radars that currently
// cover the given position, accounting for the radar horizon at the
// target's altitude. Blinded radars don't track.
func (s *GameSession) trackingRadars(pid PlayerId, pos math.Point2LL, altKm float64) []string {
	var ids []string
	for _, b := range s.sortedBuildings() {
		if b.OwnerId != pid || b.Type != BuildingRadar || b.Destroyed || !b.Active {
			continue
		}
		if s.compromiseActive(b.Id, "blind_radar") {
			continue
		}
		if math.KMDistance2LL(b.Position, pos) <= b.RangeKm+math.RadarHorizonKm(altKm) {
			ids = append(ids, b.Id)
		}
	}
	return ids
}

///////////////////////////////////////////////////////////////////////////
// Per-tick update

func (s *GameSession) updateBallistics(dt time.Duration) {
	grace := time.Duration(s.catalog.Interceptor.GuidanceGraceMs) * time.Millisecond

	for _, m := range s.sortedMissiles() {
		if m.Intercepted || m.Detonated || m.Status == MissileCrashed {
			continue
		}

		m.Progress = math.Clamp(m.Progress+float64(dt.Milliseconds())/float64(m.FlightDurationMs), 0, 1)

		switch m.Kind {
		case MissileICBM:
			m.CurrentGeo, m.CurrentAltKm = m.PositionAt(m.Progress)
			if m.Progress >= 1 {
				s.detonate(m)
			}

		case MissileInterceptor:
			m.CurrentGeo = math.LerpGC(m.Progress, m.RailStartGeo, m.RailEndGeo)
			m.CurrentAltKm = m.RailEndAltKm * math.EaseInSine(m.Progress)

			switch m.Status {
			case MissileActive:
				s.updateGuidance(m, grace)
				if m.Progress >= 1 {
					s.resolveIntercept(m)
				}
			case MissileMissed:
				if !s.SimTime.Before(m.MissDeadline) {
					m.Status = MissileCrashed
				}
			}
		}
	}

	// Resolved missiles leave the world in the same tick their flag was
	// set; the per-recipient deltas report them as removed.
	for id, m := range s.Missiles {
		if m.Intercepted || m.Detonated || m.Status == MissileCrashed || m.Status == MissileHit {
			delete(s.Missiles, id)
		}
	}
}

func (s *GameSession) updateGuidance(m *Missile, grace time.Duration) {
	if !m.HasGuidance {
		return
	}

	var targetPos math.Point2LL
	var targetAlt float64
	if target, ok := s.Missiles[m.TargetMissileId]; ok {
		targetPos, targetAlt = target.CurrentGeo, target.CurrentAltKm
	} else if sat, ok := s.Satellites[m.TargetMissileId]; ok {
		targetPos, targetAlt = sat.GroundPosition, sat.OrbitalAltitudeKm
	} else {
		// Target already resolved; coast to the rail end and miss there.
		return
	}

	m.TrackingRadarIds = s.trackingRadars(m.OwnerId, targetPos, targetAlt)
	if len(m.TrackingRadarIds) > 0 {
		m.GuidanceLostAt = time.Time{}
		return
	}

	if m.GuidanceLostAt.IsZero() {
		m.GuidanceLostAt = s.SimTime
	} else if s.SimTime.Sub(m.GuidanceLostAt) >= grace {
		m.HasGuidance = false
		s.lg.Debug("interceptor lost guidance", slog.String("interceptor", m.Id))
	}
}

func (s *GameSession) resolveIntercept(m *Missile) {
	cfg := s.catalog.Interceptor

	miss := func() {
		m.Status = MissileMissed
		m.MissDeadline = s.SimTime.Add(time.Duration(cfg.MissCoastMs) * time.Millisecond)
	}

	if sat, ok := s.Satellites[m.TargetMissileId]; ok {
		s.resolveSatelliteIntercept(m, sat, miss)
		return
	}

	target, ok := s.Missiles[m.TargetMissileId]
	if !ok || target.Intercepted || target.Detonated {
		miss()
		return
	}
	if !m.HasGuidance {
		miss()
		return
	}

	// Proximity check in 3D: the rail end was planned against the
	// target's predicted position, but guidance errors and late target
	// updates can still leave a gap.
	d := math.Distance3(m.RailEndGeo.Cartesian3(m.RailEndAltKm),
		target.CurrentGeo.Cartesian3(target.CurrentAltKm))
	if d > cfg.ProximityKm {
		miss()
		return
	}

	fuelFrac := 1 - float64(m.FlightDurationMs)/1000/m.FuelSeconds
	variance := (2*s.Rand.Float64() - 1) * cfg.Variance
	p := s.interceptProbability(target, target.Progress, len(m.TrackingRadarIds), fuelFrac, variance)

	if s.Rand.Float64() < p {
		m.Status = MissileHit
		m.Intercepted = true
		target.Intercepted = true

		s.lg.Info("interception", slog.String("interceptor", m.Id),
			slog.String("target", target.Id))
		s.postEvent(Event{
			Type:     InterceptionEvent,
			Player:   m.OwnerId,
			EntityId: m.Id,
			TargetId: target.Id,
			Position: target.CurrentGeo,
		})
	} else {
		miss()
	}
}

///////////////////////////////////////////////////////////////////////////
// Detonation

func (s *GameSession) detonate(m *Missile) {
	m.Detonated = true
	cfg := s.catalog.Missile

	attacker := s.Players[m.OwnerId]

	for _, city := range s.sortedCities() {
		if city.Destroyed {
			continue
		}
		d := math.Degrees(math.AngularDistance(m.TargetGeo, city.Position))
		if d > cfg.BlastRadiusDeg {
			continue
		}

		casualties := int(float64(city.Population) * (1 - d/cfg.BlastRadiusDeg) * cfg.DamageCoeff)
		casualties = math.Clamp(casualties, 0, city.Population)
		if casualties == 0 {
			continue
		}

		city.Population -= casualties
		if city.Population == 0 {
			city.Destroyed = true
		}

		if attacker != nil {
			attacker.EnemyKills += casualties
			attacker.Score += casualties
		}
		if terr := s.Territories[city.TerritoryId]; terr != nil && terr.OwnerId != "" {
			if owner, ok := s.Players[terr.OwnerId]; ok {
				owner.PopulationRemaining -= casualties
				owner.PopulationLost += casualties
			}
		}

		s.lg.Info("city hit", slog.String("city", city.Id), slog.Int("casualties", casualties),
			slog.String("by", string(m.OwnerId)))
		s.postEvent(Event{
			Type:     CityHitEvent,
			Player:   m.OwnerId,
			TargetId: city.Id,
			Position: city.Position,
			Amount:   casualties,
		})
	}

	for _, b := range s.sortedBuildings() {
		if b.Destroyed {
			continue
		}
		if math.Degrees(math.AngularDistance(m.TargetGeo, b.Position)) > cfg.BlastRadiusDeg {
			continue
		}
		b.Destroyed = true
		s.postEvent(Event{
			Type:     BuildingDestroyedEvent,
			Player:   m.OwnerId,
			EntityId: b.Id,
			TargetId: string(b.OwnerId),
			Position: b.Position,
		})
	}
}
