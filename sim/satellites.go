// sim/satellites.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/util"
)

func (s *GameSession) launchSatellite(pid PlayerId, facilityId string, inclinationDeg float64) (*Satellite, error) {
	facility, ok := s.Buildings[facilityId]
	if !ok || facility.Type != BuildingSatelliteFacility || facility.Destroyed {
		return nil, ErrNoSuchBuilding
	}
	if facility.OwnerId != pid {
		return nil, ErrNotAuthorized
	}
	// Satellites go up once the placement phase is over.
	if s.DefconLevel == 5 {
		return nil, ErrNotInDefconWindow
	}
	if facility.SatelliteStock <= 0 {
		return nil, ErrNoAmmo
	}
	if !facility.LastLaunchTime.IsZero() && s.SimTime.Sub(facility.LastLaunchTime) < facility.LaunchCooldown {
		return nil, ErrSatelliteCooldown
	}

	cfg := s.catalog.Satellite
	inclinationDeg = math.Clamp(inclinationDeg, cfg.MinInclinationDeg, cfg.MaxInclinationDeg)

	facility.SatelliteStock--
	facility.LastLaunchTime = s.SimTime

	sat := &Satellite{
		Id:                   s.makeEntityId("s"),
		OwnerId:              pid,
		SourceFacilityId:     facilityId,
		LaunchEpochMs:        s.SimTime.UnixMilli(),
		OrbitalPeriodMs:      cfg.OrbitalPeriodMs,
		OrbitalAltitudeKm:    cfg.AltitudeKm,
		InclinationDeg:       inclinationDeg,
		StartingLongitudeDeg: facility.Position.Longitude(),
		GroundPosition:       facility.Position,
		Health:               cfg.Health,
	}
	s.Satellites[sat.Id] = sat

	s.lg.Info("satellite launch", slog.String("player", string(pid)),
		slog.String("satellite", sat.Id), slog.Float64("inclination", inclinationDeg))
	s.postEvent(Event{
		Type:     SatelliteLaunchEvent,
		Player:   pid,
		EntityId: sat.Id,
		Position: facility.Position,
	})
	return sat, nil
}

// groundPositionAt computes the satellite's ground track at the given
// epoch using a simple rotating-orbit model: latitude oscillates with the
// inclination over one period while the longitude sweeps the full circle.
func (sat *Satellite) groundPositionAt(epochMs int64) (math.Point2LL, float64) {
	period := sat.OrbitalPeriodMs
	progress := float64((epochMs-sat.LaunchEpochMs)%period) / float64(period)

	lat := sat.InclinationDeg * math.Sin(2*math.Pi*progress)
	lon := math.NormalizeLongitude(sat.StartingLongitudeDeg + 360*progress)
	return math.MakePoint2LL(lat, lon), progress
}

func (s *GameSession) updateSatellites() {
	now := s.SimTime.UnixMilli()
	for _, id := range util.SortedMapKeys(s.Satellites) {
		sat := s.Satellites[id]
		if sat.Destroyed {
			delete(s.Satellites, id)
			continue
		}
		sat.GroundPosition, sat.Progress = sat.groundPositionAt(now)
	}
}

func (s *GameSession) damageSatellite(sat *Satellite, amount int) {
	sat.Health -= amount
	if sat.Health > 0 {
		return
	}
	sat.Health = 0
	sat.Destroyed = true

	s.lg.Info("satellite destroyed", slog.String("satellite", sat.Id),
		slog.String("owner", string(sat.OwnerId)))
	s.postEvent(Event{
		Type:     SatelliteDestroyedEvent,
		Player:   sat.OwnerId,
		EntityId: sat.Id,
		Position: sat.GroundPosition,
	})
}

///////////////////////////////////////////////////////////////////////////
// Anti-satellite interception

// interceptSatellite handles a manual intercept aimed at a satellite id.
// The target's ground track is fully predictable, so the rail search
// walks forward in time rather than along a ballistic arc.
func (s *GameSession) interceptSatellite(pid PlayerId, satelliteId string, siloIds []string) error {
	sat, ok := s.Satellites[satelliteId]
	if !ok || sat.Destroyed {
		return ErrNoSuchMissile
	}

	var lastErr error
	launched := 0
	for _, siloId := range siloIds {
		if err := s.launchAntiSatellite(pid, siloId, sat); err != nil {
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

func (s *GameSession) launchAntiSatellite(pid PlayerId, siloId string, sat *Satellite) error {
	silo, ok := s.Buildings[siloId]
	if !ok || silo.Type != BuildingSilo || silo.Destroyed {
		return ErrNoSuchBuilding
	}
	if silo.OwnerId != pid {
		return ErrNotAuthorized
	}
	if silo.Mode != SiloModeDefend {
		return ErrSiloWrongMode
	}
	if silo.InterceptorAmmo <= 0 {
		return ErrNoAmmo
	}

	cfg := s.catalog.Interceptor
	now := s.SimTime.UnixMilli()

	// Earliest second at which the interceptor can meet the ground track.
	var rail *interceptRail
	for t := time.Second; t <= time.Duration(cfg.FuelSeconds)*time.Second; t += time.Second {
		pos, _ := sat.groundPositionAt(now + t.Milliseconds())
		distKm := math.KMDistance2LL(silo.Position, pos)
		travel := time.Duration(distKm/cfg.SpeedKmH*3600) * time.Second
		if travel <= t {
			rail = &interceptRail{endGeo: pos, endAltKm: sat.OrbitalAltitudeKm, flight: t}
			break
		}
	}
	if rail == nil {
		return ErrNoInterceptSolution
	}

	silo.InterceptorAmmo--
	silo.LastFireTime = s.SimTime

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
		TargetMissileId:  sat.Id,
		RailStartGeo:     silo.Position,
		RailEndGeo:       rail.endGeo,
		RailEndAltKm:     rail.endAltKm,
		FuelSeconds:      cfg.FuelSeconds,
		HasGuidance:      true,
		Status:           MissileActive,
	}
	s.Missiles[m.Id] = m

	s.postEvent(Event{
		Type:     MissileLaunchEvent,
		Player:   pid,
		EntityId: m.Id,
		TargetId: sat.Id,
		Position: silo.Position,
	})
	return nil
}

func (s *GameSession) resolveSatelliteIntercept(m *Missile, sat *Satellite, miss func()) {
	cfg := s.catalog.Interceptor

	if sat.Destroyed || !m.HasGuidance {
		miss()
		return
	}

	d := math.Distance3(m.RailEndGeo.Cartesian3(m.RailEndAltKm),
		sat.GroundPosition.Cartesian3(sat.OrbitalAltitudeKm))
	if d > cfg.ProximityKm {
		miss()
		return
	}

	fuelFrac := 1 - float64(m.FlightDurationMs)/1000/m.FuelSeconds
	variance := (2*s.Rand.Float64() - 1) * cfg.Variance

	p := cfg.BaseMidcourse
	if n := len(m.TrackingRadarIds); n > 1 {
		p += math.Min(cfg.MaxRadarBonus, float64(n-1)*cfg.PerRadarBonus)
	}
	if fuelFrac < cfg.LowFuelFraction {
		p -= cfg.LowFuelPenalty
	}
	p = math.Clamp(p+variance, cfg.ClampMin, cfg.ClampMax)

	if s.Rand.Float64() < p {
		m.Status = MissileHit
		m.Intercepted = true
		s.damageSatellite(sat, sat.Health)
	} else {
		miss()
	}
}
