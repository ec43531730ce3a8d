// sim/state.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"time"

	"github.com/standoff-sim/standoff/math"
)

type PlayerId string

type Player struct {
	Id          PlayerId `json:"id"`
	Name        string   `json:"name"`
	TerritoryId string   `json:"territoryId,omitempty"`

	PopulationRemaining int `json:"populationRemaining"`
	PopulationLost      int `json:"populationLost"`
	EnemyKills          int `json:"enemyKills"`
	Score               int `json:"score"`

	IsAI      bool `json:"isAI,omitempty"`
	Ready     bool `json:"ready,omitempty"`
	Connected bool `json:"connected"`
}

type Territory struct {
	Id      string   `json:"id"`
	Name    string   `json:"name"`
	OwnerId PlayerId `json:"ownerId,omitempty"`
	CityIds []string `json:"cityIds"`
}

type City struct {
	Id            string        `json:"id"`
	TerritoryId   string        `json:"territoryId"`
	Position      math.Point2LL `json:"position"`
	Population    int           `json:"population"`
	MaxPopulation int           `json:"maxPopulation"`
	Destroyed     bool          `json:"destroyed,omitempty"`
}

type BuildingType string

const (
	BuildingSilo              BuildingType = "silo"
	BuildingRadar             BuildingType = "radar"
	BuildingAirfield          BuildingType = "airfield"
	BuildingSatelliteFacility BuildingType = "satellite_facility"
)

type SiloMode string

const (
	SiloModeAttack SiloMode = "attack"
	SiloModeDefend SiloMode = "defend"
)

// Building is a tagged variant: the Type field selects which of the
// per-kind fields are meaningful.
type Building struct {
	Id        string        `json:"id"`
	OwnerId   PlayerId      `json:"ownerId"`
	Type      BuildingType  `json:"type"`
	Position  math.Point2LL `json:"position"`
	Destroyed bool          `json:"destroyed,omitempty"`

	// Silo
	Mode            SiloMode  `json:"mode,omitempty"`
	MissileAmmo     int       `json:"missileAmmo,omitempty"`
	InterceptorAmmo int       `json:"interceptorAmmo,omitempty"`
	LastFireTime    time.Time `json:"-"`

	// Radar
	RangeKm float64 `json:"rangeKm,omitempty"`
	Active  bool    `json:"active,omitempty"`

	// Airfield
	FighterAmmo int `json:"fighterAmmo,omitempty"`
	BomberAmmo  int `json:"bomberAmmo,omitempty"`

	// Satellite facility
	SatelliteStock int           `json:"satelliteStock,omitempty"`
	LaunchCooldown time.Duration `json:"-"`
	LastLaunchTime time.Time     `json:"-"`
}

type MissileKind string

const (
	MissileICBM        MissileKind = "icbm"
	MissileInterceptor MissileKind = "interceptor"
)

type MissileStatus string

const (
	MissileActive  MissileStatus = "active"
	MissileMissed  MissileStatus = "missed"
	MissileHit     MissileStatus = "hit"
	MissileCrashed MissileStatus = "crashed"
)

type Missile struct {
	Id      string      `json:"id"`
	OwnerId PlayerId    `json:"ownerId"`
	Kind    MissileKind `json:"kind"`

	LaunchGeo    math.Point2LL `json:"launchGeo"`
	TargetGeo    math.Point2LL `json:"targetGeo"`
	CurrentGeo   math.Point2LL `json:"currentGeo"`
	CurrentAltKm float64       `json:"currentAltKm"`

	LaunchTick       int64   `json:"launchTick"`
	FlightDurationMs int64   `json:"flightDurationMs"`
	ApexAltitudeKm   float64 `json:"apexAltitudeKm"`
	Progress         float64 `json:"progress"`

	Intercepted bool `json:"intercepted,omitempty"`
	Detonated   bool `json:"detonated,omitempty"`

	SourceSiloId string `json:"sourceSiloId,omitempty"`

	// Interceptor-only fields. The rail is fixed at launch time; the
	// interceptor flies it deterministically and resolves at its end.
	TargetMissileId  string        `json:"targetMissileId,omitempty"`
	RailStartGeo     math.Point2LL `json:"railStartGeo,omitempty"`
	RailEndGeo       math.Point2LL `json:"railEndGeo,omitempty"`
	RailEndAltKm     float64       `json:"railEndAltKm,omitempty"`
	FuelSeconds      float64       `json:"fuelSeconds,omitempty"`
	TrackingRadarIds []string      `json:"trackingRadarIds,omitempty"`
	HasGuidance      bool          `json:"hasGuidance,omitempty"`
	Status           MissileStatus `json:"status,omitempty"`

	GuidanceLostAt time.Time `json:"-"` // zero while at least one radar tracks
	MissDeadline   time.Time `json:"-"` // end of the post-miss coast
}

// boostFrac / reentryFrac give the missile's ballistic phase split; they
// are derived from the flight duration and cached at launch.
func (m *Missile) phaseFractions() (boostFrac, reentryFrac float64) {
	return math.BallisticPhases(time.Duration(m.FlightDurationMs) * time.Millisecond)
}

// FlightPhase labels the missile's current position on the arc for the
// interception probability model.
type FlightPhase int

const (
	PhaseBoost FlightPhase = iota
	PhaseMidcourse
	PhaseReentry
)

func (m *Missile) FlightPhase() FlightPhase {
	boost, reentry := m.phaseFractions()
	switch {
	case m.Progress < boost:
		return PhaseBoost
	case m.Progress > 1-reentry:
		return PhaseReentry
	default:
		return PhaseMidcourse
	}
}

// PositionAt returns the ground position and altitude at the given
// progress along the missile's planned arc.
func (m *Missile) PositionAt(progress float64) (math.Point2LL, float64) {
	progress = math.Clamp(progress, 0, 1)
	boost, reentry := m.phaseFractions()
	p := math.LerpGC(progress, m.LaunchGeo, m.TargetGeo)
	alt := math.BallisticAltitudeKm(progress, m.ApexAltitudeKm, boost, reentry)
	return p, alt
}

// TimeToProgress returns the simulated time until the missile reaches
// the given progress along its arc.
func (m *Missile) TimeToProgress(progress float64) time.Duration {
	if progress <= m.Progress {
		return 0
	}
	return time.Duration(float64(m.FlightDurationMs)*(progress-m.Progress)) * time.Millisecond
}

type Satellite struct {
	Id               string   `json:"id"`
	OwnerId          PlayerId `json:"ownerId"`
	SourceFacilityId string   `json:"sourceFacilityId"`

	LaunchEpochMs        int64   `json:"launchEpochMs"`
	OrbitalPeriodMs      int64   `json:"orbitalPeriodMs"`
	OrbitalAltitudeKm    float64 `json:"orbitalAltitudeKm"`
	InclinationDeg       float64 `json:"inclinationDeg"`
	StartingLongitudeDeg float64 `json:"startingLongitudeDeg"`

	Progress       float64       `json:"progress"`
	GroundPosition math.Point2LL `json:"groundPosition"`

	Health    int  `json:"health"`
	Destroyed bool `json:"destroyed,omitempty"`
}

type HackStatus string

const (
	HackRouting  HackStatus = "routing"
	HackActive   HackStatus = "active"
	HackComplete HackStatus = "complete"
	HackTraced   HackStatus = "traced"
	HackFailed   HackStatus = "failed"
)

type HackingTrace struct {
	Id               string     `json:"id"`
	AttackerPlayerId PlayerId   `json:"attackerPlayerId"`
	TargetBuildingId string     `json:"targetBuildingId"`
	HackType         string     `json:"hackType"`
	Progress         float64    `json:"progress"`
	TraceProgress    float64    `json:"traceProgress"`
	Status           HackStatus `json:"status"`
	RouteNodeIds     []string   `json:"routeNodeIds"`

	AlertSent bool `json:"-"`
}

// Compromise is the lingering effect of a completed hack on a building.
type Compromise struct {
	BuildingId string    `json:"buildingId"`
	HackType   string    `json:"hackType"`
	AttackerId PlayerId  `json:"attackerId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
