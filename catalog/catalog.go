// catalog/catalog.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package catalog holds the static world description the server is
// configured with at startup: territories and their cities, the hacking
// network topology, and all of the tunable constants that govern a game
// session.  It is loaded from a versioned JSON document (optionally zstd
// compressed); a built-in default document is embedded in the binary.
package catalog

import (
	_ "embed"
	"fmt"

	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/util"
)

// CurrentVersion is the catalog document version this server understands.
const CurrentVersion = 1

type Catalog struct {
	Version int `json:"version"`

	Game        GameConfig        `json:"game"`
	Defcon      DefconConfig      `json:"defcon"`
	Buildings   BuildingsConfig   `json:"buildings"`
	Missile     MissileConfig     `json:"missile"`
	Interceptor InterceptorConfig `json:"interceptor"`
	Satellite   SatelliteConfig   `json:"satellite"`
	Hacking     HackingConfig     `json:"hacking"`
	AI          AIConfig          `json:"ai"`

	Territories map[string]*Territory   `json:"territories"`
	Cities      map[string]*City        `json:"cities"`
	Network     Network                 `json:"network"`
}

type GameConfig struct {
	TickRateHz    int   `json:"tick_rate_hz"`
	GameSpeeds    []int `json:"game_speeds"`
	LobbyCapacity int   `json:"lobby_capacity"`
	MinPlayers    int   `json:"min_players"`
	IdleReapMs    int64 `json:"idle_reap_ms"`
}

type DefconConfig struct {
	// Duration of each level in ms of simulated time, keyed by level; the
	// DEFCON 1 entry is the launch window after which the game ends.
	DurationsMs map[int]int64 `json:"durations_ms"`
}

type BuildingsConfig struct {
	MaxSilos            int     `json:"max_silos"`
	SiloMissileAmmo     int     `json:"silo_missile_ammo"`
	SiloInterceptorAmmo int     `json:"silo_interceptor_ammo"`
	MaxRadars           int     `json:"max_radars"`
	RadarRangeKm        float64 `json:"radar_range_km"`
	MaxAirfields        int     `json:"max_airfields"`
	FighterAmmo         int     `json:"fighter_ammo"`
	BomberAmmo          int     `json:"bomber_ammo"`
	MaxSatFacilities    int     `json:"max_satellite_facilities"`
	SatelliteStock      int     `json:"satellite_stock"`
	LaunchCooldownMs    int64   `json:"satellite_launch_cooldown_ms"`
}

type MissileConfig struct {
	SpeedKmH       float64 `json:"speed_kmh"`
	MinFlightMs    int64   `json:"min_flight_ms"`
	BlastRadiusDeg float64 `json:"blast_radius_deg"`
	DamageCoeff    float64 `json:"damage_coeff"`
}

type InterceptorConfig struct {
	SpeedKmH        float64 `json:"speed_kmh"`
	FuelSeconds     float64 `json:"fuel_seconds"`
	WindowMin       float64 `json:"window_min"`
	WindowMax       float64 `json:"window_max"`
	ProximityKm     float64 `json:"proximity_km"`
	GuidanceGraceMs int64   `json:"guidance_grace_ms"`
	MissCoastMs     int64   `json:"miss_coast_ms"`

	// Hit probability model
	BaseBoost       float64 `json:"base_boost"`
	BaseMidcourse   float64 `json:"base_midcourse"`
	BaseReentry     float64 `json:"base_reentry"`
	PerRadarBonus   float64 `json:"per_radar_bonus"`
	MaxRadarBonus   float64 `json:"max_radar_bonus"`
	LowFuelPenalty  float64 `json:"low_fuel_penalty"`
	LowFuelFraction float64 `json:"low_fuel_fraction"`
	Variance        float64 `json:"variance"`
	ClampMin        float64 `json:"clamp_min"`
	ClampMax        float64 `json:"clamp_max"`
}

type SatelliteConfig struct {
	OrbitalPeriodMs   int64   `json:"orbital_period_ms"`
	AltitudeKm        float64 `json:"altitude_km"`
	VisionRangeKm     float64 `json:"vision_range_km"`
	RelayRangeKm      float64 `json:"relay_range_km"`
	Health            int     `json:"health"`
	MinInclinationDeg float64 `json:"min_inclination_deg"`
	MaxInclinationDeg float64 `json:"max_inclination_deg"`
}

type HackingConfig struct {
	Types map[string]HackTypeConfig `json:"types"`

	// Trace rate: baseline per-second rate, scaled down for longer routes.
	TraceBasePerSec float64 `json:"trace_base_per_sec"`
	TraceMinPerSec  float64 `json:"trace_min_per_sec"`

	// defcon level -> number of enemy buildings a scan reveals
	ScanVisibility map[int]int `json:"scan_visibility"`
}

type HackTypeConfig struct {
	ProgressPerSec float64 `json:"progress_per_sec"`
	EffectTTLMs    int64   `json:"effect_ttl_ms"`
}

type AIConfig struct {
	SalvoIntervalMinMs int64 `json:"salvo_interval_min_ms"`
	SalvoIntervalMaxMs int64 `json:"salvo_interval_max_ms"`
	TopCities          int   `json:"top_cities"`
}

type Territory struct {
	Id                string             `json:"-"` // filled from the map key
	Name              string             `json:"name"`
	Boundary          []math.Point2LL    `json:"boundary"`
	StartingPositions []StartingPosition `json:"starting_positions"`

	// Derived at load time from the cities table.
	CityIds []string `json:"-"`
}

type StartingPosition struct {
	Type     string       `json:"type"` // building type the AI places here
	Position math.Point2LL `json:"position"`
}

type City struct {
	Id          string        `json:"-"`
	TerritoryId string        `json:"territory"`
	Name        string        `json:"name"`
	Position    math.Point2LL `json:"position"`
	Population  int           `json:"population"`
}

type Network struct {
	Nodes map[string]*HackingNode `json:"nodes"`
	Links [][2]string             `json:"links"`
}

type HackingNode struct {
	Id       string        `json:"-"`
	Name     string        `json:"name"`
	Position math.Point2LL `json:"position"`
}

//go:embed catalog.json
var defaultCatalogJSON []byte

// LoadDefault parses the embedded catalog document.
func LoadDefault(e *util.ErrorLogger) *Catalog {
	return parse(defaultCatalogJSON, e)
}

// Load reads the catalog document at the given path, decompressing
// transparently if it's zstd compressed.
func Load(path string, e *util.ErrorLogger) *Catalog {
	b, err := util.LoadResourceBytes(path)
	if err != nil {
		e.Error(err)
		return nil
	}
	e.Push(path)
	defer e.Pop()
	return parse(b, e)
}

func parse(b []byte, e *util.ErrorLogger) *Catalog {
	var c Catalog
	if err := util.UnmarshalJSONBytes(b, &c); err != nil {
		e.Error(err)
		return nil
	}

	for id, t := range c.Territories {
		t.Id = id
	}
	for id, city := range c.Cities {
		city.Id = id
	}
	for id, n := range c.Network.Nodes {
		n.Id = id
	}

	// Back-link cities to their territories, keeping the ordering stable.
	for _, id := range util.SortedMapKeys(c.Cities) {
		city := c.Cities[id]
		if t, ok := c.Territories[city.TerritoryId]; ok {
			t.CityIds = append(t.CityIds, id)
		}
	}

	c.check(e)
	if e.HaveErrors() {
		return nil
	}
	return &c
}

func (c *Catalog) check(e *util.ErrorLogger) {
	if c.Version != CurrentVersion {
		e.ErrorString("catalog version %d not supported (want %d)", c.Version, CurrentVersion)
	}

	e.Push("game")
	if c.Game.TickRateHz <= 0 {
		e.ErrorString("tick_rate_hz must be positive")
	}
	if c.Game.MinPlayers < 2 {
		e.ErrorString("min_players must be at least 2")
	}
	if c.Game.LobbyCapacity < c.Game.MinPlayers {
		e.ErrorString("lobby_capacity %d below min_players %d", c.Game.LobbyCapacity, c.Game.MinPlayers)
	}
	e.Pop()

	e.Push("defcon")
	for lvl := 1; lvl <= 5; lvl++ {
		if d, ok := c.Defcon.DurationsMs[lvl]; !ok {
			e.ErrorString("missing duration for DEFCON %d", lvl)
		} else if d <= 0 {
			e.ErrorString("DEFCON %d duration must be positive", lvl)
		}
	}
	e.Pop()

	e.Push("territories")
	for _, id := range util.SortedMapKeys(c.Territories) {
		t := c.Territories[id]
		e.Push(id)
		if t.Name == "" {
			e.ErrorString("missing name")
		}
		if len(t.Boundary) < 3 {
			e.ErrorString("boundary polygon needs at least 3 vertices")
		}
		if len(t.CityIds) == 0 {
			e.ErrorString("territory has no cities")
		}
		if len(t.StartingPositions) == 0 {
			e.ErrorString("territory has no starting positions")
		}
		for _, sp := range t.StartingPositions {
			switch sp.Type {
			case "silo", "radar", "airfield", "satellite_facility":
			default:
				e.ErrorString("%s: unknown starting position type", sp.Type)
			}
		}
		e.Pop()
	}
	e.Pop()

	e.Push("cities")
	for _, id := range util.SortedMapKeys(c.Cities) {
		city := c.Cities[id]
		e.Push(id)
		if _, ok := c.Territories[city.TerritoryId]; !ok {
			e.ErrorString("%s: unknown territory", city.TerritoryId)
		}
		if city.Population <= 0 {
			e.ErrorString("population must be positive")
		}
		e.Pop()
	}
	e.Pop()

	e.Push("network")
	for _, link := range c.Network.Links {
		for _, id := range link {
			if _, ok := c.Network.Nodes[id]; !ok {
				e.ErrorString("link references unknown node %q", id)
			}
		}
		if link[0] == link[1] {
			e.ErrorString("self-link on node %q", link[0])
		}
	}
	e.Pop()

	e.Push("hacking")
	if len(c.Hacking.Types) == 0 {
		e.ErrorString("no hack types defined")
	}
	for ty, hc := range c.Hacking.Types {
		if hc.ProgressPerSec <= 0 {
			e.ErrorString("%s: progress_per_sec must be positive", ty)
		}
	}
	e.Pop()

	e.Push("interceptor")
	ic := &c.Interceptor
	if ic.WindowMin < 0 || ic.WindowMax > 1 || ic.WindowMin >= ic.WindowMax {
		e.ErrorString("intercept window [%f, %f] invalid", ic.WindowMin, ic.WindowMax)
	}
	if ic.ClampMin >= ic.ClampMax {
		e.ErrorString("probability clamp [%f, %f] invalid", ic.ClampMin, ic.ClampMax)
	}
	e.Pop()
}

// TerritoryForPosition returns the territory whose boundary polygon
// contains the given point, if any.
func (c *Catalog) TerritoryForPosition(p math.Point2LL) (*Territory, bool) {
	for _, id := range util.SortedMapKeys(c.Territories) {
		if t := c.Territories[id]; math.PointInPolygon(p, t.Boundary) {
			return t, true
		}
	}
	return nil, false
}

// NearestNode returns the hacking network node closest to the given
// position.
func (c *Catalog) NearestNode(p math.Point2LL) *HackingNode {
	var best *HackingNode
	bestDist := math.NaN()
	for _, id := range util.SortedMapKeys(c.Network.Nodes) {
		n := c.Network.Nodes[id]
		if d := math.KMDistance2LL(p, n.Position); best == nil || d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

func (c *Catalog) String() string {
	return fmt.Sprintf("catalog v%d: %d territories, %d cities, %d network nodes",
		c.Version, len(c.Territories), len(c.Cities), len(c.Network.Nodes))
}
