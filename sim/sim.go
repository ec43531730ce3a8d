// sim/sim.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/rand"
	"github.com/standoff-sim/standoff/util"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TickInterval is the fixed cadence at which sessions advance; the
// network tick rate is unchanged by the game speed multiplier.
const TickInterval = 100 * time.Millisecond

// GameSession is the aggregate root for one running game. It exclusively
// owns its world: all mutation happens under its mutex, driven by the
// periodic Update() call and by commands queued from connections.
type GameSession struct {
	Id string

	mu util.LoggingMutex

	Tick            int64
	SimTime         time.Time
	DefconLevel     int
	DefconRemaining time.Duration
	GameSpeed       int
	GameOver        bool
	Winner          *PlayerId // nil before the end and for a draw

	Players     map[PlayerId]*Player
	Territories map[string]*Territory
	Cities      map[string]*City
	Buildings   map[string]*Building
	Missiles    map[string]*Missile
	Satellites  map[string]*Satellite
	Hacks       map[string]*HackingTrace
	Compromises map[string]*Compromise // keyed by building id

	DebugEnabled bool

	catalog     *catalog.Catalog
	eventStream *EventStream
	lg          *log.Logger
	Rand        *rand.Rand

	commands []Command

	ai map[PlayerId]*aiState

	routeCache *lru.Cache[routeKey, []string]
	netAdj     map[string][]string

	recipients map[PlayerId]*recipientState

	nextEntityId int

	lastUpdateTime time.Time
	updateTimeSlop time.Duration
}

// NewPlayerSpec describes one participant handed over from the lobby.
type NewPlayerSpec struct {
	Id          PlayerId
	Name        string
	TerritoryId string
	IsAI        bool
}

type NewSessionConfig struct {
	Id           string
	Players      []NewPlayerSpec
	Catalog      *catalog.Catalog
	Seed         int64
	DebugEnabled bool
}

func NewGameSession(config NewSessionConfig, lg *log.Logger) (*GameSession, error) {
	cat := config.Catalog

	routeCache, err := lru.New[routeKey, []string](256)
	if err != nil {
		return nil, err
	}

	s := &GameSession{
		Id:              config.Id,
		SimTime:         time.Now(),
		DefconLevel:     5,
		DefconRemaining: time.Duration(cat.Defcon.DurationsMs[5]) * time.Millisecond,
		GameSpeed:       1,
		Players:         make(map[PlayerId]*Player),
		Territories:     make(map[string]*Territory),
		Cities:          make(map[string]*City),
		Buildings:       make(map[string]*Building),
		Missiles:        make(map[string]*Missile),
		Satellites:      make(map[string]*Satellite),
		Hacks:           make(map[string]*HackingTrace),
		Compromises:     make(map[string]*Compromise),
		DebugEnabled:    config.DebugEnabled,
		catalog:         cat,
		eventStream:     NewEventStream(lg),
		lg:              lg.With(slog.String("game_id", config.Id)),
		Rand:            rand.MakeWithSeed(config.Seed),
		ai:              make(map[PlayerId]*aiState),
		routeCache:      routeCache,
		netAdj:          buildNetworkAdjacency(cat),
		recipients:      make(map[PlayerId]*recipientState),
		lastUpdateTime:  time.Now(),
	}

	// Instantiate the mutable world from the static catalog.
	for _, id := range util.SortedMapKeys(cat.Territories) {
		ct := cat.Territories[id]
		s.Territories[id] = &Territory{Id: id, Name: ct.Name, CityIds: ct.CityIds}
	}
	for _, id := range util.SortedMapKeys(cat.Cities) {
		cc := cat.Cities[id]
		s.Cities[id] = &City{
			Id:            id,
			TerritoryId:   cc.TerritoryId,
			Position:      cc.Position,
			Population:    cc.Population,
			MaxPopulation: cc.Population,
		}
	}

	for _, spec := range config.Players {
		terr, ok := s.Territories[spec.TerritoryId]
		if !ok {
			return nil, fmt.Errorf("%s: %w", spec.TerritoryId, ErrNoSuchTerritory)
		}
		if terr.OwnerId != "" {
			return nil, fmt.Errorf("%s: %w", spec.TerritoryId, ErrTerritoryTaken)
		}

		p := &Player{
			Id:          spec.Id,
			Name:        spec.Name,
			TerritoryId: spec.TerritoryId,
			IsAI:        spec.IsAI,
			Connected:   !spec.IsAI,
		}
		for _, cityId := range terr.CityIds {
			p.PopulationRemaining += s.Cities[cityId].Population
		}
		s.Players[spec.Id] = p
		terr.OwnerId = spec.Id

		if spec.IsAI {
			s.ai[spec.Id] = newAIState(s, p)
		}
	}

	s.lg.Info("created game session", slog.Int("players", len(config.Players)),
		slog.Int64("seed", config.Seed))
	return s, nil
}

func (s *GameSession) Destroy() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.eventStream.Destroy()
}

// Subscribe returns a subscription to the session's raw event stream.
// Per-player filtered delivery goes through GetDelta instead.
func (s *GameSession) Subscribe() *EventsSubscription {
	return s.eventStream.Subscribe()
}

///////////////////////////////////////////////////////////////////////////
// Commands

// Command is a validated client request queued for execution at the next
// tick boundary. Handlers run with the session lock held.
type Command interface {
	run(s *GameSession)
}

// PostCommand queues a command for the next tick. Commands from a single
// connection run in arrival order.
func (s *GameSession) PostCommand(cmd Command) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.commands = append(s.commands, cmd)
}

type PlaceBuildingCommand struct {
	Player   PlayerId
	Kind     BuildingType
	Position math.Point2LL
}

func (c PlaceBuildingCommand) run(s *GameSession) {
	if _, err := s.placeBuilding(c.Player, c.Kind, c.Position); err != nil {
		s.rejectCommand(c.Player, "INVALID_PLACEMENT", err)
	}
}

type LaunchMissileCommand struct {
	Player         PlayerId
	SiloId         string
	TargetPosition math.Point2LL
}

func (c LaunchMissileCommand) run(s *GameSession) {
	if _, err := s.launchMissile(c.Player, c.SiloId, c.TargetPosition); err != nil {
		s.rejectCommand(c.Player, "LAUNCH_REFUSED", err)
	}
}

type SetSiloModeCommand struct {
	Player PlayerId
	SiloId string
	Mode   SiloMode
}

func (c SetSiloModeCommand) run(s *GameSession) {
	// Authorization failures here are silently dropped; there is no
	// user-visible consequence to report.
	_ = s.setSiloMode(c.Player, c.SiloId, c.Mode)
}

type LaunchSatelliteCommand struct {
	Player      PlayerId
	FacilityId  string
	Inclination float64
}

func (c LaunchSatelliteCommand) run(s *GameSession) {
	if _, err := s.launchSatellite(c.Player, c.FacilityId, c.Inclination); err != nil {
		s.rejectCommand(c.Player, "SATELLITE_REFUSED", err)
	}
}

type SetGameSpeedCommand struct {
	Player PlayerId
	Speed  int
}

func (c SetGameSpeedCommand) run(s *GameSession) {
	if err := s.setGameSpeed(c.Speed); err != nil {
		s.rejectCommand(c.Player, "INVALID_SPEED", err)
	}
}

type ManualInterceptCommand struct {
	Player          PlayerId
	TargetMissileId string
	SiloIds         []string
}

func (c ManualInterceptCommand) run(s *GameSession) {
	if err := s.manualIntercept(c.Player, c.TargetMissileId, c.SiloIds); err != nil {
		s.rejectCommand(c.Player, "INTERCEPT_REFUSED", err)
	}
}

type HackStartCommand struct {
	Player   PlayerId
	TargetId string
	HackType string
	Route    []string
}

func (c HackStartCommand) run(s *GameSession) {
	if _, err := s.startHack(c.Player, c.TargetId, c.HackType, c.Route); err != nil {
		s.rejectCommand(c.Player, "HACK_REFUSED", err)
	}
}

type HackDisconnectCommand struct {
	Player PlayerId
	HackId string
}

func (c HackDisconnectCommand) run(s *GameSession) {
	_ = s.disconnectHack(c.Player, c.HackId)
}

type HackPurgeCommand struct {
	Player   PlayerId
	TargetId string
}

func (c HackPurgeCommand) run(s *GameSession) {
	_ = s.purgeCompromise(c.Player, c.TargetId)
}

type EnableAICommand struct {
	Player PlayerId
	Region string
}

func (c EnableAICommand) run(s *GameSession) {
	if err := s.enableAI(c.Region); err != nil {
		s.rejectCommand(c.Player, "AI_REFUSED", err)
	}
}

type DisableAICommand struct {
	Player PlayerId
	Region string
}

func (c DisableAICommand) run(s *GameSession) {
	s.disableAI(c.Region)
}

type DebugCommand struct {
	Player  PlayerId
	Command string
	Value   int
	Region  string
}

func (c DebugCommand) run(s *GameSession) {
	if !s.DebugEnabled {
		s.rejectCommand(c.Player, "NOT_AUTHORIZED", ErrNotAuthorized)
		return
	}
	s.runDebugCommand(c)
}

// rejectCommand posts a player-targeted rejection event; the server
// translates it into an error message on the wire.
func (s *GameSession) rejectCommand(p PlayerId, code string, err error) {
	s.lg.Debug("command rejected", slog.String("player", string(p)),
		slog.String("code", code), slog.String("error", err.Error()))
	s.postEvent(Event{
		Type:     CommandRejectedEvent,
		ToPlayer: p,
		Code:     code,
		Message:  err.Error(),
	})
}

func (s *GameSession) postEvent(e Event) {
	e.Tick = s.Tick
	s.eventStream.Post(e)
}

///////////////////////////////////////////////////////////////////////////
// Simulation

// Update advances the session from wallclock time; the server calls it
// at the tick cadence. Whole ticks are consumed and fractional remainders
// carried forward, so uneven scheduling doesn't drift simulated time.
func (s *GameSession) Update() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	startUpdate := time.Now()
	defer func() {
		if d := time.Since(startUpdate); d > TickInterval {
			s.lg.Warn("unexpectedly long session Update() call", slog.Duration("duration", d))
		}
	}()

	s.step(time.Since(s.lastUpdateTime))
	s.lastUpdateTime = time.Now()
}

// Step advances the session by the given elapsed wallclock time; tests
// drive the simulation through it directly.
func (s *GameSession) Step(elapsed time.Duration) int {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.step(elapsed)
}

func (s *GameSession) step(elapsed time.Duration) int {
	elapsed += s.updateTimeSlop

	n := int(elapsed / TickInterval)
	if n > 100 {
		s.lg.Warn("unexpected hitch in update rate", slog.Duration("elapsed", elapsed),
			slog.Int("ticks", n))
	}
	for range n {
		s.advanceTick()
	}
	s.updateTimeSlop = elapsed - time.Duration(n)*TickInterval

	return n
}

func (s *GameSession) advanceTick() {
	if s.GameOver {
		return
	}

	s.Tick++
	simDt := TickInterval * time.Duration(s.GameSpeed)
	s.SimTime = s.SimTime.Add(simDt)

	// Queued commands run first so this tick's subsystems see their
	// effects.
	cmds := s.commands
	s.commands = nil
	for _, cmd := range cmds {
		cmd.run(s)
		if s.GameOver {
			return
		}
	}

	s.updateDefcon(simDt)
	if s.GameOver {
		return
	}

	s.updateBallistics(simDt)
	s.updateSatellites()
	s.updateHacking(simDt)
	s.expireCompromises()
	s.updateAI()

	s.checkEndConditions()
}

func (s *GameSession) updateDefcon(dt time.Duration) {
	s.DefconRemaining -= dt
	for s.DefconRemaining <= 0 {
		if s.DefconLevel == 1 {
			// The launch window has closed.
			s.DefconRemaining = 0
			s.endGame()
			return
		}

		s.DefconLevel--
		s.DefconRemaining += time.Duration(s.catalog.Defcon.DurationsMs[s.DefconLevel]) * time.Millisecond
		s.lg.Info("DEFCON change", slog.Int("level", s.DefconLevel))
		s.postEvent(Event{Type: DefconChangeEvent, NewLevel: s.DefconLevel})
	}
}

func (s *GameSession) checkEndConditions() {
	alive := 0
	for _, p := range s.Players {
		if p.PopulationRemaining > 0 {
			alive++
		}
	}
	if alive <= 1 {
		s.endGame()
	}
}

func (s *GameSession) endGame() {
	if s.GameOver {
		return
	}
	s.GameOver = true

	scores := make(map[PlayerId]int)
	var winner *PlayerId
	bestScore, tied := 0, false
	for _, id := range util.SortedMapKeys(s.Players) {
		p := s.Players[id]
		scores[id] = p.Score
		if p.PopulationRemaining <= 0 {
			continue
		}
		switch {
		case winner == nil || p.Score > bestScore:
			pid := id
			winner, bestScore, tied = &pid, p.Score, false
		case p.Score == bestScore:
			tied = true
		}
	}
	if tied {
		winner = nil
	}
	s.Winner = winner

	s.lg.Info("game ended", slog.Any("winner", winner), slog.Any("scores", scores))
	s.postEvent(Event{Type: GameEndEvent, Winner: winner, Scores: scores})
}

///////////////////////////////////////////////////////////////////////////
// Command handlers (session lock held)

func (s *GameSession) placeBuilding(pid PlayerId, kind BuildingType, pos math.Point2LL) (*Building, error) {
	player, ok := s.Players[pid]
	if !ok {
		return nil, ErrNoSuchPlayer
	}
	if s.DefconLevel != 5 {
		return nil, ErrNotInDefconWindow
	}

	terr := s.catalog.Territories[player.TerritoryId]
	if terr == nil || !math.PointInPolygon(pos, terr.Boundary) {
		return nil, ErrInvalidPlacement
	}

	cfg := s.catalog.Buildings
	var limit int
	switch kind {
	case BuildingSilo:
		limit = cfg.MaxSilos
	case BuildingRadar:
		limit = cfg.MaxRadars
	case BuildingAirfield:
		limit = cfg.MaxAirfields
	case BuildingSatelliteFacility:
		limit = cfg.MaxSatFacilities
	default:
		return nil, ErrInvalidBuildingType
	}
	if s.countBuildings(pid, kind) >= limit {
		return nil, ErrPlacementLimitReached
	}

	b := &Building{
		Id:       s.makeEntityId("b"),
		OwnerId:  pid,
		Type:     kind,
		Position: pos,
	}
	switch kind {
	case BuildingSilo:
		b.Mode = SiloModeDefend
		b.MissileAmmo = cfg.SiloMissileAmmo
		b.InterceptorAmmo = cfg.SiloInterceptorAmmo
	case BuildingRadar:
		b.RangeKm = cfg.RadarRangeKm
		b.Active = true
	case BuildingAirfield:
		b.FighterAmmo = cfg.FighterAmmo
		b.BomberAmmo = cfg.BomberAmmo
	case BuildingSatelliteFacility:
		b.SatelliteStock = cfg.SatelliteStock
		b.LaunchCooldown = time.Duration(cfg.LaunchCooldownMs) * time.Millisecond
	}
	s.Buildings[b.Id] = b

	s.lg.Debug("placed building", slog.String("player", string(pid)),
		slog.String("type", string(kind)), slog.String("id", b.Id))
	return b, nil
}

func (s *GameSession) setSiloMode(pid PlayerId, siloId string, mode SiloMode) error {
	if mode != SiloModeAttack && mode != SiloModeDefend {
		return ErrInvalidSiloMode
	}
	silo, ok := s.Buildings[siloId]
	if !ok || silo.Type != BuildingSilo || silo.Destroyed {
		return ErrNoSuchBuilding
	}
	if silo.OwnerId != pid {
		return ErrNotAuthorized
	}
	silo.Mode = mode
	return nil
}

func (s *GameSession) setGameSpeed(speed int) error {
	for _, v := range s.catalog.Game.GameSpeeds {
		if v == speed {
			s.GameSpeed = speed
			return nil
		}
	}
	return ErrInvalidGameSpeed
}

func (s *GameSession) enableAI(region string) error {
	terr, ok := s.Territories[region]
	if !ok {
		return ErrNoSuchTerritory
	}
	if terr.OwnerId != "" {
		// Re-enabling a previously disabled AI is fine; claiming a
		// human's territory isn't.
		if ai, ok := s.ai[terr.OwnerId]; ok {
			ai.suspended = false
			return nil
		}
		return ErrTerritoryTaken
	}

	pid := PlayerId(s.makeEntityId("ai"))
	p := &Player{
		Id:          pid,
		Name:        s.catalog.Territories[region].Name + " Command",
		TerritoryId: region,
		IsAI:        true,
	}
	for _, cityId := range terr.CityIds {
		p.PopulationRemaining += s.Cities[cityId].Population
	}
	s.Players[pid] = p
	terr.OwnerId = pid
	s.ai[pid] = newAIState(s, p)

	s.lg.Info("enabled AI", slog.String("region", region), slog.String("player", string(pid)))
	return nil
}

func (s *GameSession) disableAI(region string) {
	for pid, ai := range s.ai {
		if ai.player.TerritoryId == region || region == "" {
			ai.suspended = true
			s.lg.Info("disabled AI", slog.String("player", string(pid)))
		}
	}
}

func (s *GameSession) runDebugCommand(c DebugCommand) {
	switch c.Command {
	case "advance_defcon":
		if s.DefconLevel > 1 {
			s.DefconLevel--
			s.DefconRemaining = time.Duration(s.catalog.Defcon.DurationsMs[s.DefconLevel]) * time.Millisecond
			s.postEvent(Event{Type: DefconChangeEvent, NewLevel: s.DefconLevel})
		}
	case "set_defcon":
		// DEFCON is monotone: jumps are forward only.
		for s.DefconLevel > max(1, c.Value) {
			s.DefconLevel--
			s.DefconRemaining = time.Duration(s.catalog.Defcon.DurationsMs[s.DefconLevel]) * time.Millisecond
			s.postEvent(Event{Type: DefconChangeEvent, NewLevel: s.DefconLevel})
		}
	case "skip_timer":
		s.DefconRemaining = 0
	case "add_missiles":
		for _, b := range s.sortedBuildings() {
			if b.Type == BuildingSilo && b.OwnerId == c.Player {
				b.MissileAmmo += max(1, c.Value)
			}
		}
	case "launch_test_missiles":
		s.launchTestMissiles(c.Player, c.Region, max(1, c.Value))
	default:
		s.rejectCommand(c.Player, "INVALID_MESSAGE", fmt.Errorf("%s: unknown debug command", c.Command))
	}
}

// launchTestMissiles fires n missiles from the given region's starting
// silo positions at random cities, bypassing the DEFCON gate. Debug only.
func (s *GameSession) launchTestMissiles(pid PlayerId, region string, n int) {
	terr, ok := s.catalog.Territories[region]
	if !ok {
		if p, ok := s.Players[pid]; ok {
			terr = s.catalog.Territories[p.TerritoryId]
		}
		if terr == nil {
			return
		}
	}

	cities := util.FilterSlice(s.sortedCities(), func(c *City) bool { return !c.Destroyed })
	for i := 0; i < n && len(cities) > 0; i++ {
		launch := terr.StartingPositions[i%len(terr.StartingPositions)].Position
		target := rand.SampleSlice(s.Rand, cities)
		s.spawnICBM(pid, "", launch, target.Position)
	}
}

///////////////////////////////////////////////////////////////////////////
// Helpers

func (s *GameSession) makeEntityId(prefix string) string {
	s.nextEntityId++
	return fmt.Sprintf("%s-%d", prefix, s.nextEntityId)
}

func (s *GameSession) countBuildings(pid PlayerId, kind BuildingType) int {
	n := 0
	for _, b := range s.Buildings {
		if b.OwnerId == pid && b.Type == kind && !b.Destroyed {
			n++
		}
	}
	return n
}

// sortedBuildings returns the buildings in stable id order so that
// per-tick iteration is deterministic for a given seed.
func (s *GameSession) sortedBuildings() []*Building {
	return util.MapSlice(util.SortedMapKeys(s.Buildings),
		func(id string) *Building { return s.Buildings[id] })
}

func (s *GameSession) sortedMissiles() []*Missile {
	return util.MapSlice(util.SortedMapKeys(s.Missiles),
		func(id string) *Missile { return s.Missiles[id] })
}

func (s *GameSession) sortedCities() []*City {
	return util.MapSlice(util.SortedMapKeys(s.Cities),
		func(id string) *City { return s.Cities[id] })
}

func (s *GameSession) sortedPlayers() []*Player {
	return util.MapSlice(util.SortedMapKeys(s.Players),
		func(id PlayerId) *Player { return s.Players[id] })
}

// compromiseActive reports whether the building currently suffers the
// given hack effect.
func (s *GameSession) compromiseActive(buildingId, hackType string) bool {
	c, ok := s.Compromises[buildingId]
	return ok && c.HackType == hackType && s.SimTime.Before(c.ExpiresAt)
}

func (s *GameSession) expireCompromises() {
	for id, c := range s.Compromises {
		if !s.SimTime.Before(c.ExpiresAt) {
			delete(s.Compromises, id)
		}
	}
}

// SetPlayerConnected records connection state; a player who drops
// mid-game keeps their territory and may reconnect.
func (s *GameSession) SetPlayerConnected(pid PlayerId, connected bool) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	if p, ok := s.Players[pid]; ok {
		p.Connected = connected
	}
}

// Idle reports whether no human is connected.
func (s *GameSession) Idle() bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	for _, p := range s.Players {
		if !p.IsAI && p.Connected {
			return false
		}
	}
	return true
}

func (s *GameSession) Ended() bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.GameOver
}

// TargetPosition resolves a city or building id to its location, for
// launch requests that name a target instead of giving coordinates.
func (s *GameSession) TargetPosition(id string) math.Point2LL {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	if c, ok := s.Cities[id]; ok {
		return c.Position
	}
	if b, ok := s.Buildings[id]; ok {
		return b.Position
	}
	return math.Point2LL{}
}

// FinalScores returns each player's score; stable once the game is over.
func (s *GameSession) FinalScores() map[PlayerId]int {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	scores := make(map[PlayerId]int)
	for id, p := range s.Players {
		scores[id] = p.Score
	}
	return scores
}

func (s *GameSession) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", s.Id),
		slog.Int64("tick", s.Tick),
		slog.Int("defcon", s.DefconLevel),
		slog.Int("players", len(s.Players)),
		slog.Int("missiles", len(s.Missiles)))
}
