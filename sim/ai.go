// sim/ai.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"slices"
	"time"

	"github.com/standoff-sim/standoff/rand"
	"github.com/standoff-sim/standoff/util"
)

// aiState drives one scripted opponent. The AI builds out its
// territory's predeclared positions during the placement phase, arms a
// few silos as tensions rise, and fires jittered salvos at population
// centers once the launch window opens.
type aiState struct {
	player    *Player
	suspended bool

	placeIdx  int
	modeFlips int
	nextSalvo time.Time
}

// maxAttackSilos bounds how many silos the AI flips to attack mode,
// keeping the rest on air defense.
const maxAttackSilos = 3

func newAIState(s *GameSession, p *Player) *aiState {
	return &aiState{player: p}
}

func (s *GameSession) updateAI() {
	for _, pid := range util.SortedMapKeys(s.ai) {
		ai := s.ai[pid]
		if ai.suspended || ai.player.PopulationRemaining <= 0 {
			continue
		}

		switch {
		case s.DefconLevel == 5:
			s.aiPlace(ai)
		case s.DefconLevel <= 3 && s.DefconLevel > 1:
			s.aiArm(ai)
		case s.DefconLevel == 1:
			s.aiArm(ai)
			s.aiSalvo(ai)
		}
	}
}

// aiPlace works through the territory's starting positions, one
// building per tick.
func (s *GameSession) aiPlace(ai *aiState) {
	terr := s.catalog.Territories[ai.player.TerritoryId]
	if terr == nil || ai.placeIdx >= len(terr.StartingPositions) {
		return
	}

	sp := terr.StartingPositions[ai.placeIdx]
	ai.placeIdx++
	if _, err := s.placeBuilding(ai.player.Id, BuildingType(sp.Type), sp.Position); err != nil {
		s.lg.Debug("AI placement failed", slog.String("player", string(ai.player.Id)),
			slog.String("type", sp.Type), slog.String("error", err.Error()))
	}
}

func (s *GameSession) aiArm(ai *aiState) {
	if ai.modeFlips >= maxAttackSilos {
		return
	}
	for _, b := range s.sortedBuildings() {
		if b.OwnerId == ai.player.Id && b.Type == BuildingSilo && !b.Destroyed && b.Mode == SiloModeDefend {
			if s.setSiloMode(ai.player.Id, b.Id, SiloModeAttack) == nil {
				ai.modeFlips++
			}
			return
		}
	}
}

func (s *GameSession) aiSalvo(ai *aiState) {
	cfg := s.catalog.AI

	if ai.nextSalvo.IsZero() {
		ai.nextSalvo = s.SimTime.Add(s.Rand.DurationBetween(
			time.Duration(cfg.SalvoIntervalMinMs)*time.Millisecond,
			time.Duration(cfg.SalvoIntervalMaxMs)*time.Millisecond))
		return
	}
	if s.SimTime.Before(ai.nextSalvo) {
		return
	}
	ai.nextSalvo = s.SimTime.Add(s.Rand.DurationBetween(
		time.Duration(cfg.SalvoIntervalMinMs)*time.Millisecond,
		time.Duration(cfg.SalvoIntervalMaxMs)*time.Millisecond))

	// Pick a victim, then their biggest surviving cities.
	enemies := util.FilterSlice(s.sortedPlayers(), func(p *Player) bool {
		return p.Id != ai.player.Id && p.PopulationRemaining > 0
	})
	if len(enemies) == 0 {
		return
	}
	enemy := rand.SampleSlice(s.Rand, enemies)

	var cities []*City
	if terr := s.Territories[enemy.TerritoryId]; terr != nil {
		for _, cityId := range terr.CityIds {
			if c := s.Cities[cityId]; c != nil && !c.Destroyed {
				cities = append(cities, c)
			}
		}
	}
	if len(cities) == 0 {
		return
	}
	slices.SortFunc(cities, func(a, b *City) int { return b.Population - a.Population })
	if len(cities) > cfg.TopCities {
		cities = cities[:cfg.TopCities]
	}

	launched := 0
	for _, b := range s.sortedBuildings() {
		if b.OwnerId != ai.player.Id || b.Type != BuildingSilo || b.Destroyed ||
			b.Mode != SiloModeAttack || b.MissileAmmo <= 0 {
			continue
		}
		idx := rand.SampleWeighted(s.Rand, cities, func(c *City) int { return c.Population })
		if idx == -1 {
			break
		}
		if _, err := s.launchMissile(ai.player.Id, b.Id, cities[idx].Position); err == nil {
			launched++
		}
	}
	if launched > 0 {
		s.lg.Info("AI salvo", slog.String("player", string(ai.player.Id)),
			slog.String("against", string(enemy.Id)), slog.Int("missiles", launched))
	}
}
