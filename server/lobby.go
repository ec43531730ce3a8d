// server/lobby.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"time"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/sim"
	"github.com/standoff-sim/standoff/util"
)

const (
	lobbyCapacity   = 6
	lobbyMinPlayers = 2
)

// LobbyConfig is the client-supplied portion of a lobby's setup. Zero
// values take server defaults.
type LobbyConfig struct {
	MaxPlayers int   `json:"maxPlayers,omitempty"`
	Seed       int64 `json:"seed,omitempty"`
	Debug      bool  `json:"debug,omitempty"`
}

type lobbyMember struct {
	ConnectionId string
	PlayerId     sim.PlayerId
	Name         string
	Ready        bool
	TerritoryId  string
}

// lobby is a pre-game staging area. All access goes through the server
// manager's lock.
type lobby struct {
	Id      string
	Name    string
	HostId  sim.PlayerId
	Config  LobbyConfig
	Members []*lobbyMember

	createTime   time.Time
	lastActivity time.Time
}

func (l *lobby) member(connectionId string) *lobbyMember {
	for _, m := range l.Members {
		if m.ConnectionId == connectionId {
			return m
		}
	}
	return nil
}

func (l *lobby) removeMember(connectionId string) {
	l.Members = util.FilterSlice(l.Members,
		func(m *lobbyMember) bool { return m.ConnectionId != connectionId })

	// Host left: the longest-standing remaining member inherits.
	hostStays := false
	for _, m := range l.Members {
		if m.PlayerId == l.HostId {
			hostStays = true
		}
	}
	if !hostStays && len(l.Members) > 0 {
		l.HostId = l.Members[0].PlayerId
	}
	l.lastActivity = time.Now()
}

// availableTerritories is derived, not stored: the catalog minus the
// territories members have already selected.
func (l *lobby) availableTerritories(cat *catalog.Catalog) []string {
	taken := make(map[string]bool)
	for _, m := range l.Members {
		if m.TerritoryId != "" {
			taken[m.TerritoryId] = true
		}
	}
	var avail []string
	for _, id := range util.SortedMapKeys(cat.Territories) {
		if !taken[id] {
			avail = append(avail, id)
		}
	}
	return avail
}

// checkStart reports why the lobby cannot start a game, or nil.
func (l *lobby) checkStart() error {
	if len(l.Members) < lobbyMinPlayers {
		return ErrNotEnoughPlayers
	}
	for _, m := range l.Members {
		if !m.Ready {
			return ErrPlayersNotReady
		}
		if m.TerritoryId == "" {
			return ErrTerritoryUnassigned
		}
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Wire views

// LobbySummary is the lobby_list entry.
type LobbySummary struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

type MemberSnapshot struct {
	PlayerId    sim.PlayerId `json:"playerId"`
	Name        string       `json:"name"`
	Ready       bool         `json:"ready"`
	TerritoryId string       `json:"territoryId,omitempty"`
}

// LobbySnapshot is the full lobby view broadcast to members on every
// change.
type LobbySnapshot struct {
	Id                   string           `json:"id"`
	Name                 string           `json:"name"`
	HostId               sim.PlayerId     `json:"hostId"`
	Config               LobbyConfig      `json:"config"`
	Members              []MemberSnapshot `json:"members"`
	AvailableTerritories []string         `json:"availableTerritories"`
}

func (l *lobby) summary() LobbySummary {
	return LobbySummary{
		Id:         l.Id,
		Name:       l.Name,
		Players:    len(l.Members),
		MaxPlayers: l.Config.MaxPlayers,
	}
}

func (l *lobby) snapshot(cat *catalog.Catalog) LobbySnapshot {
	snap := LobbySnapshot{
		Id:                   l.Id,
		Name:                 l.Name,
		HostId:               l.HostId,
		Config:               l.Config,
		AvailableTerritories: l.availableTerritories(cat),
	}
	for _, m := range l.Members {
		snap.Members = append(snap.Members, MemberSnapshot{
			PlayerId:    m.PlayerId,
			Name:        m.Name,
			Ready:       m.Ready,
			TerritoryId: m.TerritoryId,
		})
	}
	return snap
}
