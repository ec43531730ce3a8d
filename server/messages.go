// server/messages.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/sim"
)

// Every frame on the wire is a single JSON object carrying a "type" tag;
// the remaining fields live beside the tag. Inbound frames are decoded in
// two passes: the envelope for the tag, then the per-type payload struct
// from the same bytes.

type messageEnvelope struct {
	Type string `json:"type"`
}

///////////////////////////////////////////////////////////////////////////
// Client -> server

type createLobbyMessage struct {
	PlayerName string       `json:"playerName"`
	LobbyName  string       `json:"lobbyName,omitempty"`
	Config     *LobbyConfig `json:"config,omitempty"`
}

type joinLobbyMessage struct {
	LobbyId    string `json:"lobbyId"`
	PlayerName string `json:"playerName"`
}

type setReadyMessage struct {
	Ready bool `json:"ready"`
}

type selectTerritoryMessage struct {
	TerritoryId string `json:"territoryId"`
}

type placeBuildingMessage struct {
	// "type" is taken by the envelope tag, so the building kind travels
	// as buildingType.
	Kind     sim.BuildingType `json:"buildingType"`
	Position math.Point2LL    `json:"position"`
}

type launchMissileMessage struct {
	SiloId         string        `json:"siloId"`
	TargetPosition math.Point2LL `json:"targetPosition"`
	TargetId       string        `json:"targetId,omitempty"`
}

type setSiloModeMessage struct {
	SiloId string       `json:"siloId"`
	Mode   sim.SiloMode `json:"mode"`
}

type launchSatelliteMessage struct {
	FacilityId  string  `json:"facilityId"`
	Inclination float64 `json:"inclination"`
}

type setGameSpeedMessage struct {
	Speed int `json:"speed"`
}

type hackStartMessage struct {
	TargetId string   `json:"targetId"`
	HackType string   `json:"hackType"`
	Route    []string `json:"route,omitempty"`
}

type hackDisconnectMessage struct {
	HackId string `json:"hackId"`
}

type hackPurgeMessage struct {
	TargetId string `json:"targetId"`
}

type requestInterceptInfoMessage struct {
	TargetMissileId string `json:"targetMissileId"`
}

type manualInterceptMessage struct {
	TargetMissileId string   `json:"targetMissileId"`
	SiloIds         []string `json:"siloIds"`
}

type debugMessage struct {
	Command      string `json:"command"`
	Value        int    `json:"value,omitempty"`
	TargetRegion string `json:"targetRegion,omitempty"`
}

type aiMessage struct {
	Region string `json:"region,omitempty"`
}

type pingMessage struct {
	ClientTime int64 `json:"clientTime"`
}

///////////////////////////////////////////////////////////////////////////
// Server -> client

type lobbyListMessage struct {
	Type    string         `json:"type"` // "lobby_list"
	Lobbies []LobbySummary `json:"lobbies"`
}

type lobbyUpdateMessage struct {
	Type  string        `json:"type"` // "lobby_update"
	Lobby LobbySnapshot `json:"lobby"`
}

type lobbyErrorMessage struct {
	Type    string `json:"type"` // "lobby_error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

type gameStartMessage struct {
	Type         string          `json:"type"` // "game_start"
	PlayerId     sim.PlayerId    `json:"playerId"`
	InitialState sim.StateUpdate `json:"initialState"`
}

type gameStateMessage struct {
	Type  string          `json:"type"` // "game_state"
	State sim.StateUpdate `json:"state"`
}

type gameDeltaMessage struct {
	Type string `json:"type"` // "game_delta"
	sim.GameDelta
}

type gameEndMessage struct {
	Type   string               `json:"type"` // "game_end"
	Winner *sim.PlayerId        `json:"winner"`
	Scores map[sim.PlayerId]int `json:"scores"`
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pongMessage struct {
	Type       string `json:"type"` // "pong"
	ClientTime int64  `json:"clientTime"`
	ServerTime int64  `json:"serverTime"`
}

type hackScanResultMessage struct {
	Type      string         `json:"type"` // "hack_scan_result"
	Buildings []sim.Building `json:"buildings"`
}

type intrusionStatusMessage struct {
	Type   string            `json:"type"` // "intrusion_status"
	Traces []sim.TraceReport `json:"traces"`
}

type interceptInfoMessage struct {
	Type            string                `json:"type"` // "intercept_info"
	TargetMissileId string                `json:"targetMissileId"`
	Options         []sim.InterceptOption `json:"options"`
}

// eventMessage carries a single player-directed simulation event as its
// own frame: hack_progress, hack_complete, hack_traced, hack_disconnected,
// system_compromised, intrusion_alert.
type eventMessage struct {
	Type string `json:"type"`
	sim.Event
}
