// server/dispatcher_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"testing"
)

func TestDispatcherRejectsBadFrames(t *testing.T) {
	sm := newTestManager(t)
	c := addTestConnection(t, sm)

	for _, tc := range []struct {
		name      string
		frame     string
		replyType string
		code      string
	}{
		{"malformed json", `{"type": `, "error", CodeInvalidMessage},
		{"unknown type", `{"type":"self_destruct"}`, "error", CodeInvalidMessage},
		{"game op outside game", `{"type":"place_building","buildingType":"silo","position":[0,0]}`,
			"error", CodeNotInGame},
		{"hack op outside game", `{"type":"hack_scan"}`, "error", CodeNotInGame},
		{"join missing lobby", `{"type":"join_lobby","lobbyId":"zzz","playerName":"Mallory"}`,
			"lobby_error", CodeLobbyError},
		{"ready outside lobby", `{"type":"set_ready","ready":true}`, "lobby_error", CodeLobbyError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sm.handleMessage(c, []byte(tc.frame))
			reply := requireFrame(t, c, tc.replyType)
			if reply["code"] != tc.code {
				t.Errorf("code %v, want %s", reply["code"], tc.code)
			}
		})
	}
}

func TestDispatcherPing(t *testing.T) {
	sm := newTestManager(t)
	c := addTestConnection(t, sm)

	sm.handleMessage(c, []byte(`{"type":"ping","clientTime":12345}`))
	pong := requireFrame(t, c, "pong")
	if ct := pong["clientTime"].(float64); ct != 12345 {
		t.Errorf("clientTime %v not echoed", ct)
	}
	if _, ok := pong["serverTime"].(float64); !ok {
		t.Error("pong missing serverTime")
	}
}

func TestDispatcherRoutesGameCommands(t *testing.T) {
	sm := newTestManager(t)
	host := addTestConnection(t, sm)
	joiner := addTestConnection(t, sm)

	if err := sm.createLobby(host, "Alice", "", &LobbyConfig{Seed: 3, Debug: true}); err != nil {
		t.Fatal(err)
	}
	if err := sm.joinLobby(joiner, host.LobbyId, "Boris"); err != nil {
		t.Fatal(err)
	}
	sm.selectTerritory(host, "north_america")
	sm.selectTerritory(joiner, "russia")
	sm.setReady(host, true)
	sm.setReady(joiner, true)
	if err := sm.startGame(host); err != nil {
		t.Fatal(err)
	}

	s, err := sm.sessionFor(host)
	if err != nil {
		t.Fatal(err)
	}

	// A placement frame inside north_america turns into a queued command
	// that lands on the next tick.
	sm.handleMessage(host, []byte(
		`{"type":"place_building","buildingType":"silo","position":[-104,41]}`))
	deadline := 100
	for ; deadline > 0 && len(s.GetStateUpdate(host.PlayerId).Buildings) == 0; deadline-- {
		// runGame ticks the session; wait for the command to land.
		sleepTick()
	}
	state := s.GetStateUpdate(host.PlayerId)
	if len(state.Buildings) != 1 || state.Buildings[0].Type != "silo" {
		t.Fatalf("placement command did not apply: %+v", state.Buildings)
	}

	// An out-of-territory placement comes back as a wire error.
	sm.handleMessage(host, []byte(
		`{"type":"place_building","buildingType":"silo","position":[40,56]}`))
	for deadline = 100; deadline > 0; deadline-- {
		sleepTick()
		if frames := framesOfType(t, host, "error"); len(frames) > 0 {
			if frames[0]["code"] != "INVALID_PLACEMENT" {
				t.Errorf("code %v, want INVALID_PLACEMENT", frames[0]["code"])
			}
			break
		}
	}
	if deadline == 0 {
		t.Fatal("no rejection for out-of-territory placement")
	}

	sm.connectionClosed(host)
	sm.connectionClosed(joiner)
}
