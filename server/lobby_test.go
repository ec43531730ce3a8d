// server/lobby_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/sim"
	"github.com/standoff-sim/standoff/util"
)

func sleepTick() { time.Sleep(sim.TickInterval) }

func newTestManager(t *testing.T) *ServerManager {
	t.Helper()
	var e util.ErrorLogger
	cat := catalog.LoadDefault(&e)
	if e.HaveErrors() {
		t.Fatal(e.String())
	}
	config := DefaultConfig()
	config.IdleReap = Duration(time.Millisecond)
	return NewServerManager(cat, config, log.NewDiscard())
}

// addTestConnection registers a connection with no underlying socket;
// outbound frames pile up in its send queue for inspection.
func addTestConnection(t *testing.T, sm *ServerManager) *Connection {
	t.Helper()
	c := newConnection(nil, sm)
	sm.mu.Lock(sm.lg)
	sm.connections[c.Id] = c
	sm.mu.Unlock(sm.lg)
	return c
}

// framesOfType drains the connection's queued frames and returns the
// decoded ones carrying the given type tag.
func framesOfType(t *testing.T, c *Connection, ty string) []map[string]any {
	t.Helper()
	var got []map[string]any
	for {
		select {
		case b := <-c.send:
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				t.Fatalf("bad frame %q: %v", b, err)
			}
			if m["type"] == ty {
				got = append(got, m)
			}
		default:
			return got
		}
	}
}

func requireFrame(t *testing.T, c *Connection, ty string) map[string]any {
	t.Helper()
	frames := framesOfType(t, c, ty)
	if len(frames) == 0 {
		t.Fatalf("no %q frame queued", ty)
	}
	return frames[len(frames)-1]
}

func TestLobbyLifecycle(t *testing.T) {
	sm := newTestManager(t)
	host := addTestConnection(t, sm)
	joiner := addTestConnection(t, sm)

	if err := sm.createLobby(host, "Alice", "first strike club", nil); err != nil {
		t.Fatal(err)
	}
	if host.LobbyId == "" {
		t.Fatal("host not seated in the new lobby")
	}
	update := requireFrame(t, host, "lobby_update")
	lobbyId := update["lobby"].(map[string]any)["id"].(string)

	// The browsing connection saw the list change.
	list := requireFrame(t, joiner, "lobby_list")
	if n := len(list["lobbies"].([]any)); n != 1 {
		t.Fatalf("%d lobbies listed, want 1", n)
	}

	if err := sm.joinLobby(joiner, "no-such-lobby", "Boris"); err != ErrLobbyNotFound {
		t.Fatalf("got %v, want ErrLobbyNotFound", err)
	}
	if err := sm.joinLobby(joiner, lobbyId, "Boris"); err != nil {
		t.Fatal(err)
	}
	update = requireFrame(t, joiner, "lobby_update")
	if n := len(update["lobby"].(map[string]any)["members"].([]any)); n != 2 {
		t.Fatalf("%d members after join, want 2", n)
	}

	// Territory selection conflicts are rejected; availability is derived.
	if err := sm.selectTerritory(host, "north_america"); err != nil {
		t.Fatal(err)
	}
	if err := sm.selectTerritory(joiner, "north_america"); err != ErrTerritoryTaken {
		t.Fatalf("got %v, want ErrTerritoryTaken", err)
	}
	if err := sm.selectTerritory(joiner, "atlantis"); err != ErrUnknownTerritory {
		t.Fatalf("got %v, want ErrUnknownTerritory", err)
	}
	l := sm.lobbies[lobbyId]
	for _, id := range l.availableTerritories(sm.catalog) {
		if id == "north_america" {
			t.Fatal("selected territory still listed as available")
		}
	}

	// Host leaves; the remaining member inherits the lobby.
	sm.mu.Lock(sm.lg)
	sm.leaveLobby(host)
	sm.mu.Unlock(sm.lg)
	if l.HostId != l.Members[0].PlayerId {
		t.Error("host did not transfer on leave")
	}

	// Last member out dissolves it.
	sm.mu.Lock(sm.lg)
	sm.leaveLobby(joiner)
	sm.mu.Unlock(sm.lg)
	if _, ok := sm.lobbies[lobbyId]; ok {
		t.Error("empty lobby not dissolved")
	}
}

func TestStartGamePreconditions(t *testing.T) {
	sm := newTestManager(t)
	host := addTestConnection(t, sm)
	joiner := addTestConnection(t, sm)

	if err := sm.createLobby(host, "Alice", "", nil); err != nil {
		t.Fatal(err)
	}
	if err := sm.startGame(host); err != ErrNotEnoughPlayers {
		t.Fatalf("got %v, want ErrNotEnoughPlayers", err)
	}

	if err := sm.joinLobby(joiner, host.LobbyId, "Boris"); err != nil {
		t.Fatal(err)
	}
	if err := sm.startGame(joiner); err != ErrNotLobbyHost {
		t.Fatalf("got %v, want ErrNotLobbyHost", err)
	}
	if err := sm.startGame(host); err != ErrPlayersNotReady {
		t.Fatalf("got %v, want ErrPlayersNotReady", err)
	}

	sm.setReady(host, true)
	sm.setReady(joiner, true)
	if err := sm.startGame(host); err != ErrTerritoryUnassigned {
		t.Fatalf("got %v, want ErrTerritoryUnassigned", err)
	}
}

func TestStartGameFlow(t *testing.T) {
	sm := newTestManager(t)
	host := addTestConnection(t, sm)
	joiner := addTestConnection(t, sm)

	config := &LobbyConfig{Seed: 7}
	if err := sm.createLobby(host, "Alice", "doomsday", config); err != nil {
		t.Fatal(err)
	}
	if err := sm.joinLobby(joiner, host.LobbyId, "Boris"); err != nil {
		t.Fatal(err)
	}
	if err := sm.selectTerritory(host, "north_america"); err != nil {
		t.Fatal(err)
	}
	if err := sm.selectTerritory(joiner, "russia"); err != nil {
		t.Fatal(err)
	}
	sm.setReady(host, true)
	sm.setReady(joiner, true)

	lobbyId := host.LobbyId
	if err := sm.startGame(host); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Connection{host, joiner} {
		start := requireFrame(t, c, "game_start")
		if start["playerId"].(string) != string(c.PlayerId) {
			t.Errorf("game_start playerId %v != connection's %s", start["playerId"], c.PlayerId)
		}
		initial := start["initialState"].(map[string]any)
		if lvl := initial["defconLevel"].(float64); lvl != 5 {
			t.Errorf("initial DEFCON %v, want 5", lvl)
		}
		if c.GameId == "" {
			t.Error("connection not moved into the game")
		}
	}
	if host.PlayerId == joiner.PlayerId {
		t.Error("players share an id")
	}

	sm.mu.Lock(sm.lg)
	if _, ok := sm.lobbies[lobbyId]; ok {
		t.Error("lobby survived game start")
	}
	if len(sm.games) != 1 {
		t.Errorf("%d games running, want 1", len(sm.games))
	}
	sm.mu.Unlock(sm.lg)

	// Disconnect both; the idle reaper shuts the session down.
	sm.connectionClosed(host)
	sm.connectionClosed(joiner)
	deadline := time.Now().Add(5 * time.Second)
	for {
		sm.mu.Lock(sm.lg)
		n := len(sm.games)
		sm.mu.Unlock(sm.lg)
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle game not reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
