// server/manager.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"log/slog"
	"time"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/rand"
	"github.com/standoff-sim/standoff/sim"
	"github.com/standoff-sim/standoff/util"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerManager owns the connection table, the lobbies, and the running
// game sessions. Its lock guards only the registries; per-session state
// is guarded by each session's own lock.
type ServerManager struct {
	mu util.LoggingMutex

	catalog *catalog.Catalog
	config  Config

	connections map[string]*Connection
	lobbies     map[string]*lobby
	games       map[string]*activeGame

	startTime time.Time
	lg        *log.Logger
}

type activeGame struct {
	id      string
	session *sim.GameSession

	// Connection per player; entries are replaced on reconnect and
	// removed on leave. Guarded by the manager's lock.
	players map[sim.PlayerId]*Connection

	endSent bool
}

func NewServerManager(cat *catalog.Catalog, config Config, lg *log.Logger) *ServerManager {
	return &ServerManager{
		catalog:     cat,
		config:      config,
		connections: make(map[string]*Connection),
		lobbies:     make(map[string]*lobby),
		games:       make(map[string]*activeGame),
		startTime:   time.Now(),
		lg:          lg,
	}
}

// AddConnection registers a freshly upgraded websocket and starts its
// pumps. The client's first frame from us is the current lobby list.
func (sm *ServerManager) AddConnection(ws *websocket.Conn) error {
	sm.mu.Lock(sm.lg)

	if len(sm.connections) >= sm.config.MaxConnections {
		sm.mu.Unlock(sm.lg)
		return ErrServerFull
	}

	c := newConnection(ws, sm)
	sm.connections[c.Id] = c
	list := sm.lobbyList()
	sm.mu.Unlock(sm.lg)

	go c.writePump()
	go c.readPump()

	c.Send(list)
	c.lg.Info("connection opened")
	return nil
}

// connectionClosed detaches the connection from whatever it was part of;
// a close mid-lobby is a leave, a close mid-game marks the player
// disconnected but keeps their seat.
func (sm *ServerManager) connectionClosed(c *Connection) {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	if _, ok := sm.connections[c.Id]; !ok {
		return
	}
	delete(sm.connections, c.Id)
	c.close()

	if c.LobbyId != "" {
		sm.leaveLobby(c)
	}
	if ag, ok := sm.games[c.GameId]; ok {
		if ag.players[c.PlayerId] == c {
			delete(ag.players, c.PlayerId)
		}
		ag.session.SetPlayerConnected(c.PlayerId, false)
		ag.session.DropRecipient(c.PlayerId)
	}
	c.lg.Info("connection closed")
}

///////////////////////////////////////////////////////////////////////////
// Lobbies

// lobbyList builds the lobby_list message; callers hold the lock.
func (sm *ServerManager) lobbyList() lobbyListMessage {
	msg := lobbyListMessage{Type: "lobby_list", Lobbies: []LobbySummary{}}
	for _, id := range util.SortedMapKeys(sm.lobbies) {
		msg.Lobbies = append(msg.Lobbies, sm.lobbies[id].summary())
	}
	return msg
}

// broadcastLobbyList tells every connection still browsing (not seated in
// a lobby or game) that the list changed; callers hold the lock.
func (sm *ServerManager) broadcastLobbyList() {
	list := sm.lobbyList()
	for _, c := range sm.connections {
		if c.LobbyId == "" && c.GameId == "" {
			c.Send(list)
		}
	}
}

// broadcastLobbyUpdate sends the lobby's full snapshot to its members;
// callers hold the lock.
func (sm *ServerManager) broadcastLobbyUpdate(l *lobby) {
	msg := lobbyUpdateMessage{Type: "lobby_update", Lobby: l.snapshot(sm.catalog)}
	for _, m := range l.Members {
		if c, ok := sm.connections[m.ConnectionId]; ok {
			c.Send(msg)
		}
	}
}

func (sm *ServerManager) createLobby(c *Connection, playerName, lobbyName string, config *LobbyConfig) error {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	if c.LobbyId != "" || c.GameId != "" {
		return ErrAlreadyInLobby
	}
	if playerName == "" {
		return ErrInvalidPlayerName
	}

	cfg := LobbyConfig{MaxPlayers: lobbyCapacity}
	if config != nil {
		cfg = *config
		if cfg.MaxPlayers <= 0 || cfg.MaxPlayers > lobbyCapacity {
			cfg.MaxPlayers = lobbyCapacity
		}
	}
	if lobbyName == "" {
		lobbyName = rand.Make().AdjectiveNoun()
	}

	l := &lobby{
		Id:           uuid.NewString(),
		Name:         lobbyName,
		Config:       cfg,
		createTime:   time.Now(),
		lastActivity: time.Now(),
	}
	host := &lobbyMember{
		ConnectionId: c.Id,
		PlayerId:     sim.PlayerId(uuid.NewString()),
		Name:         playerName,
	}
	l.HostId = host.PlayerId
	l.Members = append(l.Members, host)
	sm.lobbies[l.Id] = l

	c.LobbyId = l.Id
	c.PlayerId = host.PlayerId

	sm.lg.Info("lobby created", slog.String("lobby", l.Id), slog.String("name", lobbyName))
	sm.broadcastLobbyUpdate(l)
	sm.broadcastLobbyList()
	return nil
}

func (sm *ServerManager) joinLobby(c *Connection, lobbyId, playerName string) error {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	if c.LobbyId != "" || c.GameId != "" {
		return ErrAlreadyInLobby
	}
	if playerName == "" {
		return ErrInvalidPlayerName
	}
	l, ok := sm.lobbies[lobbyId]
	if !ok {
		return ErrLobbyNotFound
	}
	if len(l.Members) >= l.Config.MaxPlayers {
		return ErrLobbyFull
	}

	m := &lobbyMember{
		ConnectionId: c.Id,
		PlayerId:     sim.PlayerId(uuid.NewString()),
		Name:         playerName,
	}
	l.Members = append(l.Members, m)
	l.lastActivity = time.Now()

	c.LobbyId = l.Id
	c.PlayerId = m.PlayerId

	sm.broadcastLobbyUpdate(l)
	sm.broadcastLobbyList()
	return nil
}

// leaveLobby removes the connection from its lobby, dissolving the lobby
// if it empties; callers hold the lock. Safe to call twice.
func (sm *ServerManager) leaveLobby(c *Connection) {
	l, ok := sm.lobbies[c.LobbyId]
	c.LobbyId = ""
	if !ok {
		return
	}

	l.removeMember(c.Id)
	if len(l.Members) == 0 {
		delete(sm.lobbies, l.Id)
		sm.lg.Info("lobby dissolved", slog.String("lobby", l.Id))
	} else {
		sm.broadcastLobbyUpdate(l)
	}
	sm.broadcastLobbyList()
}

func (sm *ServerManager) selectTerritory(c *Connection, territoryId string) error {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	l, ok := sm.lobbies[c.LobbyId]
	if !ok {
		return ErrNotInLobby
	}
	m := l.member(c.Id)
	if m == nil {
		return ErrNotInLobby
	}
	if _, ok := sm.catalog.Territories[territoryId]; !ok {
		return ErrUnknownTerritory
	}
	for _, other := range l.Members {
		if other != m && other.TerritoryId == territoryId {
			return ErrTerritoryTaken
		}
	}

	m.TerritoryId = territoryId
	l.lastActivity = time.Now()
	sm.broadcastLobbyUpdate(l)
	return nil
}

func (sm *ServerManager) setReady(c *Connection, ready bool) error {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	l, ok := sm.lobbies[c.LobbyId]
	if !ok {
		return ErrNotInLobby
	}
	m := l.member(c.Id)
	if m == nil {
		return ErrNotInLobby
	}

	m.Ready = ready
	l.lastActivity = time.Now()
	sm.broadcastLobbyUpdate(l)
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Game lifecycle

func (sm *ServerManager) startGame(c *Connection) error {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	l, ok := sm.lobbies[c.LobbyId]
	if !ok {
		return ErrNotInLobby
	}
	if c.PlayerId != l.HostId {
		return ErrNotLobbyHost
	}
	if err := l.checkStart(); err != nil {
		return err
	}

	seed := l.Config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	config := sim.NewSessionConfig{
		Id:           uuid.NewString(),
		Catalog:      sm.catalog,
		Seed:         seed,
		DebugEnabled: l.Config.Debug || sm.config.Debug,
	}
	for _, m := range l.Members {
		config.Players = append(config.Players, sim.NewPlayerSpec{
			Id:          m.PlayerId,
			Name:        m.Name,
			TerritoryId: m.TerritoryId,
		})
	}

	session, err := sim.NewGameSession(config, sm.lg)
	if err != nil {
		return err
	}

	ag := &activeGame{
		id:      config.Id,
		session: session,
		players: make(map[sim.PlayerId]*Connection),
	}
	sm.games[ag.id] = ag

	for _, m := range l.Members {
		mc, ok := sm.connections[m.ConnectionId]
		if !ok {
			continue
		}
		mc.LobbyId = ""
		mc.GameId = ag.id
		ag.players[m.PlayerId] = mc
		mc.Send(gameStartMessage{
			Type:         "game_start",
			PlayerId:     m.PlayerId,
			InitialState: session.GetStateUpdate(m.PlayerId),
		})
	}

	delete(sm.lobbies, l.Id)
	sm.broadcastLobbyList()

	sm.lg.Info("game started", slog.Any("game", session),
		slog.String("lobby", l.Id), slog.Int("players", len(ag.players)))

	go sm.runGame(ag)
	return nil
}

// runGame is the session's owning goroutine: it advances the simulation
// at the tick rate and fans each player's delta out to their connection.
func (sm *ServerManager) runGame(ag *activeGame) {
	defer sm.lg.CatchAndReportCrash()

	ticker := time.NewTicker(sim.TickInterval)
	defer ticker.Stop()

	// Full snapshots interleave with the delta stream so a client whose
	// delta application has drifted can resynchronize without rejoining.
	const resyncTicks = 300

	idleSince := time.Now()
	for tick := 0; ; tick++ {
		<-ticker.C
		ag.session.Update()

		sm.mu.Lock(sm.lg)
		conns := make(map[sim.PlayerId]*Connection, len(ag.players))
		for pid, c := range ag.players {
			conns[pid] = c
		}
		ended := ag.endSent
		sm.mu.Unlock(sm.lg)

		for _, pid := range util.SortedMapKeys(conns) {
			sm.sendDelta(conns[pid], ag.session.GetDelta(pid))
			if tick > 0 && tick%resyncTicks == 0 {
				conns[pid].Send(gameStateMessage{Type: "game_state",
					State: ag.session.GetStateUpdate(pid)})
			}
		}

		if ag.session.Ended() && !ended {
			sm.mu.Lock(sm.lg)
			ag.endSent = true
			sm.mu.Unlock(sm.lg)
			// Final deltas above carried the game_end event; the explicit
			// message follows for clients that only track the envelope.
			s := ag.session
			msg := gameEndMessage{Type: "game_end", Winner: s.Winner, Scores: s.FinalScores()}
			for _, c := range conns {
				c.Send(msg)
			}
			break
		}

		if !ag.session.Idle() {
			idleSince = time.Now()
		} else if time.Since(idleSince) > time.Duration(sm.config.IdleReap) {
			sm.lg.Warn("reaping idle game", slog.String("game", ag.id))
			break
		}
	}

	sm.destroyGame(ag)
}

func (sm *ServerManager) destroyGame(ag *activeGame) {
	sm.mu.Lock(sm.lg)
	delete(sm.games, ag.id)
	list := sm.lobbyList()
	for _, c := range ag.players {
		c.GameId = ""
		c.Send(list)
	}
	ag.players = make(map[sim.PlayerId]*Connection)
	sm.mu.Unlock(sm.lg)

	ag.session.Destroy()
	sm.lg.Info("game destroyed", slog.String("game", ag.id))
}

// sendDelta puts one tick's delta on the wire. Player-directed hacking
// events and command rejections travel as their own frames; everything
// else rides in the game_delta.
func (sm *ServerManager) sendDelta(c *Connection, delta sim.GameDelta) {
	var inline []sim.Event
	for _, ev := range delta.Events {
		switch ev.Type {
		case sim.CommandRejectedEvent:
			c.Send(errorMessage{Type: "error", Code: ev.Code, Message: ev.Message})
		case sim.HackProgressEvent, sim.HackCompleteEvent, sim.HackTracedEvent,
			sim.HackDisconnectedEvent, sim.SystemCompromisedEvent, sim.IntrusionAlertEvent:
			c.Send(eventMessage{Type: ev.Type.String(), Event: ev})
		default:
			inline = append(inline, ev)
		}
	}
	delta.Events = inline

	if len(delta.Events) == 0 && len(delta.BuildingUpdates) == 0 &&
		len(delta.MissileUpdates) == 0 && len(delta.RemovedMissileIds) == 0 &&
		len(delta.SatelliteUpdates) == 0 && len(delta.RemovedSatelliteIds) == 0 {
		return
	}
	c.Send(gameDeltaMessage{Type: "game_delta", GameDelta: delta})
}

///////////////////////////////////////////////////////////////////////////
// Stats

type ServerStats struct {
	Uptime      string `json:"uptime"`
	Connections int    `json:"connections"`
	Lobbies     int    `json:"lobbies"`
	Games       int    `json:"games"`
	CPUUsage    int    `json:"cpuUsage"`
}

func (sm *ServerManager) Stats(cpuPercent int) ServerStats {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	return ServerStats{
		Uptime:      time.Since(sm.startTime).Round(time.Second).String(),
		Connections: len(sm.connections),
		Lobbies:     len(sm.lobbies),
		Games:       len(sm.games),
		CPUUsage:    cpuPercent,
	}
}
