// server/dispatcher.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"log/slog"
	"time"

	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/sim"
	"github.com/standoff-sim/standoff/util"
)

// handleMessage parses and dispatches one inbound frame. Protocol errors
// never kill the connection; the client gets an error reply and the
// socket stays up.
func (sm *ServerManager) handleMessage(c *Connection, data []byte) {
	var env messageEnvelope
	if err := util.UnmarshalJSONBytes(data, &env); err != nil {
		c.SendError(CodeInvalidMessage, err)
		return
	}

	var err error
	switch env.Type {
	case "create_lobby":
		var m createLobbyMessage
		if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			err = sm.createLobby(c, m.PlayerName, m.LobbyName, m.Config)
		}

	case "join_lobby":
		var m joinLobbyMessage
		if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			err = sm.joinLobby(c, m.LobbyId, m.PlayerName)
		}

	case "leave_lobby":
		sm.mu.Lock(sm.lg)
		sm.leaveLobby(c)
		sm.mu.Unlock(sm.lg)

	case "set_ready":
		var m setReadyMessage
		if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			err = sm.setReady(c, m.Ready)
		}

	case "select_territory":
		var m selectTerritoryMessage
		if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			err = sm.selectTerritory(c, m.TerritoryId)
		}

	case "start_game":
		err = sm.startGame(c)

	case "place_building":
		var m placeBuildingMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.PlaceBuildingCommand{Player: c.PlayerId, Kind: m.Kind, Position: m.Position})
		}

	case "launch_missile":
		var m launchMissileMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			pos := sm.resolveTarget(s, m.TargetId, m.TargetPosition)
			if m.TargetId != "" && pos.IsZero() {
				err = sim.ErrNoSuchBuilding
			} else {
				s.PostCommand(sim.LaunchMissileCommand{
					Player: c.PlayerId, SiloId: m.SiloId, TargetPosition: pos,
				})
			}
		}

	case "set_silo_mode":
		var m setSiloModeMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.SetSiloModeCommand{Player: c.PlayerId, SiloId: m.SiloId, Mode: m.Mode})
		}

	case "launch_satellite":
		var m launchSatelliteMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.LaunchSatelliteCommand{
				Player: c.PlayerId, FacilityId: m.FacilityId, Inclination: m.Inclination,
			})
		}

	case "set_game_speed":
		var m setGameSpeedMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.SetGameSpeedCommand{Player: c.PlayerId, Speed: m.Speed})
		}

	case "hack_scan":
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if buildings, herr := s.HackScan(c.PlayerId); herr != nil {
			err = herr
		} else {
			c.Send(hackScanResultMessage{Type: "hack_scan_result", Buildings: buildings})
		}

	case "hack_start":
		var m hackStartMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.HackStartCommand{
				Player: c.PlayerId, TargetId: m.TargetId, HackType: m.HackType, Route: m.Route,
			})
		}

	case "hack_disconnect":
		var m hackDisconnectMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.HackDisconnectCommand{Player: c.PlayerId, HackId: m.HackId})
		}

	case "hack_purge":
		var m hackPurgeMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.HackPurgeCommand{Player: c.PlayerId, TargetId: m.TargetId})
		}

	case "hack_trace":
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else {
			c.Send(intrusionStatusMessage{Type: "intrusion_status", Traces: s.HackTraceReport(c.PlayerId)})
		}

	case "request_intercept_info":
		var m requestInterceptInfoMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			var options []sim.InterceptOption
			if options, err = s.RequestInterceptInfo(c.PlayerId, m.TargetMissileId); err == nil {
				c.Send(interceptInfoMessage{
					Type:            "intercept_info",
					TargetMissileId: m.TargetMissileId,
					Options:         options,
				})
			}
		}

	case "manual_intercept":
		var m manualInterceptMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.ManualInterceptCommand{
				Player: c.PlayerId, TargetMissileId: m.TargetMissileId, SiloIds: m.SiloIds,
			})
		}

	case "debug":
		var m debugMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.DebugCommand{
				Player: c.PlayerId, Command: m.Command, Value: m.Value, Region: m.TargetRegion,
			})
		}

	case "enable_ai":
		var m aiMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.EnableAICommand{Player: c.PlayerId, Region: m.Region})
		}

	case "disable_ai":
		var m aiMessage
		if s, serr := sm.sessionFor(c); serr != nil {
			err = serr
		} else if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			s.PostCommand(sim.DisableAICommand{Player: c.PlayerId, Region: m.Region})
		}

	case "ping":
		var m pingMessage
		if err = util.UnmarshalJSONBytes(data, &m); err == nil {
			c.Send(pongMessage{Type: "pong", ClientTime: m.ClientTime, ServerTime: time.Now().UnixMilli()})
		}

	default:
		sm.lg.Debug("unknown message type", slog.String("type", env.Type),
			slog.String("connection", c.Id))
		err = ErrUnknownMessageType
	}

	if err != nil {
		sm.replyError(c, env.Type, err)
	}
}

// replyError picks the reply shape the protocol calls for: lobby
// operations answer with lobby_error, everything else with error.
func (sm *ServerManager) replyError(c *Connection, msgType string, err error) {
	switch msgType {
	case "create_lobby", "join_lobby", "set_ready", "select_territory", "start_game":
		c.Send(lobbyErrorMessage{Type: "lobby_error", Code: CodeLobbyError, Message: err.Error()})
	default:
		code := CodeInvalidMessage
		switch err {
		case ErrNotInGame, ErrGameNotFound:
			code = CodeNotInGame
		case ErrUnknownMessageType:
			code = CodeInvalidMessage
		case sim.ErrNoSuchMissile, sim.ErrNoSuchBuilding, sim.ErrNoSuchPlayer:
			code = CodeNotFound
		}
		c.SendError(code, err)
	}
}

// sessionFor resolves the connection's running game session.
func (sm *ServerManager) sessionFor(c *Connection) (*sim.GameSession, error) {
	sm.mu.Lock(sm.lg)
	defer sm.mu.Unlock(sm.lg)

	if c.GameId == "" {
		return nil, ErrNotInGame
	}
	ag, ok := sm.games[c.GameId]
	if !ok {
		return nil, ErrGameNotFound
	}
	return ag.session, nil
}

// resolveTarget maps an optional named target (a city or building id) to
// its position; an explicit position wins.
func (sm *ServerManager) resolveTarget(s *sim.GameSession, targetId string, pos math.Point2LL) math.Point2LL {
	if targetId == "" || !pos.IsZero() {
		return pos
	}
	return s.TargetPosition(targetId)
}
