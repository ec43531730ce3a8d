// server/errors.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import "errors"

var (
	ErrAlreadyInLobby      = errors.New("already in a lobby")
	ErrGameNotFound        = errors.New("no such game")
	ErrInvalidPlayerName   = errors.New("invalid player name")
	ErrLobbyFull           = errors.New("lobby is full")
	ErrLobbyNotFound       = errors.New("no such lobby")
	ErrNotEnoughPlayers    = errors.New("not enough players to start")
	ErrNotInGame           = errors.New("not in a game")
	ErrNotInLobby          = errors.New("not in a lobby")
	ErrNotLobbyHost        = errors.New("only the host can do that")
	ErrPlayersNotReady     = errors.New("not all players are ready")
	ErrServerFull          = errors.New("server is at capacity")
	ErrTerritoryTaken      = errors.New("territory already selected")
	ErrTerritoryUnassigned = errors.New("all players must select a territory")
	ErrUnknownMessageType  = errors.New("unknown message type")
	ErrUnknownTerritory    = errors.New("no such territory")
)

// Wire error codes for the error / lobby_error replies.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeLobbyError     = "LOBBY_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeNotInGame      = "NOT_IN_GAME"
	CodeServerFull     = "SERVER_FULL"
)
