// sim/errors.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import "errors"

var (
	ErrInvalidBuildingType   = errors.New("invalid building type")
	ErrInvalidGameSpeed      = errors.New("invalid game speed")
	ErrInvalidPlacement      = errors.New("position outside owned territory")
	ErrInvalidSiloMode       = errors.New("invalid silo mode")
	ErrNoAmmo                = errors.New("no ammunition remaining")
	ErrNoInterceptSolution   = errors.New("no reachable intercept point")
	ErrNoSuchBuilding        = errors.New("no such building")
	ErrNoSuchHack            = errors.New("no such hack")
	ErrNoSuchMissile         = errors.New("no such missile")
	ErrNoSuchPlayer          = errors.New("no such player")
	ErrNoSuchTerritory       = errors.New("no such territory")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrNotInDefconWindow     = errors.New("operation not permitted at current DEFCON level")
	ErrPlacementLimitReached = errors.New("building limit reached")
	ErrSatelliteCooldown     = errors.New("satellite launch cooldown active")
	ErrSiloCompromised       = errors.New("silo systems compromised")
	ErrSiloWrongMode         = errors.New("silo is in the wrong mode")
	ErrTargetAlreadyHacked   = errors.New("hack already in progress against target")
	ErrTerritoryTaken        = errors.New("territory already claimed")
	ErrUnknownHackType       = errors.New("unknown hack type")
	ErrInvalidRoute          = errors.New("route is not a connected path")
)
