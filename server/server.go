// server/server.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"encoding/json"
	"errors"
	gomath "math"
	"net/http"
	"time"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/util"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/cpu"
)

var upgrader = websocket.Upgrader{
	// Browser clients connect from arbitrary hosting; the protocol has no
	// ambient credentials, so cross-origin upgrades are fine.
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// LaunchServer runs the websocket endpoint and the stats page until the
// context is canceled; it returns on cancelation or listener failure.
func LaunchServer(ctx context.Context, config Config, cat *catalog.Catalog, lg *log.Logger) error {
	sm := NewServerManager(cat, config, lg)

	util.MonitorCPUUsage(90, false, lg)
	util.MonitorMemoryUsage(512, 256, lg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			lg.Warnf("websocket upgrade: %v", err)
			return
		}
		if err := sm.AddConnection(ws); err != nil {
			lg.Warnf("%s: %v", r.RemoteAddr, err)
			ws.Close()
		}
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		usage, _ := cpu.Percent(time.Second, false)
		pct := 0
		if len(usage) > 0 {
			pct = int(gomath.Round(usage[0]))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sm.Stats(pct))
	})

	srv := &http.Server{Addr: config.Addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	lg.Infof("listening on %s", config.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
