// cmd/standoffserver/main.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// standoffserver is the authoritative game server: it hosts the lobby
// list and runs the simulation sessions behind a websocket endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/standoff-sim/standoff/catalog"
	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/server"
	"github.com/standoff-sim/standoff/util"

	"golang.org/x/sync/errgroup"
)

var (
	addr        = flag.String("addr", "", "listen address (host:port); overrides the config file")
	configPath  = flag.String("config", "", "path to YAML server configuration")
	catalogPath = flag.String("catalog", "", "path to world catalog JSON (optionally zstd-compressed)")
	logLevel    = flag.String("loglevel", "", "logging level: debug, info, warn, error")
	logDir      = flag.String("logdir", "", "directory for rotated log files; empty logs to stderr")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "standoffserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		config.Addr = *addr
	}
	if *catalogPath != "" {
		config.CatalogPath = *catalogPath
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *logDir != "" {
		config.LogDir = *logDir
	}

	lg := log.New(config.LogLevel, config.LogDir)

	var e util.ErrorLogger
	var cat *catalog.Catalog
	if config.CatalogPath != "" {
		cat = catalog.Load(config.CatalogPath, &e)
	} else {
		cat = catalog.LoadDefault(&e)
	}
	if e.HaveErrors() {
		e.PrintErrors(lg)
		return fmt.Errorf("%s: invalid catalog", util.Select(config.CatalogPath != "", config.CatalogPath, "default"))
	}
	lg.Infof("catalog loaded: %s", cat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return server.LaunchServer(ctx, config, cat, lg) })

	return eg.Wait()
}
