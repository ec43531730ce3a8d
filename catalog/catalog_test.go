// catalog/catalog_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package catalog

import (
	"testing"

	"github.com/standoff-sim/standoff/math"
	"github.com/standoff-sim/standoff/util"
)

func TestLoadDefault(t *testing.T) {
	var e util.ErrorLogger
	c := LoadDefault(&e)
	if e.HaveErrors() {
		t.Fatalf("default catalog has errors:\n%s", e.String())
	}
	if c == nil {
		t.Fatal("nil catalog")
	}

	if len(c.Territories) < 4 {
		t.Errorf("expected at least 4 territories, got %d", len(c.Territories))
	}
	for id, terr := range c.Territories {
		if len(terr.CityIds) == 0 {
			t.Errorf("%s: no cities linked", id)
		}
		var silos int
		for _, sp := range terr.StartingPositions {
			if sp.Type == "silo" {
				silos++
			}
		}
		if silos == 0 {
			t.Errorf("%s: no silo starting positions", id)
		}
	}

	for lvl := 1; lvl <= 5; lvl++ {
		if c.Defcon.DurationsMs[lvl] <= 0 {
			t.Errorf("DEFCON %d duration missing", lvl)
		}
	}
}

func TestTerritoryForPosition(t *testing.T) {
	var e util.ErrorLogger
	c := LoadDefault(&e)
	if c == nil {
		t.Fatal(e.String())
	}

	for _, tc := range []struct {
		city string
		terr string
	}{
		{"chicago", "north_america"},
		{"moscow", "russia"},
		{"paris", "europe"},
		{"beijing", "east_asia"},
		{"sao_paulo", "latin_america"},
		{"delhi", "south_asia"},
	} {
		city, ok := c.Cities[tc.city]
		if !ok {
			t.Fatalf("city %s not in catalog", tc.city)
		}
		terr, ok := c.TerritoryForPosition(city.Position)
		if !ok {
			t.Errorf("%s: no territory contains %v", tc.city, city.Position)
		} else if terr.Id != tc.terr {
			t.Errorf("%s: got territory %s, want %s", tc.city, terr.Id, tc.terr)
		}
	}

	// Mid-Pacific is open ocean.
	if terr, ok := c.TerritoryForPosition(math.MakePoint2LL(10, -160)); ok {
		t.Errorf("open ocean landed in territory %s", terr.Id)
	}
}

func TestNetworkConnected(t *testing.T) {
	var e util.ErrorLogger
	c := LoadDefault(&e)
	if c == nil {
		t.Fatal(e.String())
	}

	adj := make(map[string][]string)
	for _, link := range c.Network.Links {
		adj[link[0]] = append(adj[link[0]], link[1])
		adj[link[1]] = append(adj[link[1]], link[0])
	}

	// Flood fill from an arbitrary node; every node must be reachable.
	var start string
	for id := range c.Network.Nodes {
		start = id
		break
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range adj[n] {
			if !seen[m] {
				seen[m] = true
				queue = append(queue, m)
			}
		}
	}
	for id := range c.Network.Nodes {
		if !seen[id] {
			t.Errorf("node %s unreachable from %s", id, start)
		}
	}
}

func TestRejectsBadDocuments(t *testing.T) {
	for _, tc := range []struct {
		name string
		json string
	}{
		{"bad version", `{"version": 99}`},
		{"orphan city", `{"version": 1,
			"game": {"tick_rate_hz": 10, "lobby_capacity": 6, "min_players": 2},
			"defcon": {"durations_ms": {"1": 1, "2": 1, "3": 1, "4": 1, "5": 1}},
			"interceptor": {"window_min": 0.1, "window_max": 0.9, "clamp_min": 0.05, "clamp_max": 0.95},
			"hacking": {"types": {"blind_radar": {"progress_per_sec": 0.01}}},
			"cities": {"atlantis": {"territory": "nowhere", "name": "Atlantis", "position": [0, 0], "population": 1}}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var e util.ErrorLogger
			if c := parse([]byte(tc.json), &e); c != nil || !e.HaveErrors() {
				t.Errorf("expected parse errors")
			}
		})
	}
}
